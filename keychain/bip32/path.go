package bip32

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidPath is returned for malformed derivation path strings.
var ErrInvalidPath = errors.New("invalid derivation path")

type path struct {
	isPrivate bool
	indexes   []uint32
}

// parsePath parses paths such as "m/44'/5'/0'/0/0" or "M/0/1". A leading
// "m" asks for a private key and "M" for a public one. Hardened indexes
// are marked with ' or h.
func parsePath(pathString string) (*path, error) {
	parts := strings.Split(pathString, "/")
	p := &path{}
	switch parts[0] {
	case "m":
		p.isPrivate = true
	case "M":
		p.isPrivate = false
	default:
		return nil, errors.Wrapf(ErrInvalidPath, "%q must start with m or M", pathString)
	}

	p.indexes = make([]uint32, 0, len(parts)-1)
	for _, part := range parts[1:] {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}
		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidPath, "%q: bad index %q", pathString, part)
		}
		if index >= HardenedKeyStart {
			return nil, errors.Wrapf(ErrInvalidPath, "%q: index %d is out of range", pathString, index)
		}
		if hardened {
			index += HardenedKeyStart
		}
		p.indexes = append(p.indexes, uint32(index))
	}
	return p, nil
}

// Path derives the descendant of extKey at pathString. A private path
// requires a private extended key; a public path ("M/...") returns the
// public descendant.
func (extKey *ExtendedKey) Path(pathString string) (*ExtendedKey, error) {
	p, err := parsePath(pathString)
	if err != nil {
		return nil, err
	}
	return extKey.path(p)
}

func (extKey *ExtendedKey) path(p *path) (*ExtendedKey, error) {
	if p.isPrivate && !extKey.IsPrivate() {
		return nil, ErrPrivateKeyRequired
	}

	descendantExtKey := extKey
	for _, index := range p.indexes {
		var err error
		descendantExtKey, err = descendantExtKey.Child(index)
		if err != nil {
			return nil, err
		}
	}

	if !p.isPrivate {
		return descendantExtKey.Public()
	}
	return descendantExtKey, nil
}
