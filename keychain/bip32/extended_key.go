package bip32

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil/base58"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/keychain"
	"github.com/pkg/errors"
)

const (
	versionSerializationLen     = 4
	depthSerializationLen       = 1
	fingerprintSerializationLen = 4
	childNumberSerializationLen = 4
	chainCodeSerializationLen   = 32
	keySerializationLen         = 33
	checkSumLen                 = 4
)

const extendedKeySerializationLen = versionSerializationLen +
	depthSerializationLen +
	fingerprintSerializationLen +
	childNumberSerializationLen +
	chainCodeSerializationLen +
	keySerializationLen +
	checkSumLen

const (
	depthOffset       = versionSerializationLen
	fingerprintOffset = depthOffset + depthSerializationLen
	childNumberOffset = fingerprintOffset + fingerprintSerializationLen
	chainCodeOffset   = childNumberOffset + childNumberSerializationLen
	keyOffset         = chainCodeOffset + chainCodeSerializationLen
	checkSumOffset    = keyOffset + keySerializationLen
)

var (
	// ErrPrivateKeyRequired is returned when a hardened child or a private
	// key is requested from a public extended key.
	ErrPrivateKeyRequired = errors.New("a private extended key is required")

	// ErrInvalidChild is returned for the negligibly rare indexes whose
	// derived key falls outside the curve order. Callers should skip to
	// the next index.
	ErrInvalidChild = errors.New("the extended key at this index is invalid")

	// ErrDeriveBeyondMaxDepth is returned when deriving past depth 255.
	ErrDeriveBeyondMaxDepth = errors.New("cannot derive a key with more than 255 indices in its path")

	// ErrInvalidKeyLen is returned when a serialized extended key has the
	// wrong length.
	ErrInvalidKeyLen = errors.New("the provided serialized extended key length is invalid")

	// ErrBadChecksum is returned when a serialized extended key checksum
	// does not match.
	ErrBadChecksum = errors.New("bad extended key checksum")

	// ErrUnknownVersion is returned when the version bytes of a serialized
	// extended key belong to no registered network.
	ErrUnknownVersion = errors.New("unknown extended key version")
)

// ExtendedKey houses all the information needed to support a hierarchical
// deterministic extended key.
type ExtendedKey struct {
	Version           [4]byte
	Depth             uint8
	ParentFingerprint [4]byte
	ChildNumber       uint32
	ChainCode         [32]byte

	privateKey *btcec.PrivateKey
	publicKey  *btcec.PublicKey
}

// IsPrivate returns whether the key carries its private half.
func (extKey *ExtendedKey) IsPrivate() bool {
	return extKey.privateKey != nil
}

// PublicKey returns the public key of extKey.
func (extKey *ExtendedKey) PublicKey() *keychain.PublicKey {
	return keychain.NewPublicKey(extKey.publicKey)
}

// PrivateKey returns the private key of extKey, or ErrPrivateKeyRequired
// for a public extended key.
func (extKey *ExtendedKey) PrivateKey() (*keychain.PrivateKey, error) {
	if !extKey.IsPrivate() {
		return nil, ErrPrivateKeyRequired
	}
	return keychain.PrivateKeyFromBytes(extKey.privateKey.Serialize())
}

// Public returns the public extended key matching extKey. A public key is
// returned as is.
func (extKey *ExtendedKey) Public() (*ExtendedKey, error) {
	if !extKey.IsPrivate() {
		return extKey, nil
	}

	version, err := chaincfg.HDPrivateKeyToPublicKeyID(extKey.Version)
	if err != nil {
		return nil, err
	}

	return &ExtendedKey{
		Version:           version,
		Depth:             extKey.Depth,
		ParentFingerprint: extKey.ParentFingerprint,
		ChildNumber:       extKey.ChildNumber,
		ChainCode:         extKey.ChainCode,
		publicKey:         extKey.publicKey,
	}, nil
}

func (extKey *ExtendedKey) serialize() []byte {
	serialized := make([]byte, extendedKeySerializationLen)
	copy(serialized, extKey.Version[:])
	serialized[depthOffset] = extKey.Depth
	copy(serialized[fingerprintOffset:], extKey.ParentFingerprint[:])
	binary.BigEndian.PutUint32(serialized[childNumberOffset:], extKey.ChildNumber)
	copy(serialized[chainCodeOffset:], extKey.ChainCode[:])
	if extKey.IsPrivate() {
		serialized[keyOffset] = 0
		copy(serialized[keyOffset+1:], extKey.privateKey.Serialize())
	} else {
		copy(serialized[keyOffset:], extKey.publicKey.SerializeCompressed())
	}
	copy(serialized[checkSumOffset:], calcChecksum(serialized[:checkSumOffset]))
	return serialized
}

// String returns the Base58 encoding of the extended key with its checksum.
func (extKey *ExtendedKey) String() string {
	return base58.Encode(extKey.serialize())
}

// DeserializeExtendedKey parses a Base58 xprv/xpub style string. The
// version bytes must belong to a registered network.
func DeserializeExtendedKey(extKeyString string) (*ExtendedKey, error) {
	serialized := base58.Decode(extKeyString)
	if len(serialized) != extendedKeySerializationLen {
		return nil, errors.Wrapf(ErrInvalidKeyLen, "key length must be %d bytes but got %d",
			extendedKeySerializationLen, len(serialized))
	}

	err := validateChecksum(serialized)
	if err != nil {
		return nil, err
	}

	extKey := &ExtendedKey{}
	copy(extKey.Version[:], serialized[:versionSerializationLen])
	extKey.Depth = serialized[depthOffset]
	copy(extKey.ParentFingerprint[:], serialized[fingerprintOffset:childNumberOffset])
	extKey.ChildNumber = binary.BigEndian.Uint32(serialized[childNumberOffset:chainCodeOffset])
	copy(extKey.ChainCode[:], serialized[chainCodeOffset:keyOffset])
	keyBytes := serialized[keyOffset:checkSumOffset]

	switch {
	case chaincfg.IsHDPrivateKeyID(extKey.Version):
		if keyBytes[0] != 0 {
			return nil, errors.Errorf("expected 0 padding for private key but got %d", keyBytes[0])
		}
		privateKey, err := keychain.PrivateKeyFromBytes(keyBytes[1:])
		if err != nil {
			return nil, err
		}
		extKey.privateKey = privateKey.BTCEC()
		extKey.publicKey = extKey.privateKey.PubKey()

	case chaincfg.IsHDPublicKeyID(extKey.Version):
		publicKey, err := keychain.ParsePublicKey(keyBytes)
		if err != nil {
			return nil, err
		}
		extKey.publicKey = publicKey.BTCEC()

	default:
		return nil, errors.Wrapf(ErrUnknownVersion, "%x", extKey.Version)
	}

	return extKey, nil
}
