// Package bip39 encodes wallet entropy as English seed phrases and stretches
// a phrase into the 64 byte seed the HD key chain is built from.
package bip39

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tyler-smith/go-bip39"
)

// DefaultEntropyBits is the entropy of a new wallet phrase (12 words).
const DefaultEntropyBits = 128

var (
	// ErrUnknownWord is returned when a phrase contains a word outside the
	// wordlist.
	ErrUnknownWord = errors.New("unknown seed phrase word")

	// ErrChecksumInvalid is returned when the phrase checksum does not
	// match its entropy.
	ErrChecksumInvalid = errors.New("seed phrase checksum is invalid")
)

// NewMnemonic returns a phrase encoding entropyBits of fresh randomness.
// entropyBits must be a multiple of 32 in [128, 256].
func NewMnemonic(entropyBits int) (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return EncodeEntropy(entropy)
}

// EncodeEntropy encodes entropy as a phrase.
func EncodeEntropy(entropy []byte) (string, error) {
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return mnemonic, nil
}

// Normalize lowercases phrase and collapses its whitespace to single
// spaces.
func Normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// IsWordKnown reports whether word is in the wordlist.
func IsWordKnown(word string) bool {
	_, ok := bip39.GetWordIndex(word)
	return ok
}

// DecodeMnemonic returns the entropy encoded by phrase, checking every word
// and the checksum.
func DecodeMnemonic(phrase string) ([]byte, error) {
	phrase = Normalize(phrase)
	for _, word := range strings.Fields(phrase) {
		if !IsWordKnown(word) {
			return nil, errors.Wrapf(ErrUnknownWord, "%q", word)
		}
	}
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		if errors.Is(err, bip39.ErrChecksumIncorrect) {
			return nil, ErrChecksumInvalid
		}
		return nil, errors.WithStack(err)
	}
	return entropy, nil
}

// IsValid reports whether phrase decodes with a valid checksum.
func IsValid(phrase string) bool {
	_, err := DecodeMnemonic(phrase)
	return err == nil
}

// Seed validates phrase and derives its 64 byte seed with PBKDF2.
func Seed(phrase string, passphrase string) ([]byte, error) {
	phrase = Normalize(phrase)
	if _, err := DecodeMnemonic(phrase); err != nil {
		return nil, err
	}
	return bip39.NewSeed(phrase, passphrase), nil
}
