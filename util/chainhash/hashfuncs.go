// Copyright (c) 2015 The Decred developers
// Copyright (c) 2016-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chainhash

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160"
)

// Hash160Size is the size of a RIPEMD160(SHA256(x)) digest.
const Hash160Size = 20

// Hash160 is a 20 byte public key or script hash.
type Hash160 [Hash160Size]byte

// PowHashFunc computes the proof of work hash of a serialized block header.
// Dash mainnet uses X11; it is injected through the chain parameters.
type PowHashFunc func(header []byte) Hash

// HashB calculates hash(b) and returns the resulting bytes.
func HashB(b []byte) []byte {
	hash := sha256.Sum256(b)
	return hash[:]
}

// HashH calculates hash(b) and returns the resulting bytes as a Hash.
func HashH(b []byte) Hash {
	return Hash(sha256.Sum256(b))
}

// DoubleHashB calculates hash(hash(b)) and returns the resulting bytes.
func DoubleHashB(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

// DoubleHashH calculates hash(hash(b)) and returns the resulting bytes as a
// Hash.
func DoubleHashH(b []byte) Hash {
	first := sha256.Sum256(b)
	return Hash(sha256.Sum256(first[:]))
}

// Hash160B calculates RIPEMD160(SHA256(b)).
func Hash160B(b []byte) []byte {
	sha := sha256.Sum256(b)
	hasher := ripemd160.New()
	_, _ = hasher.Write(sha[:])
	return hasher.Sum(nil)
}

// Hash160H calculates RIPEMD160(SHA256(b)) and returns it as a Hash160.
func Hash160H(b []byte) Hash160 {
	var h Hash160
	copy(h[:], Hash160B(b))
	return h
}
