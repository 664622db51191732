package keychain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

const (
	// PrivateKeySize is the size of a serialized private key scalar.
	PrivateKeySize = 32

	// PublicKeySize is the size of a compressed serialized public key.
	PublicKeySize = 33

	// CompactSignatureSize is the size of a recoverable compact signature.
	CompactSignatureSize = 65
)

var (
	// ErrInvalidPrivateKey is returned when a private key scalar is zero,
	// not smaller than the group order, or of the wrong length.
	ErrInvalidPrivateKey = errors.New("invalid private key")

	// ErrInvalidPublicKey is returned when bytes do not encode a point on
	// the curve.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrInvalidSignature is returned when a compact signature does not
	// recover to a public key.
	ErrInvalidSignature = errors.New("invalid signature")
)

// PrivateKey is a secp256k1 private key.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a secp256k1 public key.
type PublicKey struct {
	key *btcec.PublicKey
}

// GeneratePrivateKey returns a new random private key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed generating private key")
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32 byte big-endian private key scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, errors.Wrapf(ErrInvalidPrivateKey, "length %d, want %d", len(b), PrivateKeySize)
	}
	var scalar btcec.ModNScalar
	overflow := scalar.SetByteSlice(b)
	if overflow || scalar.IsZero() {
		return nil, errors.Wrap(ErrInvalidPrivateKey, "scalar out of range")
	}
	return &PrivateKey{key: btcec.PrivKeyFromScalar(&scalar)}, nil
}

// Serialize returns the 32 byte big-endian scalar.
func (k *PrivateKey) Serialize() []byte {
	return k.key.Serialize()
}

// PublicKey returns the public key matching k.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{key: k.key.PubKey()}
}

// Sign produces a deterministic RFC6979 signature over hash, normalized to
// low S and encoded as strict DER.
func (k *PrivateKey) Sign(hash *chainhash.Hash) []byte {
	return ecdsa.Sign(k.key, hash[:]).Serialize()
}

// SignCompact produces a 65 byte recoverable signature over hash for the
// compressed form of the public key.
func (k *PrivateKey) SignCompact(hash *chainhash.Hash) []byte {
	return ecdsa.SignCompact(k.key, hash[:], true)
}

// BTCEC returns the underlying btcec key.
func (k *PrivateKey) BTCEC() *btcec.PrivateKey {
	return k.key
}

// ParsePublicKey parses a compressed or uncompressed public key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidPublicKey, err.Error())
	}
	return &PublicKey{key: key}, nil
}

// NewPublicKey wraps a btcec public key.
func NewPublicKey(key *btcec.PublicKey) *PublicKey {
	return &PublicKey{key: key}
}

// SerializeCompressed returns the 33 byte compressed encoding.
func (p *PublicKey) SerializeCompressed() []byte {
	return p.key.SerializeCompressed()
}

// Hash160 returns RIPEMD160(SHA256(compressed key)).
func (p *PublicKey) Hash160() chainhash.Hash160 {
	return chainhash.Hash160H(p.SerializeCompressed())
}

// IsEqual reports whether p and other are the same point.
func (p *PublicKey) IsEqual(other *PublicKey) bool {
	return p.key.IsEqual(other.key)
}

// BTCEC returns the underlying btcec key.
func (p *PublicKey) BTCEC() *btcec.PublicKey {
	return p.key
}

// Verify checks a DER signature over hash. Malformed signatures verify as
// false.
func (p *PublicKey) Verify(hash *chainhash.Hash, signature []byte) bool {
	sig, err := ecdsa.ParseDERSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], p.key)
}

// RecoverCompact returns the public key that produced a compact signature
// over hash.
func RecoverCompact(signature []byte, hash *chainhash.Hash) (*PublicKey, error) {
	if len(signature) != CompactSignatureSize {
		return nil, errors.Wrapf(ErrInvalidSignature, "length %d, want %d",
			len(signature), CompactSignatureSize)
	}
	key, _, err := ecdsa.RecoverCompact(signature, hash[:])
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return &PublicKey{key: key}, nil
}
