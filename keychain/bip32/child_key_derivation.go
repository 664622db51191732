package bip32

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// HardenedKeyStart is the index at which a hardened key starts. Each
// extended key has 2^31 normal child keys and 2^31 hardened child keys.
const HardenedKeyStart = 0x80000000

const maxDepth = 255

// masterKey is the HMAC key used to derive a master key from a seed.
var masterKey = []byte("Bitcoin seed")

// NewMaster creates a new master node for use in creating a hierarchical
// deterministic key chain. The seed must be between 128 and 512 bits.
func NewMaster(seed []byte, version [4]byte) (*ExtendedKey, error) {
	if len(seed) < 16 || len(seed) > 64 {
		return nil, errors.Errorf("seed length must be between 16 and 64 bytes but got %d", len(seed))
	}

	mac := newHMACWriter(masterKey)
	mac.InfallibleWrite(seed)
	I := mac.Sum(nil)

	var keyNum btcec.ModNScalar
	if overflow := keyNum.SetByteSlice(I[:32]); overflow || keyNum.IsZero() {
		return nil, ErrInvalidChild
	}
	privateKey := btcec.PrivKeyFromScalar(&keyNum)

	extKey := &ExtendedKey{
		Version:    version,
		privateKey: privateKey,
		publicKey:  privateKey.PubKey(),
	}
	copy(extKey.ChainCode[:], I[32:])
	return extKey, nil
}

// IsHardened returns whether i is a hardened child index.
func IsHardened(i uint32) bool {
	return i >= HardenedKeyStart
}

// Child returns the derived child extended key at index i. Indexes at or
// above HardenedKeyStart derive hardened children, which require a private
// extended key.
//
// A private parent yields a private child and a public parent yields a
// public child. Derivation is a pure function of (extKey, i).
func (extKey *ExtendedKey) Child(i uint32) (*ExtendedKey, error) {
	if extKey.Depth == maxDepth {
		return nil, ErrDeriveBeyondMaxDepth
	}

	I, err := extKey.calcI(i)
	if err != nil {
		return nil, err
	}
	iL, iR := I[:32], I[32:]

	var ilNum btcec.ModNScalar
	if overflow := ilNum.SetByteSlice(iL); overflow {
		return nil, ErrInvalidChild
	}

	childExt := &ExtendedKey{
		Version:           extKey.Version,
		Depth:             extKey.Depth + 1,
		ParentFingerprint: extKey.calcFingerprint(),
		ChildNumber:       i,
	}
	copy(childExt.ChainCode[:], iR)

	if extKey.IsPrivate() {
		childExt.privateKey, err = privateKeyAdd(extKey.privateKey, &ilNum)
		if err != nil {
			return nil, err
		}
		childExt.publicKey = childExt.privateKey.PubKey()
	} else {
		childExt.publicKey, err = pointAdd(extKey.publicKey, &ilNum)
		if err != nil {
			return nil, err
		}
	}

	return childExt, nil
}

func (extKey *ExtendedKey) calcFingerprint() [4]byte {
	hash := chainhash.Hash160B(extKey.publicKey.SerializeCompressed())
	var fingerprint [4]byte
	copy(fingerprint[:], hash[:4])
	return fingerprint
}

func (extKey *ExtendedKey) calcI(i uint32) ([]byte, error) {
	if IsHardened(i) && !extKey.IsPrivate() {
		return nil, errors.Wrapf(ErrPrivateKeyRequired, "cannot derive hardened child %d", i)
	}

	mac := newHMACWriter(extKey.ChainCode[:])
	if IsHardened(i) {
		mac.InfallibleWrite([]byte{0x00})
		mac.InfallibleWrite(extKey.privateKey.Serialize())
	} else {
		mac.InfallibleWrite(extKey.publicKey.SerializeCompressed())
	}

	mac.InfallibleWrite(serializeUint32(i))
	return mac.Sum(nil), nil
}

func serializeUint32(v uint32) []byte {
	serialized := make([]byte, 4)
	binary.BigEndian.PutUint32(serialized, v)
	return serialized
}

func privateKeyAdd(k *btcec.PrivateKey, tweak *btcec.ModNScalar) (*btcec.PrivateKey, error) {
	keyNum := k.Key
	keyNum.Add(tweak)
	if keyNum.IsZero() {
		return nil, ErrInvalidChild
	}
	return btcec.PrivKeyFromScalar(&keyNum), nil
}

func pointAdd(point *btcec.PublicKey, tweak *btcec.ModNScalar) (*btcec.PublicKey, error) {
	var tweakPoint, parentPoint, result btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(tweak, &tweakPoint)
	point.AsJacobian(&parentPoint)
	btcec.AddNonConst(&tweakPoint, &parentPoint, &result)
	if (result.X.IsZero() && result.Y.IsZero()) || result.Z.IsZero() {
		return nil, ErrInvalidChild
	}
	result.ToAffine()
	return btcec.NewPublicKey(&result.X, &result.Y), nil
}
