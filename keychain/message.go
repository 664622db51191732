package keychain

import (
	"bytes"
	"encoding/base64"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// signedMessageMagic prefixes every signed message before hashing.
const signedMessageMagic = "DarkCoin Signed Message:\n"

// MessageHash returns the digest signed by SignMessage.
func MessageHash(message string) chainhash.Hash {
	var buf bytes.Buffer
	// Writing to a bytes.Buffer cannot fail.
	_ = wire.WriteVarString(&buf, signedMessageMagic)
	_ = wire.WriteVarString(&buf, message)
	return chainhash.DoubleHashH(buf.Bytes())
}

// SignMessage signs message with key and returns the base64 encoded compact
// signature.
func SignMessage(key *PrivateKey, message string) string {
	hash := MessageHash(message)
	return base64.StdEncoding.EncodeToString(key.SignCompact(&hash))
}

// VerifyMessage recovers the signer of a base64 compact signature and
// reports whether its key hash is pubKeyHash.
func VerifyMessage(pubKeyHash chainhash.Hash160, signature string, message string) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false, errors.Wrap(ErrInvalidSignature, "malformed base64")
	}
	hash := MessageHash(message)
	publicKey, err := RecoverCompact(sig, &hash)
	if err != nil {
		return false, err
	}
	return publicKey.Hash160() == pubKeyHash, nil
}
