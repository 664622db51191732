// Package keystore keeps a wallet's mnemonic encrypted at rest, next to the
// account's extended public key, so addresses can be watched without asking
// for the password.
package keystore

import (
	"crypto/cipher"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/util/random"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// ErrWrongPassword is returned when a keystore cannot be opened with the
// given password.
var ErrWrongPassword = errors.New("wrong password or corrupted keystore")

// KDFParams are the argon2id parameters a keystore was sealed with.
type KDFParams struct {
	Time    uint32 `json:"time"`
	Memory  uint32 `json:"memory"`
	Threads uint8  `json:"threads"`
}

// DefaultKDFParams are used for new keystores.
var DefaultKDFParams = KDFParams{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
}

type keystoreJSON struct {
	Cipher            string    `json:"cipher"`
	Salt              string    `json:"salt"`
	KDF               KDFParams `json:"kdf"`
	ExtendedPublicKey string    `json:"publicKey"`
	EarliestKeyTime   int64     `json:"earliestKeyTime"`
}

// Keystore holds an encrypted mnemonic and the public data derived from it.
type Keystore struct {
	cipher []byte
	salt   []byte
	kdf    KDFParams

	ExtendedPublicKey string
	EarliestKeyTime   time.Time
}

func getAEAD(password, salt []byte, kdf KDFParams) (cipher.AEAD, error) {
	key := argon2.IDKey(password, salt, kdf.Time, kdf.Memory, kdf.Threads, chacha20poly1305.KeySize)
	return chacha20poly1305.NewX(key)
}

// New seals mnemonic with password.
func New(mnemonic string, password []byte, extendedPublicKey string,
	earliestKeyTime time.Time, kdf KDFParams) (*Keystore, error) {

	salt, err := random.Bytes(saltSize)
	if err != nil {
		return nil, err
	}
	aead, err := getAEAD(password, salt, kdf)
	if err != nil {
		return nil, err
	}
	nonce, err := random.Bytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}

	return &Keystore{
		cipher:            aead.Seal(nonce, nonce, []byte(mnemonic), nil),
		salt:              salt,
		kdf:               kdf,
		ExtendedPublicKey: extendedPublicKey,
		EarliestKeyTime:   earliestKeyTime,
	}, nil
}

// Mnemonic decrypts the sealed mnemonic.
func (ks *Keystore) Mnemonic(password []byte) (string, error) {
	aead, err := getAEAD(password, ks.salt, ks.kdf)
	if err != nil {
		return "", err
	}
	if len(ks.cipher) < aead.NonceSize() {
		return "", errors.Wrap(ErrWrongPassword, "ciphertext too short")
	}

	// Split nonce and ciphertext.
	nonce, ciphertext := ks.cipher[:aead.NonceSize()], ks.cipher[aead.NonceSize():]

	// Decrypt the message and check it wasn't tampered with.
	decrypted, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", errors.Wrap(ErrWrongPassword, err.Error())
	}
	return string(decrypted), nil
}

// Serialize encodes the keystore for storage.
func (ks *Keystore) Serialize() ([]byte, error) {
	return json.Marshal(&keystoreJSON{
		Cipher:            hex.EncodeToString(ks.cipher),
		Salt:              hex.EncodeToString(ks.salt),
		KDF:               ks.kdf,
		ExtendedPublicKey: ks.ExtendedPublicKey,
		EarliestKeyTime:   ks.EarliestKeyTime.Unix(),
	})
}

// Deserialize decodes a keystore written by Serialize.
func Deserialize(serialized []byte) (*Keystore, error) {
	decoded := &keystoreJSON{}
	err := json.Unmarshal(serialized, decoded)
	if err != nil {
		return nil, errors.Wrap(err, "malformed keystore")
	}
	cipherBytes, err := hex.DecodeString(decoded.Cipher)
	if err != nil {
		return nil, errors.Wrap(err, "malformed keystore cipher")
	}
	salt, err := hex.DecodeString(decoded.Salt)
	if err != nil {
		return nil, errors.Wrap(err, "malformed keystore salt")
	}
	return &Keystore{
		cipher:            cipherBytes,
		salt:              salt,
		kdf:               decoded.KDF,
		ExtendedPublicKey: decoded.ExtendedPublicKey,
		EarliestKeyTime:   time.Unix(decoded.EarliestKeyTime, 0),
	}, nil
}

// Save stores the keystore of walletID.
func Save(context dbaccess.Context, walletID string, ks *Keystore) error {
	serialized, err := ks.Serialize()
	if err != nil {
		return err
	}
	return dbaccess.StoreKeystore(context, walletID, serialized)
}

// Load reads the keystore of walletID. Returns an error matching
// dbaccess.IsNotFoundError if the wallet has none.
func Load(context dbaccess.Context, walletID string) (*Keystore, error) {
	serialized, err := dbaccess.FetchKeystore(context, walletID)
	if err != nil {
		return nil, err
	}
	return Deserialize(serialized)
}
