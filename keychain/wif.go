package keychain

import (
	"github.com/btcsuite/btcutil/base58"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/pkg/errors"
)

// compressMagic marks a WIF payload whose public key is compressed.
const compressMagic byte = 0x01

// ErrMalformedPrivateKey describes an error where a WIF-encoded private key
// cannot be decoded.
var ErrMalformedPrivateKey = errors.New("malformed private key")

// WIF contains the individual components described by the Wallet Import
// Format. It wraps a private key together with its network and whether
// the matching public key is serialized compressed.
type WIF struct {
	PrivKey        *PrivateKey
	CompressPubKey bool
	netID          byte
}

// NewWIF creates a WIF structure for exporting privKey on net.
func NewWIF(privKey *PrivateKey, net *chaincfg.Params, compress bool) *WIF {
	return &WIF{PrivKey: privKey, CompressPubKey: compress, netID: net.PrivateKeyID}
}

// IsForNet returns whether the WIF is associated with net.
func (w *WIF) IsForNet(net *chaincfg.Params) bool {
	return w.netID == net.PrivateKeyID
}

// DecodeWIF parses a Base58Check WIF string.
func DecodeWIF(wif string) (*WIF, error) {
	decoded, netID, err := base58.CheckDecode(wif)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedPrivateKey, err.Error())
	}

	var compress bool
	switch len(decoded) {
	case PrivateKeySize + 1:
		if decoded[PrivateKeySize] != compressMagic {
			return nil, ErrMalformedPrivateKey
		}
		compress = true
	case PrivateKeySize:
	default:
		return nil, ErrMalformedPrivateKey
	}

	privKey, err := PrivateKeyFromBytes(decoded[:PrivateKeySize])
	if err != nil {
		return nil, err
	}
	return &WIF{PrivKey: privKey, CompressPubKey: compress, netID: netID}, nil
}

// String returns the Base58Check encoding of w.
func (w *WIF) String() string {
	payload := make([]byte, 0, PrivateKeySize+1)
	payload = append(payload, w.PrivKey.Serialize()...)
	if w.CompressPubKey {
		payload = append(payload, compressMagic)
	}
	return base58.CheckEncode(payload, w.netID)
}
