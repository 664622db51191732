package bip32

import (
	"fmt"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/random"
)

// Purpose is the BIP44 purpose index.
const Purpose = 44

// GenerateSeed generates seed that can be used to initialize a master key.
func GenerateSeed() ([]byte, error) {
	return random.Bytes(32)
}

// NewMasterWithPath returns a new master key based on the given seed and version, with a derivation
// to the given path.
func NewMasterWithPath(seed []byte, version [4]byte, pathString string) (*ExtendedKey, error) {
	masterKey, err := NewMaster(seed, version)
	if err != nil {
		return nil, err
	}

	return masterKey.Path(pathString)
}

// AccountPath returns the BIP44 account path m/44'/coin'/account' of net.
func AccountPath(net *chaincfg.Params, account uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'", Purpose, net.HDCoinType, account)
}
