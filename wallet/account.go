package wallet

import (
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/keychain"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// The two BIP44 chains of an account.
const (
	ExternalChain uint32 = 0
	InternalChain uint32 = 1
)

const (
	// DefaultExternalGapLimit is the number of unused receive addresses
	// kept ahead of the last used one.
	DefaultExternalGapLimit = 10

	// DefaultInternalGapLimit is the number of unused change addresses
	// kept ahead of the last used one.
	DefaultInternalGapLimit = 5
)

type walletAddress struct {
	address *address.AddressPubKeyHash
	hash160 chainhash.Hash160
	chain   uint32
	index   uint32
}

// Account derives the receive and change addresses of one BIP44 account
// from its extended public key. It is not safe for concurrent use; the
// wallet serializes access to it.
type Account struct {
	params    *chaincfg.Params
	key       *bip32.ExtendedKey
	chainKeys [2]*bip32.ExtendedKey
	gapLimits [2]uint32

	addresses [2][]*walletAddress
	byHash    map[chainhash.Hash160]*walletAddress
	used      map[chainhash.Hash160]struct{}
}

// AccountKeyFromSeed derives the extended public key of the BIP44 account
// m/44'/coin'/account' of seed.
func AccountKeyFromSeed(seed []byte, params *chaincfg.Params, account uint32) (*bip32.ExtendedKey, error) {
	key, err := accountPrivateKey(seed, params, account)
	if err != nil {
		return nil, err
	}
	return key.Public()
}

func accountPrivateKey(seed []byte, params *chaincfg.Params, account uint32) (*bip32.ExtendedKey, error) {
	return bip32.NewMasterWithPath(seed, params.HDPrivateKeyID, bip32.AccountPath(params, account))
}

// NewAccount returns an account deriving its addresses from accountKey.
// Only the public part of accountKey is kept.
func NewAccount(accountKey *bip32.ExtendedKey, params *chaincfg.Params,
	externalGapLimit, internalGapLimit uint32) (*Account, error) {

	publicKey, err := accountKey.Public()
	if err != nil {
		return nil, err
	}
	account := &Account{
		params:    params,
		key:       publicKey,
		gapLimits: [2]uint32{externalGapLimit, internalGapLimit},
		byHash:    make(map[chainhash.Hash160]*walletAddress),
		used:      make(map[chainhash.Hash160]struct{}),
	}
	for _, chain := range []uint32{ExternalChain, InternalChain} {
		account.chainKeys[chain], err = publicKey.Child(chain)
		if err != nil {
			return nil, errors.Wrapf(err, "failed deriving chain %d", chain)
		}
		_, err = account.fillGap(chain)
		if err != nil {
			return nil, err
		}
	}
	return account, nil
}

// ExtendedPublicKey returns the serialized account public key.
func (a *Account) ExtendedPublicKey() string {
	return a.key.String()
}

// fillGap derives addresses on chain until gapLimit unused addresses follow
// the last used one, and returns the new addresses.
func (a *Account) fillGap(chain uint32) ([]*walletAddress, error) {
	unused := uint32(0)
	addresses := a.addresses[chain]
	for i := len(addresses) - 1; i >= 0; i-- {
		if _, ok := a.used[addresses[i].hash160]; ok {
			break
		}
		unused++
	}

	var added []*walletAddress
	for index := uint32(len(addresses)); unused < a.gapLimits[chain]; index++ {
		child, err := a.chainKeys[chain].Child(index)
		if errors.Is(err, bip32.ErrInvalidChild) {
			continue
		}
		if err != nil {
			return nil, err
		}
		addr, err := address.NewAddressPubKey(child.PublicKey().SerializeCompressed(), a.params)
		if err != nil {
			return nil, err
		}
		wa := &walletAddress{
			address: addr,
			hash160: *addr.Hash160(),
			chain:   chain,
			index:   index,
		}
		a.addresses[chain] = append(a.addresses[chain], wa)
		a.byHash[wa.hash160] = wa
		added = append(added, wa)
		unused++
	}
	return added, nil
}

func (a *Account) containsHash160(hash160 chainhash.Hash160) bool {
	_, ok := a.byHash[hash160]
	return ok
}

// markUsed records hash160 as used and reports the chain it belongs to.
func (a *Account) markUsed(hash160 chainhash.Hash160) (chain uint32, ok bool) {
	wa, ok := a.byHash[hash160]
	if !ok {
		return 0, false
	}
	a.used[hash160] = struct{}{}
	return wa.chain, true
}

func (a *Account) firstUnused(chain uint32) *walletAddress {
	for _, wa := range a.addresses[chain] {
		if _, ok := a.used[wa.hash160]; !ok {
			return wa
		}
	}
	return nil
}

// allAddresses returns every derived address, external chain first.
func (a *Account) allAddresses() []*walletAddress {
	all := make([]*walletAddress, 0, len(a.byHash))
	all = append(all, a.addresses[ExternalChain]...)
	return append(all, a.addresses[InternalChain]...)
}

// privateKey derives the private key of wa from the account private key.
func (a *Account) privateKey(accountKey *bip32.ExtendedKey, wa *walletAddress) (*keychain.PrivateKey, error) {
	chainKey, err := accountKey.Child(wa.chain)
	if err != nil {
		return nil, err
	}
	key, err := chainKey.Child(wa.index)
	if err != nil {
		return nil, err
	}
	return key.PrivateKey()
}
