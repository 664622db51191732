package dbaccess

import "github.com/dashpay/dashspv/database"

var keystoreBucket = database.MakeBucket([]byte("keystore"))

func keystoreKey(walletID string) *database.Key {
	return keystoreBucket.Key([]byte(walletID))
}

// StoreKeystore stores the encrypted keystore of the given wallet.
func StoreKeystore(context Context, walletID string, keystore []byte) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(keystoreKey(walletID), keystore)
}

// FetchKeystore retrieves the encrypted keystore of the given wallet.
// Returns ErrNotFound if no keystore was stored.
func FetchKeystore(context Context, walletID string) ([]byte, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	return accessor.Get(keystoreKey(walletID))
}

// HasKeystore returns whether a keystore for the given wallet exists.
func HasKeystore(context Context, walletID string) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(keystoreKey(walletID))
}
