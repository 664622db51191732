package wallet

import (
	"github.com/dashpay/dashspv/keychain"
	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// SeedSource returns the wallet seed. It is called once per signing, which
// is where an implementation asks the user to authenticate.
type SeedSource func() ([]byte, error)

// maxFeeAdjustments bounds how many times BuildSignedTransaction moves the
// change of a signed transaction to the fee of its size.
const maxFeeAdjustments = 16

// BuildSignedTransaction builds a transaction paying outputs like
// BuildTransaction and signs it, paying exactly FeeForTxSize of the signed
// size. Signature encodings differ in length by a byte or two, so the
// change output is moved to the fee of the signed size and the transaction
// signed again until both agree. seedSource is called once.
func (w *Wallet) BuildSignedTransaction(outputs []Output, seedSource SeedSource) (*wire.MsgTx, error) {
	tx, changeIndex, err := w.buildTransaction(outputs, true)
	if err != nil {
		return nil, err
	}

	seed, err := seedSource()
	if err != nil {
		return nil, errors.Wrap(err, "failed obtaining the wallet seed")
	}
	cachedSeed := func() ([]byte, error) { return seed, nil }

	for adjustments := 0; ; adjustments++ {
		signed, err := w.SignTransaction(tx, cachedSeed)
		if err != nil {
			return nil, err
		}
		if !signed {
			return nil, errors.WithStack(ErrMissingKeys)
		}
		if changeIndex < 0 {
			return tx, nil
		}

		paid, ok := w.FeeForTransaction(tx)
		if !ok {
			return nil, errors.WithStack(ErrMissingKeys)
		}
		size := tx.SerializeSize()
		fee := w.FeeForTxSize(size)
		if paid == fee {
			return tx, nil
		}
		if adjustments == maxFeeAdjustments {
			return nil, errors.Wrapf(ErrFeeNotSettled, "paying %s for %d bytes", paid, size)
		}

		changeOut := tx.TxOut[changeIndex]
		change := util.Amount(changeOut.Value) + paid - fee
		if IsDustAmount(change, len(changeOut.PkScript)) {
			tx.TxOut = append(tx.TxOut[:changeIndex], tx.TxOut[changeIndex+1:]...)
			changeIndex = -1
			continue
		}
		log.Debugf("Moving the change of %s from %s to %s for %d signed bytes",
			tx.TxHash(), util.Amount(changeOut.Value), change, size)
		changeOut.Value = int64(change)
	}
}

// SignTransaction signs every input of tx with the key of the wallet
// address holding the output it spends. It returns false, leaving tx
// untouched, if an input spends an output the wallet has no key for.
func (w *Wallet) SignTransaction(tx *wire.MsgTx, seedSource SeedSource) (bool, error) {
	w.mtx.RLock()
	pkScripts := make([][]byte, len(tx.TxIn))
	inputAddresses := make([]*walletAddress, len(tx.TxIn))
	for i, txIn := range tx.TxIn {
		prevOut, ok := w.spentOutput(txIn)
		if !ok {
			w.mtx.RUnlock()
			log.Debugf("No known output for input %s", txIn.PreviousOutPoint)
			return false, nil
		}
		hash160, ok := w.ownedHash160(prevOut.PkScript)
		if !ok {
			w.mtx.RUnlock()
			log.Debugf("Input %s does not spend a wallet output", txIn.PreviousOutPoint)
			return false, nil
		}
		pkScripts[i] = prevOut.PkScript
		inputAddresses[i] = w.account.byHash[hash160]
	}
	account := w.account
	w.mtx.RUnlock()

	seed, err := seedSource()
	if err != nil {
		return false, errors.Wrap(err, "failed obtaining the wallet seed")
	}
	accountKey, err := accountPrivateKey(seed, w.params, w.accountIndex)
	if err != nil {
		return false, err
	}
	publicKey, err := accountKey.Public()
	if err != nil {
		return false, err
	}
	if publicKey.String() != account.ExtendedPublicKey() {
		return false, ErrSeedMismatch
	}

	keys := make(map[string]*keychain.PrivateKey, len(inputAddresses))
	for _, wa := range inputAddresses {
		encoded := wa.address.EncodeAddress()
		if _, ok := keys[encoded]; ok {
			continue
		}
		keys[encoded], err = account.privateKey(accountKey, wa)
		if err != nil {
			return false, err
		}
	}
	keyDB := txscript.KeyClosure(func(addr address.Address) (*keychain.PrivateKey, error) {
		key, ok := keys[addr.EncodeAddress()]
		if !ok {
			return nil, txscript.ErrKeyNotFound
		}
		return key, nil
	})

	sigScripts := make([][]byte, len(tx.TxIn))
	for i := range tx.TxIn {
		sigScripts[i], err = txscript.SignTxOutput(w.params, tx, i, pkScripts[i],
			txscript.SigHashAll, keyDB, nil, nil)
		if err != nil {
			return false, errors.Wrapf(err, "failed signing input %d", i)
		}
	}
	for i, txIn := range tx.TxIn {
		txIn.SignatureScript = sigScripts[i]
	}
	return true, nil
}
