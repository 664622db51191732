package wallet

import (
	"time"

	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// Output is a payment to an address.
type Output struct {
	Address address.Address
	Amount  util.Amount
}

// PaymentRequest is what a payment protocol exchange hands to the wallet.
type PaymentRequest struct {
	Outputs []Output
	Memo    string

	// Expires is the zero time when the request never expires.
	Expires time.Time
}

// BuildPaymentRequestTransaction builds an unsigned transaction paying the
// outputs of request.
func (w *Wallet) BuildPaymentRequestTransaction(request *PaymentRequest, includeFee bool) (*wire.MsgTx, error) {
	if !request.Expires.IsZero() && w.timeSource().After(request.Expires) {
		return nil, errors.Wrapf(ErrPaymentRequestExpired, "expired at %s", request.Expires)
	}
	return w.BuildTransaction(request.Outputs, includeFee)
}

// BuildTransaction builds an unsigned transaction paying outputs from the
// wallet's unspent outputs, oldest first. Change above the dust threshold
// goes back to the first unused change address; smaller change is left to
// the fee. With includeFee set the fee follows FeeForTxSize of the largest
// size the transaction can have once signed. BuildSignedTransaction settles
// the fee on the actual signed size.
func (w *Wallet) BuildTransaction(outputs []Output, includeFee bool) (*wire.MsgTx, error) {
	tx, _, err := w.buildTransaction(outputs, includeFee)
	return tx, err
}

// buildTransaction is BuildTransaction that also returns the index of the
// change output, or -1 when there is none.
func (w *Wallet) buildTransaction(outputs []Output, includeFee bool) (*wire.MsgTx, int, error) {
	if len(outputs) == 0 {
		return nil, -1, ErrNoOutputs
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	var amount util.Amount
	for _, output := range outputs {
		if !output.Address.IsForNet(w.params) {
			return nil, -1, errors.Wrapf(ErrWrongNetwork, "%s", output.Address)
		}
		pkScript, err := txscript.PayToAddrScript(output.Address)
		if err != nil {
			return nil, -1, err
		}
		if IsDustAmount(output.Amount, len(pkScript)) {
			return nil, -1, errors.Wrapf(ErrDustOutput, "%s to %s", output.Amount, output.Address)
		}
		tx.AddTxOut(wire.NewTxOut(int64(output.Amount), pkScript))
		amount += output.Amount
	}

	w.mtx.RLock()
	defer w.mtx.RUnlock()

	var total, fee util.Amount
	for _, outpoint := range w.utxoOrder {
		utxo := w.utxos[outpoint]
		tx.AddTxIn(wire.NewTxIn(&utxo.OutPoint, nil))
		total += utxo.Amount
		if includeFee {
			fee = FeeForTxSize(estimateSerializeSize(len(tx.TxIn), tx.TxOut, true), w.feePerKb)
		}
		if total >= amount+fee {
			break
		}
	}
	if total < amount+fee {
		return nil, -1, errors.Wrapf(ErrInsufficientFunds, "have %s, need %s", total, amount+fee)
	}

	change := total - amount - fee
	changeAddress := w.account.firstUnused(InternalChain).address
	changeScript, err := txscript.PayToAddrScript(changeAddress)
	if err != nil {
		return nil, -1, err
	}
	changeIndex := -1
	if !IsDustAmount(change, len(changeScript)) {
		changeIndex = len(tx.TxOut)
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	}

	log.Debugf("Built transaction spending %d outputs (%s) to pay %s with fee %s",
		len(tx.TxIn), total, amount, fee)
	return tx, changeIndex, nil
}
