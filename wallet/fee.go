package wallet

import (
	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/wire"
)

const (
	// DefaultFeePerKb is the fee rate used when none is configured, in
	// duffs per 1000 bytes.
	DefaultFeePerKb util.Amount = 1000

	// MinRelayTxFee is the smallest fee the wallet pays for a transaction.
	MinRelayTxFee util.Amount = 1000

	// MaxTxFee is the largest fee the wallet pays for a transaction.
	MaxTxFee util.Amount = util.DuffPerDash / 10

	// feeGranularity is the step fees are rounded up to.
	feeGranularity util.Amount = 100

	// redeemP2PKHInputSize is the worst case size of a transaction input
	// redeeming a compressed P2PKH output.
	redeemP2PKHInputSize = 32 + 4 + 1 + txscript.RedeemP2PKHSigScriptSize + 4

	// p2pkhOutputSize is the serialize size of a P2PKH output.
	p2pkhOutputSize = 8 + 1 + txscript.P2PKHScriptSize
)

// FeeForTxSize returns the fee of a transaction of size bytes at feePerKb,
// rounded up to feeGranularity and clamped to [MinRelayTxFee, MaxTxFee].
func FeeForTxSize(size int, feePerKb util.Amount) util.Amount {
	fee := (util.Amount(size)*feePerKb + 999) / 1000
	fee = (fee + feeGranularity - 1) / feeGranularity * feeGranularity
	if fee < MinRelayTxFee {
		return MinRelayTxFee
	}
	if fee > MaxTxFee {
		return MaxTxFee
	}
	return fee
}

// IsDustAmount reports whether an output of amount locked by a script of
// scriptSize bytes costs more than a third of its value to spend at the
// minimum relay fee.
func IsDustAmount(amount util.Amount, scriptSize int) bool {
	totalSize := 8 + wire.VarIntSerializeSize(uint64(scriptSize)) + scriptSize + redeemP2PKHInputSize
	return amount*1000/(3*util.Amount(totalSize)) < MinRelayTxFee
}

// estimateSerializeSize returns the worst case size of a transaction
// spending numInputs P2PKH outputs to outputs, plus a P2PKH change output
// when addChange is set.
func estimateSerializeSize(numInputs int, outputs []*wire.TxOut, addChange bool) int {
	outputCount := len(outputs)
	changeSize := 0
	if addChange {
		outputCount++
		changeSize = p2pkhOutputSize
	}
	size := 4 + 4 +
		wire.VarIntSerializeSize(uint64(numInputs)) +
		wire.VarIntSerializeSize(uint64(outputCount)) +
		numInputs*redeemP2PKHInputSize +
		changeSize
	for _, txOut := range outputs {
		size += txOut.SerializeSize()
	}
	return size
}
