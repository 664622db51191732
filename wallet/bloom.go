package wallet

import (
	"github.com/dashpay/dashspv/bloom"
	"github.com/dashpay/dashspv/wire"
)

// BloomFilter returns a filter matching every wallet address and every
// unspent wallet output, sized for falsePositiveRate. Outputs of unconfirmed
// transactions are included so that their spends are relayed too.
func (w *Wallet) BloomFilter(falsePositiveRate float64, tweak uint32) (*bloom.Filter, error) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	addresses := w.account.allAddresses()
	var outpoints []wire.OutPoint
	for _, wtx := range w.sortedTransactions() {
		for i, txOut := range wtx.tx.TxOut {
			outpoint := wire.OutPoint{Hash: wtx.hash, Index: uint32(i)}
			if _, ok := w.spent[outpoint]; ok {
				continue
			}
			if _, ok := w.ownedHash160(txOut.PkScript); ok {
				outpoints = append(outpoints, outpoint)
			}
		}
	}

	// The element count is padded so that the filter keeps its false
	// positive rate while the gap window grows.
	elements := uint32(len(addresses) + len(outpoints) + 100)
	filter, err := bloom.NewFilter(elements, tweak, falsePositiveRate, wire.BloomUpdateAll)
	if err != nil {
		return nil, err
	}
	for _, wa := range addresses {
		filter.Add(wa.hash160[:])
	}
	for i := range outpoints {
		filter.AddOutPoint(&outpoints[i])
	}
	return filter, nil
}
