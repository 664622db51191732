package wallet

import (
	"sort"
	"sync"
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// lockTimeThreshold is the number below which a lock time is interpreted to
// be a block height.
const lockTimeThreshold = 500000000

// TransactionStore persists the transactions of a wallet.
type TransactionStore interface {
	SaveTransaction(walletID string, record *dbaccess.TransactionRecord) error
	LoadTransactions(walletID string) ([]*dbaccess.TransactionRecord, error)
	DeleteTransaction(walletID string, txHash *chainhash.Hash) error
}

// Config is the configuration of a Wallet.
type Config struct {
	Params *chaincfg.Params

	// WalletID keys the wallet's data in Store.
	WalletID string

	// AccountKey is the extended key of the BIP44 account. Only its
	// public part is kept.
	AccountKey   *bip32.ExtendedKey
	AccountIndex uint32

	ExternalGapLimit uint32
	InternalGapLimit uint32
	FeePerKb         util.Amount

	// Store is optional. Without it the wallet lives in memory only.
	Store    TransactionStore
	Notifier events.Notifier

	TimeSource func() time.Time
}

type walletTx struct {
	tx          *wire.MsgTx
	hash        chainhash.Hash
	blockHeight int32
	timestamp   time.Time
}

func (wtx *walletTx) record() *dbaccess.TransactionRecord {
	return &dbaccess.TransactionRecord{
		Tx:          wtx.tx,
		BlockHeight: wtx.blockHeight,
		Timestamp:   wtx.timestamp,
	}
}

// UTXO is an unspent output owned by the wallet.
type UTXO struct {
	OutPoint wire.OutPoint
	Amount   util.Amount
	PkScript []byte
}

// TxSummary is a snapshot of a registered transaction.
type TxSummary struct {
	Tx          *wire.MsgTx
	Hash        chainhash.Hash
	BlockHeight int32
	Timestamp   time.Time
	Status      events.TxStatus
}

// Wallet tracks the transactions paying to or spending from one account and
// derives its unspent outputs and balance from them. All methods are safe
// for concurrent use.
type Wallet struct {
	params       *chaincfg.Params
	walletID     string
	accountIndex uint32
	store        TransactionStore
	notifier     events.Notifier
	timeSource   func() time.Time

	mtx        sync.RWMutex
	account    *Account
	feePerKb   util.Amount
	bestHeight int32
	txs        map[chainhash.Hash]*walletTx

	// Derived by updateBalance.
	utxos     map[wire.OutPoint]*UTXO
	utxoOrder []wire.OutPoint
	spent     map[wire.OutPoint]chainhash.Hash
	invalid   map[chainhash.Hash]struct{}
	pending   map[chainhash.Hash]struct{}
	balance   util.Amount

	// filterGeneration is bumped whenever addresses are derived.
	filterGeneration uint64
}

// New returns a wallet for the account of cfg, restoring the transactions
// found in cfg.Store.
func New(cfg *Config) (*Wallet, error) {
	externalGapLimit := cfg.ExternalGapLimit
	if externalGapLimit == 0 {
		externalGapLimit = DefaultExternalGapLimit
	}
	internalGapLimit := cfg.InternalGapLimit
	if internalGapLimit == 0 {
		internalGapLimit = DefaultInternalGapLimit
	}
	account, err := NewAccount(cfg.AccountKey, cfg.Params, externalGapLimit, internalGapLimit)
	if err != nil {
		return nil, err
	}
	feePerKb := cfg.FeePerKb
	if feePerKb == 0 {
		feePerKb = DefaultFeePerKb
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.Nop{}
	}
	timeSource := cfg.TimeSource
	if timeSource == nil {
		timeSource = time.Now
	}

	w := &Wallet{
		params:       cfg.Params,
		walletID:     cfg.WalletID,
		accountIndex: cfg.AccountIndex,
		store:        cfg.Store,
		notifier:     notifier,
		timeSource:   timeSource,
		account:      account,
		feePerKb:     feePerKb,
		txs:          make(map[chainhash.Hash]*walletTx),
	}

	if w.store != nil {
		records, err := w.store.LoadTransactions(w.walletID)
		if err != nil {
			return nil, errors.Wrap(err, "failed loading wallet transactions")
		}
		for _, record := range records {
			wtx := &walletTx{
				tx:          record.Tx,
				hash:        record.Tx.TxHash(),
				blockHeight: record.BlockHeight,
				timestamp:   record.Timestamp,
			}
			w.txs[wtx.hash] = wtx
			if wtx.blockHeight > w.bestHeight {
				w.bestHeight = wtx.blockHeight
			}
		}
		for _, wtx := range w.sortedTransactions() {
			err := w.markAddressesUsed(wtx.tx)
			if err != nil {
				return nil, err
			}
		}
		log.Infof("Loaded %d transactions of wallet %s", len(records), w.walletID)
	}
	w.updateBalance()
	return w, nil
}

// Params returns the network parameters of the wallet.
func (w *Wallet) Params() *chaincfg.Params {
	return w.params
}

// ExtendedPublicKey returns the serialized account public key.
func (w *Wallet) ExtendedPublicKey() string {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.account.ExtendedPublicKey()
}

// ReceiveAddress returns the first unused external address.
func (w *Wallet) ReceiveAddress() address.Address {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.account.firstUnused(ExternalChain).address
}

// ChangeAddress returns the first unused internal address.
func (w *Wallet) ChangeAddress() address.Address {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.account.firstUnused(InternalChain).address
}

// Addresses returns every address derived so far, used or not.
func (w *Wallet) Addresses() []address.Address {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	all := w.account.allAddresses()
	addresses := make([]address.Address, len(all))
	for i, wa := range all {
		addresses[i] = wa.address
	}
	return addresses
}

// ContainsAddress reports whether addr was derived by the wallet.
func (w *Wallet) ContainsAddress(addr address.Address) bool {
	pkHash, ok := addr.(*address.AddressPubKeyHash)
	if !ok {
		return false
	}
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.account.containsHash160(*pkHash.Hash160())
}

// FilterGeneration changes every time the wallet derives new addresses.
// Bloom filters built at an older generation miss them.
func (w *Wallet) FilterGeneration() uint64 {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.filterGeneration
}

// FeePerKb returns the fee rate used to build transactions.
func (w *Wallet) FeePerKb() util.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.feePerKb
}

// SetFeePerKb changes the fee rate used to build transactions.
func (w *Wallet) SetFeePerKb(feePerKb util.Amount) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.feePerKb = feePerKb
}

// FeeForTxSize returns the fee the wallet pays for a transaction of size
// bytes.
func (w *Wallet) FeeForTxSize(size int) util.Amount {
	return FeeForTxSize(size, w.FeePerKb())
}

// Balance returns the sum of the wallet's unspent outputs.
func (w *Wallet) Balance() util.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	return w.balance
}

// UTXOs returns the unspent outputs of the wallet, oldest first.
func (w *Wallet) UTXOs() []*UTXO {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	utxos := make([]*UTXO, len(w.utxoOrder))
	for i, outpoint := range w.utxoOrder {
		utxo := *w.utxos[outpoint]
		utxos[i] = &utxo
	}
	return utxos
}

// Transactions returns the registered transactions, oldest first.
func (w *Wallet) Transactions() []*TxSummary {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	sorted := w.sortedTransactions()
	summaries := make([]*TxSummary, len(sorted))
	for i, wtx := range sorted {
		summaries[i] = w.summary(wtx)
	}
	return summaries
}

// Transaction returns the registered transaction of the given hash.
func (w *Wallet) Transaction(hash *chainhash.Hash) (*TxSummary, bool) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	wtx, ok := w.txs[*hash]
	if !ok {
		return nil, false
	}
	return w.summary(wtx), true
}

func (w *Wallet) summary(wtx *walletTx) *TxSummary {
	return &TxSummary{
		Tx:          wtx.tx,
		Hash:        wtx.hash,
		BlockHeight: wtx.blockHeight,
		Timestamp:   wtx.timestamp,
		Status:      w.status(wtx),
	}
}

func (w *Wallet) status(wtx *walletTx) events.TxStatus {
	if _, ok := w.invalid[wtx.hash]; ok {
		return events.TxStatusInvalid
	}
	if _, ok := w.pending[wtx.hash]; ok {
		return events.TxStatusPending
	}
	if wtx.blockHeight == blockchain.UnknownHeight {
		return events.TxStatusUnconfirmed
	}
	return events.TxStatusConfirmed
}

// ownedHash160 returns the pubkey hash of a P2PKH script paying to the
// wallet.
func (w *Wallet) ownedHash160(pkScript []byte) (chainhash.Hash160, bool) {
	if !txscript.IsPayToPubKeyHash(pkScript) {
		return chainhash.Hash160{}, false
	}
	hash160, ok := txscript.ExtractScriptHash160(pkScript)
	if !ok || !w.account.containsHash160(hash160) {
		return chainhash.Hash160{}, false
	}
	return hash160, true
}

// spentOutput returns the wallet output an input spends, if the funding
// transaction is registered.
func (w *Wallet) spentOutput(txIn *wire.TxIn) (*wire.TxOut, bool) {
	prev, ok := w.txs[txIn.PreviousOutPoint.Hash]
	if !ok || txIn.PreviousOutPoint.Index >= uint32(len(prev.tx.TxOut)) {
		return nil, false
	}
	return prev.tx.TxOut[txIn.PreviousOutPoint.Index], true
}

// containsTransaction reports whether tx pays to or spends from the wallet.
func (w *Wallet) containsTransaction(tx *wire.MsgTx) bool {
	for _, txOut := range tx.TxOut {
		if _, ok := w.ownedHash160(txOut.PkScript); ok {
			return true
		}
	}
	for _, txIn := range tx.TxIn {
		if prevOut, ok := w.spentOutput(txIn); ok {
			if _, ok := w.ownedHash160(prevOut.PkScript); ok {
				return true
			}
		}
		pubKey := txscript.ExtractSigScriptPubKey(txIn.SignatureScript)
		if pubKey != nil && w.account.containsHash160(chainhash.Hash160H(pubKey)) {
			return true
		}
	}
	return false
}

// markAddressesUsed marks every wallet address tx touches as used and
// refills the gap windows of the chains involved.
func (w *Wallet) markAddressesUsed(tx *wire.MsgTx) error {
	var touched [2]bool
	for _, txOut := range tx.TxOut {
		if hash160, ok := w.ownedHash160(txOut.PkScript); ok {
			chain, _ := w.account.markUsed(hash160)
			touched[chain] = true
		}
	}
	for _, txIn := range tx.TxIn {
		pubKey := txscript.ExtractSigScriptPubKey(txIn.SignatureScript)
		if pubKey == nil {
			continue
		}
		if chain, ok := w.account.markUsed(chainhash.Hash160H(pubKey)); ok {
			touched[chain] = true
		}
	}
	for chain, isTouched := range touched {
		if !isTouched {
			continue
		}
		added, err := w.account.fillGap(uint32(chain))
		if err != nil {
			return err
		}
		if len(added) > 0 {
			w.filterGeneration++
			log.Debugf("Derived %d new addresses on chain %d", len(added), chain)
		}
	}
	return nil
}

// RegisterTransaction adds tx to the wallet if it pays to or spends from
// one of its addresses. It returns false when tx is unrelated to the wallet.
// Registering a known transaction is a no-op that returns true.
func (w *Wallet) RegisterTransaction(tx *wire.MsgTx) (bool, error) {
	return w.RegisterTransactionAt(tx, blockchain.UnknownHeight, w.timeSource())
}

// RegisterTransactionAt is RegisterTransaction for a transaction already
// known to be included at blockHeight. Registering a known transaction
// updates its height.
func (w *Wallet) RegisterTransactionAt(tx *wire.MsgTx, blockHeight int32, timestamp time.Time) (bool, error) {
	hash := tx.TxHash()

	w.mtx.Lock()
	if existing, ok := w.txs[hash]; ok {
		w.mtx.Unlock()
		if blockHeight != blockchain.UnknownHeight && existing.blockHeight != blockHeight {
			return true, w.SetTransactionHeights([]chainhash.Hash{hash}, blockHeight, timestamp)
		}
		return true, nil
	}
	if !w.containsTransaction(tx) {
		w.mtx.Unlock()
		return false, nil
	}

	wtx := &walletTx{
		tx:          tx,
		hash:        hash,
		blockHeight: blockHeight,
		timestamp:   timestamp,
	}
	if w.store != nil {
		err := w.store.SaveTransaction(w.walletID, wtx.record())
		if err != nil {
			w.mtx.Unlock()
			return false, errors.Wrapf(err, "failed storing transaction %s", hash)
		}
	}
	w.txs[hash] = wtx
	err := w.markAddressesUsed(tx)
	if err != nil {
		w.updateBalance()
		w.mtx.Unlock()
		return true, err
	}
	oldBalance := w.balance
	w.updateBalance()
	notifications := []events.Event{&events.TxStatusChanged{
		TxHash:      hash,
		Status:      w.status(wtx),
		BlockHeight: blockHeight,
	}}
	if w.balance != oldBalance {
		notifications = append(notifications, &events.BalanceChanged{Balance: w.balance})
	}
	w.mtx.Unlock()

	log.Infof("Registered transaction %s", hash)
	w.publish(notifications)
	return true, nil
}

// RemoveTransaction removes the transaction of the given hash together with
// every registered transaction spending its outputs, at any depth. Spenders
// are removed before the transactions they spend, so a failing store leaves
// no registered transaction spending a removed one. It returns the hashes
// of the removed transactions, parents first, also when it fails partway.
func (w *Wallet) RemoveTransaction(hash *chainhash.Hash) ([]chainhash.Hash, error) {
	w.mtx.Lock()
	dependents := w.dependents(hash)
	removed := make([]chainhash.Hash, 0, len(dependents))
	var removeErr error
	for i := len(dependents) - 1; i >= 0; i-- {
		removedHash := dependents[i]
		if w.store != nil {
			err := w.store.DeleteTransaction(w.walletID, &removedHash)
			if err != nil {
				removeErr = errors.Wrapf(err, "failed deleting transaction %s", removedHash)
				break
			}
		}
		delete(w.txs, removedHash)
		removed = append(removed, removedHash)
	}
	for i, j := 0, len(removed)-1; i < j; i, j = i+1, j-1 {
		removed[i], removed[j] = removed[j], removed[i]
	}

	oldBalance := w.balance
	w.updateBalance()
	notifications := make([]events.Event, 0, len(removed)+1)
	for _, removedHash := range removed {
		notifications = append(notifications, &events.TxStatusChanged{
			TxHash:      removedHash,
			Status:      events.TxStatusRemoved,
			BlockHeight: blockchain.UnknownHeight,
		})
	}
	if w.balance != oldBalance {
		notifications = append(notifications, &events.BalanceChanged{Balance: w.balance})
	}
	w.mtx.Unlock()

	if len(removed) > 0 {
		log.Infof("Removed %d transactions spending from %s", len(removed), hash)
	}
	w.publish(notifications)
	return removed, removeErr
}

// dependents returns hash, if registered, and every registered transaction
// that spends its outputs, transitively, each after the transactions it
// spends.
func (w *Wallet) dependents(hash *chainhash.Hash) []chainhash.Hash {
	if _, ok := w.txs[*hash]; !ok {
		return nil
	}
	sorted := w.sortedTransactions()
	found := map[chainhash.Hash]struct{}{*hash: {}}
	queue := []chainhash.Hash{*hash}
	for i := 0; i < len(queue); i++ {
		parent := queue[i]
		for _, wtx := range sorted {
			if _, ok := found[wtx.hash]; ok {
				continue
			}
			for _, txIn := range wtx.tx.TxIn {
				if txIn.PreviousOutPoint.Hash == parent {
					found[wtx.hash] = struct{}{}
					queue = append(queue, wtx.hash)
					break
				}
			}
		}
	}

	result := make([]chainhash.Hash, 0, len(found))
	for _, wtx := range sorted {
		if _, ok := found[wtx.hash]; ok {
			result = append(result, wtx.hash)
		}
	}
	return result
}

// SetTransactionHeights records that the given registered transactions were
// included at height. Unknown hashes are ignored.
func (w *Wallet) SetTransactionHeights(hashes []chainhash.Hash, height int32, timestamp time.Time) error {
	w.mtx.Lock()
	if height > w.bestHeight {
		w.bestHeight = height
	}
	var notifications []events.Event
	for _, hash := range hashes {
		wtx, ok := w.txs[hash]
		if !ok || wtx.blockHeight == height {
			continue
		}
		wtx.blockHeight = height
		if height != blockchain.UnknownHeight {
			wtx.timestamp = timestamp
		}
		if w.store != nil {
			err := w.store.SaveTransaction(w.walletID, wtx.record())
			if err != nil {
				w.updateBalance()
				w.mtx.Unlock()
				return errors.Wrapf(err, "failed storing transaction %s", hash)
			}
		}
		notifications = append(notifications, &events.TxStatusChanged{
			TxHash:      hash,
			BlockHeight: height,
		})
	}
	oldBalance := w.balance
	w.updateBalance()
	for _, notification := range notifications {
		statusChanged := notification.(*events.TxStatusChanged)
		statusChanged.Status = w.status(w.txs[statusChanged.TxHash])
	}
	if w.balance != oldBalance {
		notifications = append(notifications, &events.BalanceChanged{Balance: w.balance})
	}
	w.mtx.Unlock()

	w.publish(notifications)
	return nil
}

// SetUnconfirmedAfter marks every transaction confirmed above height as
// unconfirmed again. It is used when blocks leave the main chain.
func (w *Wallet) SetUnconfirmedAfter(height int32) error {
	w.mtx.RLock()
	var hashes []chainhash.Hash
	for hash, wtx := range w.txs {
		if wtx.blockHeight > height {
			hashes = append(hashes, hash)
		}
	}
	w.mtx.RUnlock()

	err := w.SetTransactionHeights(hashes, blockchain.UnknownHeight, time.Time{})
	if err != nil {
		return err
	}
	w.mtx.Lock()
	w.bestHeight = height
	w.mtx.Unlock()
	return nil
}

// SetBestHeight records the height of the chain tip. Lock times are
// evaluated against it.
func (w *Wallet) SetBestHeight(height int32) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	w.bestHeight = height
	w.updateBalance()
}

// TransactionIsValid reports whether no registered transaction already
// spends an input of tx and no input of tx descends from an invalid
// transaction.
func (w *Wallet) TransactionIsValid(tx *wire.MsgTx) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	hash := tx.TxHash()
	if _, ok := w.txs[hash]; ok {
		_, isInvalid := w.invalid[hash]
		return !isInvalid
	}
	for _, txIn := range tx.TxIn {
		if _, ok := w.spent[txIn.PreviousOutPoint]; ok {
			return false
		}
		if _, ok := w.invalid[txIn.PreviousOutPoint.Hash]; ok {
			return false
		}
	}
	return true
}

// TransactionIsPending reports whether tx, or a registered ancestor of it,
// is unconfirmed and either opts into replace-by-fee or is not final yet.
func (w *Wallet) TransactionIsPending(tx *wire.MsgTx) bool {
	w.mtx.RLock()
	defer w.mtx.RUnlock()

	hash := tx.TxHash()
	if _, ok := w.txs[hash]; ok {
		_, isPending := w.pending[hash]
		return isPending
	}
	return w.isPending(tx)
}

func (w *Wallet) isPending(tx *wire.MsgTx) bool {
	if w.signalsPending(tx) {
		return true
	}
	for _, txIn := range tx.TxIn {
		if _, ok := w.pending[txIn.PreviousOutPoint.Hash]; ok {
			return true
		}
	}
	return false
}

// signalsPending reports whether an unconfirmed tx opts into
// replace-by-fee or carries a lock time in the future.
func (w *Wallet) signalsPending(tx *wire.MsgTx) bool {
	for _, txIn := range tx.TxIn {
		if txIn.Sequence <= wire.MaxRBFSequence {
			return true
		}
		if txIn.Sequence == wire.MaxTxInSequenceNum {
			continue
		}
		if tx.LockTime < lockTimeThreshold {
			if int64(tx.LockTime) > int64(w.bestHeight)+1 {
				return true
			}
		} else if int64(tx.LockTime) > w.timeSource().Unix() {
			return true
		}
	}
	return false
}

// AmountReceivedFromTransaction returns the sum of the outputs of tx paying
// to the wallet.
func (w *Wallet) AmountReceivedFromTransaction(tx *wire.MsgTx) util.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	var amount util.Amount
	for _, txOut := range tx.TxOut {
		if _, ok := w.ownedHash160(txOut.PkScript); ok {
			amount += util.Amount(txOut.Value)
		}
	}
	return amount
}

// AmountSentByTransaction returns the sum of the wallet outputs tx spends.
func (w *Wallet) AmountSentByTransaction(tx *wire.MsgTx) util.Amount {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	var amount util.Amount
	for _, txIn := range tx.TxIn {
		prevOut, ok := w.spentOutput(txIn)
		if !ok {
			continue
		}
		if _, ok := w.ownedHash160(prevOut.PkScript); ok {
			amount += util.Amount(prevOut.Value)
		}
	}
	return amount
}

// FeeForTransaction returns the fee paid by tx, or false if one of its
// inputs spends an output the wallet does not know.
func (w *Wallet) FeeForTransaction(tx *wire.MsgTx) (util.Amount, bool) {
	w.mtx.RLock()
	defer w.mtx.RUnlock()
	var fee util.Amount
	for _, txIn := range tx.TxIn {
		prevOut, ok := w.spentOutput(txIn)
		if !ok {
			return 0, false
		}
		fee += util.Amount(prevOut.Value)
	}
	for _, txOut := range tx.TxOut {
		fee -= util.Amount(txOut.Value)
	}
	return fee, true
}

// sortedTransactions returns the registered transactions ordered by block
// height, unconfirmed last, with every transaction after the registered
// transactions it spends from.
func (w *Wallet) sortedTransactions() []*walletTx {
	txs := make([]*walletTx, 0, len(w.txs))
	for _, wtx := range w.txs {
		txs = append(txs, wtx)
	}
	sortHeight := func(wtx *walletTx) int64 {
		if wtx.blockHeight == blockchain.UnknownHeight {
			return int64(^uint32(0))
		}
		return int64(wtx.blockHeight)
	}
	sort.Slice(txs, func(i, j int) bool {
		hi, hj := sortHeight(txs[i]), sortHeight(txs[j])
		if hi != hj {
			return hi < hj
		}
		if !txs[i].timestamp.Equal(txs[j].timestamp) {
			return txs[i].timestamp.Before(txs[j].timestamp)
		}
		return txs[i].hash.String() < txs[j].hash.String()
	})

	sorted := make([]*walletTx, 0, len(txs))
	visited := make(map[chainhash.Hash]struct{}, len(txs))
	var visit func(wtx *walletTx)
	visit = func(wtx *walletTx) {
		if _, ok := visited[wtx.hash]; ok {
			return
		}
		visited[wtx.hash] = struct{}{}
		for _, txIn := range wtx.tx.TxIn {
			if parent, ok := w.txs[txIn.PreviousOutPoint.Hash]; ok {
				visit(parent)
			}
		}
		sorted = append(sorted, wtx)
	}
	for _, wtx := range txs {
		visit(wtx)
	}
	return sorted
}

// updateBalance recomputes the unspent outputs, the spent outputs, the
// invalid and pending sets and the balance from the registered
// transactions. The balance always equals the sum of the unspent outputs.
func (w *Wallet) updateBalance() {
	w.utxos = make(map[wire.OutPoint]*UTXO)
	w.spent = make(map[wire.OutPoint]chainhash.Hash)
	w.invalid = make(map[chainhash.Hash]struct{})
	w.pending = make(map[chainhash.Hash]struct{})
	var order []wire.OutPoint

	for _, wtx := range w.sortedTransactions() {
		unconfirmed := wtx.blockHeight == blockchain.UnknownHeight
		if unconfirmed {
			isInvalid := false
			for _, txIn := range wtx.tx.TxIn {
				_, isSpent := w.spent[txIn.PreviousOutPoint]
				_, parentInvalid := w.invalid[txIn.PreviousOutPoint.Hash]
				if isSpent || parentInvalid {
					isInvalid = true
					break
				}
			}
			if isInvalid {
				w.invalid[wtx.hash] = struct{}{}
				continue
			}
		}

		for _, txIn := range wtx.tx.TxIn {
			w.spent[txIn.PreviousOutPoint] = wtx.hash
		}

		if unconfirmed && w.isPending(wtx.tx) {
			w.pending[wtx.hash] = struct{}{}
			continue
		}

		for i, txOut := range wtx.tx.TxOut {
			if _, ok := w.ownedHash160(txOut.PkScript); !ok {
				continue
			}
			outpoint := wire.OutPoint{Hash: wtx.hash, Index: uint32(i)}
			w.utxos[outpoint] = &UTXO{
				OutPoint: outpoint,
				Amount:   util.Amount(txOut.Value),
				PkScript: txOut.PkScript,
			}
			order = append(order, outpoint)
		}
	}

	// Spends are not guaranteed to come after the outputs they spend when
	// heights disagree, so the whole unspent set is checked at the end.
	w.balance = 0
	w.utxoOrder = w.utxoOrder[:0]
	for _, outpoint := range order {
		if _, ok := w.spent[outpoint]; ok {
			delete(w.utxos, outpoint)
			continue
		}
		w.utxoOrder = append(w.utxoOrder, outpoint)
		w.balance += w.utxos[outpoint].Amount
	}
}

func (w *Wallet) publish(notifications []events.Event) {
	for _, notification := range notifications {
		w.notifier.Publish(notification)
	}
}
