package wallet

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/keychain/bip39"
	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/address"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

var testTime = time.Unix(1609459200, 0)

func testSeed(t *testing.T) []byte {
	seed, err := bip39.Seed(testPhrase, "")
	if err != nil {
		t.Fatalf("Seed unexpectedly failed: %s", err)
	}
	return seed
}

func testSeedSource(t *testing.T) SeedSource {
	seed := testSeed(t)
	return func() ([]byte, error) {
		return seed, nil
	}
}

// newTestWallet returns a mainnet wallet for the all-abandon phrase.
func newTestWallet(t *testing.T, store TransactionStore) *Wallet {
	accountKey, err := AccountKeyFromSeed(testSeed(t), &chaincfg.MainNetParams, 0)
	if err != nil {
		t.Fatalf("AccountKeyFromSeed unexpectedly failed: %s", err)
	}
	w, err := New(&Config{
		Params:     &chaincfg.MainNetParams,
		WalletID:   "test",
		AccountKey: accountKey,
		Store:      store,
		TimeSource: func() time.Time { return testTime },
	})
	if err != nil {
		t.Fatalf("New unexpectedly failed: %s", err)
	}
	return w
}

// foreignAddress returns a mainnet address the test wallet does not own.
func foreignAddress(t *testing.T, seed byte) address.Address {
	hash := make([]byte, 20)
	for i := range hash {
		hash[i] = seed
	}
	addr, err := address.NewAddressPubKeyHash(hash, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewAddressPubKeyHash unexpectedly failed: %s", err)
	}
	return addr
}

func payToScript(t *testing.T, addr address.Address) []byte {
	pkScript, err := txscript.PayToAddrScript(addr)
	if err != nil {
		t.Fatalf("PayToAddrScript unexpectedly failed: %s", err)
	}
	return pkScript
}

// fundingTx returns a transaction paying amount to addr from an outpoint
// unknown to the wallet.
func fundingTx(t *testing.T, addr address.Address, amount util.Amount, salt uint64) *wire.MsgTx {
	var saltBytes [8]byte
	binary.LittleEndian.PutUint64(saltBytes[:], salt)
	prevHash := chainhash.DoubleHashH(saltBytes[:])

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), payToScript(t, addr)))
	return tx
}

// spendTx returns a transaction spending output index of prev to outputs.
func spendTx(t *testing.T, prev *wire.MsgTx, index uint32, outputs ...Output) *wire.MsgTx {
	prevHash := prev.TxHash()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, index), nil))
	for _, output := range outputs {
		tx.AddTxOut(wire.NewTxOut(int64(output.Amount), payToScript(t, output.Address)))
	}
	return tx
}

func register(t *testing.T, w *Wallet, tx *wire.MsgTx) {
	registered, err := w.RegisterTransaction(tx)
	if err != nil {
		t.Fatalf("RegisterTransaction unexpectedly failed: %s", err)
	}
	if !registered {
		t.Fatalf("RegisterTransaction of %s unexpectedly returned false", tx.TxHash())
	}
}

func checkBalanceInvariant(t *testing.T, w *Wallet, context string) {
	var sum util.Amount
	for _, utxo := range w.UTXOs() {
		sum += utxo.Amount
	}
	if balance := w.Balance(); balance != sum {
		t.Fatalf("%s: balance %s differs from the sum of unspent outputs %s", context, balance, sum)
	}
}
