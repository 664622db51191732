package dbaccess

import (
	"os"
	"testing"
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
)

func prepareDatabaseForTest(t *testing.T, testName string) (databaseContext *DatabaseContext, teardownFunc func()) {
	path, err := os.MkdirTemp("", testName)
	if err != nil {
		t.Fatalf("%s: MkdirTemp unexpectedly "+
			"failed: %s", testName, err)
	}
	databaseContext, err = New(path)
	if err != nil {
		t.Fatalf("%s: New unexpectedly "+
			"failed: %s", testName, err)
	}
	teardownFunc = func() {
		err := databaseContext.Close()
		if err != nil {
			t.Fatalf("%s: Close unexpectedly "+
				"failed: %s", testName, err)
		}
		os.RemoveAll(path)
	}
	return databaseContext, teardownFunc
}

// testBlock returns a header-only block at height whose hash is unique per
// (height, nonce).
func testBlock(height int32, nonce uint32) *blockchain.MerkleBlock {
	header := wire.BlockHeader{
		Version:   1,
		Timestamp: time.Unix(1609459200+int64(height)*150, 0),
		Bits:      0x207fffff,
		Nonce:     nonce,
	}
	block := blockchain.NewHeaderBlock(&header, &chaincfg.RegressionNetParams)
	block.Height = height
	return block
}

func testTransaction(value int64) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.DoubleHashH([]byte{byte(value)})
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), []byte{0x51}))
	tx.AddTxOut(wire.NewTxOut(value, []byte{0x76, 0xa9}))
	return tx
}
