package dbaccess

import (
	"reflect"
	"testing"
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/davecgh/go-spew/spew"
)

func TestTransactionStore(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestTransactionStore")
	defer teardownFunc()

	store := NewStore(databaseContext, nil)
	confirmed := &TransactionRecord{
		Tx:          testTransaction(100000),
		BlockHeight: 12,
		Timestamp:   time.Unix(1609460000, 0),
	}
	unconfirmed := &TransactionRecord{
		Tx:          testTransaction(250000),
		BlockHeight: blockchain.UnknownHeight,
		Timestamp:   time.Unix(1609461000, 0),
	}
	for _, record := range []*TransactionRecord{confirmed, unconfirmed} {
		err := store.SaveTransaction("default", record)
		if err != nil {
			t.Fatalf("TestTransactionStore: SaveTransaction unexpectedly failed: %s", err)
		}
	}

	txHash := unconfirmed.Tx.TxHash()
	fetched, err := FetchTransaction(databaseContext.NoTx(), "default", &txHash)
	if err != nil {
		t.Fatalf("TestTransactionStore: FetchTransaction unexpectedly failed: %s", err)
	}
	if !reflect.DeepEqual(fetched, unconfirmed) {
		t.Fatalf("TestTransactionStore: fetched record differs.\ngot: %s\nwant: %s",
			spew.Sdump(fetched), spew.Sdump(unconfirmed))
	}

	records, err := store.LoadTransactions("default")
	if err != nil {
		t.Fatalf("TestTransactionStore: LoadTransactions unexpectedly failed: %s", err)
	}
	if len(records) != 2 {
		t.Fatalf("TestTransactionStore: got %d records, want 2", len(records))
	}
	records, err = store.LoadTransactions("other")
	if err != nil {
		t.Fatalf("TestTransactionStore: LoadTransactions unexpectedly failed: %s", err)
	}
	if len(records) != 0 {
		t.Fatalf("TestTransactionStore: got %d records of another wallet", len(records))
	}

	err = store.DeleteTransaction("default", &txHash)
	if err != nil {
		t.Fatalf("TestTransactionStore: DeleteTransaction unexpectedly failed: %s", err)
	}
	_, err = FetchTransaction(databaseContext.NoTx(), "default", &txHash)
	if !IsNotFoundError(err) {
		t.Fatalf("TestTransactionStore: FetchTransaction of a deleted record returned %v", err)
	}
}

func TestKeystoreAndPeersState(t *testing.T) {
	databaseContext, err := NewInMemory()
	if err != nil {
		t.Fatalf("TestKeystoreAndPeersState: NewInMemory unexpectedly failed: %s", err)
	}
	defer databaseContext.Close()

	exists, err := HasKeystore(databaseContext.NoTx(), "default")
	if err != nil || exists {
		t.Fatalf("TestKeystoreAndPeersState: HasKeystore on an empty database returned %v, %v", exists, err)
	}
	err = StoreKeystore(databaseContext.NoTx(), "default", []byte("sealed"))
	if err != nil {
		t.Fatalf("TestKeystoreAndPeersState: StoreKeystore unexpectedly failed: %s", err)
	}
	keystore, err := FetchKeystore(databaseContext.NoTx(), "default")
	if err != nil || string(keystore) != "sealed" {
		t.Fatalf("TestKeystoreAndPeersState: FetchKeystore returned %q, %v", keystore, err)
	}

	_, err = FetchPeersState(databaseContext.NoTx())
	if !IsNotFoundError(err) {
		t.Fatalf("TestKeystoreAndPeersState: FetchPeersState on an empty database returned %v", err)
	}
	err = StorePeersState(databaseContext.NoTx(), []byte("peers"))
	if err != nil {
		t.Fatalf("TestKeystoreAndPeersState: StorePeersState unexpectedly failed: %s", err)
	}
	peersState, err := FetchPeersState(databaseContext.NoTx())
	if err != nil || string(peersState) != "peers" {
		t.Fatalf("TestKeystoreAndPeersState: FetchPeersState returned %q, %v", peersState, err)
	}
}
