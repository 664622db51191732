package dbaccess

import (
	"reflect"
	"testing"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/davecgh/go-spew/spew"
)

func TestBlockStoreSanity(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestBlockStoreSanity")
	defer teardownFunc()

	const chainID = "regtest"
	blocks := []*blockchain.MerkleBlock{testBlock(2, 0), testBlock(0, 0), testBlock(1, 0)}
	for _, block := range blocks {
		err := StoreBlock(databaseContext.NoTx(), chainID, block)
		if err != nil {
			t.Fatalf("TestBlockStoreSanity: StoreBlock unexpectedly "+
				"failed: %s", err)
		}
	}
	exists, err := HasBlock(databaseContext.NoTx(), chainID, 1, &blocks[2].Hash)
	if err != nil {
		t.Fatalf("TestBlockStoreSanity: HasBlock unexpectedly "+
			"failed: %s", err)
	}
	if !exists {
		t.Fatalf("TestBlockStoreSanity: just-inserted block is " +
			"missing from the database")
	}

	fetched, err := FetchBlocks(databaseContext.NoTx(), chainID, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("TestBlockStoreSanity: FetchBlocks unexpectedly "+
			"failed: %s", err)
	}
	expected := []*blockchain.MerkleBlock{blocks[1], blocks[2], blocks[0]}
	if !reflect.DeepEqual(blockIDs(fetched), blockIDs(expected)) {
		t.Fatalf("TestBlockStoreSanity: fetched blocks are not ordered by height.\n"+
			"got: %s\nwant: %s", spew.Sdump(blockIDs(fetched)), spew.Sdump(blockIDs(expected)))
	}
	if !reflect.DeepEqual(fetched[0].Header, expected[0].Header) {
		t.Fatalf("TestBlockStoreSanity: fetched header differs.\n"+
			"got: %s\nwant: %s", spew.Sdump(fetched[0].Header), spew.Sdump(expected[0].Header))
	}

	// Blocks of another chain must not show up.
	fetched, err = FetchBlocks(databaseContext.NoTx(), "testnet", &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("TestBlockStoreSanity: FetchBlocks unexpectedly "+
			"failed: %s", err)
	}
	if len(fetched) != 0 {
		t.Fatalf("TestBlockStoreSanity: got %d blocks of an empty chain", len(fetched))
	}

	err = DeleteBlock(databaseContext.NoTx(), chainID, blocks[0])
	if err != nil {
		t.Fatalf("TestBlockStoreSanity: DeleteBlock unexpectedly "+
			"failed: %s", err)
	}
	exists, err = HasBlock(databaseContext.NoTx(), chainID, 2, &blocks[0].Hash)
	if err != nil {
		t.Fatalf("TestBlockStoreSanity: HasBlock unexpectedly "+
			"failed: %s", err)
	}
	if exists {
		t.Fatalf("TestBlockStoreSanity: deleted block is still in the database")
	}
}

func TestStoreBlockUnknownHeight(t *testing.T) {
	databaseContext, teardownFunc := prepareDatabaseForTest(t, "TestStoreBlockUnknownHeight")
	defer teardownFunc()

	block := testBlock(blockchain.UnknownHeight, 0)
	err := StoreBlock(databaseContext.NoTx(), "regtest", block)
	if err == nil {
		t.Fatalf("TestStoreBlockUnknownHeight: StoreBlock unexpectedly succeeded")
	}
}

func TestStoreUpdateChain(t *testing.T) {
	databaseContext, err := NewInMemory()
	if err != nil {
		t.Fatalf("TestStoreUpdateChain: NewInMemory unexpectedly failed: %s", err)
	}
	defer databaseContext.Close()

	const chainID = "regtest"
	store := NewStore(databaseContext, &chaincfg.RegressionNetParams)
	oldBranch := []*blockchain.MerkleBlock{testBlock(1, 0), testBlock(2, 0)}
	for _, block := range oldBranch {
		err := store.SaveBlock(chainID, block)
		if err != nil {
			t.Fatalf("TestStoreUpdateChain: SaveBlock unexpectedly failed: %s", err)
		}
	}

	newBranch := []*blockchain.MerkleBlock{testBlock(1, 1), testBlock(2, 1), testBlock(3, 1)}
	err = store.UpdateChain(chainID, []*blockchain.MerkleBlock{oldBranch[1], oldBranch[0]}, newBranch)
	if err != nil {
		t.Fatalf("TestStoreUpdateChain: UpdateChain unexpectedly failed: %s", err)
	}

	loaded, err := store.LoadBlocks(chainID)
	if err != nil {
		t.Fatalf("TestStoreUpdateChain: LoadBlocks unexpectedly failed: %s", err)
	}
	if !reflect.DeepEqual(blockIDs(loaded), blockIDs(newBranch)) {
		t.Fatalf("TestStoreUpdateChain: unexpected blocks after update.\n"+
			"got: %s\nwant: %s", spew.Sdump(blockIDs(loaded)), spew.Sdump(blockIDs(newBranch)))
	}

	// A failing update must leave the store untouched.
	err = store.UpdateChain(chainID, newBranch, []*blockchain.MerkleBlock{testBlock(blockchain.UnknownHeight, 2)})
	if err == nil {
		t.Fatalf("TestStoreUpdateChain: UpdateChain with an unknown height unexpectedly succeeded")
	}
	loaded, err = store.LoadBlocks(chainID)
	if err != nil {
		t.Fatalf("TestStoreUpdateChain: LoadBlocks unexpectedly failed: %s", err)
	}
	if len(loaded) != len(newBranch) {
		t.Fatalf("TestStoreUpdateChain: failed update changed the store: got %d blocks, want %d",
			len(loaded), len(newBranch))
	}
}

type blockID struct {
	height int32
	hash   chainhash.Hash
}

func blockIDs(blocks []*blockchain.MerkleBlock) []blockID {
	ids := make([]blockID, len(blocks))
	for i, block := range blocks {
		ids[i] = blockID{height: block.Height, hash: block.Hash}
	}
	return ids
}
