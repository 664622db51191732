package dbaccess

import (
	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// Store is the persistence collaborator of the sync manager and the wallet.
// Block and transaction values cross it by value; callers never hold on to
// storage handles.
type Store interface {
	SaveBlock(chainID string, block *blockchain.MerkleBlock) error
	LoadBlocks(chainID string) ([]*blockchain.MerkleBlock, error)
	DeleteBlock(chainID string, block *blockchain.MerkleBlock) error

	// UpdateChain atomically removes detached and stores attached.
	UpdateChain(chainID string, detached, attached []*blockchain.MerkleBlock) error

	SaveTransaction(walletID string, record *TransactionRecord) error
	LoadTransactions(walletID string) ([]*TransactionRecord, error)
	DeleteTransaction(walletID string, txHash *chainhash.Hash) error
}

// DatabaseStore implements Store on top of a DatabaseContext.
type DatabaseStore struct {
	databaseContext *DatabaseContext
	params          *chaincfg.Params
}

// NewStore returns a Store that keeps its data in databaseContext. params is
// used to restore blocks.
func NewStore(databaseContext *DatabaseContext, params *chaincfg.Params) *DatabaseStore {
	return &DatabaseStore{
		databaseContext: databaseContext,
		params:          params,
	}
}

// SaveBlock implements Store.
func (s *DatabaseStore) SaveBlock(chainID string, block *blockchain.MerkleBlock) error {
	return StoreBlock(s.databaseContext.NoTx(), chainID, block)
}

// LoadBlocks implements Store.
func (s *DatabaseStore) LoadBlocks(chainID string) ([]*blockchain.MerkleBlock, error) {
	return FetchBlocks(s.databaseContext.NoTx(), chainID, s.params)
}

// DeleteBlock implements Store.
func (s *DatabaseStore) DeleteBlock(chainID string, block *blockchain.MerkleBlock) error {
	return DeleteBlock(s.databaseContext.NoTx(), chainID, block)
}

// UpdateChain implements Store.
func (s *DatabaseStore) UpdateChain(chainID string, detached, attached []*blockchain.MerkleBlock) error {
	dbTx, err := s.databaseContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for _, block := range detached {
		err := DeleteBlock(dbTx, chainID, block)
		if err != nil {
			return errors.Wrapf(err, "failed deleting detached block %s", block.Hash)
		}
	}
	for _, block := range attached {
		err := StoreBlock(dbTx, chainID, block)
		if err != nil {
			return errors.Wrapf(err, "failed storing attached block %s", block.Hash)
		}
	}
	return dbTx.Commit()
}

// SaveTransaction implements Store.
func (s *DatabaseStore) SaveTransaction(walletID string, record *TransactionRecord) error {
	return StoreTransaction(s.databaseContext.NoTx(), walletID, record)
}

// LoadTransactions implements Store.
func (s *DatabaseStore) LoadTransactions(walletID string) ([]*TransactionRecord, error) {
	return FetchTransactions(s.databaseContext.NoTx(), walletID)
}

// DeleteTransaction implements Store.
func (s *DatabaseStore) DeleteTransaction(walletID string, txHash *chainhash.Hash) error {
	return DeleteTransaction(s.databaseContext.NoTx(), walletID, txHash)
}
