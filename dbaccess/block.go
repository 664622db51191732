package dbaccess

import (
	"bytes"
	"encoding/binary"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/database"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

var blocksBucket = database.MakeBucket([]byte("blocks"))

func chainBlocksBucket(chainID string) *database.Bucket {
	return blocksBucket.Bucket([]byte(chainID))
}

// blockKey orders the blocks of a chain by height. The hash suffix keeps
// competing blocks of the same height apart.
func blockKey(chainID string, height int32, hash *chainhash.Hash) *database.Key {
	keyBytes := make([]byte, 4+chainhash.HashSize)
	binary.BigEndian.PutUint32(keyBytes[:4], uint32(height))
	copy(keyBytes[4:], hash[:])
	return chainBlocksBucket(chainID).Key(keyBytes)
}

// StoreBlock stores the given block under the given chain. The block's
// height must be known.
func StoreBlock(context Context, chainID string, block *blockchain.MerkleBlock) error {
	if block.Height < 0 {
		return errors.Errorf("cannot store block %s with an unknown height", block.Hash)
	}
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	blockBytes, err := block.Bytes()
	if err != nil {
		return err
	}
	return accessor.Put(blockKey(chainID, block.Height, &block.Hash), blockBytes)
}

// HasBlock returns whether the given block was stored under the given chain.
func HasBlock(context Context, chainID string, height int32, hash *chainhash.Hash) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(blockKey(chainID, height, hash))
}

// DeleteBlock removes the given block from the given chain.
func DeleteBlock(context Context, chainID string, block *blockchain.MerkleBlock) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(blockKey(chainID, block.Height, &block.Hash))
}

// FetchBlocks returns every block stored under the given chain, ordered by
// height.
func FetchBlocks(context Context, chainID string, params *chaincfg.Params) ([]*blockchain.MerkleBlock, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	cursor, err := accessor.Cursor(chainBlocksBucket(chainID))
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var blocks []*blockchain.MerkleBlock
	for cursor.Next() {
		blockBytes, err := cursor.Value()
		if err != nil {
			return nil, err
		}
		block, err := blockchain.DeserializeMerkleBlock(bytes.NewReader(blockBytes), params)
		if err != nil {
			key, _ := cursor.Key()
			return nil, errors.Wrapf(err, "failed deserializing block %s", key)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
