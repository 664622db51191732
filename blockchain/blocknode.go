package blockchain

import (
	"math/big"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
)

// blockNode represents a block within the header chain. Every node knows
// its parent, so the chain forms a tree rooted at the genesis block with
// the most-work branch selected as the main chain.
type blockNode struct {
	parent  *blockNode
	hash    chainhash.Hash
	height  int32
	workSum *big.Int

	// block is the block the node was created from. Its Height field is
	// set once the node is connected.
	block *MerkleBlock
}

func newBlockNode(block *MerkleBlock, parent *blockNode) *blockNode {
	node := &blockNode{
		parent:  parent,
		hash:    block.Hash,
		workSum: CalcWork(block.Header.Bits),
		block:   block,
	}
	if parent != nil {
		node.height = parent.height + 1
		node.workSum.Add(parent.workSum, node.workSum)
	}
	block.Height = node.height
	return node
}

func (node *blockNode) header() *wire.BlockHeader {
	return &node.block.Header
}

// ancestor returns the ancestor of node at height, or nil if height is out
// of range.
func (node *blockNode) ancestor(height int32) *blockNode {
	if height < 0 || height > node.height {
		return nil
	}
	n := node
	for ; n != nil && n.height != height; n = n.parent {
	}
	return n
}

// relativeAncestor returns the ancestor distance blocks before node.
func (node *blockNode) relativeAncestor(distance int32) *blockNode {
	return node.ancestor(node.height - distance)
}
