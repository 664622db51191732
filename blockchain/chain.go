package blockchain

import (
	"sync"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFFastAdd may be set to indicate that several checks can be avoided
	// for the block since it is already known to fit into the chain due
	// to already proving it correct links into the chain. This is used
	// when loading blocks back from the store.
	BFFastAdd BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// maxLocatorRecent is the number of most recent blocks a block locator
// lists one by one before it starts doubling the step.
const maxLocatorRecent = 10

// ProcessResult describes how the main chain changed after a block was
// processed.
type ProcessResult struct {
	// MainChain is true when the block is on the main chain.
	MainChain bool

	// Detached lists the blocks that left the main chain, tip first.
	Detached []*MerkleBlock

	// Attached lists the blocks that joined the main chain, oldest first.
	// It ends with the processed block when MainChain is true.
	Attached []*MerkleBlock
}

// Chain is an in-memory header chain. It tracks every connected block,
// assigns heights, selects the branch with the most cumulative work as the
// main chain and enforces checkpoints and the difficulty rules.
type Chain struct {
	params     *chaincfg.Params
	timeSource func() time.Time

	mtx       sync.RWMutex
	index     map[chainhash.Hash]*blockNode
	mainChain []*blockNode
}

// New returns a chain that holds only the genesis block of params.
// timeSource defaults to time.Now.
func New(params *chaincfg.Params, timeSource func() time.Time) *Chain {
	if timeSource == nil {
		timeSource = time.Now
	}
	genesis := &MerkleBlock{
		Header: *params.GenesisHeader,
		Hash:   *params.GenesisHash,
	}
	node := newBlockNode(genesis, nil)
	return &Chain{
		params:     params,
		timeSource: timeSource,
		index:      map[chainhash.Hash]*blockNode{node.hash: node},
		mainChain:  []*blockNode{node},
	}
}

// Params returns the network parameters of the chain.
func (c *Chain) Params() *chaincfg.Params {
	return c.params
}

func (c *Chain) tip() *blockNode {
	return c.mainChain[len(c.mainChain)-1]
}

func (c *Chain) isOnMainChain(node *blockNode) bool {
	return node.height < int32(len(c.mainChain)) && c.mainChain[node.height] == node
}

// ProcessBlock validates block and connects it to the chain, assigning its
// height. A block that fails validation is not connected and the returned
// error wraps one of the RuleError values.
//
// This function is safe for concurrent access.
func (c *Chain) ProcessBlock(block *MerkleBlock, flags BehaviorFlags) (*ProcessResult, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if _, exists := c.index[block.Hash]; exists {
		return nil, errors.Wrapf(ErrDuplicateBlock, "already have block %s", block.Hash)
	}
	parent, ok := c.index[block.Header.PrevBlock]
	if !ok {
		return nil, errors.Wrapf(ErrMissingParent, "previous block %s of block %s is unknown",
			block.Header.PrevBlock, block.Hash)
	}

	if flags&BFFastAdd != BFFastAdd {
		err := CheckMerkleBlockSanity(block, c.params, c.timeSource())
		if err != nil {
			return nil, err
		}
		err = c.checkCheckpoints(parent, block)
		if err != nil {
			return nil, err
		}
		err = c.checkDifficulty(parent, block)
		if err != nil {
			return nil, err
		}
	}

	node := newBlockNode(block, parent)
	c.index[node.hash] = node

	result := &ProcessResult{}
	tip := c.tip()
	if node.workSum.Cmp(tip.workSum) <= 0 {
		log.Debugf("Block %s at height %d extends a side chain", node.hash, node.height)
		return result, nil
	}

	result.MainChain = true
	if parent == tip {
		c.mainChain = append(c.mainChain, node)
		result.Attached = []*MerkleBlock{block}
		return result, nil
	}

	c.reorganize(node, result)
	return result, nil
}

// reorganize makes node the main chain tip, recording the blocks that
// leave and join the main chain.
//
// This function MUST be called with the chain lock held (for writes).
func (c *Chain) reorganize(node *blockNode, result *ProcessResult) {
	fork := node
	var attach []*blockNode
	for !c.isOnMainChain(fork) {
		attach = append(attach, fork)
		fork = fork.parent
	}

	for i := len(c.mainChain) - 1; i > int(fork.height); i-- {
		result.Detached = append(result.Detached, c.mainChain[i].block)
	}
	c.mainChain = c.mainChain[:fork.height+1]
	for i := len(attach) - 1; i >= 0; i-- {
		c.mainChain = append(c.mainChain, attach[i])
		result.Attached = append(result.Attached, attach[i].block)
	}

	log.Infof("Chain reorganized at height %d: %d blocks detached, %d attached, "+
		"new tip %s", fork.height, len(result.Detached), len(result.Attached), node.hash)
}

// checkCheckpoints rejects blocks that contradict a checkpoint and forks
// that start below the latest checkpoint the main chain has passed.
//
// This function MUST be called with the chain lock held (for reads).
func (c *Chain) checkCheckpoints(parent *blockNode, block *MerkleBlock) error {
	height := parent.height + 1
	if checkpoint, ok := c.params.CheckpointAt(height); ok {
		if !checkpoint.Hash.IsEqual(&block.Hash) {
			return errors.Wrapf(ErrBadCheckpoint, "block at height %d does not match "+
				"checkpoint hash %s", height, checkpoint.Hash)
		}
	}

	tip := c.tip()
	if parent == tip {
		return nil
	}
	fork := parent
	for !c.isOnMainChain(fork) {
		fork = fork.parent
	}
	for i := len(c.params.Checkpoints) - 1; i >= 0; i-- {
		checkpoint := &c.params.Checkpoints[i]
		if checkpoint.Height > tip.height {
			continue
		}
		if fork.height < checkpoint.Height {
			return errors.Wrapf(ErrForkTooOld, "block at height %d forks the chain "+
				"at height %d, before the checkpoint at height %d", height,
				fork.height, checkpoint.Height)
		}
		break
	}
	return nil
}

// BestBlock returns the tip of the main chain.
//
// This function is safe for concurrent access.
func (c *Chain) BestBlock() *MerkleBlock {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return c.tip().block
}

// Height returns the height of the main chain tip.
//
// This function is safe for concurrent access.
func (c *Chain) Height() int32 {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return c.tip().height
}

// HaveBlock reports whether the block is known, on any branch.
//
// This function is safe for concurrent access.
func (c *Chain) HaveBlock(hash *chainhash.Hash) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	_, ok := c.index[*hash]
	return ok
}

// BlockByHash returns a known block.
//
// This function is safe for concurrent access.
func (c *Chain) BlockByHash(hash *chainhash.Hash) (*MerkleBlock, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	node, ok := c.index[*hash]
	if !ok {
		return nil, false
	}
	return node.block, true
}

// BlockByHeight returns the main chain block at height.
//
// This function is safe for concurrent access.
func (c *Chain) BlockByHeight(height int32) (*MerkleBlock, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	if height < 0 || height >= int32(len(c.mainChain)) {
		return nil, false
	}
	return c.mainChain[height].block, true
}

// MainChainHasBlock reports whether the block is on the main chain.
//
// This function is safe for concurrent access.
func (c *Chain) MainChainHasBlock(hash *chainhash.Hash) bool {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	node, ok := c.index[*hash]
	return ok && c.isOnMainChain(node)
}

// BlockLocator returns a block locator for the main chain tip. It lists the
// most recent blocks one by one, then doubles the step back to genesis,
// which is always the last entry.
//
// This function is safe for concurrent access.
func (c *Chain) BlockLocator() []*chainhash.Hash {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	return c.blockLocator(c.tip())
}

// BlockLocatorFromHash returns a block locator starting at the given known
// block.
//
// This function is safe for concurrent access.
func (c *Chain) BlockLocatorFromHash(hash *chainhash.Hash) ([]*chainhash.Hash, error) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	node, ok := c.index[*hash]
	if !ok {
		return nil, errors.Errorf("block %s is unknown", hash)
	}
	return c.blockLocator(node), nil
}

// This function MUST be called with the chain lock held (for reads).
func (c *Chain) blockLocator(node *blockNode) []*chainhash.Hash {
	locator := make([]*chainhash.Hash, 0, maxLocatorRecent+32)
	step := int32(1)
	for node != nil {
		hash := node.hash
		locator = append(locator, &hash)

		if node.height == 0 {
			break
		}
		nextHeight := node.height - step
		if nextHeight < 0 {
			nextHeight = 0
		}
		node = node.ancestor(nextHeight)

		if len(locator) >= maxLocatorRecent {
			step *= 2
		}
	}
	return locator
}

// LocateBlock returns the main chain block with the highest height among
// the locator hashes, genesis when none of them is on the main chain.
//
// This function is safe for concurrent access.
func (c *Chain) LocateBlock(locator []*chainhash.Hash) *MerkleBlock {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	for _, hash := range locator {
		node, ok := c.index[*hash]
		if ok && c.isOnMainChain(node) {
			return node.block
		}
	}
	return c.mainChain[0].block
}
