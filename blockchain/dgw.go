package blockchain

import (
	"math/big"
	"time"

	"github.com/pkg/errors"
)

// minDifficultyResetTime is how long after its predecessor a block on a
// network that allows minimum difficulty blocks may use the proof of work
// limit.
const minDifficultyResetTime = 2 * time.Hour

// calcNextRequiredDifficulty returns the difficulty bits required of a
// block built on last with the given timestamp.
//
// Dash retargets every block with Dark Gravity Wave v3: the average target
// of the last DGWPastBlocks blocks is scaled by the time those blocks took
// relative to the expected time, with the ratio clamped to [1/3, 3].
func (c *Chain) calcNextRequiredDifficulty(last *blockNode, newBlockTime time.Time) uint32 {
	params := c.params
	pastBlocks := params.DGWPastBlocks

	if last == nil || last.height < pastBlocks {
		return params.PowLimitBits
	}

	if params.AllowMinDifficultyBlocks {
		lastTime := last.header().Timestamp
		if newBlockTime.After(lastTime.Add(minDifficultyResetTime)) {
			return params.PowLimitBits
		}
		if newBlockTime.After(lastTime.Add(params.TargetSpacing * 4)) {
			target := CompactToBig(last.header().Bits)
			target.Mul(target, big.NewInt(10))
			if target.Cmp(params.PowLimit) > 0 {
				return params.PowLimitBits
			}
			return BigToCompact(target)
		}
	}

	if params.NoRetargeting {
		return last.header().Bits
	}

	// The average is accumulated the way Dash Core does it, weighting each
	// older block with (count+1) instead of taking a plain mean.
	node := last
	pastTargetAvg := new(big.Int)
	for count := int64(1); count <= int64(pastBlocks); count++ {
		target := CompactToBig(node.header().Bits)
		if count == 1 {
			pastTargetAvg.Set(target)
		} else {
			pastTargetAvg.Mul(pastTargetAvg, big.NewInt(count))
			pastTargetAvg.Add(pastTargetAvg, target)
			pastTargetAvg.Div(pastTargetAvg, big.NewInt(count+1))
		}
		if count != int64(pastBlocks) {
			node = node.parent
		}
	}

	actualTimespan := last.header().Timestamp.Unix() - node.header().Timestamp.Unix()
	targetTimespan := int64(pastBlocks) * int64(params.TargetSpacing/time.Second)
	if actualTimespan < targetTimespan/3 {
		actualTimespan = targetTimespan / 3
	}
	if actualTimespan > targetTimespan*3 {
		actualTimespan = targetTimespan * 3
	}

	newTarget := pastTargetAvg.Mul(pastTargetAvg, big.NewInt(actualTimespan))
	newTarget.Div(newTarget, big.NewInt(targetTimespan))
	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget.Set(params.PowLimit)
	}
	return BigToCompact(newTarget)
}

// checkDifficulty ensures the bits of a block built on parent match the
// retarget rules. Blocks below params.DGWHeight are not checked.
func (c *Chain) checkDifficulty(parent *blockNode, block *MerkleBlock) error {
	if parent.height+1 < c.params.DGWHeight {
		return nil
	}
	expected := c.calcNextRequiredDifficulty(parent, block.Header.Timestamp)
	if block.Header.Bits != expected {
		return errors.Wrapf(ErrUnexpectedDifficulty, "block difficulty of %08x "+
			"is not the expected value of %08x", block.Header.Bits, expected)
	}
	return nil
}

// VerifyDifficulty checks that the difficulty bits of block follow from
// the blocks before it. The block's parent must be known.
//
// This function is safe for concurrent access.
func (c *Chain) VerifyDifficulty(block *MerkleBlock) error {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	parent, ok := c.index[block.Header.PrevBlock]
	if !ok {
		return errors.Wrapf(ErrMissingParent, "previous block %s is unknown",
			block.Header.PrevBlock)
	}
	return c.checkDifficulty(parent, block)
}
