package blockchain

import (
	"testing"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// nodeChain links count unmined nodes on top of a genesis node. bitsAt
// returns the difficulty bits for a height.
func nodeChain(count int, spacing time.Duration, bitsAt func(height int32) uint32) *blockNode {
	node := newBlockNode(&MerkleBlock{Header: wire.BlockHeader{
		Timestamp: testTime,
		Bits:      bitsAt(0),
	}}, nil)
	for i := 1; i <= count; i++ {
		height := int32(i)
		node = newBlockNode(&MerkleBlock{Header: wire.BlockHeader{
			Timestamp: testTime.Add(time.Duration(i) * spacing),
			Bits:      bitsAt(height),
		}}, node)
	}
	return node
}

func constantBits(bits uint32) func(int32) uint32 {
	return func(int32) uint32 { return bits }
}

func TestDarkGravityWave(t *testing.T) {
	spacing := chaincfg.MainNetParams.TargetSpacing
	alternating := func(height int32) uint32 {
		if height%2 == 0 {
			return 0x1b0404cb
		}
		return 0x1b0504cb
	}

	tests := []struct {
		name        string
		blocks      int
		spacing     time.Duration
		bitsAt      func(int32) uint32
		nextSpacing time.Duration
		minDiff     bool
		noRetarget  bool
		want        uint32
	}{
		{"short chain", 23, spacing, constantBits(0x1b0404cb), spacing, false, false, 0x207fffff},
		{"on schedule", 24, spacing, constantBits(0x207fffff), spacing, false, false, 0x207aaaa9},
		{"too fast", 30, 10 * time.Second, constantBits(0x207fffff), spacing, false, false, 0x202aaaaa},
		{"too slow", 30, 20 * time.Minute, constantBits(0x1b0404cb), spacing, false, false, 0x1b0c0e61},
		{"weighted average", 24, spacing, alternating, spacing, false, false, 0x1b044faf},
		{"min difficulty gap", 30, spacing, constantBits(0x1d00ffff), 4*spacing + time.Second, true, false, 0x1d09fff6},
		{"two hour gap", 30, spacing, constantBits(0x1d00ffff), 2*time.Hour + time.Second, true, false, 0x207fffff},
		{"min difficulty on time", 24, spacing, constantBits(0x207fffff), spacing, true, false, 0x207aaaa9},
		{"no retargeting", 30, spacing, constantBits(0x1d00ffff), spacing, false, true, 0x1d00ffff},
	}

	for _, test := range tests {
		params := newTestParams(0)
		params.AllowMinDifficultyBlocks = test.minDiff
		params.NoRetargeting = test.noRetarget
		chain := New(params, nil)

		last := nodeChain(test.blocks, test.spacing, test.bitsAt)
		newBlockTime := last.header().Timestamp.Add(test.nextSpacing)
		got := chain.calcNextRequiredDifficulty(last, newBlockTime)
		if got != test.want {
			t.Errorf("%s: got %08x want %08x", test.name, got, test.want)
		}
	}
}

func TestVerifyDifficulty(t *testing.T) {
	params := newTestParams(25)
	chain := New(params, nil)
	blocks := makeChain(t, params, params.GenesisHash, testTime, params.TargetSpacing, 24, 1)
	processChain(t, chain, blocks)

	tip := &blocks[len(blocks)-1].Hash
	nextTime := testTime.Add(24 * params.TargetSpacing)
	txHashes := []*chainhash.Hash{fakeTxHash(100)}

	wrong := makeBlock(t, params, tip, nextTime, params.PowLimitBits, txHashes, []bool{false})
	if err := chain.VerifyDifficulty(wrong); !errors.Is(err, ErrUnexpectedDifficulty) {
		t.Errorf("VerifyDifficulty: got %v want %v", err, ErrUnexpectedDifficulty)
	}
	if _, err := chain.ProcessBlock(wrong, BFNone); !errors.Is(err, ErrUnexpectedDifficulty) {
		t.Errorf("ProcessBlock: got %v want %v", err, ErrUnexpectedDifficulty)
	}

	right := makeBlock(t, params, tip, nextTime, 0x207aaaa9, txHashes, []bool{false})
	if err := chain.VerifyDifficulty(right); err != nil {
		t.Errorf("VerifyDifficulty: %v", err)
	}
	if _, err := chain.ProcessBlock(right, BFNone); err != nil {
		t.Errorf("ProcessBlock: %v", err)
	}

	// Blocks loaded back from the store skip the checks.
	reloaded := New(params, nil)
	processChain(t, reloaded, blocks)
	wrongCopy := *wrong
	if _, err := reloaded.ProcessBlock(&wrongCopy, BFFastAdd); err != nil {
		t.Errorf("ProcessBlock with BFFastAdd: %v", err)
	}
}
