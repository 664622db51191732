package blockchain

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
)

// testTime is the timestamp of the first block mined on top of the test
// genesis block.
var testTime = time.Unix(1609459200, 0)

// newTestParams returns regression test parameters with a genesis hash
// matching the default double SHA-256 block hash, retargeting with Dark
// Gravity Wave from dgwHeight on.
func newTestParams(dgwHeight int32) *chaincfg.Params {
	params := chaincfg.RegressionNetParams
	genesisHash := params.BlockHash(params.GenesisHeader)
	params.GenesisHash = &genesisHash
	params.DGWHeight = dgwHeight
	params.NoRetargeting = false
	params.AllowMinDifficultyBlocks = false
	params.Checkpoints = nil
	return &params
}

// fakeTxHash returns a deterministic transaction hash for tests.
func fakeTxHash(seed uint64) *chainhash.Hash {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	hash := chainhash.DoubleHashH(b[:])
	return &hash
}

// solveBlock searches for a nonce that makes the header hash satisfy its
// own target. Test targets are easy enough for this to take a few tries.
func solveBlock(t *testing.T, params *chaincfg.Params, header *wire.BlockHeader) chainhash.Hash {
	target := CompactToBig(header.Bits)
	for nonce := uint32(0); nonce < 1<<20; nonce++ {
		header.Nonce = nonce
		hash := params.BlockHash(header)
		if chainhash.ToBig(&hash).Cmp(target) <= 0 {
			return hash
		}
	}
	t.Fatalf("could not solve block with bits %08x", header.Bits)
	return chainhash.Hash{}
}

// makeBlock mines a merkle block on parent proving the matched entries of
// txHashes.
func makeBlock(t *testing.T, params *chaincfg.Params, parent *chainhash.Hash,
	timestamp time.Time, bits uint32, txHashes []*chainhash.Hash, matches []bool) *MerkleBlock {

	hashes, flags, err := BuildPartialMerkleTree(txHashes, matches)
	if err != nil {
		t.Fatalf("BuildPartialMerkleTree: %v", err)
	}
	header := wire.BlockHeader{
		Version:    4,
		PrevBlock:  *parent,
		MerkleRoot: CalcMerkleRoot(txHashes),
		Timestamp:  timestamp,
		Bits:       bits,
	}
	hash := solveBlock(t, params, &header)
	return &MerkleBlock{
		Header:            header,
		Hash:              hash,
		Height:            UnknownHeight,
		TotalTransactions: uint32(len(txHashes)),
		Hashes:            hashes,
		Flags:             flags,
	}
}

// makeChain mines count blocks with one unmatched transaction each on top
// of parent, spaced by spacing.
func makeChain(t *testing.T, params *chaincfg.Params, parent *chainhash.Hash,
	start time.Time, spacing time.Duration, count int, salt uint64) []*MerkleBlock {

	blocks := make([]*MerkleBlock, 0, count)
	prev := parent
	for i := 0; i < count; i++ {
		txHashes := []*chainhash.Hash{fakeTxHash(salt<<32 | uint64(i))}
		block := makeBlock(t, params, prev, start.Add(time.Duration(i)*spacing),
			params.PowLimitBits, txHashes, []bool{false})
		blocks = append(blocks, block)
		prev = &block.Hash
	}
	return blocks
}
