// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// HashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation. This is a helper
// function used to aid in the generation of a merkle tree.
func HashMerkleBranches(left, right *chainhash.Hash) *chainhash.Hash {
	var hash [chainhash.HashSize * 2]byte
	copy(hash[:chainhash.HashSize], left[:])
	copy(hash[chainhash.HashSize:], right[:])

	newHash := chainhash.DoubleHashH(hash[:])
	return &newHash
}

// partialMerkleTree holds the state of a depth-first walk over the nodes of
// a merkle tree with numTx leaves. The same walk both builds the hash and
// flag lists of a merkleblock and extracts the matches from them.
type partialMerkleTree struct {
	numTx    uint32
	txHashes []*chainhash.Hash
	matches  []bool

	hashes []*chainhash.Hash
	bits   []bool

	bitsUsed      int
	hashesUsed    int
	matchedHashes []*chainhash.Hash
	matchedItems  []uint32
	bad           bool
}

// calcTreeWidth returns the number of nodes of the tree at the given
// height, leaves being at height 0.
func (t *partialMerkleTree) calcTreeWidth(height uint32) uint32 {
	return (t.numTx + (1 << height) - 1) >> height
}

// calcTreeHeight returns the height of the root of the tree.
func (t *partialMerkleTree) calcTreeHeight() uint32 {
	var height uint32
	for t.calcTreeWidth(height) > 1 {
		height++
	}
	return height
}

// calcHash returns the hash of the node at height and pos from the full
// list of transaction hashes. An odd node at the end of a level is paired
// with itself.
func (t *partialMerkleTree) calcHash(height, pos uint32) *chainhash.Hash {
	if height == 0 {
		return t.txHashes[pos]
	}

	left := t.calcHash(height-1, pos*2)
	right := left
	if pos*2+1 < t.calcTreeWidth(height-1) {
		right = t.calcHash(height-1, pos*2+1)
	}
	return HashMerkleBranches(left, right)
}

// traverseAndBuild appends the flag bit and, where the walk stops, the
// hash of the node at height and pos.
func (t *partialMerkleTree) traverseAndBuild(height, pos uint32) {
	// Determine whether this node is the parent of at least one matched
	// transaction.
	parentOfMatch := false
	for p := pos << height; p < (pos+1)<<height && p < t.numTx; p++ {
		if t.matches[p] {
			parentOfMatch = true
			break
		}
	}
	t.bits = append(t.bits, parentOfMatch)

	// A leaf or a subtree with no matches is represented by its hash.
	if height == 0 || !parentOfMatch {
		t.hashes = append(t.hashes, t.calcHash(height, pos))
		return
	}

	t.traverseAndBuild(height-1, pos*2)
	if pos*2+1 < t.calcTreeWidth(height-1) {
		t.traverseAndBuild(height-1, pos*2+1)
	}
}

// traverseAndExtract consumes flag bits and hashes to recompute the hash
// of the node at height and pos, collecting matched leaves along the way.
// Running out of bits or hashes marks the tree bad.
func (t *partialMerkleTree) traverseAndExtract(height, pos uint32) *chainhash.Hash {
	if t.bitsUsed >= len(t.bits) {
		t.bad = true
		return &chainhash.Hash{}
	}
	parentOfMatch := t.bits[t.bitsUsed]
	t.bitsUsed++

	if height == 0 || !parentOfMatch {
		if t.hashesUsed >= len(t.hashes) {
			t.bad = true
			return &chainhash.Hash{}
		}
		hash := t.hashes[t.hashesUsed]
		t.hashesUsed++
		if height == 0 && parentOfMatch {
			t.matchedHashes = append(t.matchedHashes, hash)
			t.matchedItems = append(t.matchedItems, pos)
		}
		return hash
	}

	left := t.traverseAndExtract(height-1, pos*2)
	right := left
	if pos*2+1 < t.calcTreeWidth(height-1) {
		right = t.traverseAndExtract(height-1, pos*2+1)
		// Identical siblings allow the same root for two different
		// transaction lists.
		if right.IsEqual(left) {
			t.bad = true
		}
	}
	return HashMerkleBranches(left, right)
}

// CalcMerkleRoot returns the merkle root of a full list of transaction
// hashes.
func CalcMerkleRoot(txHashes []*chainhash.Hash) chainhash.Hash {
	if len(txHashes) == 0 {
		return chainhash.Hash{}
	}
	t := &partialMerkleTree{numTx: uint32(len(txHashes)), txHashes: txHashes}
	return *t.calcHash(t.calcTreeHeight(), 0)
}

// BuildPartialMerkleTree encodes the merkle tree of txHashes as the hash
// list and flag bytes of a merkleblock message proving the inclusion of
// every transaction whose entry in matches is true.
func BuildPartialMerkleTree(txHashes []*chainhash.Hash, matches []bool) (
	hashes []*chainhash.Hash, flags []byte, err error) {

	if len(txHashes) == 0 {
		return nil, nil, errors.New("a partial merkle tree needs at least one transaction")
	}
	if len(txHashes) != len(matches) {
		return nil, nil, errors.Errorf("got %d match flags for %d transactions",
			len(matches), len(txHashes))
	}

	t := &partialMerkleTree{
		numTx:    uint32(len(txHashes)),
		txHashes: txHashes,
		matches:  matches,
	}
	t.traverseAndBuild(t.calcTreeHeight(), 0)

	flags = make([]byte, (len(t.bits)+7)/8)
	for i, bit := range t.bits {
		if bit {
			flags[i/8] |= 1 << (i % 8)
		}
	}
	return t.hashes, flags, nil
}

// PartialMerkleTreeResult is the outcome of decoding a partial merkle tree.
type PartialMerkleTreeResult struct {
	// Root is the merkle root the tree commits to.
	Root chainhash.Hash

	// MatchedHashes are the transactions proven to be in the block, in
	// block order.
	MatchedHashes []*chainhash.Hash

	// MatchedItems are the positions of MatchedHashes in the block.
	MatchedItems []uint32
}

// ExtractMatches walks the flag bits of a partial merkle tree depth-first,
// recomputing the merkle root and collecting the matched transaction
// hashes. It fails with ErrMalformedTree when the hashes and flags are not
// exactly consumed by a tree of numTx transactions.
func ExtractMatches(numTx uint32, hashes []*chainhash.Hash, flags []byte) (
	*PartialMerkleTreeResult, error) {

	if numTx == 0 {
		return nil, errors.Wrap(ErrMalformedTree, "no transactions")
	}
	if numTx > wire.MaxTxPerBlock {
		return nil, errors.Wrapf(ErrMalformedTree, "%d transactions is more "+
			"than the maximum of %d", numTx, wire.MaxTxPerBlock)
	}
	if uint32(len(hashes)) > numTx {
		return nil, errors.Wrapf(ErrMalformedTree, "%d hashes for %d transactions",
			len(hashes), numTx)
	}
	if len(flags)*8 < len(hashes) {
		return nil, errors.Wrapf(ErrMalformedTree, "%d flag bits for %d hashes",
			len(flags)*8, len(hashes))
	}

	bits := make([]bool, len(flags)*8)
	for i := range bits {
		bits[i] = flags[i/8]&(1<<(i%8)) != 0
	}
	t := &partialMerkleTree{
		numTx:  numTx,
		hashes: hashes,
		bits:   bits,
	}
	root := t.traverseAndExtract(t.calcTreeHeight(), 0)

	if t.bad {
		return nil, errors.Wrap(ErrMalformedTree, "flags and hashes do not describe the tree")
	}
	if (t.bitsUsed+7)/8 != len(flags) {
		return nil, errors.Wrapf(ErrMalformedTree, "used %d of %d flag bytes",
			(t.bitsUsed+7)/8, len(flags))
	}
	if t.hashesUsed != len(hashes) {
		return nil, errors.Wrapf(ErrMalformedTree, "used %d of %d hashes",
			t.hashesUsed, len(hashes))
	}

	return &PartialMerkleTreeResult{
		Root:          *root,
		MatchedHashes: t.matchedHashes,
		MatchedItems:  t.matchedItems,
	}, nil
}
