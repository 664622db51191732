package blockchain

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/big"
	"time"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/util/binaryserializer"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// UnknownHeight is the height of a block whose position in the chain is not
// known yet.
const UnknownHeight int32 = -1

// MerkleBlock is a block header together with a partial merkle tree
// proving the inclusion of the transactions the peer's filter matched.
// A block with zero TotalTransactions carries the header only.
type MerkleBlock struct {
	Header            wire.BlockHeader
	Hash              chainhash.Hash
	Height            int32
	TotalTransactions uint32
	Hashes            []*chainhash.Hash
	Flags             []byte
}

// NewMerkleBlock returns a MerkleBlock of unknown height from a
// merkleblock message, hashing the header the way params prescribe.
func NewMerkleBlock(msg *wire.MsgMerkleBlock, params *chaincfg.Params) *MerkleBlock {
	return &MerkleBlock{
		Header:            msg.Header,
		Hash:              params.BlockHash(&msg.Header),
		Height:            UnknownHeight,
		TotalTransactions: msg.Transactions,
		Hashes:            msg.Hashes,
		Flags:             msg.Flags,
	}
}

// NewHeaderBlock returns a header-only MerkleBlock of unknown height.
func NewHeaderBlock(header *wire.BlockHeader, params *chaincfg.Params) *MerkleBlock {
	return &MerkleBlock{
		Header: *header,
		Hash:   params.BlockHash(header),
		Height: UnknownHeight,
	}
}

// IsHeaderOnly reports whether the block carries no partial merkle tree.
func (b *MerkleBlock) IsHeaderOnly() bool {
	return b.TotalTransactions == 0
}

// MsgMerkleBlock returns the wire representation of the block.
func (b *MerkleBlock) MsgMerkleBlock() *wire.MsgMerkleBlock {
	return &wire.MsgMerkleBlock{
		Header:       b.Header,
		Transactions: b.TotalTransactions,
		Hashes:       b.Hashes,
		Flags:        b.Flags,
	}
}

// MatchedTxHashes decodes the partial merkle tree and returns the hashes of
// the transactions it proves. Header-only blocks match nothing.
func (b *MerkleBlock) MatchedTxHashes() ([]*chainhash.Hash, error) {
	if b.IsHeaderOnly() {
		return nil, nil
	}
	result, err := ExtractMatches(b.TotalTransactions, b.Hashes, b.Flags)
	if err != nil {
		return nil, err
	}
	return result.MatchedHashes, nil
}

// checkMerkleRoot verifies that the partial merkle tree commits to the root
// stated in the header.
func (b *MerkleBlock) checkMerkleRoot() error {
	if b.IsHeaderOnly() {
		return nil
	}
	result, err := ExtractMatches(b.TotalTransactions, b.Hashes, b.Flags)
	if err != nil {
		return err
	}
	if !result.Root.IsEqual(&b.Header.MerkleRoot) {
		return errors.Wrapf(ErrBadMerkleRoot, "block merkle root is invalid - block "+
			"header indicates %s, but calculated value is %s",
			b.Header.MerkleRoot, result.Root)
	}
	return nil
}

// checkProofOfWork ensures the target encoded in the header bits is in
// range and that the block hash is not above it.
func checkProofOfWork(header *wire.BlockHeader, hash *chainhash.Hash, powLimit *big.Int) error {
	target := CompactToBig(header.Bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ErrTargetOutOfRange, "block target difficulty of %064x "+
			"is too low", target)
	}
	if target.Cmp(powLimit) > 0 {
		return errors.Wrapf(ErrTargetOutOfRange, "block target difficulty of %064x "+
			"is higher than max of %064x", target, powLimit)
	}

	hashNum := chainhash.ToBig(hash)
	if hashNum.Cmp(target) > 0 {
		return errors.Wrapf(ErrHighHash, "block hash of %064x is higher than "+
			"expected max of %064x", hashNum, target)
	}
	return nil
}

// CheckMerkleBlockSanity checks the internal consistency of a block: the
// partial merkle tree must commit to the header's merkle root, the block
// hash must satisfy the header's own target and the timestamp must not be
// more than params.MaxTimeOffset ahead of now. It does not check that the
// target is the right one for the block's height; see Chain.VerifyDifficulty.
func CheckMerkleBlockSanity(b *MerkleBlock, params *chaincfg.Params, now time.Time) error {
	err := b.checkMerkleRoot()
	if err != nil {
		return err
	}

	err = checkProofOfWork(&b.Header, &b.Hash, params.PowLimit)
	if err != nil {
		return err
	}

	maxTimestamp := now.Add(params.MaxTimeOffset)
	if b.Header.Timestamp.After(maxTimestamp) {
		return errors.Wrapf(ErrTimeTooNew, "block timestamp of %s is too far in "+
			"the future", b.Header.Timestamp)
	}
	return nil
}

// IsValid reports whether b passes CheckMerkleBlockSanity.
func (b *MerkleBlock) IsValid(params *chaincfg.Params, now time.Time) bool {
	return CheckMerkleBlockSanity(b, params, now) == nil
}

// Serialize writes the block in its storage format: the height followed by
// the merkleblock message payload.
func (b *MerkleBlock) Serialize(w io.Writer) error {
	err := binaryserializer.PutUint32(w, binary.LittleEndian, uint32(b.Height))
	if err != nil {
		return err
	}
	return b.MsgMerkleBlock().DashEncode(w, 0)
}

// Bytes returns the storage serialization of the block.
func (b *MerkleBlock) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	err := b.Serialize(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeMerkleBlock reads a block written by Serialize.
func DeserializeMerkleBlock(r io.Reader, params *chaincfg.Params) (*MerkleBlock, error) {
	height, err := binaryserializer.Uint32(r, binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	var msg wire.MsgMerkleBlock
	err = msg.DashDecode(r, 0)
	if err != nil {
		return nil, err
	}
	block := NewMerkleBlock(&msg, params)
	block.Height = int32(height)
	return block, nil
}
