// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"

	"github.com/dashpay/dashspv/util/chainhash"
)

// MaxBlockLocatorsPerMsg is the maximum number of block locator hashes allowed
// per message.
const MaxBlockLocatorsPerMsg = 500

// blockLocator is the payload shared by getheaders and getblocks: a protocol
// version, a list of block locator hashes ordered from the newest block
// backwards, and a stop hash.
type blockLocator struct {
	ProtocolVersion    uint32
	BlockLocatorHashes []*chainhash.Hash
	HashStop           chainhash.Hash
}

// AddBlockLocatorHash adds a new block locator hash to the message.
func (l *blockLocator) AddBlockLocatorHash(hash *chainhash.Hash) error {
	if len(l.BlockLocatorHashes)+1 > MaxBlockLocatorsPerMsg {
		str := fmt.Sprintf("too many block locator hashes for message [max %v]",
			MaxBlockLocatorsPerMsg)
		return messageError("AddBlockLocatorHash", str)
	}

	l.BlockLocatorHashes = append(l.BlockLocatorHashes, hash)
	return nil
}

func (l *blockLocator) decode(r io.Reader, pver uint32, funcName string) error {
	err := readElement(r, &l.ProtocolVersion)
	if err != nil {
		return err
	}

	// Read num block locator hashes and limit to max.
	count, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if count > MaxBlockLocatorsPerMsg {
		str := fmt.Sprintf("too many block locator hashes for message "+
			"[count %v, max %v]", count, MaxBlockLocatorsPerMsg)
		return messageError(funcName, str)
	}

	// Create a contiguous slice of hashes to deserialize into in order to
	// reduce the number of allocations.
	locatorHashes := make([]chainhash.Hash, count)
	l.BlockLocatorHashes = make([]*chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		hash := &locatorHashes[i]
		err := readElement(r, hash)
		if err != nil {
			return err
		}
		l.BlockLocatorHashes = append(l.BlockLocatorHashes, hash)
	}

	return readElement(r, &l.HashStop)
}

func (l *blockLocator) encode(w io.Writer, pver uint32, funcName string) error {
	// Limit to max block locator hashes per message.
	count := len(l.BlockLocatorHashes)
	if count > MaxBlockLocatorsPerMsg {
		str := fmt.Sprintf("too many block locator hashes for message "+
			"[count %v, max %v]", count, MaxBlockLocatorsPerMsg)
		return messageError(funcName, str)
	}

	err := writeElement(w, l.ProtocolVersion)
	if err != nil {
		return err
	}

	err = WriteVarInt(w, uint64(count))
	if err != nil {
		return err
	}

	for _, hash := range l.BlockLocatorHashes {
		err = writeElement(w, hash)
		if err != nil {
			return err
		}
	}

	return writeElement(w, &l.HashStop)
}

// maxPayloadLength is the protocol version 4 bytes + num hashes (varInt) +
// max block locator hashes + hash stop.
func (l *blockLocator) maxPayloadLength() uint32 {
	return 4 + MaxVarIntPayload + (MaxBlockLocatorsPerMsg * chainhash.HashSize) +
		chainhash.HashSize
}

// MsgGetHeaders implements the Message interface and represents a dash
// getheaders message. It is used to request a list of block headers for
// blocks starting after the last known hash in the slice of block locator
// hashes. The list is returned via a headers message (MsgHeaders) and is
// limited by a specific hash to stop at or the maximum number of block headers
// per message, which is currently 2000.
//
// Set the HashStop field to the hash at which to stop and use
// AddBlockLocatorHash to build up the list of block locator hashes.
//
// The algorithm for building the block locator hashes should be to add the
// hashes in reverse order until you reach the genesis block. In order to keep
// the list of locator hashes to a resonable number of entries, first add the
// most recent 10 block hashes, then double the step each loop iteration to
// exponentially decrease the number of hashes the further away from head and
// closer to the genesis block you get.
type MsgGetHeaders struct {
	blockLocator
}

// DashDecode decodes r using the dash protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgGetHeaders) DashDecode(r io.Reader, pver uint32) error {
	return msg.decode(r, pver, "MsgGetHeaders.DashDecode")
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgGetHeaders) DashEncode(w io.Writer, pver uint32) error {
	return msg.encode(w, pver, "MsgGetHeaders.DashEncode")
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgGetHeaders) Command() string {
	return CmdGetHeaders
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver. This is part of the Message interface implementation.
func (msg *MsgGetHeaders) MaxPayloadLength(pver uint32) uint32 {
	return msg.maxPayloadLength()
}

// NewMsgGetHeaders returns a new dash getheaders message that conforms to
// the Message interface. See MsgGetHeaders for details.
func NewMsgGetHeaders() *MsgGetHeaders {
	return &MsgGetHeaders{blockLocator{
		ProtocolVersion:    ProtocolVersion,
		BlockLocatorHashes: make([]*chainhash.Hash, 0, MaxBlockLocatorsPerMsg),
	}}
}

// MsgGetBlocks implements the Message interface and represents a dash
// getblocks message. It is used to request a list of blocks starting after the
// last known hash in the slice of block locator hashes. The list is returned
// via an inv message (MsgInv) and is limited by a specific hash to stop at or
// the maximum number of blocks per message, which is currently 500.
//
// Set the HashStop field to the hash at which to stop and use
// AddBlockLocatorHash to build up the list of block locator hashes.
type MsgGetBlocks struct {
	blockLocator
}

// DashDecode decodes r using the dash protocol encoding into the receiver.
func (msg *MsgGetBlocks) DashDecode(r io.Reader, pver uint32) error {
	return msg.decode(r, pver, "MsgGetBlocks.DashDecode")
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
func (msg *MsgGetBlocks) DashEncode(w io.Writer, pver uint32) error {
	return msg.encode(w, pver, "MsgGetBlocks.DashEncode")
}

// Command returns the protocol command string for the message.
func (msg *MsgGetBlocks) Command() string {
	return CmdGetBlocks
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgGetBlocks) MaxPayloadLength(pver uint32) uint32 {
	return msg.maxPayloadLength()
}

// NewMsgGetBlocks returns a new dash getblocks message that conforms to the
// Message interface using the passed parameters and defaults for the remaining
// fields.
func NewMsgGetBlocks(hashStop *chainhash.Hash) *MsgGetBlocks {
	return &MsgGetBlocks{blockLocator{
		ProtocolVersion:    ProtocolVersion,
		BlockLocatorHashes: make([]*chainhash.Hash, 0, MaxBlockLocatorsPerMsg),
		HashStop:           *hashStop,
	}}
}
