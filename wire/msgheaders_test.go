// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"testing"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// TestHeadersWithTransactions ensures a headers message that claims
// transactions after a header is rejected.
func TestHeadersWithTransactions(t *testing.T) {
	bh := NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 0)
	msg := NewMsgHeaders()
	msg.AddBlockHeader(bh)

	var buf bytes.Buffer
	if err := msg.DashEncode(&buf, ProtocolVersion); err != nil {
		t.Fatalf("DashEncode: %v", err)
	}
	encoded := buf.Bytes()
	// The last byte is the transaction count of the header.
	encoded[len(encoded)-1] = 0x01

	var decoded MsgHeaders
	err := decoded.DashDecode(bytes.NewReader(encoded), ProtocolVersion)
	var msgErr *MessageError
	if !errors.As(err, &msgErr) {
		t.Fatalf("DashDecode: got error %v, want *MessageError", err)
	}
}

// TestHeadersTooMany ensures the per-message header cap is enforced.
func TestHeadersTooMany(t *testing.T) {
	msg := NewMsgHeaders()
	bh := NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 0)
	for i := 0; i < MaxBlockHeadersPerMsg; i++ {
		if err := msg.AddBlockHeader(bh); err != nil {
			t.Fatalf("AddBlockHeader #%d: %v", i, err)
		}
	}
	if err := msg.AddBlockHeader(bh); err == nil {
		t.Fatalf("AddBlockHeader: expected error past %d headers", MaxBlockHeadersPerMsg)
	}
}

// TestMerkleBlockHeaderOnly ensures a merkle block with no transactions
// round trips as a header-only announcement.
func TestMerkleBlockHeaderOnly(t *testing.T) {
	bh := NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 0)
	msg := NewMsgMerkleBlock(bh)

	var buf bytes.Buffer
	if err := msg.DashEncode(&buf, ProtocolVersion); err != nil {
		t.Fatalf("DashEncode: %v", err)
	}
	if buf.Len() != BlockHeaderPayload+4+1+1 {
		t.Fatalf("DashEncode: got %d bytes, want %d", buf.Len(), BlockHeaderPayload+6)
	}

	var decoded MsgMerkleBlock
	if err := decoded.DashDecode(&buf, ProtocolVersion); err != nil {
		t.Fatalf("DashDecode: %v", err)
	}
	if decoded.Transactions != 0 || len(decoded.Hashes) != 0 {
		t.Fatalf("DashDecode: got %d transactions, %d hashes", decoded.Transactions,
			len(decoded.Hashes))
	}
}
