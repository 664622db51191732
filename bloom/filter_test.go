// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package bloom

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"math/rand"
	"testing"

	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

var filterInsertData = []string{
	"99108ad8ed9bb6274d3980bab5a85c048f0950c8",
	"b5a2c786d9ef4658287ced5914b37a1b4aa32eee",
	"b9300670b4c5366e95b2699e8b18bc75e5f729c5",
}

func TestFilterInsert(t *testing.T) {
	tests := []struct {
		tweak uint32
		want  string
	}{
		{0, "03614e9b050000000000000001"},
		{2147483649, "03ce4299050000000100008001"},
	}

	for _, test := range tests {
		f, err := NewFilter(3, test.tweak, 0.01, wire.BloomUpdateAll)
		if err != nil {
			t.Fatalf("NewFilter: %v", err)
		}
		for i, hexData := range filterInsertData {
			data, _ := hex.DecodeString(hexData)
			f.Add(data)
			if !f.Matches(data) {
				t.Errorf("tweak %d: inserted item %d does not match", test.tweak, i)
			}
		}

		var buf bytes.Buffer
		if err := f.MsgFilterLoad().DashEncode(&buf, wire.ProtocolVersion); err != nil {
			t.Fatalf("DashEncode: %v", err)
		}
		if got := hex.EncodeToString(buf.Bytes()); got != test.want {
			t.Errorf("tweak %d: got %s want %s", test.tweak, got, test.want)
		}
	}
}

// TestFalsePositiveRate checks that the observed false positive rate over
// random items that were never inserted converges to the configured rate.
func TestFalsePositiveRate(t *testing.T) {
	const (
		elements = 1000
		fprate   = 0.01
		samples  = 100000
	)
	r := rand.New(rand.NewSource(1))
	f, err := NewFilter(elements, r.Uint32(), fprate, wire.BloomUpdateNone)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	inserted := make(map[uint64]struct{}, elements)
	item := make([]byte, 8)
	for len(inserted) < elements {
		v := r.Uint64()
		inserted[v] = struct{}{}
		binary.LittleEndian.PutUint64(item, v)
		f.Add(item)
	}
	for v := range inserted {
		binary.LittleEndian.PutUint64(item, v)
		if !f.Matches(item) {
			t.Fatalf("inserted item %d does not match", v)
		}
	}

	falsePositives := 0
	checked := 0
	for checked < samples {
		v := r.Uint64()
		if _, ok := inserted[v]; ok {
			continue
		}
		checked++
		binary.LittleEndian.PutUint64(item, v)
		if f.Matches(item) {
			falsePositives++
		}
	}

	observed := float64(falsePositives) / samples
	if observed > fprate*1.5 || observed < fprate*0.5 {
		t.Fatalf("observed false positive rate %f is not within tolerance of %f", observed, fprate)
	}
	if estimate := f.FalsePositiveRate(elements); estimate > fprate*1.5 || estimate < fprate*0.5 {
		t.Fatalf("estimated false positive rate %f is not within tolerance of %f", estimate, fprate)
	}
}

func TestFilterTooLarge(t *testing.T) {
	_, err := NewFilter(1000000, 0, 0.0001, wire.BloomUpdateAll)
	if !errors.Is(err, ErrFilterTooLarge) {
		t.Fatalf("NewFilter: got %v want %v", err, ErrFilterTooLarge)
	}
}

func p2pkhScript(hash []byte) []byte {
	script := []byte{0x76, 0xa9, 0x14}
	script = append(script, hash...)
	return append(script, 0x88, 0xac)
}

func TestMatchTxAndUpdate(t *testing.T) {
	pubKeyHash := bytes.Repeat([]byte{0x42}, 20)
	f, err := NewFilter(10, 0, 0.000001, wire.BloomUpdateAll)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	f.Add(pubKeyHash)

	funding := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.Hash{0x01}
	funding.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 0), nil))
	funding.AddTxOut(wire.NewTxOut(5000, p2pkhScript(bytes.Repeat([]byte{0x01}, 20))))
	funding.AddTxOut(wire.NewTxOut(7000, p2pkhScript(pubKeyHash)))

	if !f.MatchTxAndUpdate(funding) {
		t.Fatalf("funding transaction does not match")
	}
	fundingHash := funding.TxHash()
	if !f.MatchesOutPoint(wire.NewOutPoint(&fundingHash, 1)) {
		t.Fatalf("matched output was not added to the filter")
	}

	// The spend of the matched output is found through the outpoint alone.
	spend := wire.NewMsgTx(wire.TxVersion)
	spend.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&fundingHash, 1), nil))
	spend.AddTxOut(wire.NewTxOut(6000, p2pkhScript(bytes.Repeat([]byte{0x02}, 20))))
	if !f.MatchTxAndUpdate(spend) {
		t.Fatalf("spending transaction does not match")
	}

	unrelated := wire.NewMsgTx(wire.TxVersion)
	otherHash := chainhash.Hash{0x99}
	unrelated.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&otherHash, 3), nil))
	unrelated.AddTxOut(wire.NewTxOut(1, p2pkhScript(bytes.Repeat([]byte{0x03}, 20))))
	if f.MatchTxAndUpdate(unrelated) {
		t.Fatalf("unrelated transaction matches")
	}
}

func TestUpdateWithTransaction(t *testing.T) {
	pubKeyHash := bytes.Repeat([]byte{0x24}, 20)
	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := chainhash.Hash{0x07}
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, 2), nil))
	tx.AddTxOut(wire.NewTxOut(1000, p2pkhScript(pubKeyHash)))
	txHash := tx.TxHash()

	tests := []struct {
		flags         wire.BloomUpdateType
		wantOutput    bool
		wantPrevInput bool
	}{
		{wire.BloomUpdateNone, false, false},
		{wire.BloomUpdateAll, true, true},
		{wire.BloomUpdateP2PubkeyOnly, false, true},
	}
	for _, test := range tests {
		f, err := NewFilter(10, 0, 0.000001, test.flags)
		if err != nil {
			t.Fatalf("NewFilter: %v", err)
		}
		f.Add(pubKeyHash)
		f.UpdateWithTransaction(tx)

		if got := f.MatchesOutPoint(wire.NewOutPoint(&txHash, 0)); got != test.wantOutput {
			t.Errorf("flags %d: output outpoint match got %v want %v", test.flags, got, test.wantOutput)
		}
		if got := f.MatchesOutPoint(wire.NewOutPoint(&prevHash, 2)); got != test.wantPrevInput {
			t.Errorf("flags %d: input outpoint match got %v want %v", test.flags, got, test.wantPrevInput)
		}
	}
}
