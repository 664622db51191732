// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

// TestElementWire tests wire encode and decode for various element types.
func TestElementWire(t *testing.T) {
	tests := []struct {
		in  interface{} // Value to encode
		buf []byte      // Wire encoding
	}{
		{int32(1), []byte{0x01, 0x00, 0x00, 0x00}},
		{uint32(256), []byte{0x00, 0x01, 0x00, 0x00}},
		{
			int64(65536),
			[]byte{0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			uint64(4294967296),
			[]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
		},
		{true, []byte{0x01}},
		{false, []byte{0x00}},
		{
			[4]byte{0x01, 0x02, 0x03, 0x04},
			[]byte{0x01, 0x02, 0x03, 0x04},
		},
		{
			ServiceFlag(SFNodeNetwork),
			[]byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
		},
		{
			InvType(InvTypeFilteredBlock),
			[]byte{0x03, 0x00, 0x00, 0x00},
		},
		{
			DashNet(MainNet),
			[]byte{0xbf, 0x0c, 0x6b, 0xbd},
		},
		{BloomUpdateType(BloomUpdateP2PubkeyOnly), []byte{0x02}},
		{RejectCode(RejectDust), []byte{0x41}},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		// Write to wire format.
		var buf bytes.Buffer
		err := writeElement(&buf, test.in)
		if err != nil {
			t.Errorf("writeElement #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("writeElement #%d\n got: %s want: %s", i,
				spew.Sdump(buf.Bytes()), spew.Sdump(test.buf))
			continue
		}

		// Read from wire format.
		rbuf := bytes.NewReader(test.buf)
		val := test.in
		if reflect.ValueOf(test.in).Kind() != reflect.Ptr {
			val = reflect.New(reflect.TypeOf(test.in)).Interface()
		}
		err = readElement(rbuf, val)
		if err != nil {
			t.Errorf("readElement #%d error %v", i, err)
			continue
		}
		ival := val
		if reflect.ValueOf(test.in).Kind() != reflect.Ptr {
			ival = reflect.Indirect(reflect.ValueOf(val)).Interface()
		}
		if !reflect.DeepEqual(ival, test.in) {
			t.Errorf("readElement #%d\n got: %s want: %s", i,
				spew.Sdump(ival), spew.Sdump(test.in))
			continue
		}
	}
}

// TestVarIntWire tests wire encode and decode for variable length integers.
func TestVarIntWire(t *testing.T) {
	tests := []struct {
		in  uint64 // Value to encode
		buf []byte // Wire encoding
	}{
		// Single byte
		{0, []byte{0x00}},
		// Max single byte
		{0xfc, []byte{0xfc}},
		// Min 2-byte
		{0xfd, []byte{0xfd, 0xfd, 0x00}},
		// Max 2-byte
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		// Min 4-byte
		{0x10000, []byte{0xfe, 0x00, 0x00, 0x01, 0x00}},
		// Max 4-byte
		{0xffffffff, []byte{0xfe, 0xff, 0xff, 0xff, 0xff}},
		// Min 8-byte
		{
			0x100000000,
			[]byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
		},
		// Max 8-byte
		{
			0xffffffffffffffff,
			[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		var buf bytes.Buffer
		err := WriteVarInt(&buf, test.in)
		if err != nil {
			t.Errorf("WriteVarInt #%d error %v", i, err)
			continue
		}
		if !bytes.Equal(buf.Bytes(), test.buf) {
			t.Errorf("WriteVarInt #%d\n got: %s want: %s", i,
				spew.Sdump(buf.Bytes()), spew.Sdump(test.buf))
			continue
		}
		if size := VarIntSerializeSize(test.in); size != len(test.buf) {
			t.Errorf("VarIntSerializeSize #%d got %d, want %d", i,
				size, len(test.buf))
		}

		val, err := ReadVarInt(bytes.NewReader(test.buf))
		if err != nil {
			t.Errorf("ReadVarInt #%d error %v", i, err)
			continue
		}
		if val != test.in {
			t.Errorf("ReadVarInt #%d\n got: %d want: %d", i,
				val, test.in)
			continue
		}
	}
}

// TestVarIntTruncated ensures a width marker that is not followed by enough
// bytes is reported as truncated input.
func TestVarIntTruncated(t *testing.T) {
	tests := [][]byte{
		{0xfd},
		{0xfd, 0x01},
		{0xfe, 0x00, 0x00, 0x01},
		{0xff, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00},
	}

	for i, buf := range tests {
		_, err := ReadVarInt(bytes.NewReader(buf))
		if !errors.Is(err, ErrTruncatedInput) {
			t.Errorf("ReadVarInt #%d: got error %v, want %v", i, err,
				ErrTruncatedInput)
		}
	}
}

// TestVarIntNonCanonical ensures variable length integers that are not
// encoded canonically return the expected error.
func TestVarIntNonCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"0 encoded with 3 bytes", []byte{0xfd, 0x00, 0x00}},
		{"max single-byte value encoded with 3 bytes", []byte{0xfd, 0xfc, 0x00}},
		{"0 encoded with 5 bytes", []byte{0xfe, 0x00, 0x00, 0x00, 0x00}},
		{"max three-byte value encoded with 5 bytes", []byte{0xfe, 0xff, 0xff, 0x00, 0x00}},
		{"0 encoded with 9 bytes", []byte{0xff, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"max five-byte value encoded with 9 bytes", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00}},
	}

	for _, test := range tests {
		_, err := ReadVarInt(bytes.NewReader(test.in))
		var msgErr *MessageError
		if !errors.As(err, &msgErr) {
			t.Errorf("ReadVarInt %q: got error %v, want *MessageError",
				test.name, err)
		}
	}
}

// TestVarBytesOverflow ensures a declared length beyond the allowed maximum
// is refused before any allocation.
func TestVarBytesOverflow(t *testing.T) {
	buf := []byte{0xfe, 0x00, 0x00, 0x01, 0x00}
	_, err := ReadVarBytes(bytes.NewReader(buf), ProtocolVersion,
		MaxFilterAddDataSize, "test")
	var msgErr *MessageError
	if !errors.As(err, &msgErr) {
		t.Fatalf("ReadVarBytes: got error %v, want *MessageError", err)
	}

	// A length prefix that promises more bytes than are present.
	buf = []byte{0x05, 0x01, 0x02}
	_, err = ReadVarBytes(bytes.NewReader(buf), ProtocolVersion,
		MaxFilterAddDataSize, "test")
	if !errors.Is(err, ErrTruncatedInput) {
		t.Fatalf("ReadVarBytes: got error %v, want %v", err, ErrTruncatedInput)
	}
}

// TestVarStringWire tests wire encode and decode for variable length strings.
func TestVarStringWire(t *testing.T) {
	str256 := string(bytes.Repeat([]byte{'x'}, 256))

	tests := []string{"", "Test", str256}
	for i, test := range tests {
		var buf bytes.Buffer
		err := WriteVarString(&buf, test)
		if err != nil {
			t.Errorf("WriteVarString #%d error %v", i, err)
			continue
		}
		if buf.Len() != VarIntSerializeSize(uint64(len(test)))+len(test) {
			t.Errorf("WriteVarString #%d: unexpected length %d", i, buf.Len())
		}
		val, err := ReadVarString(&buf, ProtocolVersion)
		if err != nil {
			t.Errorf("ReadVarString #%d error %v", i, err)
			continue
		}
		if val != test {
			t.Errorf("ReadVarString #%d\n got: %s want: %s", i, val, test)
		}
	}
}
