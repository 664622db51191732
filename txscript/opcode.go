// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txscript

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// These constants are the values of the opcodes a wallet needs to build
// and recognize standard scripts.
const (
	OpFalse         = 0x00
	Op0             = 0x00
	OpData1         = 0x01
	OpData20        = 0x14
	OpData33        = 0x21
	OpData65        = 0x41
	OpData75        = 0x4b
	OpPushData1     = 0x4c
	OpPushData2     = 0x4d
	OpPushData4     = 0x4e
	Op1Negate       = 0x4f
	OpTrue          = 0x51
	Op1             = 0x51
	Op16            = 0x60
	OpReturn        = 0x6a
	OpDup           = 0x76
	OpEqual         = 0x87
	OpEqualVerify   = 0x88
	OpHash160       = 0xa9
	OpCheckSig      = 0xac
	OpCheckMultiSig = 0xae
)

// ErrMalformedPush is returned when a push opcode claims more data than the
// script holds.
var ErrMalformedPush = errors.New("malformed push")

// parsedOpcode represents an opcode that has been parsed and includes any
// potential data associated with it.
type parsedOpcode struct {
	opcode byte
	data   []byte
}

// isPushOnly returns whether every opcode pushes data.
func isPushOnly(pops []parsedOpcode) bool {
	for _, pop := range pops {
		if pop.opcode > Op16 {
			return false
		}
	}
	return true
}

// parseScript tokenizes script into opcodes with their push data.
func parseScript(script []byte) ([]parsedOpcode, error) {
	retScript := make([]parsedOpcode, 0, len(script))
	for i := 0; i < len(script); {
		op := script[i]
		i++

		var dataLen int
		switch {
		case op >= OpData1 && op <= OpData75:
			dataLen = int(op)
		case op == OpPushData1:
			if len(script)-i < 1 {
				return retScript, errors.Wrapf(ErrMalformedPush, "OP_PUSHDATA1 at %d", i-1)
			}
			dataLen = int(script[i])
			i++
		case op == OpPushData2:
			if len(script)-i < 2 {
				return retScript, errors.Wrapf(ErrMalformedPush, "OP_PUSHDATA2 at %d", i-1)
			}
			dataLen = int(binary.LittleEndian.Uint16(script[i:]))
			i += 2
		case op == OpPushData4:
			if len(script)-i < 4 {
				return retScript, errors.Wrapf(ErrMalformedPush, "OP_PUSHDATA4 at %d", i-1)
			}
			n := binary.LittleEndian.Uint32(script[i:])
			if n > uint32(len(script)) {
				return retScript, errors.Wrapf(ErrMalformedPush, "OP_PUSHDATA4 of %d bytes", n)
			}
			dataLen = int(n)
			i += 4
		}

		if len(script)-i < dataLen {
			return retScript, errors.Wrapf(ErrMalformedPush, "opcode 0x%02x wants %d bytes, %d left",
				op, dataLen, len(script)-i)
		}
		pop := parsedOpcode{opcode: op}
		if dataLen > 0 || (op >= OpPushData1 && op <= OpPushData4) {
			pop.data = script[i : i+dataLen]
		}
		i += dataLen
		retScript = append(retScript, pop)
	}
	return retScript, nil
}

// unparseScript reverses parseScript.
func unparseScript(pops []parsedOpcode) ([]byte, error) {
	builder := NewScriptBuilder()
	for _, pop := range pops {
		if pop.opcode > Op0 && pop.opcode <= OpPushData4 {
			builder.AddData(pop.data)
			continue
		}
		builder.AddOp(pop.opcode)
	}
	return builder.Script()
}

// PushedData returns every data push in script. Malformed scripts return
// an error.
func PushedData(script []byte) ([][]byte, error) {
	pops, err := parseScript(script)
	if err != nil {
		return nil, err
	}

	var data [][]byte
	for _, pop := range pops {
		if pop.data != nil {
			data = append(data, pop.data)
		} else if pop.opcode == Op0 {
			data = append(data, nil)
		}
	}
	return data, nil
}
