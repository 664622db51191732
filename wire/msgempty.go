// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// MsgVerAck defines a dash verack message which is used for a peer to
// acknowledge a version message (MsgVersion) after it has used the information
// to negotiate parameters. It implements the Message interface.
//
// This message has no payload.
type MsgVerAck struct{}

// DashDecode decodes r using the dash protocol encoding into the receiver.
// This is part of the Message interface implementation.
func (msg *MsgVerAck) DashDecode(r io.Reader, pver uint32) error {
	return nil
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
// This is part of the Message interface implementation.
func (msg *MsgVerAck) DashEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message. This is part
// of the Message interface implementation.
func (msg *MsgVerAck) Command() string {
	return CmdVerAck
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver. This is part of the Message interface implementation.
func (msg *MsgVerAck) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgVerAck returns a new dash verack message that conforms to the
// Message interface.
func NewMsgVerAck() *MsgVerAck {
	return &MsgVerAck{}
}

// MsgGetAddr implements the Message interface and represents a dash
// getaddr message. It is used to request a list of known active peers on the
// network from a peer to help identify potential nodes.
//
// This message has no payload.
type MsgGetAddr struct{}

// DashDecode decodes r using the dash protocol encoding into the receiver.
func (msg *MsgGetAddr) DashDecode(r io.Reader, pver uint32) error {
	return nil
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
func (msg *MsgGetAddr) DashEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgGetAddr) Command() string {
	return CmdGetAddr
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgGetAddr) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgGetAddr returns a new dash getaddr message that conforms to the
// Message interface.
func NewMsgGetAddr() *MsgGetAddr {
	return &MsgGetAddr{}
}

// MsgMemPool implements the Message interface and represents a dash mempool
// message. It is used to request a list of transactions still in the active
// memory pool of a relay. With a filter loaded, only matching transactions
// are announced.
//
// This message has no payload.
type MsgMemPool struct{}

// DashDecode decodes r using the dash protocol encoding into the receiver.
func (msg *MsgMemPool) DashDecode(r io.Reader, pver uint32) error {
	return nil
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
func (msg *MsgMemPool) DashEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgMemPool) Command() string {
	return CmdMemPool
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgMemPool) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgMemPool returns a new dash mempool message that conforms to the
// Message interface.
func NewMsgMemPool() *MsgMemPool {
	return &MsgMemPool{}
}

// MsgFilterClear implements the Message interface and represents a dash
// filterclear message which is used to reset a Bloom filter.
//
// This message has no payload.
type MsgFilterClear struct{}

// DashDecode decodes r using the dash protocol encoding into the receiver.
func (msg *MsgFilterClear) DashDecode(r io.Reader, pver uint32) error {
	return nil
}

// DashEncode encodes the receiver to w using the dash protocol encoding.
func (msg *MsgFilterClear) DashEncode(w io.Writer, pver uint32) error {
	return nil
}

// Command returns the protocol command string for the message.
func (msg *MsgFilterClear) Command() string {
	return CmdFilterClear
}

// MaxPayloadLength returns the maximum length the payload can be for the
// receiver.
func (msg *MsgFilterClear) MaxPayloadLength(pver uint32) uint32 {
	return 0
}

// NewMsgFilterClear returns a new dash filterclear message that conforms to the Message
// interface.
func NewMsgFilterClear() *MsgFilterClear {
	return &MsgFilterClear{}
}
