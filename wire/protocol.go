// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// ProtocolVersion is the latest protocol version this package supports.
	ProtocolVersion uint32 = 70220

	// MinPeerProtocolVersion is the oldest protocol version a remote peer
	// may announce.
	MinPeerProtocolVersion uint32 = 70215

	// MNAuthChallengeVersion is the protocol version which added the
	// masternode authentication challenge to the version message.
	MNAuthChallengeVersion uint32 = 70214

	// SendHeadersVersion is the protocol version which added the sendheaders
	// message.
	SendHeadersVersion uint32 = 70012
)

// ServiceFlag identifies services supported by a dash peer.
type ServiceFlag uint64

const (
	// SFNodeNetwork is a flag used to indicate a peer is a full node.
	SFNodeNetwork ServiceFlag = 1 << iota

	// SFNodeGetUTXO is a flag used to indicate a peer supports the
	// getutxos and utxos commands (BIP0064).
	SFNodeGetUTXO

	// SFNodeBloom is a flag used to indicate a peer supports bloom
	// filtering.
	SFNodeBloom
)

// Map of service flags back to their constant names for pretty printing.
var sfStrings = map[ServiceFlag]string{
	SFNodeNetwork: "SFNodeNetwork",
	SFNodeGetUTXO: "SFNodeGetUTXO",
	SFNodeBloom:   "SFNodeBloom",
}

// orderedSFStrings is an ordered list of service flags from highest to
// lowest.
var orderedSFStrings = []ServiceFlag{
	SFNodeNetwork,
	SFNodeGetUTXO,
	SFNodeBloom,
}

// String returns the ServiceFlag in human-readable form.
func (f ServiceFlag) String() string {
	// No flags are set.
	if f == 0 {
		return "0x0"
	}

	// Add individual bit flags.
	s := ""
	for _, flag := range orderedSFStrings {
		if f&flag == flag {
			s += sfStrings[flag] + "|"
			f -= flag
		}
	}

	// Add any remaining flags which aren't accounted for as hex.
	s = strings.TrimRight(s, "|")
	if f != 0 {
		s += "|0x" + strconv.FormatUint(uint64(f), 16)
	}
	s = strings.TrimLeft(s, "|")
	return s
}

// DashNet represents which dash network a message belongs to.
type DashNet uint32

// Constants used to indicate the message dash network. They are the
// little-endian reading of the four magic bytes prefixing every message.
const (
	// MainNet represents the main dash network.
	MainNet DashNet = 0xbd6b0cbf

	// TestNet represents the public test network.
	TestNet DashNet = 0xffcae2ce

	// RegTest represents the regression test network.
	RegTest DashNet = 0xdcb7c1fc

	// DevNet represents development networks.
	DevNet DashNet = 0xceffcae2
)

// bnStrings is a map of dash networks back to their constant names for
// pretty printing.
var bnStrings = map[DashNet]string{
	MainNet: "MainNet",
	TestNet: "TestNet",
	RegTest: "RegTest",
	DevNet:  "DevNet",
}

// String returns the DashNet in human-readable form.
func (n DashNet) String() string {
	if s, ok := bnStrings[n]; ok {
		return s
	}

	return fmt.Sprintf("Unknown DashNet (%d)", uint32(n))
}
