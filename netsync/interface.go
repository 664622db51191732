// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/wallet"
)

// BlockStore persists the main chain. dbaccess.DatabaseStore implements it.
type BlockStore interface {
	LoadBlocks(chainID string) ([]*blockchain.MerkleBlock, error)
	UpdateChain(chainID string, detached, attached []*blockchain.MerkleBlock) error
}

// Config is a configuration struct used to initialize a new Manager.
type Config struct {
	Params *chaincfg.Params
	Chain  *blockchain.Chain
	Wallet *wallet.Wallet

	// Store is optional. Without it the chain is not persisted.
	Store BlockStore

	// ChainID keys the blocks in Store. It defaults to Params.Name.
	ChainID string

	Notifier events.Notifier

	// EarliestKeyTime is the creation time of the oldest wallet key.
	// Blocks older than it are downloaded as headers only.
	EarliestKeyTime time.Time

	// MaxPeers is the size of the peer pool. Zero means DefaultMaxPeers.
	MaxPeers int

	// RelayTimeout bounds how long PublishTransaction waits for peers to
	// relay a transaction. Zero means DefaultRelayTimeout.
	RelayTimeout time.Duration

	// MinRelayPeers is the number of peers that must request or announce
	// a published transaction for the publish to succeed. Zero means 1.
	MinRelayPeers int

	// StallTimeout is how long the download peer may go without
	// delivering anything before it is replaced. Zero means
	// DefaultStallTimeout.
	StallTimeout time.Duration

	// FalsePositiveRate of the bloom filter. Zero means
	// DefaultFalsePositiveRate.
	FalsePositiveRate float64

	TimeSource func() time.Time
}
