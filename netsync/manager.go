// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netsync

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/bloom"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/infrastructure/metrics"
	"github.com/dashpay/dashspv/peer"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wallet"
	"github.com/dashpay/dashspv/wire"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
)

const (
	// DefaultMaxPeers is the default size of the peer pool.
	DefaultMaxPeers = 3

	// DefaultRelayTimeout is how long a published transaction may wait
	// for peers to relay it.
	DefaultRelayTimeout = 15 * time.Second

	// DefaultStallTimeout is how long the download peer may go without
	// delivering a requested header or block.
	DefaultStallTimeout = 2 * time.Minute

	// DefaultFalsePositiveRate is the false positive rate of the bloom
	// filters sent to peers.
	DefaultFalsePositiveRate = 0.0005

	// filterRefreshFactor is how many times worse than configured the
	// estimated false positive rate of the loaded filter may get before
	// the filter is rebuilt.
	filterRefreshFactor = 10

	// headersOnlyMargin is subtracted from the earliest key time so that
	// clock skew between the wallet and block timestamps never hides a
	// relevant block behind a header.
	headersOnlyMargin = 7 * 24 * time.Hour

	// matchedTxRetention is how long a transaction matched by a merkle
	// block is waited for.
	matchedTxRetention = 10 * time.Minute

	// relayRetention is how long relays of a transaction are counted.
	relayRetention = 3 * time.Hour

	// msgChanSize is the buffer size of the message channel.
	msgChanSize = 1000
)

var (
	// ErrNoPeers is returned when a transaction is published without
	// connected peers.
	ErrNoPeers = errors.New("no connected peers")

	// ErrNoSyncPeer is carried by SyncFailed when the download peer is
	// lost and no other peer can take over.
	ErrNoSyncPeer = errors.New("no peer to download from")

	// ErrRelayTimeout is returned when a published transaction is not
	// relayed in time.
	ErrRelayTimeout = errors.New("transaction was not relayed in time")

	// ErrTransactionRejected is returned when a peer rejects a published
	// transaction.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrManagerStopped is returned by requests made after Stop.
	ErrManagerStopped = errors.New("sync manager stopped")
)

// newPeerMsg signifies a newly connected peer to the block handler.
type newPeerMsg struct {
	peer *peer.Peer
}

// donePeerMsg signifies a peer that disconnected.
type donePeerMsg struct {
	peer *peer.Peer
}

type invMsg struct {
	inv  *wire.MsgInv
	peer *peer.Peer
}

type txMsg struct {
	tx   *wire.MsgTx
	peer *peer.Peer
}

type headersMsg struct {
	headers *wire.MsgHeaders
	peer    *peer.Peer
}

type merkleBlockMsg struct {
	block *wire.MsgMerkleBlock
	peer  *peer.Peer
}

type getDataMsg struct {
	getData *wire.MsgGetData
	peer    *peer.Peer
}

type notFoundMsg struct {
	notFound *wire.MsgNotFound
	peer     *peer.Peer
}

type rejectMsg struct {
	reject *wire.MsgReject
	peer   *peer.Peer
}

type publishTxMsg struct {
	tx    *wire.MsgTx
	reply chan error
}

// publishExpiredMsg reports a publish whose relay timeout expired.
type publishExpiredMsg struct {
	hash    chainhash.Hash
	pending *pendingPublish
}

type relayCountMsg struct {
	hash  chainhash.Hash
	reply chan int
}

type syncStateMsg struct {
	reply chan *SyncState
}

// SyncState is a snapshot of the download progress.
type SyncState struct {
	Syncing        bool
	Height         int32
	SyncPeerID     int32
	SyncPeerHeight int32
	ConnectedPeers int
}

// peerSyncState stores additional information that the Manager tracks
// about a peer.
type peerSyncState struct {
	filterLoaded    bool
	requestedBlocks map[chainhash.Hash]struct{}
	requestedTxs    map[chainhash.Hash]struct{}
}

// blockRef locates a block a matched transaction was proven in.
type blockRef struct {
	height    int32
	timestamp time.Time
}

// Manager is used to communicate block related messages with peers. It is
// started by executing Start() in a goroutine. Once started, it selects a
// download peer and downloads the chain from it. Every message and state
// change is processed serially by blockHandler.
type Manager struct {
	started  int32
	shutdown int32

	params            *chaincfg.Params
	chain             *blockchain.Chain
	wallet            *wallet.Wallet
	store             BlockStore
	chainID           string
	notifier          events.Notifier
	earliestKeyTime   time.Time
	maxPeers          int
	relayTimeout      time.Duration
	minRelayPeers     int
	stallTimeout      time.Duration
	falsePositiveRate float64
	timeSource        func() time.Time

	msgChan chan interface{}
	wg      sync.WaitGroup
	quit    chan struct{}

	// The fields below are owned by blockHandler.
	peerStates       map[*peer.Peer]*peerSyncState
	syncPeer         *peer.Peer
	syncing          bool
	headersFirstDone bool
	lastProgress     time.Time
	publishedTxs     map[chainhash.Hash]*wire.MsgTx

	filter           *bloom.Filter
	filterElements   uint32
	filterGeneration uint64
	filterTweak      uint32

	matchedTxs       *ttlcache.Cache[chainhash.Hash, blockRef]
	relays           *ttlcache.Cache[chainhash.Hash, map[int32]struct{}]
	pendingPublishes *ttlcache.Cache[chainhash.Hash, *pendingPublish]
}

// New constructs a new Manager and restores the chain kept in cfg.Store.
// Use Start to begin processing asynchronous block and inv updates.
func New(cfg *Config) (*Manager, error) {
	if cfg.Chain == nil {
		return nil, errors.New("netsync: a chain is required")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("netsync: a wallet is required")
	}

	params := cfg.Params
	if params == nil {
		params = cfg.Chain.Params()
	}
	chainID := cfg.ChainID
	if chainID == "" {
		chainID = params.Name
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = events.Nop{}
	}
	maxPeers := cfg.MaxPeers
	if maxPeers == 0 {
		maxPeers = DefaultMaxPeers
	}
	relayTimeout := cfg.RelayTimeout
	if relayTimeout == 0 {
		relayTimeout = DefaultRelayTimeout
	}
	minRelayPeers := cfg.MinRelayPeers
	if minRelayPeers == 0 {
		minRelayPeers = 1
	}
	stallTimeout := cfg.StallTimeout
	if stallTimeout == 0 {
		stallTimeout = DefaultStallTimeout
	}
	falsePositiveRate := cfg.FalsePositiveRate
	if falsePositiveRate == 0 {
		falsePositiveRate = DefaultFalsePositiveRate
	}
	timeSource := cfg.TimeSource
	if timeSource == nil {
		timeSource = time.Now
	}
	filterTweak, err := randomTweak()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		params:            params,
		chain:             cfg.Chain,
		wallet:            cfg.Wallet,
		store:             cfg.Store,
		chainID:           chainID,
		notifier:          notifier,
		earliestKeyTime:   cfg.EarliestKeyTime,
		maxPeers:          maxPeers,
		relayTimeout:      relayTimeout,
		minRelayPeers:     minRelayPeers,
		stallTimeout:      stallTimeout,
		falsePositiveRate: falsePositiveRate,
		timeSource:        timeSource,
		msgChan:           make(chan interface{}, msgChanSize),
		quit:              make(chan struct{}),
		peerStates:        make(map[*peer.Peer]*peerSyncState),
		publishedTxs:      make(map[chainhash.Hash]*wire.MsgTx),
		filterTweak:       filterTweak,
		matchedTxs: ttlcache.New[chainhash.Hash, blockRef](
			ttlcache.WithTTL[chainhash.Hash, blockRef](matchedTxRetention)),
		relays: ttlcache.New[chainhash.Hash, map[int32]struct{}](
			ttlcache.WithTTL[chainhash.Hash, map[int32]struct{}](relayRetention)),
		pendingPublishes: ttlcache.New[chainhash.Hash, *pendingPublish](
			ttlcache.WithTTL[chainhash.Hash, *pendingPublish](relayTimeout),
			ttlcache.WithDisableTouchOnHit[chainhash.Hash, *pendingPublish]()),
	}
	m.pendingPublishes.OnEviction(m.onPublishEvicted)

	err = m.loadChain()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// loadChain connects the blocks kept in the store to the chain.
func (m *Manager) loadChain() error {
	if m.store == nil {
		return nil
	}
	blocks, err := m.store.LoadBlocks(m.chainID)
	if err != nil {
		return errors.Wrapf(err, "failed loading the blocks of chain %s", m.chainID)
	}
	for _, block := range blocks {
		_, err := m.chain.ProcessBlock(block, blockchain.BFFastAdd)
		if errors.Is(err, blockchain.ErrDuplicateBlock) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "failed restoring block %s", block.Hash)
		}
	}
	height := m.chain.Height()
	m.wallet.SetBestHeight(height)
	metrics.SyncHeight.Set(float64(height))
	log.Infof("Restored %d blocks of chain %s, height %d", len(blocks), m.chainID, height)
	return nil
}

// Start begins the core block handler which processes block and inv
// messages.
func (m *Manager) Start() {
	// Already started?
	if atomic.AddInt32(&m.started, 1) != 1 {
		return
	}

	log.Trace("Starting sync manager")
	m.wg.Add(4)
	spawn("Manager.blockHandler", m.blockHandler)
	spawn("Manager.matchedTxs", func() {
		defer m.wg.Done()
		m.matchedTxs.Start()
	})
	spawn("Manager.pendingPublishes", func() {
		defer m.wg.Done()
		m.pendingPublishes.Start()
	})
	spawn("Manager.relays", func() {
		defer m.wg.Done()
		m.relays.Start()
	})
}

// Stop gracefully shuts down the sync manager by stopping all asynchronous
// handlers and waiting for them to finish.
func (m *Manager) Stop() error {
	if atomic.AddInt32(&m.shutdown, 1) != 1 {
		log.Warn("Sync manager is already in the process of shutting down")
		return nil
	}

	log.Infof("Sync manager shutting down")
	close(m.quit)
	if atomic.LoadInt32(&m.started) != 0 {
		m.matchedTxs.Stop()
		m.pendingPublishes.Stop()
		m.relays.Stop()
	}
	m.wg.Wait()
	return nil
}

// queue hands msg to blockHandler unless the manager is shutting down.
func (m *Manager) queue(msg interface{}) {
	if atomic.LoadInt32(&m.shutdown) != 0 {
		return
	}
	select {
	case m.msgChan <- msg:
	case <-m.quit:
	}
}

// NewPeer informs the sync manager of a newly connected peer.
func (m *Manager) NewPeer(p *peer.Peer) {
	m.queue(&newPeerMsg{peer: p})
}

// DonePeer informs the sync manager that a peer has disconnected.
func (m *Manager) DonePeer(p *peer.Peer) {
	m.queue(&donePeerMsg{peer: p})
}

// Listeners returns the peer message listeners feeding the sync manager.
// Callers may add listeners for messages the sync manager ignores.
func (m *Manager) Listeners() peer.MessageListeners {
	return peer.MessageListeners{
		OnInv: func(p *peer.Peer, msg *wire.MsgInv) {
			m.queue(&invMsg{inv: msg, peer: p})
		},
		OnTx: func(p *peer.Peer, msg *wire.MsgTx) {
			m.queue(&txMsg{tx: msg, peer: p})
		},
		OnHeaders: func(p *peer.Peer, msg *wire.MsgHeaders) {
			m.queue(&headersMsg{headers: msg, peer: p})
		},
		OnMerkleBlock: func(p *peer.Peer, msg *wire.MsgMerkleBlock) {
			m.queue(&merkleBlockMsg{block: msg, peer: p})
		},
		OnGetData: func(p *peer.Peer, msg *wire.MsgGetData) {
			m.queue(&getDataMsg{getData: msg, peer: p})
		},
		OnNotFound: func(p *peer.Peer, msg *wire.MsgNotFound) {
			m.queue(&notFoundMsg{notFound: msg, peer: p})
		},
		OnReject: func(p *peer.Peer, msg *wire.MsgReject) {
			m.queue(&rejectMsg{reject: msg, peer: p})
		},
	}
}

// SyncState returns a snapshot of the download progress.
func (m *Manager) SyncState() (*SyncState, error) {
	reply := make(chan *SyncState, 1)
	if !m.request(&syncStateMsg{reply: reply}) {
		return nil, ErrManagerStopped
	}
	select {
	case state := <-reply:
		return state, nil
	case <-m.quit:
		return nil, ErrManagerStopped
	}
}

// RelayCountForTransaction returns the number of connected peers that
// announced the transaction of the given hash.
func (m *Manager) RelayCountForTransaction(hash *chainhash.Hash) int {
	reply := make(chan int, 1)
	if !m.request(&relayCountMsg{hash: *hash, reply: reply}) {
		return 0
	}
	select {
	case count := <-reply:
		return count
	case <-m.quit:
		return 0
	}
}

// request is queue for messages expecting a reply. It returns false when
// the manager is shutting down.
func (m *Manager) request(msg interface{}) bool {
	if atomic.LoadInt32(&m.shutdown) != 0 {
		return false
	}
	select {
	case m.msgChan <- msg:
		return true
	case <-m.quit:
		return false
	}
}

// blockHandler is the main handler for the sync manager. It must be run as
// a goroutine. It processes block and inv messages in a separate goroutine
// from the peer handlers so the block (merkleblock) messages are handled by
// a single thread without needing to lock memory data structures. This is
// important because the sync manager controls which blocks are needed and
// how the fetching should proceed.
func (m *Manager) blockHandler() {
	defer m.wg.Done()

	stallTicker := time.NewTicker(m.stallTimeout / 4)
	defer stallTicker.Stop()

out:
	for {
		select {
		case msg := <-m.msgChan:
			switch msg := msg.(type) {
			case *newPeerMsg:
				m.handleNewPeerMsg(msg.peer)

			case *donePeerMsg:
				m.handleDonePeerMsg(msg.peer)

			case *invMsg:
				m.handleInvMsg(msg)

			case *txMsg:
				m.handleTxMsg(msg)

			case *headersMsg:
				m.handleHeadersMsg(msg)

			case *merkleBlockMsg:
				m.handleMerkleBlockMsg(msg)

			case *getDataMsg:
				m.handleGetDataMsg(msg)

			case *notFoundMsg:
				m.handleNotFoundMsg(msg)

			case *rejectMsg:
				m.handleRejectMsg(msg)

			case *publishTxMsg:
				m.handlePublishTxMsg(msg)

			case *publishExpiredMsg:
				m.handlePublishExpiredMsg(msg)

			case *relayCountMsg:
				msg.reply <- m.relayCount(&msg.hash)

			case *syncStateMsg:
				msg.reply <- m.syncState()

			default:
				log.Warnf("Invalid message type in block handler: %T", msg)
			}

		case <-stallTicker.C:
			m.handleStallSample()

		case <-m.quit:
			break out
		}
	}

	log.Trace("Block handler done")
}

func (m *Manager) syncState() *SyncState {
	state := &SyncState{
		Syncing:        m.syncing,
		Height:         m.chain.Height(),
		SyncPeerID:     -1,
		ConnectedPeers: len(m.peerStates),
	}
	if m.syncPeer != nil {
		state.SyncPeerID = m.syncPeer.ID()
		state.SyncPeerHeight = m.syncPeer.LastBlock()
	}
	return state
}

// handleNewPeerMsg deals with new peers that have signalled they may be
// considered as a download peer.
func (m *Manager) handleNewPeerMsg(p *peer.Peer) {
	// Ignore if in the process of shutting down.
	if atomic.LoadInt32(&m.shutdown) != 0 {
		return
	}
	if !p.Connected() {
		return
	}
	if len(m.peerStates) >= m.maxPeers {
		log.Debugf("Peer pool is full, disconnecting %s", p)
		p.Disconnect()
		return
	}

	log.Infof("New valid peer %s (%s)", p, p.UserAgent())
	m.peerStates[p] = &peerSyncState{
		requestedBlocks: make(map[chainhash.Hash]struct{}),
		requestedTxs:    make(map[chainhash.Hash]struct{}),
	}
	m.peersChanged()

	err := m.loadFilter(p)
	if err != nil {
		log.Errorf("Failed loading the bloom filter of %s: %s", p, err)
		return
	}
	m.startSync()
	if !m.syncing {
		p.PushMemPoolMsg()
	}
}

// handleDonePeerMsg deals with peers that have signalled they are done. It
// removes the peer as a candidate for syncing and in the case where it was
// the current download peer, attempts to select a new best peer to sync
// from.
func (m *Manager) handleDonePeerMsg(p *peer.Peer) {
	if _, exists := m.peerStates[p]; !exists {
		log.Tracef("Received done peer message for unknown peer %s", p)
		return
	}
	delete(m.peerStates, p)
	log.Infof("Lost peer %s", p)
	m.peersChanged()

	if m.syncPeer == p {
		m.syncPeer = nil
		m.startSync()
	}
}

func (m *Manager) peersChanged() {
	metrics.ConnectedPeers.Set(float64(len(m.peerStates)))
	m.notifier.Publish(&events.PeersChanged{Connected: len(m.peerStates)})
}

// bestPeer returns the connected peer with the highest announced chain,
// preferring the lowest ping time among equals.
func (m *Manager) bestPeer() *peer.Peer {
	var best *peer.Peer
	for p := range m.peerStates {
		if !p.Connected() {
			continue
		}
		if best == nil || betterSyncPeer(p, best) {
			best = p
		}
	}
	return best
}

func betterSyncPeer(p, than *peer.Peer) bool {
	if p.LastBlock() != than.LastBlock() {
		return p.LastBlock() > than.LastBlock()
	}
	if pingOrMax(p) != pingOrMax(than) {
		return pingOrMax(p) < pingOrMax(than)
	}
	return p.ID() < than.ID()
}

// pingOrMax ranks peers that never answered a ping last.
func pingOrMax(p *peer.Peer) time.Duration {
	ping := p.PingTime()
	if ping == 0 {
		return math.MaxInt64
	}
	return ping
}

// startSync will choose the best peer among the available candidate peers
// to download from and start syncing from it.
func (m *Manager) startSync() {
	if m.syncPeer != nil {
		return
	}

	best := m.bestPeer()
	if best == nil {
		if m.syncing {
			m.syncing = false
			log.Warnf("Sync stopped at height %d: %s", m.chain.Height(), ErrNoSyncPeer)
			m.notifier.Publish(&events.SyncFailed{Err: ErrNoSyncPeer})
		}
		return
	}

	m.syncPeer = best
	metrics.DownloadPeerHeight.Set(float64(best.LastBlock()))
	height := m.chain.Height()
	if best.LastBlock() <= height {
		log.Debugf("Download peer %s is not ahead of height %d", best, height)
		if m.syncing {
			m.finishSync()
		}
		return
	}

	if !m.syncing {
		m.syncing = true
		m.notifier.Publish(&events.SyncStarted{
			StartHeight: height,
			PeerHeight:  best.LastBlock(),
		})
	}
	log.Infof("Syncing to block height %d from peer %s", best.LastBlock(), best)

	// The previous requests of this peer may have been sent on behalf of
	// an earlier sync attempt.
	best.ResetRequestFilter()
	m.requestNextBatch(best)
}

// finishSync marks the chain as caught up with the download peer.
func (m *Manager) finishSync() {
	m.syncing = false
	height := m.chain.Height()
	log.Infof("Sync finished at height %d", height)
	m.notifier.Publish(&events.SyncFinished{Height: height})
	for p := range m.peerStates {
		p.PushMemPoolMsg()
	}
}

// fetchHeaders reports whether the next download request asks for headers
// instead of merkle blocks.
func (m *Manager) fetchHeaders() bool {
	if m.headersFirstDone || m.earliestKeyTime.IsZero() {
		return false
	}
	tip := m.chain.BestBlock()
	return tip.Header.Timestamp.Before(m.earliestKeyTime.Add(-headersOnlyMargin))
}

// requestNextBatch asks p for the blocks following the chain tip.
func (m *Manager) requestNextBatch(p *peer.Peer) {
	m.lastProgress = m.timeSource()
	locator := m.chain.BlockLocator()
	if m.fetchHeaders() {
		err := p.PushGetHeadersMsg(locator, &chainhash.Hash{})
		if err != nil {
			log.Warnf("Failed to push getheaders message to %s: %s", p, err)
		}
		return
	}

	state := m.peerStates[p]
	if state != nil && !state.filterLoaded {
		err := m.loadFilter(p)
		if err != nil {
			log.Errorf("Failed loading the bloom filter of %s: %s", p, err)
			return
		}
	}
	err := p.PushGetBlocksMsg(locator, &chainhash.Hash{})
	if err != nil {
		log.Warnf("Failed to push getblocks message to %s: %s", p, err)
	}
}

// handleStallSample replaces the download peer when it stopped delivering.
func (m *Manager) handleStallSample() {
	if !m.syncing || m.syncPeer == nil {
		return
	}
	if m.timeSource().Sub(m.lastProgress) < m.stallTimeout {
		return
	}
	log.Warnf("Download peer %s stalled at height %d, disconnecting", m.syncPeer, m.chain.Height())
	m.lastProgress = m.timeSource()
	m.syncPeer.AddBanScore(peer.BanScoreStallTimeout, "stalled download")
	m.syncPeer.Disconnect()
}

// misbehaved penalizes p for sending an invalid block or header.
func (m *Manager) misbehaved(p *peer.Peer, points uint32, err error) {
	metrics.RejectedBlocks.WithLabelValues(ruleErrorReason(err)).Inc()
	log.Warnf("Peer %s sent an invalid block: %s", p, err)
	p.AddBanScore(points, err.Error())
}

var ruleErrors = []error{
	blockchain.ErrBadMerkleRoot,
	blockchain.ErrMalformedTree,
	blockchain.ErrHighHash,
	blockchain.ErrTargetOutOfRange,
	blockchain.ErrTimeTooNew,
	blockchain.ErrUnexpectedDifficulty,
	blockchain.ErrBadCheckpoint,
	blockchain.ErrForkTooOld,
	blockchain.ErrMissingParent,
}

// ruleErrorReason returns a metrics label for err.
func ruleErrorReason(err error) string {
	for _, ruleErr := range ruleErrors {
		if errors.Is(err, ruleErr) {
			return ruleErr.Error()
		}
	}
	return "other"
}

// connectBlock processes block and applies the resulting chain change to
// the store and the wallet. It returns the processing result, or nil and
// the error when block was not connected.
func (m *Manager) connectBlock(block *blockchain.MerkleBlock) (*blockchain.ProcessResult, error) {
	result, err := m.chain.ProcessBlock(block, blockchain.BFNone)
	if err != nil {
		return nil, err
	}
	if !result.MainChain {
		return result, nil
	}

	if m.store != nil {
		err := m.store.UpdateChain(m.chainID, result.Detached, result.Attached)
		if err != nil {
			m.storageFailed(err)
			return result, nil
		}
	}

	if len(result.Detached) > 0 {
		forkHeight := result.Attached[0].Height - 1
		log.Infof("Chain reorganized at height %d: %d blocks detached, %d attached",
			forkHeight, len(result.Detached), len(result.Attached))
		err := m.wallet.SetUnconfirmedAfter(forkHeight)
		if err != nil {
			m.storageFailed(err)
			return result, nil
		}
	}
	for _, attached := range result.Attached {
		matched, err := attached.MatchedTxHashes()
		if err != nil || len(matched) == 0 {
			continue
		}
		hashes := make([]chainhash.Hash, 0, len(matched))
		for _, hash := range matched {
			hashes = append(hashes, *hash)
			m.matchedTxs.Set(*hash, blockRef{
				height:    attached.Height,
				timestamp: attached.Header.Timestamp,
			}, ttlcache.DefaultTTL)
			delete(m.publishedTxs, *hash)
		}
		err = m.wallet.SetTransactionHeights(hashes, attached.Height, attached.Header.Timestamp)
		if err != nil {
			m.storageFailed(err)
			return result, nil
		}
	}

	height := m.chain.Height()
	m.wallet.SetBestHeight(height)
	metrics.SyncHeight.Set(float64(height))
	return result, nil
}

// storageFailed stops the download after the store or the wallet failed
// to persist a change. The chain keeps what was accepted so far.
func (m *Manager) storageFailed(err error) {
	log.Errorf("Failed persisting chain update: %+v", err)
	if m.syncing {
		m.syncing = false
		m.notifier.Publish(&events.SyncFailed{Err: err})
	}
	m.syncPeer = nil
}

// handleHeadersMsg handles headers messages from the download peer during
// the headers-only part of the download.
func (m *Manager) handleHeadersMsg(hmsg *headersMsg) {
	p := hmsg.peer
	if p != m.syncPeer || !m.fetchHeaders() {
		log.Debugf("Ignoring %d unrequested headers from %s", len(hmsg.headers.Headers), p)
		return
	}
	m.lastProgress = m.timeSource()

	boundary := m.earliestKeyTime.Add(-headersOnlyMargin)
	for _, header := range hmsg.headers.Headers {
		if !header.Timestamp.Before(boundary) {
			log.Infof("Reached the earliest key time at height %d, "+
				"downloading merkle blocks", m.chain.Height())
			m.headersFirstDone = true
			break
		}

		block := blockchain.NewHeaderBlock(header, m.params)
		_, err := m.connectBlock(block)
		switch {
		case errors.Is(err, blockchain.ErrDuplicateBlock):
			continue
		case errors.Is(err, blockchain.ErrMissingParent):
			m.misbehaved(p, peer.BanScoreUnconnectedHeaders, err)
			return
		case blockchain.IsRuleError(err):
			m.misbehaved(p, peer.BanScoreInvalidHeaders, err)
			return
		case err != nil:
			log.Errorf("Failed processing header %s: %s", block.Hash, err)
			return
		}
		if m.syncPeer == nil {
			// Persisting failed.
			return
		}
		p.UpdateLastBlockHeight(block.Height)
	}

	if m.chain.Height() >= p.LastBlock() {
		m.finishSync()
		return
	}
	if !m.headersFirstDone && len(hmsg.headers.Headers) < wire.MaxBlockHeadersPerMsg {
		// The peer has nothing beyond these headers.
		log.Debugf("Peer %s sent its last headers at height %d", p, m.chain.Height())
		m.finishSync()
		return
	}
	m.requestNextBatch(p)
}

// handleMerkleBlockMsg handles merkle blocks from all peers. Blocks are only
// accepted when they were requested.
func (m *Manager) handleMerkleBlockMsg(bmsg *merkleBlockMsg) {
	p := bmsg.peer
	state, exists := m.peerStates[p]
	if !exists {
		log.Warnf("Received merkle block message from unknown peer %s", p)
		return
	}

	block := blockchain.NewMerkleBlock(bmsg.block, m.params)
	if _, requested := state.requestedBlocks[block.Hash]; !requested {
		log.Warnf("Got unrequested merkle block %s from %s", block.Hash, p)
		p.AddBanScore(peer.BanScoreUnrequestedBlock, "unrequested merkle block")
		return
	}
	delete(state.requestedBlocks, block.Hash)
	if p == m.syncPeer {
		m.lastProgress = m.timeSource()
	}

	_, err := block.MatchedTxHashes()
	if err != nil {
		m.misbehaved(p, peer.BanScoreInvalidMerkleBlock, err)
		return
	}

	result, err := m.connectBlock(block)
	switch {
	case errors.Is(err, blockchain.ErrDuplicateBlock):
		log.Tracef("Already have merkle block %s", block.Hash)
		m.rematchBlock(block)

	case errors.Is(err, blockchain.ErrMissingParent):
		// The gap is filled by asking for the blocks up to the orphan.
		log.Debugf("Merkle block %s from %s does not connect, requesting its ancestors",
			block.Hash, p)
		if !m.syncing {
			p.ResetRequestFilter()
			err := p.PushGetBlocksMsg(m.chain.BlockLocator(), &block.Hash)
			if err != nil {
				log.Warnf("Failed to push getblocks message to %s: %s", p, err)
			}
		}
		return

	case blockchain.IsRuleError(err):
		m.misbehaved(p, peer.BanScoreInvalidMerkleBlock, err)
		return

	case err != nil:
		log.Errorf("Failed processing merkle block %s: %s", block.Hash, err)
		return

	default:
		metrics.MerkleBlocksProcessed.Inc()
		if result.MainChain {
			p.UpdateLastBlockHeight(block.Height)
			log.Debugf("Accepted merkle block %s at height %d", block.Hash, block.Height)
		}
	}

	if p != m.syncPeer || len(state.requestedBlocks) > 0 {
		return
	}
	if !m.syncing {
		if m.chain.Height() < p.LastBlock() {
			m.syncing = true
			m.notifier.Publish(&events.SyncStarted{
				StartHeight: m.chain.Height(),
				PeerHeight:  p.LastBlock(),
			})
			m.requestNextBatch(p)
		}
		return
	}
	if m.chain.Height() >= p.LastBlock() {
		m.finishSync()
		return
	}
	m.requestNextBatch(p)
}

// handleInvMsg handles inv messages from all peers. Blocks announced by the
// download peer, or by anyone once the chain is caught up, are requested as
// filtered blocks. Unknown transactions are requested as well.
func (m *Manager) handleInvMsg(imsg *invMsg) {
	p := imsg.peer
	state, exists := m.peerStates[p]
	if !exists {
		log.Warnf("Received inv message from unknown peer %s", p)
		return
	}

	var requests []*wire.InvVect
	for _, iv := range imsg.inv.InvList {
		p.AddKnownInventory(iv)

		switch iv.Type {
		case wire.InvTypeBlock:
			if m.syncing && p != m.syncPeer {
				continue
			}
			if m.fetchHeaders() || m.chain.HaveBlock(&iv.Hash) || m.blockRequested(&iv.Hash) {
				continue
			}
			state.requestedBlocks[iv.Hash] = struct{}{}
			requests = append(requests, wire.NewInvVect(wire.InvTypeFilteredBlock, &iv.Hash))

		case wire.InvTypeTx:
			m.recordRelay(p, &iv.Hash)
			if _, known := m.wallet.Transaction(&iv.Hash); known {
				continue
			}
			if _, requested := state.requestedTxs[iv.Hash]; requested {
				continue
			}
			state.requestedTxs[iv.Hash] = struct{}{}
			requests = append(requests, wire.NewInvVect(wire.InvTypeTx, &iv.Hash))
		}
	}
	if len(requests) == 0 {
		return
	}
	if !state.filterLoaded {
		err := m.loadFilter(p)
		if err != nil {
			log.Errorf("Failed loading the bloom filter of %s: %s", p, err)
			return
		}
	}
	if p == m.syncPeer {
		m.lastProgress = m.timeSource()
	}
	p.PushGetDataMsg(requests)
}

// blockRequested reports whether any peer was asked for the block.
func (m *Manager) blockRequested(hash *chainhash.Hash) bool {
	for _, state := range m.peerStates {
		if _, requested := state.requestedBlocks[*hash]; requested {
			return true
		}
	}
	return false
}

// handleTxMsg registers transactions relayed by peers with the wallet.
// Transactions proven by a merkle block are registered at that block's
// height.
func (m *Manager) handleTxMsg(tmsg *txMsg) {
	p := tmsg.peer
	state, exists := m.peerStates[p]
	if !exists {
		log.Warnf("Received tx message from unknown peer %s", p)
		return
	}

	tx := tmsg.tx
	hash := tx.TxHash()
	_, requested := state.requestedTxs[hash]
	delete(state.requestedTxs, hash)
	matchedItem := m.matchedTxs.Get(hash)
	if !requested && matchedItem == nil {
		log.Debugf("Got unrequested transaction %s from %s", hash, p)
		p.AddBanScore(peer.BanScoreUnrequestedTx, "unrequested transaction")
		return
	}
	m.recordRelay(p, &hash)

	var registered bool
	var err error
	if matchedItem != nil {
		ref := matchedItem.Value()
		registered, err = m.wallet.RegisterTransactionAt(tx, ref.height, ref.timestamp)
	} else {
		registered, err = m.wallet.RegisterTransaction(tx)
	}
	if err != nil {
		log.Errorf("Failed registering transaction %s: %s", hash, err)
		return
	}
	if !registered {
		log.Tracef("Transaction %s from %s is a filter false positive", hash, p)
		return
	}

	generationChanged := m.filterGeneration != m.wallet.FilterGeneration()
	m.filterElements += uint32(len(tx.TxIn) + len(tx.TxOut))
	m.refreshFilterIfNeeded()
	if generationChanged && matchedItem != nil && m.syncing && p == m.syncPeer {
		m.rerequestBlocksFrom(p, matchedItem.Value().height)
	}
}

// rerequestBlocksFrom asks p again for the merkle blocks above height. The
// blocks were filtered before the wallet derived its newest addresses and
// may miss transactions paying to them.
func (m *Manager) rerequestBlocksFrom(p *peer.Peer, height int32) {
	state := m.peerStates[p]
	var requests []*wire.InvVect
	for h := height + 1; h <= m.chain.Height(); h++ {
		block, ok := m.chain.BlockByHeight(h)
		if !ok {
			break
		}
		if block.IsHeaderOnly() {
			continue
		}
		if _, requested := state.requestedBlocks[block.Hash]; requested {
			continue
		}
		state.requestedBlocks[block.Hash] = struct{}{}
		requests = append(requests, wire.NewInvVect(wire.InvTypeFilteredBlock, &block.Hash))
	}
	if len(requests) == 0 {
		return
	}
	log.Infof("Requesting %d blocks from %s again with the refreshed filter", len(requests), p)
	p.ResetRequestFilter()
	p.PushGetDataMsg(requests)
}

// rematchBlock applies the matches of a main chain block received again,
// typically after rerequestBlocksFrom.
func (m *Manager) rematchBlock(block *blockchain.MerkleBlock) {
	known, ok := m.chain.BlockByHash(&block.Hash)
	if !ok || !m.chain.MainChainHasBlock(&block.Hash) {
		return
	}
	matched, err := block.MatchedTxHashes()
	if err != nil || len(matched) == 0 {
		return
	}
	hashes := make([]chainhash.Hash, 0, len(matched))
	for _, hash := range matched {
		hashes = append(hashes, *hash)
		m.matchedTxs.Set(*hash, blockRef{
			height:    known.Height,
			timestamp: known.Header.Timestamp,
		}, ttlcache.DefaultTTL)
	}
	err = m.wallet.SetTransactionHeights(hashes, known.Height, known.Header.Timestamp)
	if err != nil {
		m.storageFailed(err)
	}
}

// handleNotFoundMsg forgets requests the peer could not serve.
func (m *Manager) handleNotFoundMsg(nmsg *notFoundMsg) {
	p := nmsg.peer
	state, exists := m.peerStates[p]
	if !exists {
		return
	}
	for _, iv := range nmsg.notFound.InvList {
		switch iv.Type {
		case wire.InvTypeFilteredBlock, wire.InvTypeBlock:
			delete(state.requestedBlocks, iv.Hash)
		case wire.InvTypeTx:
			delete(state.requestedTxs, iv.Hash)
		}
	}
	if p == m.syncPeer && m.syncing && len(state.requestedBlocks) == 0 {
		p.ResetRequestFilter()
		m.requestNextBatch(p)
	}
}
