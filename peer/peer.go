// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"bytes"
	"container/list"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"

	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/util/random"
	"github.com/dashpay/dashspv/wire"
)

const (
	// MaxProtocolVersion is the max protocol version the peer supports.
	MaxProtocolVersion = wire.ProtocolVersion

	// minAcceptableProtocolVersion is the lowest protocol version that a
	// connected peer may support.
	minAcceptableProtocolVersion = wire.MinPeerProtocolVersion

	// requiredServices are the services a remote peer must advertise to be
	// useful to an SPV client.
	requiredServices = wire.SFNodeNetwork | wire.SFNodeBloom

	// outputBufferSize is the number of elements the output channels use.
	outputBufferSize = 50

	// maxKnownInventory is the maximum number of items to keep in the known
	// inventory cache.
	maxKnownInventory = 1000

	// DefaultHandshakeTimeout is the time a connection has to complete the
	// version/verack exchange.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultPingInterval is the interval of time to wait in between sending
	// ping messages.
	DefaultPingInterval = 30 * time.Second

	// DefaultPingTimeout is how long a ping may stay unanswered before the
	// peer is disconnected.
	DefaultPingTimeout = 30 * time.Second

	// idleTimeout is the duration of inactivity before we time out a peer.
	idleTimeout = 5 * time.Minute
)

// Connection states of a peer.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

const (
	eventConnect    = "connect"
	eventHandshake  = "handshake"
	eventDisconnect = "disconnect"
)

var (
	// ErrTimeout is returned, wrapped, when connecting or the handshake
	// take longer than allowed, and is reported as the disconnect reason
	// of peers that stopped answering pings.
	ErrTimeout = errors.New("peer timed out")

	// ErrSelfConnection is returned when the remote peer echoes one of the
	// nonces we sent.
	ErrSelfConnection = errors.New("disconnecting peer connected to self")

	// ErrBanThreshold is the disconnect reason of peers whose ban score
	// reached the threshold.
	ErrBanThreshold = errors.New("ban score threshold reached")

	// ErrProtocolViolation is returned when the remote peer breaks the
	// handshake rules.
	ErrProtocolViolation = errors.New("protocol violation")
)

var (
	// nodeCount is the total number of peer connections made since startup
	// and is used to assign an id to a peer.
	nodeCount int32

	// sentNonces houses the unique nonces that are generated when pushing
	// version messages that are used to detect self connections.
	sentNonces = mustNewCache[uint64](50)

	// allowSelfConns is only used to allow the tests to bypass the self
	// connection detecting and disconnect logic since they intentionally
	// do so for testing purposes.
	allowSelfConns bool
)

func mustNewCache[K comparable](size int) *lru.Cache[K, struct{}] {
	cache, err := lru.New[K, struct{}](size)
	if err != nil {
		panic(err)
	}
	return cache
}

// MessageListeners defines callback function pointers to invoke with message
// listeners for a peer. Any listener which is not set to a concrete callback
// during peer initialization is ignored. Execution of multiple message
// listeners occurs serially, so one callback blocks the execution of the next.
//
// NOTE: Unless otherwise documented, these listeners must NOT directly call any
// blocking calls (such as WaitForDisconnect) on the peer instance since the
// input handler goroutine blocks until the callback has completed. Doing so
// will result in a deadlock.
type MessageListeners struct {
	// OnVersion is invoked when a peer receives a version message during
	// the handshake.
	OnVersion func(p *Peer, msg *wire.MsgVersion)

	// OnVerAck is invoked when a peer receives a verack message.
	OnVerAck func(p *Peer, msg *wire.MsgVerAck)

	// OnAddr is invoked when a peer receives an addr message.
	OnAddr func(p *Peer, msg *wire.MsgAddr)

	// OnPing is invoked when a peer receives a ping message.
	OnPing func(p *Peer, msg *wire.MsgPing)

	// OnPong is invoked when a peer receives a pong message.
	OnPong func(p *Peer, msg *wire.MsgPong)

	// OnInv is invoked when a peer receives an inv message.
	OnInv func(p *Peer, msg *wire.MsgInv)

	// OnGetData is invoked when a peer receives a getdata message.
	OnGetData func(p *Peer, msg *wire.MsgGetData)

	// OnNotFound is invoked when a peer receives a notfound message.
	OnNotFound func(p *Peer, msg *wire.MsgNotFound)

	// OnTx is invoked when a peer receives a tx message.
	OnTx func(p *Peer, msg *wire.MsgTx)

	// OnHeaders is invoked when a peer receives a headers message.
	OnHeaders func(p *Peer, msg *wire.MsgHeaders)

	// OnMerkleBlock is invoked when a peer receives a merkleblock message.
	OnMerkleBlock func(p *Peer, msg *wire.MsgMerkleBlock)

	// OnReject is invoked when a peer receives a reject message.
	OnReject func(p *Peer, msg *wire.MsgReject)

	// OnRead is invoked when a peer receives a message. It consists of the
	// number of bytes read, the message, and whether or not an error in the
	// read occurred. Typically, callers will opt to use the callbacks for
	// the specific message types, however this can be useful for
	// circumstances such as keeping track of server-wide byte counts.
	OnRead func(p *Peer, bytesRead int, msg wire.Message, err error)

	// OnWrite is invoked when we write a message to a peer. It consists of
	// the number of bytes written, the message, and whether or not an error
	// in the write occurred.
	OnWrite func(p *Peer, bytesWritten int, msg wire.Message, err error)

	// OnMisbehavior is invoked every time the ban score of the peer
	// increases. score is the total after the increase.
	OnMisbehavior func(p *Peer, score uint32, reason string)
}

// Config is the struct to hold configuration options useful to Peer.
type Config struct {
	// Params identifies which network the peer is associated with. It is
	// highly recommended to specify this field, however it can be omitted
	// in which case the mainnet parameters are used.
	Params *chaincfg.Params

	// BestHeight specifies a callback which provides the height of the
	// local chain. It is advertised in the version message.
	BestHeight func() int32

	// UserAgentName specifies the user agent name to advertise. It is
	// highly recommended to specify this value.
	UserAgentName string

	// UserAgentVersion specifies the user agent version to advertise. It
	// is highly recommended to specify this value and that it follows the
	// form "major.minor.revision" e.g. "2.6.41".
	UserAgentVersion string

	// UserAgentComments specify the user agent comments to advertise. These
	// values must not contain the illegal characters specified in BIP 14:
	// '/', ':', '(', ')'.
	UserAgentComments []string

	// Services specifies which services to advertise as supported by the
	// local peer. An SPV client advertises none.
	Services wire.ServiceFlag

	// ProtocolVersion specifies the maximum protocol version to use and
	// advertise. This field can be omitted in which case
	// peer.MaxProtocolVersion will be used.
	ProtocolVersion uint32

	// DisableRelayTx specifies if the remote peer should be informed to
	// not send inv messages for transactions until a filter is loaded.
	DisableRelayTx bool

	// Dial opens the connection in Connect. It defaults to a net.Dialer and
	// is replaced to route through a proxy.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)

	// HandshakeTimeout bounds the version/verack exchange. Zero means
	// DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// PingInterval is the interval between pings. Zero means
	// DefaultPingInterval.
	PingInterval time.Duration

	// PingTimeout is how long a ping may stay unanswered. Zero means
	// DefaultPingTimeout.
	PingTimeout time.Duration

	// BanThreshold is the ban score at which the peer is disconnected.
	// Zero means DefaultBanThreshold.
	BanThreshold uint32

	// Listeners houses callback functions to be invoked on receiving peer
	// messages.
	Listeners MessageListeners
}

// outMsg is used to house a message to be sent along with a channel to signal
// when the message has been sent (or won't be sent due to things such as
// shutdown)
type outMsg struct {
	msg      wire.Message
	doneChan chan<- struct{}
}

// StatsSnap is a snapshot of peer stats at a point in time.
type StatsSnap struct {
	ID             int32
	Addr           string
	State          string
	Services       wire.ServiceFlag
	LastSend       time.Time
	LastRecv       time.Time
	BytesSent      uint64
	BytesRecv      uint64
	ConnTime       time.Time
	TimeOffset     int64
	Version        uint32
	UserAgent      string
	StartingHeight int32
	LastBlock      int32
	LastPingTime   time.Time
	LastPingMicros int64
	BanScore       uint32
}

// Peer provides a basic concurrent safe dash peer for handling outbound
// connections of an SPV client. It handles the handshake, keep-alive, ban
// scoring and message framing, and hands every decoded message to the
// configured listeners.
//
// The outbound Push* functions are fire-and-forget: they queue the message
// and failures surface as a disconnect.
type Peer struct {
	// The following variables must only be used atomically.
	bytesReceived uint64
	bytesSent     uint64
	lastRecv      int64
	lastSend      int64
	disconnect    int32
	banScore      uint32
	lastBlock     int32

	conn net.Conn

	// These fields are set at creation time and never modified, so they
	// are safe to read from concurrently without a mutex.
	addr  string
	cfg   Config
	state *fsm.FSM

	flagsMtx            sync.Mutex // protects the peer flags below
	na                  *wire.NetAddress
	id                  int32
	userAgent           string
	services            wire.ServiceFlag
	versionKnown        bool
	advertisedProtoVer  uint32 // protocol version advertised by remote
	protocolVersion     uint32 // negotiated protocol version
	verAckReceived      bool
	disconnectReason    error
	prevGetHeadersBegin *chainhash.Hash
	prevGetHeadersStop  *chainhash.Hash
	prevGetBlocksBegin  *chainhash.Hash
	prevGetBlocksStop   *chainhash.Hash

	knownInventory *lru.Cache[wire.InvVect, struct{}]

	// These fields keep track of statistics for the peer and are protected
	// by the statsMtx mutex.
	statsMtx       sync.RWMutex
	timeOffset     int64
	timeConnected  time.Time
	startingHeight int32
	lastPingNonce  uint64    // Set to nonce if we have a pending ping.
	lastPingTime   time.Time // Time we sent last ping.
	lastPingMicros int64     // Time for last ping to return.

	outputQueue   chan outMsg
	sendQueue     chan outMsg
	sendDoneQueue chan struct{}
	inQuit        chan struct{}
	queueQuit     chan struct{}
	outQuit       chan struct{}
	quit          chan struct{}
}

// String returns the peer's address and directionality as a human-readable
// string.
//
// This function is safe for concurrent access.
func (p *Peer) String() string {
	return fmt.Sprintf("%s (outbound)", p.addr)
}

// AddKnownInventory adds the passed inventory to the cache of known inventory
// for the peer.
//
// This function is safe for concurrent access.
func (p *Peer) AddKnownInventory(invVect *wire.InvVect) {
	p.knownInventory.Add(*invVect, struct{}{})
}

// HasKnownInventory returns whether the peer announced or was sent the
// passed inventory.
//
// This function is safe for concurrent access.
func (p *Peer) HasKnownInventory(invVect *wire.InvVect) bool {
	return p.knownInventory.Contains(*invVect)
}

// StatsSnapshot returns a snapshot of the current peer flags and statistics.
//
// This function is safe for concurrent access.
func (p *Peer) StatsSnapshot() *StatsSnap {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	p.flagsMtx.Lock()
	id := p.id
	addr := p.addr
	userAgent := p.userAgent
	services := p.services
	protocolVersion := p.advertisedProtoVer
	p.flagsMtx.Unlock()

	// Get a copy of all relevant flags and stats.
	return &StatsSnap{
		ID:             id,
		Addr:           addr,
		State:          p.State(),
		UserAgent:      userAgent,
		Services:       services,
		LastSend:       p.LastSend(),
		LastRecv:       p.LastRecv(),
		BytesSent:      p.BytesSent(),
		BytesRecv:      p.BytesReceived(),
		ConnTime:       p.timeConnected,
		TimeOffset:     p.timeOffset,
		Version:        protocolVersion,
		StartingHeight: p.startingHeight,
		LastBlock:      p.LastBlock(),
		LastPingTime:   p.lastPingTime,
		LastPingMicros: p.lastPingMicros,
		BanScore:       p.BanScore(),
	}
}

// ID returns the peer id.
//
// This function is safe for concurrent access.
func (p *Peer) ID() int32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.id
}

// NA returns the peer network address.
//
// This function is safe for concurrent access.
func (p *Peer) NA() *wire.NetAddress {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.na
}

// Addr returns the peer address.
//
// This function is safe for concurrent access.
func (p *Peer) Addr() string {
	// The address doesn't change after initialization, therefore it is not
	// protected by a mutex.
	return p.addr
}

// Services returns the services flag of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) Services() wire.ServiceFlag {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.services
}

// UserAgent returns the user agent of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) UserAgent() string {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.userAgent
}

// LastPingNonce returns the last ping nonce of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastPingNonce() uint64 {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.lastPingNonce
}

// LastPingTime returns the last ping time of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastPingTime() time.Time {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.lastPingTime
}

// LastPingMicros returns the last ping micros of the remote peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastPingMicros() int64 {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.lastPingMicros
}

// PingTime returns the round trip time of the last answered ping. Peers
// that never answered a ping report the handshake timeout so they sort
// after every measured peer.
//
// This function is safe for concurrent access.
func (p *Peer) PingTime() time.Duration {
	micros := p.LastPingMicros()
	if micros == 0 {
		return p.cfg.HandshakeTimeout
	}
	return time.Duration(micros) * time.Microsecond
}

// VersionKnown returns the whether or not the version of a peer is known
// locally.
//
// This function is safe for concurrent access.
func (p *Peer) VersionKnown() bool {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.versionKnown
}

// VerAckReceived returns whether or not a verack message was received by the
// peer.
//
// This function is safe for concurrent access.
func (p *Peer) VerAckReceived() bool {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.verAckReceived
}

// ProtocolVersion returns the negotiated peer protocol version.
//
// This function is safe for concurrent access.
func (p *Peer) ProtocolVersion() uint32 {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.protocolVersion
}

// StartingHeight returns the last known height the peer reported during the
// initial negotiation phase.
//
// This function is safe for concurrent access.
func (p *Peer) StartingHeight() int32 {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.startingHeight
}

// LastBlock returns the last block height known for the peer. It starts at
// the height advertised in the version message and is raised by
// UpdateLastBlockHeight.
//
// This function is safe for concurrent access.
func (p *Peer) LastBlock() int32 {
	return atomic.LoadInt32(&p.lastBlock)
}

// UpdateLastBlockHeight raises the last known block height of the peer.
// Lower heights are ignored.
//
// This function is safe for concurrent access.
func (p *Peer) UpdateLastBlockHeight(newHeight int32) {
	for {
		current := atomic.LoadInt32(&p.lastBlock)
		if newHeight <= current {
			return
		}
		if atomic.CompareAndSwapInt32(&p.lastBlock, current, newHeight) {
			log.Tracef("Updating last block height of peer %s from %d to %d",
				p, current, newHeight)
			return
		}
	}
}

// LastSend returns the last send time of the peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastSend() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastSend), 0)
}

// LastRecv returns the last recv time of the peer.
//
// This function is safe for concurrent access.
func (p *Peer) LastRecv() time.Time {
	return time.Unix(atomic.LoadInt64(&p.lastRecv), 0)
}

// BytesSent returns the total number of bytes sent by the peer.
//
// This function is safe for concurrent access.
func (p *Peer) BytesSent() uint64 {
	return atomic.LoadUint64(&p.bytesSent)
}

// BytesReceived returns the total number of bytes received by the peer.
//
// This function is safe for concurrent access.
func (p *Peer) BytesReceived() uint64 {
	return atomic.LoadUint64(&p.bytesReceived)
}

// TimeConnected returns the time at which the peer connected.
//
// This function is safe for concurrent access.
func (p *Peer) TimeConnected() time.Time {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.timeConnected
}

// TimeOffset returns the number of seconds the local time was offset from the
// time the peer reported during the initial negotiation phase. Negative values
// indicate the remote peer's time is before the local time.
//
// This function is safe for concurrent access.
func (p *Peer) TimeOffset() int64 {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()

	return p.timeOffset
}

// State returns the connection state of the peer: StateDisconnected,
// StateConnecting or StateConnected.
//
// This function is safe for concurrent access.
func (p *Peer) State() string {
	return p.state.Current()
}

// BanScore returns the current ban score of the peer.
//
// This function is safe for concurrent access.
func (p *Peer) BanScore() uint32 {
	return atomic.LoadUint32(&p.banScore)
}

// Misbehaving returns whether the peer reached its ban threshold.
//
// This function is safe for concurrent access.
func (p *Peer) Misbehaving() bool {
	return p.BanScore() >= p.cfg.BanThreshold
}

// DisconnectReason returns the error that caused the peer to disconnect, or
// nil if it was disconnected on request or is still connected.
//
// This function is safe for concurrent access.
func (p *Peer) DisconnectReason() error {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	return p.disconnectReason
}

// AddBanScore increases the ban score of the peer by points. The peer is
// disconnected once the score reaches the ban threshold.
//
// This function is safe for concurrent access.
func (p *Peer) AddBanScore(points uint32, reason string) {
	if points == 0 {
		return
	}
	score := atomic.AddUint32(&p.banScore, points)
	log.Debugf("Misbehaving peer %s: %s -- ban score increased to %d",
		p, reason, score)
	if p.cfg.Listeners.OnMisbehavior != nil {
		p.cfg.Listeners.OnMisbehavior(p, score, reason)
	}

	threshold := p.cfg.BanThreshold
	if score >= threshold && score-points < threshold {
		log.Warnf("Misbehaving peer %s -- ban score %d reached threshold %d, "+
			"disconnecting", p, score, threshold)
		p.disconnectWithReason(errors.Wrap(ErrBanThreshold, reason))
	}
}

// localVersionMsg creates a version message that can be used to send to the
// remote peer.
func (p *Peer) localVersionMsg() (*wire.MsgVersion, error) {
	var blockNum int32
	if p.cfg.BestHeight != nil {
		blockNum = p.cfg.BestHeight()
	}

	theirNA := p.NA()
	ourNA := &wire.NetAddress{
		Services: p.cfg.Services,
		IP:       net.IPv4zero,
	}

	// Generate a unique nonce for this peer so self connections can be
	// detected. This is accomplished by adding it to a size-limited map of
	// recently seen nonces.
	nonce, err := random.Uint64()
	if err != nil {
		return nil, err
	}
	sentNonces.Add(nonce, struct{}{})

	// Version message.
	msg := wire.NewMsgVersion(ourNA, theirNA, nonce, blockNum)
	if p.cfg.UserAgentName != "" {
		err := msg.AddUserAgent(p.cfg.UserAgentName, p.cfg.UserAgentVersion,
			p.cfg.UserAgentComments...)
		if err != nil {
			return nil, err
		}
	}

	msg.ProtocolVersion = int32(p.cfg.ProtocolVersion)
	msg.Services = p.cfg.Services
	msg.DisableRelayTx = p.cfg.DisableRelayTx

	return msg, nil
}

// PushFilterLoad sends a filterload message so the remote peer only relays
// transactions and merkle blocks matching the filter.
//
// This function is safe for concurrent access.
func (p *Peer) PushFilterLoad(msg *wire.MsgFilterLoad) {
	p.QueueMessage(msg, nil)
}

// PushGetHeadersMsg sends a getheaders message for the provided block locator
// and stop hash. It will ignore back-to-back duplicate requests.
//
// This function is safe for concurrent access.
func (p *Peer) PushGetHeadersMsg(locator []*chainhash.Hash, stopHash *chainhash.Hash) error {
	// Extract the begin hash from the block locator, if one was specified,
	// to use for filtering duplicate getheaders requests.
	var beginHash *chainhash.Hash
	if len(locator) > 0 {
		beginHash = locator[0]
	}

	// Filter duplicate getheaders requests.
	p.flagsMtx.Lock()
	isDuplicate := p.prevGetHeadersStop != nil && p.prevGetHeadersBegin != nil &&
		beginHash != nil && stopHash.IsEqual(p.prevGetHeadersStop) &&
		beginHash.IsEqual(p.prevGetHeadersBegin)
	p.flagsMtx.Unlock()

	if isDuplicate {
		log.Tracef("Filtering duplicate [getheaders] with begin hash %s",
			beginHash)
		return nil
	}

	// Construct the getheaders request and queue it to be sent.
	msg := wire.NewMsgGetHeaders()
	msg.HashStop = *stopHash
	for _, hash := range locator {
		err := msg.AddBlockLocatorHash(hash)
		if err != nil {
			return err
		}
	}
	p.QueueMessage(msg, nil)

	// Update the previous getheaders request information for filtering
	// duplicates.
	p.flagsMtx.Lock()
	p.prevGetHeadersBegin = beginHash
	p.prevGetHeadersStop = stopHash
	p.flagsMtx.Unlock()
	return nil
}

// PushGetBlocksMsg sends a getblocks message for the provided block locator
// and stop hash. It will ignore back-to-back duplicate requests.
//
// This function is safe for concurrent access.
func (p *Peer) PushGetBlocksMsg(locator []*chainhash.Hash, stopHash *chainhash.Hash) error {
	var beginHash *chainhash.Hash
	if len(locator) > 0 {
		beginHash = locator[0]
	}

	p.flagsMtx.Lock()
	isDuplicate := p.prevGetBlocksStop != nil && p.prevGetBlocksBegin != nil &&
		beginHash != nil && stopHash.IsEqual(p.prevGetBlocksStop) &&
		beginHash.IsEqual(p.prevGetBlocksBegin)
	p.flagsMtx.Unlock()

	if isDuplicate {
		log.Tracef("Filtering duplicate [getblocks] with begin hash %s",
			beginHash)
		return nil
	}

	msg := wire.NewMsgGetBlocks(stopHash)
	for _, hash := range locator {
		err := msg.AddBlockLocatorHash(hash)
		if err != nil {
			return err
		}
	}
	p.QueueMessage(msg, nil)

	p.flagsMtx.Lock()
	p.prevGetBlocksBegin = beginHash
	p.prevGetBlocksStop = stopHash
	p.flagsMtx.Unlock()
	return nil
}

// ResetRequestFilter forgets the previous getheaders and getblocks requests
// so the next one is sent even if it repeats the last. It is used when a
// download is restarted on the same peer.
//
// This function is safe for concurrent access.
func (p *Peer) ResetRequestFilter() {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()

	p.prevGetHeadersBegin = nil
	p.prevGetHeadersStop = nil
	p.prevGetBlocksBegin = nil
	p.prevGetBlocksStop = nil
}

// PushGetDataMsg requests the passed inventory, splitting it over as many
// getdata messages as needed.
//
// This function is safe for concurrent access.
func (p *Peer) PushGetDataMsg(invList []*wire.InvVect) {
	msg := wire.NewMsgGetData()
	for _, iv := range invList {
		if len(msg.InvList) == wire.MaxInvPerMsg {
			p.QueueMessage(msg, nil)
			msg = wire.NewMsgGetData()
		}
		msg.AddInvVect(iv)
	}
	if len(msg.InvList) > 0 {
		p.QueueMessage(msg, nil)
	}
}

// PushInvMsg announces the passed inventory to the peer, skipping items the
// peer is already known to have.
//
// This function is safe for concurrent access.
func (p *Peer) PushInvMsg(invList []*wire.InvVect) {
	msg := wire.NewMsgInv()
	for _, iv := range invList {
		if p.HasKnownInventory(iv) {
			continue
		}
		if len(msg.InvList) == wire.MaxInvPerMsg {
			p.QueueMessage(msg, nil)
			msg = wire.NewMsgInv()
		}
		msg.AddInvVect(iv)
		p.AddKnownInventory(iv)
	}
	if len(msg.InvList) > 0 {
		p.QueueMessage(msg, nil)
	}
}

// PushMemPoolMsg asks the peer for the transactions in its mempool that
// match the loaded filter.
//
// This function is safe for concurrent access.
func (p *Peer) PushMemPoolMsg() {
	p.QueueMessage(wire.NewMsgMemPool(), nil)
}

// PushGetAddrMsg asks the peer for addresses of other nodes.
//
// This function is safe for concurrent access.
func (p *Peer) PushGetAddrMsg() {
	p.QueueMessage(wire.NewMsgGetAddr(), nil)
}

// PushRejectMsg sends a reject message for the provided command, reject code,
// reject reason, and hash. The hash will only be used when the command is a tx
// or block and should be nil in other cases. The wait parameter will cause the
// function to block until the reject message has actually been sent.
//
// This function is safe for concurrent access.
func (p *Peer) PushRejectMsg(command string, code wire.RejectCode, reason string, hash *chainhash.Hash, wait bool) {
	msg := wire.NewMsgReject(command, code, reason)
	if command == wire.CmdTx || command == wire.CmdBlock {
		if hash == nil {
			log.Warnf("Sending a reject message for command "+
				"type %s which should have specified a hash "+
				"but does not", command)
			hash = &chainhash.Hash{}
		}
		msg.Hash = *hash
	}

	// Send the message without waiting if the caller has not requested it.
	if !wait {
		p.QueueMessage(msg, nil)
		return
	}

	// Send the message and block until it has been sent before returning.
	doneChan := make(chan struct{}, 1)
	p.QueueMessage(msg, doneChan)
	<-doneChan
}

// handleRemoteVersionMsg is invoked when a version message is received
// from the remote peer. It will return an error if the remote peer's version
// is not compatible with ours.
func (p *Peer) handleRemoteVersionMsg(msg *wire.MsgVersion) error {
	// Detect self connections.
	if !allowSelfConns && sentNonces.Contains(msg.Nonce) {
		return ErrSelfConnection
	}

	// Notify and disconnect clients that have a protocol version that is
	// too old.
	if msg.ProtocolVersion < int32(minAcceptableProtocolVersion) {
		reason := fmt.Sprintf("protocol version must be %d or greater",
			minAcceptableProtocolVersion)
		p.PushRejectMsg(msg.Command(), wire.RejectObsolete, reason, nil, false)
		return errors.Wrap(ErrProtocolViolation, reason)
	}

	if !msg.HasService(requiredServices) {
		return errors.Wrapf(ErrProtocolViolation, "peer does not offer "+
			"the required services %s", requiredServices)
	}

	// Updating a bunch of stats including block based stats, and the
	// peer's time offset.
	p.statsMtx.Lock()
	p.startingHeight = msg.LastBlock
	p.timeOffset = msg.Timestamp.Unix() - time.Now().Unix()
	p.statsMtx.Unlock()
	atomic.StoreInt32(&p.lastBlock, msg.LastBlock)

	// Negotiate the protocol version.
	p.flagsMtx.Lock()
	p.advertisedProtoVer = uint32(msg.ProtocolVersion)
	p.protocolVersion = minUint32(p.protocolVersion, p.advertisedProtoVer)
	p.versionKnown = true
	p.services = msg.Services
	p.userAgent = msg.UserAgent
	p.flagsMtx.Unlock()
	log.Debugf("Negotiated protocol version %d for peer %s",
		p.ProtocolVersion(), p)

	return nil
}

// handlePingMsg is invoked when a peer receives a ping message. It replies
// with a pong carrying the same nonce.
func (p *Peer) handlePingMsg(msg *wire.MsgPing) {
	p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
}

// handlePongMsg is invoked when a peer receives a pong message. It
// updates the ping statistics as required for recent clients.
func (p *Peer) handlePongMsg(msg *wire.MsgPong) {
	p.statsMtx.Lock()
	defer p.statsMtx.Unlock()
	if p.lastPingNonce != 0 && msg.Nonce == p.lastPingNonce {
		p.lastPingMicros = time.Since(p.lastPingTime).Nanoseconds()
		p.lastPingMicros /= 1000 // convert to usec.
		p.lastPingNonce = 0
	}
}

// readMessage reads the next dash message from the peer with logging.
func (p *Peer) readMessage() (wire.Message, []byte, error) {
	n, msg, buf, err := wire.ReadMessageN(p.conn,
		p.ProtocolVersion(), p.cfg.Params.Net)
	atomic.AddUint64(&p.bytesReceived, uint64(n))
	if p.cfg.Listeners.OnRead != nil {
		p.cfg.Listeners.OnRead(p, n, msg, err)
	}
	if err != nil {
		return nil, nil, err
	}

	// Use closures to log expensive operations so they are only run when
	// the logging level requires it.
	logLevel := messageLogLevel(msg)
	log.Writef(logLevel, "%s", logger.NewLogClosure(func() string {
		// Debug summary of message.
		summary := messageSummary(msg)
		if len(summary) > 0 {
			summary = " (" + summary + ")"
		}
		return fmt.Sprintf("Received %s%s from %s",
			msg.Command(), summary, p)
	}))
	log.Tracef("%s", logger.NewLogClosure(func() string {
		return spew.Sdump(msg)
	}))

	return msg, buf, nil
}

// writeMessage sends a dash message to the peer with logging.
func (p *Peer) writeMessage(msg wire.Message) error {
	// Don't do anything if we're disconnecting.
	if atomic.LoadInt32(&p.disconnect) != 0 {
		return nil
	}

	// Use closures to log expensive operations so they are only run when
	// the logging level requires it.
	logLevel := messageLogLevel(msg)
	log.Writef(logLevel, "%s", logger.NewLogClosure(func() string {
		// Debug summary of message.
		summary := messageSummary(msg)
		if len(summary) > 0 {
			summary = " (" + summary + ")"
		}
		return fmt.Sprintf("Sending %s%s to %s", msg.Command(),
			summary, p)
	}))
	log.Tracef("%s", logger.NewLogClosure(func() string {
		var buf bytes.Buffer
		_, err := wire.WriteMessageN(&buf, msg, p.ProtocolVersion(),
			p.cfg.Params.Net)
		if err != nil {
			return err.Error()
		}
		return spew.Sdump(buf.Bytes())
	}))

	// Write the message to the peer.
	n, err := wire.WriteMessageN(p.conn, msg,
		p.ProtocolVersion(), p.cfg.Params.Net)
	atomic.AddUint64(&p.bytesSent, uint64(n))
	if p.cfg.Listeners.OnWrite != nil {
		p.cfg.Listeners.OnWrite(p, n, msg, err)
	}
	return err
}

// isRecoverableReadError returns whether the stream is still aligned on a
// message boundary after err, so reading can go on with the next message.
func isRecoverableReadError(err error) bool {
	return errors.Is(err, wire.ErrChecksumMismatch) ||
		errors.Is(err, wire.ErrTruncatedInput)
}

// shouldHandleReadError returns whether or not the passed error, which is
// expected to have come from reading from the remote peer in the inHandler,
// should be logged and scored.
func (p *Peer) shouldHandleReadError(err error) bool {
	// No logging when the peer is being forcibly disconnected.
	if atomic.LoadInt32(&p.disconnect) != 0 {
		return false
	}

	// No logging when the remote peer has been disconnected.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) {
		return false
	}
	var opErr *net.OpError
	if ok := errors.As(err, &opErr); ok && !opErr.Timeout() {
		return false
	}

	return true
}

// inHandler handles all incoming messages for the peer. It must be run as a
// goroutine.
func (p *Peer) inHandler() {
	// The timer is stopped when a new message is received and reset after it
	// is processed.
	idleTimer := spawnAfter("peer.idleTimer", idleTimeout, func() {
		log.Warnf("Peer %s no answer for %s -- disconnecting", p, idleTimeout)
		p.disconnectWithReason(errors.Wrap(ErrTimeout, "idle"))
	})

out:
	for atomic.LoadInt32(&p.disconnect) == 0 {
		// Read a message and stop the idle timer as soon as the read
		// is done. The timer is reset below for the next iteration if
		// needed.
		rmsg, _, err := p.readMessage()
		idleTimer.Stop()
		if err != nil {
			switch {
			// Commands this client does not implement are skipped
			// without penalty since nodes announce many optional
			// features.
			case errors.Is(err, wire.ErrUnknownMessage):
				log.Tracef("Ignoring message from %s: %s", p, err)
				idleTimer.Reset(idleTimeout)
				continue

			// The offending payload was consumed, so the message is
			// dropped and the peer penalized without losing the
			// connection.
			case isRecoverableReadError(err):
				reason := fmt.Sprintf("can't read message from %s: %s", p, err)
				log.Warnf("Dropping message: %s", reason)
				if errors.Is(err, wire.ErrChecksumMismatch) {
					p.AddBanScore(BanScoreBadChecksum, reason)
				} else {
					p.AddBanScore(BanScoreMalformedMessage, reason)
				}
				idleTimer.Reset(idleTimeout)
				continue
			}

			// Only log the error and add ban score if the local peer
			// is not forcibly disconnecting and the remote peer has
			// not disconnected.
			if p.shouldHandleReadError(err) {
				reason := fmt.Sprintf("can't read message from %s: %s", p, err)
				log.Errorf("%s", reason)
				p.AddBanScore(BanScoreMalformedMessage, reason)
				p.disconnectWithReason(errors.Wrap(ErrProtocolViolation, reason))
			}
			break out
		}
		atomic.StoreInt64(&p.lastRecv, time.Now().Unix())

		// Handle each supported message type.
		switch msg := rmsg.(type) {
		case *wire.MsgVersion:
			p.PushRejectMsg(msg.Command(), wire.RejectDuplicate,
				"duplicate version message", nil, false)
			p.AddBanScore(BanScoreDuplicateVersion, "duplicate version message")

		case *wire.MsgVerAck:
			if p.VerAckReceived() {
				log.Warnf("Already received 'verack' from peer %s", p)
				p.AddBanScore(BanScoreDuplicateVerack, "verack sent twice")
			}
			p.markVerAckReceived()
			if p.cfg.Listeners.OnVerAck != nil {
				p.cfg.Listeners.OnVerAck(p, msg)
			}

		case *wire.MsgAddr:
			if len(msg.AddrList) > wire.MaxAddrPerMsg {
				p.AddBanScore(BanScoreSentTooManyAddresses, "too many addresses")
				break
			}
			if p.cfg.Listeners.OnAddr != nil {
				p.cfg.Listeners.OnAddr(p, msg)
			}

		case *wire.MsgPing:
			p.handlePingMsg(msg)
			if p.cfg.Listeners.OnPing != nil {
				p.cfg.Listeners.OnPing(p, msg)
			}

		case *wire.MsgPong:
			p.handlePongMsg(msg)
			if p.cfg.Listeners.OnPong != nil {
				p.cfg.Listeners.OnPong(p, msg)
			}

		case *wire.MsgTx:
			txHash := msg.TxHash()
			p.AddKnownInventory(wire.NewInvVect(wire.InvTypeTx, &txHash))
			if p.cfg.Listeners.OnTx != nil {
				p.cfg.Listeners.OnTx(p, msg)
			}

		case *wire.MsgInv:
			for _, iv := range msg.InvList {
				p.AddKnownInventory(iv)
			}
			if p.cfg.Listeners.OnInv != nil {
				p.cfg.Listeners.OnInv(p, msg)
			}

		case *wire.MsgNotFound:
			if p.cfg.Listeners.OnNotFound != nil {
				p.cfg.Listeners.OnNotFound(p, msg)
			}

		case *wire.MsgGetData:
			if p.cfg.Listeners.OnGetData != nil {
				p.cfg.Listeners.OnGetData(p, msg)
			}

		case *wire.MsgHeaders:
			if p.cfg.Listeners.OnHeaders != nil {
				p.cfg.Listeners.OnHeaders(p, msg)
			}

		case *wire.MsgMerkleBlock:
			blockHash := p.cfg.Params.BlockHash(&msg.Header)
			p.AddKnownInventory(wire.NewInvVect(wire.InvTypeBlock, &blockHash))
			if p.cfg.Listeners.OnMerkleBlock != nil {
				p.cfg.Listeners.OnMerkleBlock(p, msg)
			}

		case *wire.MsgReject:
			if p.cfg.Listeners.OnReject != nil {
				p.cfg.Listeners.OnReject(p, msg)
			}

		default:
			log.Debugf("Received unhandled message of type %s "+
				"from %s", rmsg.Command(), p)
		}

		// A message was received so reset the idle timer.
		idleTimer.Reset(idleTimeout)
	}

	// Ensure the idle timer is stopped to avoid leaking the resource.
	idleTimer.Stop()

	// Ensure connection is closed.
	p.Disconnect()

	close(p.inQuit)
	log.Tracef("Peer input handler done for %s", p)
}

func (p *Peer) markVerAckReceived() {
	p.flagsMtx.Lock()
	defer p.flagsMtx.Unlock()
	p.verAckReceived = true
}

// queueHandler handles the queuing of outgoing data for the peer. This runs as
// a muxer for various sources of input so we can ensure that server and peer
// handlers will not block on us sending a message. That data is then passed on
// to outHandler to be actually written.
func (p *Peer) queueHandler() {
	pendingMsgs := list.New()

	// We keep the waiting flag so that we know if we have a message queued
	// to the outHandler or not. We could use the presence of a head of
	// the list for this but then we have rather racy concerns about whether
	// it has gotten it at cleanup time - and thus who sends on the
	// message's done channel. To avoid such confusion we keep a different
	// flag and pendingMsgs only contains messages that we have not yet
	// passed to outHandler.
	waiting := false

	// To avoid duplication below.
	queuePacket := func(msg outMsg, list *list.List, waiting bool) bool {
		if !waiting {
			p.sendQueue <- msg
		} else {
			list.PushBack(msg)
		}
		// we are always waiting now.
		return true
	}
out:
	for {
		select {
		case msg := <-p.outputQueue:
			waiting = queuePacket(msg, pendingMsgs, waiting)

		// This channel is notified when a message has been sent across
		// the network socket.
		case <-p.sendDoneQueue:
			// No longer waiting if there are no more messages
			// in the pending messages queue.
			next := pendingMsgs.Front()
			if next == nil {
				waiting = false
				continue
			}

			// Notify the outHandler about the next item to
			// asynchronously send.
			val := pendingMsgs.Remove(next)
			p.sendQueue <- val.(outMsg)

		case <-p.quit:
			break out
		}
	}

	// Drain any wait channels before we go away so we don't leave something
	// waiting for us.
	for e := pendingMsgs.Front(); e != nil; e = pendingMsgs.Front() {
		val := pendingMsgs.Remove(e)
		msg := val.(outMsg)
		if msg.doneChan != nil {
			msg.doneChan <- struct{}{}
		}
	}
cleanup:
	for {
		select {
		case msg := <-p.outputQueue:
			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}
		// sendDoneQueue is buffered so doesn't need draining.
		default:
			break cleanup
		}
	}
	close(p.queueQuit)
	log.Tracef("Peer queue handler done for %s", p)
}

// outHandler handles all outgoing messages for the peer. It must be run as a
// goroutine. It uses a buffered channel to serialize output messages while
// allowing the sender to continue running asynchronously.
func (p *Peer) outHandler() {
out:
	for {
		select {
		case msg := <-p.sendQueue:
			if m, ok := msg.msg.(*wire.MsgPing); ok {
				p.statsMtx.Lock()
				p.lastPingNonce = m.Nonce
				p.lastPingTime = time.Now()
				p.statsMtx.Unlock()
			}

			err := p.writeMessage(msg.msg)
			if err != nil {
				if p.shouldHandleReadError(err) {
					log.Errorf("Failed to send message to "+
						"%s: %s", p, err)
				}
				p.Disconnect()
				if msg.doneChan != nil {
					msg.doneChan <- struct{}{}
				}
				continue
			}

			// At this point, the message was successfully sent, so
			// update the last send time, signal the sender of the
			// message that it has been sent (if requested), and
			// signal the send queue to the deliver the next queued
			// message.
			atomic.StoreInt64(&p.lastSend, time.Now().Unix())
			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}
			p.sendDoneQueue <- struct{}{}

		case <-p.quit:
			break out
		}
	}

	<-p.queueQuit

	// Drain any wait channels before we go away so we don't leave something
	// waiting for us. We have waited on queueQuit and thus we can be sure
	// that we will not miss anything sent on sendQueue.
cleanup:
	for {
		select {
		case msg := <-p.sendQueue:
			if msg.doneChan != nil {
				msg.doneChan <- struct{}{}
			}
			// no need to send on sendDoneQueue since queueHandler
			// has been waited on and already exited.
		default:
			break cleanup
		}
	}
	close(p.outQuit)
	log.Tracef("Peer output handler done for %s", p)
}

// pingHandler pings the peer right after the handshake and then every ping
// interval. A ping left unanswered for longer than the ping timeout
// disconnects the peer. It must be run as a goroutine.
func (p *Peer) pingHandler() {
	checkInterval := p.cfg.PingInterval
	if p.cfg.PingTimeout < checkInterval {
		checkInterval = p.cfg.PingTimeout
	}
	checkTicker := time.NewTicker(checkInterval)
	defer checkTicker.Stop()

	sendPing := func() {
		nonce, err := random.Uint64()
		if err != nil {
			log.Errorf("Not sending ping to %s: %s", p, err)
			return
		}
		p.QueueMessage(wire.NewMsgPing(nonce), nil)
	}
	sendPing()
	lastPing := time.Now()

out:
	for {
		select {
		case <-checkTicker.C:
			p.statsMtx.RLock()
			pending := p.lastPingNonce != 0
			sentAt := p.lastPingTime
			p.statsMtx.RUnlock()

			if pending && !sentAt.IsZero() && time.Since(sentAt) > p.cfg.PingTimeout {
				log.Warnf("Peer %s did not answer ping within %s -- "+
					"disconnecting", p, p.cfg.PingTimeout)
				p.disconnectWithReason(errors.Wrap(ErrTimeout, "ping"))
				break out
			}
			if !pending && time.Since(lastPing) >= p.cfg.PingInterval {
				sendPing()
				lastPing = time.Now()
			}

		case <-p.quit:
			break out
		}
	}
}

// QueueMessage adds the passed dash message to the peer send queue.
//
// This function is safe for concurrent access.
func (p *Peer) QueueMessage(msg wire.Message, doneChan chan<- struct{}) {
	// Avoid risk of deadlock if goroutine already exited. The goroutine
	// we will be sending to hangs around until it knows for a fact that
	// it is marked as disconnected and *then* it drains the channels.
	if !p.Connected() {
		if doneChan != nil {
			spawn("Peer.QueueMessage-doneChan", func() {
				doneChan <- struct{}{}
			})
		}
		return
	}
	select {
	case p.outputQueue <- outMsg{msg: msg, doneChan: doneChan}:
	case <-p.quit:
		if doneChan != nil {
			doneChan <- struct{}{}
		}
	}
}

// Connect dials the peer address and performs the handshake. It returns an
// error wrapping ErrTimeout when ctx expires while dialing or the handshake
// does not complete in time. The peer is left disconnected on any error.
func (p *Peer) Connect(ctx context.Context) error {
	err := p.state.Event(ctx, eventConnect)
	if err != nil {
		return errors.Wrapf(err, "cannot connect peer %s", p)
	}

	conn, err := p.cfg.Dial(ctx, "tcp", p.addr)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			err = errors.Wrapf(ErrTimeout, "dialing %s: %s", p, err)
		}
		p.disconnectWithReason(err)
		return err
	}

	return p.AssociateConnection(conn)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// AssociateConnection associates the given conn to the peer and performs the
// handshake. Calling this function when the peer is already connected will
// have no effect.
func (p *Peer) AssociateConnection(conn net.Conn) error {
	if p.state.Is(StateDisconnected) {
		if atomic.LoadInt32(&p.disconnect) != 0 {
			conn.Close()
			return errors.Errorf("peer %s was already disconnected", p)
		}
		err := p.state.Event(context.Background(), eventConnect)
		if err != nil {
			conn.Close()
			return errors.Wrapf(err, "cannot connect peer %s", p)
		}
	}
	if !p.state.Is(StateConnecting) {
		return nil
	}

	p.flagsMtx.Lock()
	p.conn = conn
	p.flagsMtx.Unlock()
	p.statsMtx.Lock()
	p.timeConnected = time.Now()
	p.statsMtx.Unlock()

	if err := p.start(); err != nil {
		p.disconnectWithReason(err)
		return errors.Wrapf(err, "cannot start peer %s", p)
	}

	return nil
}

// Connected returns whether or not the peer completed the handshake and is
// not disconnecting.
//
// This function is safe for concurrent access.
func (p *Peer) Connected() bool {
	return p.state.Is(StateConnected) &&
		atomic.LoadInt32(&p.disconnect) == 0
}

// Disconnect disconnects the peer by closing the connection. Calling this
// function when the peer is already disconnected or in the process of
// disconnecting will have no effect.
func (p *Peer) Disconnect() {
	p.disconnectWithReason(nil)
}

// disconnectWithReason disconnects the peer and records reason as the cause
// unless the peer was already disconnecting.
func (p *Peer) disconnectWithReason(reason error) {
	if atomic.AddInt32(&p.disconnect, 1) != 1 {
		return
	}

	log.Tracef("Disconnecting %s", p)
	p.flagsMtx.Lock()
	p.disconnectReason = reason
	conn := p.conn
	p.flagsMtx.Unlock()

	if conn != nil {
		conn.Close()
	}
	if err := p.state.Event(context.Background(), eventDisconnect); err != nil {
		log.Tracef("Peer %s: %s", p, err)
	}
	close(p.quit)
}

// start performs the handshake within the handshake timeout and then begins
// processing input and output messages.
func (p *Peer) start() error {
	log.Tracef("Starting peer %s", p)

	negotiateErr := make(chan error, 1)
	spawn("Peer.start-negotiateOutboundProtocol", func() {
		negotiateErr <- p.negotiateOutboundProtocol()
	})

	// Negotiate the protocol within the specified handshake timeout.
	timer := time.NewTimer(p.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case err := <-negotiateErr:
		if err != nil {
			return err
		}
	case <-timer.C:
		return errors.Wrapf(ErrTimeout, "handshake did not complete within %s",
			p.cfg.HandshakeTimeout)
	case <-p.quit:
		return errors.New("peer disconnected during handshake")
	}

	err := p.state.Event(context.Background(), eventHandshake)
	if err != nil {
		return err
	}
	log.Debugf("Connected to %s", p)

	// The protocol has been negotiated successfully so start processing input
	// and output messages.
	spawn("Peer.start-inHandler", p.inHandler)
	spawn("Peer.start-queueHandler", p.queueHandler)
	spawn("Peer.start-outHandler", p.outHandler)
	spawn("Peer.start-pingHandler", p.pingHandler)

	return nil
}

// WaitForDisconnect waits until the peer has completely disconnected and all
// resources are cleaned up. This will happen if either the local or remote
// side has been disconnected or the peer is forcibly disconnected via
// Disconnect.
func (p *Peer) WaitForDisconnect() {
	<-p.quit
}

// readRemoteVersionMsg waits for the next message to arrive from the remote
// peer. If the next message is not a version message or the version is not
// acceptable then return an error.
func (p *Peer) readRemoteVersionMsg() error {
	// Read their version message.
	msg, err := p.readHandshakeMessage()
	if err != nil {
		return err
	}

	remoteVerMsg, ok := msg.(*wire.MsgVersion)
	if !ok {
		reason := "a version message must precede all others"
		p.AddBanScore(BanScoreNonVersionFirstMessage, reason)

		rejectMsg := wire.NewMsgReject(msg.Command(), wire.RejectMalformed,
			reason)
		_ = p.writeMessage(rejectMsg)
		return errors.Wrap(ErrProtocolViolation, reason)
	}

	if err := p.handleRemoteVersionMsg(remoteVerMsg); err != nil {
		return err
	}

	if p.cfg.Listeners.OnVersion != nil {
		p.cfg.Listeners.OnVersion(p, remoteVerMsg)
	}
	return nil
}

// readRemoteVerAckMsg waits for the verack of the remote peer, skipping the
// feature negotiation messages some nodes send in between.
func (p *Peer) readRemoteVerAckMsg() error {
	for {
		msg, err := p.readHandshakeMessage()
		if err != nil {
			return err
		}

		switch msg := msg.(type) {
		case *wire.MsgVerAck:
			p.markVerAckReceived()
			if p.cfg.Listeners.OnVerAck != nil {
				p.cfg.Listeners.OnVerAck(p, msg)
			}
			return nil

		case *wire.MsgVersion:
			p.AddBanScore(BanScoreDuplicateVersion, "duplicate version message")

		default:
			log.Debugf("Ignoring %s from %s before verack", msg.Command(), p)
		}
	}
}

// readHandshakeMessage reads the next message the handshake understands,
// skipping unknown commands.
func (p *Peer) readHandshakeMessage() (wire.Message, error) {
	for {
		msg, _, err := p.readMessage()
		if errors.Is(err, wire.ErrUnknownMessage) {
			log.Tracef("Ignoring message from %s during handshake: %s", p, err)
			continue
		}
		return msg, err
	}
}

// writeLocalVersionMsg writes our version message to the remote peer.
func (p *Peer) writeLocalVersionMsg() error {
	localVerMsg, err := p.localVersionMsg()
	if err != nil {
		return err
	}

	return p.writeMessage(localVerMsg)
}

// negotiateOutboundProtocol sends our version message then waits to receive a
// version message from the peer, acknowledges it and waits for the remote
// acknowledgement. If the events do not occur in that order then it returns
// an error.
func (p *Peer) negotiateOutboundProtocol() error {
	if err := p.writeLocalVersionMsg(); err != nil {
		return err
	}

	if err := p.readRemoteVersionMsg(); err != nil {
		return err
	}

	if err := p.writeMessage(wire.NewMsgVerAck()); err != nil {
		return err
	}

	return p.readRemoteVerAckMsg()
}

// NewOutboundPeer returns a new outbound dash peer for addr, a host:port
// string. The peer starts disconnected; use Connect or AssociateConnection.
func NewOutboundPeer(origCfg *Config, addr string) (*Peer, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Default to the max supported protocol version if not specified by the
	// caller.
	cfg := *origCfg // Copy to avoid mutating caller.
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = MaxProtocolVersion
	}

	// Set the chain parameters to mainnet if the caller did not specify any.
	if cfg.Params == nil {
		cfg.Params = &chaincfg.MainNetParams
	}
	if cfg.Dial == nil {
		var dialer net.Dialer
		cfg.Dial = dialer.DialContext
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.BanThreshold == 0 {
		cfg.BanThreshold = DefaultBanThreshold
	}

	p := &Peer{
		addr:            addr,
		id:              atomic.AddInt32(&nodeCount, 1),
		na:              wire.NewNetAddressIPPort(net.ParseIP(host), uint16(port), 0),
		knownInventory:  mustNewCache[wire.InvVect](maxKnownInventory),
		outputQueue:     make(chan outMsg, outputBufferSize),
		sendQueue:       make(chan outMsg, 1),   // nonblocking sync
		sendDoneQueue:   make(chan struct{}, 1), // nonblocking sync
		inQuit:          make(chan struct{}),
		queueQuit:       make(chan struct{}),
		outQuit:         make(chan struct{}),
		quit:            make(chan struct{}),
		cfg:             cfg, // Copy so caller can't mutate.
		protocolVersion: cfg.ProtocolVersion,
	}
	p.state = newStateMachine(p)
	return p, nil
}

// newStateMachine returns the connection state machine of p.
func newStateMachine(p *Peer) *fsm.FSM {
	return fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventHandshake, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventDisconnect, Src: []string{StateConnecting, StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("Peer %s: %s -> %s", p, e.Src, e.Dst)
			},
		},
	)
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
