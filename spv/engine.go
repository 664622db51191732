package spv

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dashpay/dashspv/addrmgr"
	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/connmgr"
	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/infrastructure/metrics"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/netsync"
	"github.com/dashpay/dashspv/peer"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/version"
	"github.com/dashpay/dashspv/wallet"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

const (
	// userAgentName is the user agent name announced to peers.
	userAgentName = "dashspv"

	// dnsSeedTimeout bounds a round of DNS seed lookups.
	dnsSeedTimeout = 30 * time.Second

	// defaultWalletID is the wallet ID used when none is configured.
	defaultWalletID = "default"
)

var (
	// ErrMissingKeys is returned by Send when the wallet cannot sign
	// every input of the transaction it built.
	ErrMissingKeys = wallet.ErrMissingKeys

	// ErrNotStarted is returned by operations that need a running Engine.
	ErrNotStarted = errors.New("engine is not running")
)

// Config holds the configuration of an Engine.
type Config struct {
	Params *chaincfg.Params

	// DatabaseContext stores the chain, the wallet transactions and the
	// known peer addresses. It is owned by the caller.
	DatabaseContext *dbaccess.DatabaseContext

	// WalletID keys the wallet's data in the database. It defaults to
	// "default".
	WalletID string

	// AccountKey is the BIP44 account key of the wallet. A public key
	// is enough; signing asks for the seed separately.
	AccountKey *bip32.ExtendedKey

	// EarliestKeyTime is the creation time of the wallet. Blocks older
	// than it are downloaded as headers only.
	EarliestKeyTime time.Time

	ExternalGapLimit uint32
	InternalGapLimit uint32
	FeePerKb         util.Amount

	// MaxPeers is the number of peers to stay connected to.
	MaxPeers int

	// ConnectPeers, when set, are the only peers connected to. DNS
	// seeding and peer discovery are disabled.
	ConnectPeers []string

	DisableDNSSeed bool

	// Lookup resolves DNS seeds. It defaults to addrmgr.DefaultLookup.
	Lookup addrmgr.LookupFunc

	// Dial opens connections to peers. It defaults to a plain TCP dialer.
	Dial func(ctx context.Context, addr net.Addr) (net.Conn, error)

	UserAgentComments []string

	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PingTimeout      time.Duration
	RelayTimeout     time.Duration
	BanThreshold     uint32
	BanDuration      time.Duration
}

// Engine is a running SPV client for one network and one wallet.
type Engine struct {
	cfg         Config
	params      *chaincfg.Params
	bus         *events.Bus
	store       *dbaccess.DatabaseStore
	chain       *blockchain.Chain
	wallet      *wallet.Wallet
	syncManager *netsync.Manager
	addrManager *addrmgr.AddrManager
	connManager *connmgr.ConnManager

	peersMtx sync.Mutex
	peers    map[uint64]*peer.Peer

	started  int32
	shutdown int32
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New builds an Engine from cfg. The chain and the wallet are restored
// from the database.
func New(cfg *Config) (*Engine, error) {
	if cfg.Params == nil {
		return nil, errors.New("engine config is missing the network parameters")
	}
	if cfg.DatabaseContext == nil {
		return nil, errors.New("engine config is missing the database context")
	}
	if cfg.AccountKey == nil {
		return nil, errors.New("engine config is missing the account key")
	}

	e := &Engine{
		cfg:    *cfg,
		params: cfg.Params,
		bus:    events.New(),
		store:  dbaccess.NewStore(cfg.DatabaseContext, cfg.Params),
		chain:  blockchain.New(cfg.Params, nil),
		peers:  make(map[uint64]*peer.Peer),
	}
	if e.cfg.WalletID == "" {
		e.cfg.WalletID = defaultWalletID
	}
	if e.cfg.MaxPeers <= 0 {
		e.cfg.MaxPeers = netsync.DefaultMaxPeers
	}
	if e.cfg.Lookup == nil {
		e.cfg.Lookup = addrmgr.DefaultLookup
	}
	if e.cfg.Dial == nil {
		dialer := &net.Dialer{Timeout: peer.DefaultHandshakeTimeout}
		e.cfg.Dial = func(ctx context.Context, addr net.Addr) (net.Conn, error) {
			return dialer.DialContext(ctx, addr.Network(), addr.String())
		}
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	var err error
	e.wallet, err = wallet.New(&wallet.Config{
		Params:           e.params,
		WalletID:         e.cfg.WalletID,
		AccountKey:       e.cfg.AccountKey,
		ExternalGapLimit: e.cfg.ExternalGapLimit,
		InternalGapLimit: e.cfg.InternalGapLimit,
		FeePerKb:         e.cfg.FeePerKb,
		Store:            e.store,
		Notifier:         e.bus,
	})
	if err != nil {
		return nil, err
	}

	e.syncManager, err = netsync.New(&netsync.Config{
		Params:          e.params,
		Chain:           e.chain,
		Wallet:          e.wallet,
		Store:           e.store,
		Notifier:        e.bus,
		EarliestKeyTime: e.cfg.EarliestKeyTime,
		MaxPeers:        e.cfg.MaxPeers,
		RelayTimeout:    e.cfg.RelayTimeout,
	})
	if err != nil {
		return nil, err
	}

	e.addrManager = addrmgr.New(&addrmgr.Config{
		Params:          e.params,
		DatabaseContext: e.cfg.DatabaseContext,
		BanDuration:     e.cfg.BanDuration,
	})

	e.connManager, err = connmgr.New(&connmgr.Config{
		Params:         e.params,
		TargetOutbound: uint32(e.cfg.MaxPeers),
		ManualOnly:     len(e.cfg.ConnectPeers) > 0,
		OnConnection:   e.outboundPeerConnected,
		AddrManager:    e.addrManager,
		Dial:           e.cfg.Dial,
	})
	if err != nil {
		return nil, err
	}

	log.Infof("Engine ready for %s at height %d", e.params.Name, e.chain.Height())
	return e, nil
}

// Start loads the known peer addresses and begins connecting to peers.
func (e *Engine) Start() error {
	// Already started?
	if atomic.AddInt32(&e.started, 1) != 1 {
		return nil
	}

	log.Trace("Starting engine")

	err := e.addrManager.Start()
	if err != nil {
		return err
	}
	e.syncManager.Start()

	if len(e.cfg.ConnectPeers) == 0 && !e.cfg.DisableDNSSeed {
		e.wg.Add(1)
		spawn("Engine.seedFromDNS", e.seedFromDNS)
	}

	e.connManager.Start()
	for _, addr := range e.cfg.ConnectPeers {
		err := e.connectPermanent(addr)
		if err != nil {
			log.Warnf("Cannot connect to %s: %s", addr, err)
		}
	}
	return nil
}

// Stop disconnects all peers and shuts the engine down. Everything
// accepted before Stop stays persisted.
func (e *Engine) Stop() error {
	// Make sure this only happens once.
	if atomic.AddInt32(&e.shutdown, 1) != 1 {
		log.Infof("Engine is already in the process of shutting down")
		return nil
	}

	log.Warnf("Engine shutting down")

	e.cancel()
	if atomic.LoadInt32(&e.started) == 0 {
		return nil
	}

	e.connManager.Stop()
	e.connManager.Wait()

	e.peersMtx.Lock()
	for _, p := range e.peers {
		p.Disconnect()
	}
	e.peersMtx.Unlock()

	err := e.syncManager.Stop()
	if err != nil {
		log.Errorf("Error stopping the sync manager: %+v", err)
	}
	e.wg.Wait()

	err = e.addrManager.Stop()
	if err != nil {
		log.Errorf("Error stopping the address manager: %+v", err)
	}
	e.bus.WaitAsync()
	return nil
}

// Params returns the network of the engine.
func (e *Engine) Params() *chaincfg.Params {
	return e.params
}

// Wallet returns the wallet of the engine.
func (e *Engine) Wallet() *wallet.Wallet {
	return e.wallet
}

// Chain returns the chain of merkle blocks of the engine.
func (e *Engine) Chain() *blockchain.Chain {
	return e.chain
}

// Subscribe registers handler for the events of topic.
func (e *Engine) Subscribe(topic events.Topic, handler events.Handler) error {
	return e.bus.Subscribe(topic, handler)
}

// Unsubscribe removes a handler registered with Subscribe.
func (e *Engine) Unsubscribe(topic events.Topic, handler events.Handler) error {
	return e.bus.Unsubscribe(topic, handler)
}

// SyncState returns a snapshot of the chain download.
func (e *Engine) SyncState() (*netsync.SyncState, error) {
	return e.syncManager.SyncState()
}

// RelayCountForTransaction returns how many connected peers relayed the
// transaction.
func (e *Engine) RelayCountForTransaction(hash *chainhash.Hash) int {
	return e.syncManager.RelayCountForTransaction(hash)
}

// ConnectedPeers returns a snapshot of every connected peer.
func (e *Engine) ConnectedPeers() []*peer.StatsSnap {
	e.peersMtx.Lock()
	defer e.peersMtx.Unlock()

	stats := make([]*peer.StatsSnap, 0, len(e.peers))
	for _, p := range e.peers {
		stats = append(stats, p.StatsSnapshot())
	}
	return stats
}

// PublishTransaction registers tx with the wallet and broadcasts it. See
// netsync.Manager.PublishTransaction.
func (e *Engine) PublishTransaction(ctx context.Context, tx *wire.MsgTx) error {
	if atomic.LoadInt32(&e.started) == 0 {
		return ErrNotStarted
	}
	return e.syncManager.PublishTransaction(ctx, tx)
}

// Send builds a transaction paying outputs, signs it with the seed
// returned by seedSource and publishes it. The transaction is returned
// even when publishing fails, since the wallet already registered it.
func (e *Engine) Send(ctx context.Context, outputs []wallet.Output,
	seedSource wallet.SeedSource) (*wire.MsgTx, error) {

	tx, err := e.wallet.BuildSignedTransaction(outputs, seedSource)
	if err != nil {
		return nil, err
	}
	log.Infof("Sending transaction %s", tx.TxHash())
	return tx, e.PublishTransaction(ctx, tx)
}

func (e *Engine) seedFromDNS() {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(e.ctx, dnsSeedTimeout)
	defer cancel()
	addresses, err := addrmgr.SeedFromDNS(ctx, e.params, wire.SFNodeNetwork|wire.SFNodeBloom,
		e.cfg.Lookup)
	if err != nil {
		log.Warnf("DNS seeding interrupted: %s", err)
	}
	if len(addresses) > 0 {
		e.addrManager.AddAddresses(addresses)
	}
}

// connectPermanent adds a peer that is reconnected whenever the
// connection drops.
func (e *Engine) connectPermanent(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, e.params.DefaultPort
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return errors.Wrapf(err, "failed resolving %s", addr)
	}
	spawn("Engine.connectPermanent", func() {
		err := e.connManager.Connect(&connmgr.ConnReq{
			Addr:      tcpAddr,
			Permanent: true,
		})
		if err != nil {
			log.Warnf("Cannot connect to %s: %s", tcpAddr, err)
		}
	})
	return nil
}

func (e *Engine) peerConfig() *peer.Config {
	listeners := e.syncManager.Listeners()
	listeners.OnAddr = e.onAddr
	return &peer.Config{
		Params:            e.params,
		BestHeight:        e.chain.Height,
		UserAgentName:     userAgentName,
		UserAgentVersion:  version.Version(),
		UserAgentComments: e.cfg.UserAgentComments,
		DisableRelayTx:    true,
		HandshakeTimeout:  e.cfg.HandshakeTimeout,
		PingInterval:      e.cfg.PingInterval,
		PingTimeout:       e.cfg.PingTimeout,
		BanThreshold:      e.cfg.BanThreshold,
		Listeners:         listeners,
	}
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established. The handshake runs on its own
// goroutine so the connection manager is not held up.
func (e *Engine) outboundPeerConnected(c *connmgr.ConnReq, conn net.Conn) {
	spawn("Engine.outboundPeerConnected", func() {
		p, err := peer.NewOutboundPeer(e.peerConfig(), c.Addr.String())
		if err != nil {
			log.Debugf("Cannot create outbound peer %s: %s", c.Addr, err)
			e.connManager.Disconnect(c.ID())
			return
		}
		err = p.AssociateConnection(conn)
		if err != nil {
			log.Debugf("Handshake with %s failed: %s", c.Addr, err)
			e.connManager.Disconnect(c.ID())
			return
		}

		e.addrManager.Connected(c.NetAddress())
		e.addrManager.Good(c.NetAddress())
		e.connManager.NotifyConnectionRequestComplete()

		e.peersMtx.Lock()
		e.peers[c.ID()] = p
		e.peersMtx.Unlock()

		if !e.cfg.connectOnly() && e.addrManager.NeedMoreAddresses() {
			p.QueueMessage(wire.NewMsgGetAddr(), nil)
		}
		e.syncManager.NewPeer(p)

		p.WaitForDisconnect()
		e.peerDone(c, p)
	})
}

// peerDone cleans up after a disconnected peer and lets the connection
// manager replace it.
func (e *Engine) peerDone(c *connmgr.ConnReq, p *peer.Peer) {
	e.peersMtx.Lock()
	delete(e.peers, c.ID())
	e.peersMtx.Unlock()

	e.syncManager.DonePeer(p)
	if p.Misbehaving() {
		log.Infof("Banning misbehaving peer %s", p)
		metrics.MisbehavingPeers.Inc()
		e.addrManager.Ban(c.NetAddress())
	}
	if atomic.LoadInt32(&e.shutdown) != 0 {
		return
	}
	e.connManager.Disconnect(c.ID())
}

func (e *Engine) onAddr(p *peer.Peer, msg *wire.MsgAddr) {
	if e.cfg.connectOnly() {
		return
	}
	log.Debugf("Received %d addresses from %s", len(msg.AddrList), p)
	e.addrManager.AddAddresses(msg.AddrList)
}

func (cfg *Config) connectOnly() bool {
	return len(cfg.ConnectPeers) > 0
}
