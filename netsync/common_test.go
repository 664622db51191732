package netsync

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dashpay/dashspv/blockchain"
	"github.com/dashpay/dashspv/chaincfg"
	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/keychain/bip39"
	"github.com/dashpay/dashspv/peer"
	"github.com/dashpay/dashspv/txscript"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wallet"
	"github.com/dashpay/dashspv/wire"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon " +
	"abandon abandon abandon abandon abandon about"

// testTime is the timestamp of the first block mined on top of the test
// genesis block.
var testTime = time.Unix(1609459200, 0)

// newTestParams returns regression test parameters whose genesis hash
// matches the default double SHA-256 block hash.
func newTestParams() *chaincfg.Params {
	params := chaincfg.RegressionNetParams
	genesisHash := params.BlockHash(params.GenesisHeader)
	params.GenesisHash = &genesisHash
	return &params
}

// testNotifier records every published event.
type testNotifier struct {
	mtx    sync.Mutex
	events []events.Event
}

func (n *testNotifier) Publish(event events.Event) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	n.events = append(n.events, event)
}

func (n *testNotifier) count(topic events.Topic) int {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	count := 0
	for _, event := range n.events {
		if event.Topic() == topic {
			count++
		}
	}
	return count
}

func (n *testNotifier) last(topic events.Topic) events.Event {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		if n.events[i].Topic() == topic {
			return n.events[i]
		}
	}
	return nil
}

type testHarness struct {
	t        *testing.T
	params   *chaincfg.Params
	chain    *blockchain.Chain
	wallet   *wallet.Wallet
	store    *dbaccess.DatabaseStore
	notifier *testNotifier
	manager  *Manager
	peers    int
}

func newTestWallet(t *testing.T, params *chaincfg.Params, store wallet.TransactionStore,
	notifier events.Notifier) *wallet.Wallet {

	seed, err := bip39.Seed(testPhrase, "")
	if err != nil {
		t.Fatalf("Seed unexpectedly failed: %s", err)
	}
	accountKey, err := wallet.AccountKeyFromSeed(seed, params, 0)
	if err != nil {
		t.Fatalf("AccountKeyFromSeed unexpectedly failed: %s", err)
	}
	w, err := wallet.New(&wallet.Config{
		Params:     params,
		WalletID:   "test",
		AccountKey: accountKey,
		Store:      store,
		Notifier:   notifier,
	})
	if err != nil {
		t.Fatalf("wallet.New unexpectedly failed: %s", err)
	}
	return w
}

func newTestStore(t *testing.T, params *chaincfg.Params) *dbaccess.DatabaseStore {
	databaseContext, err := dbaccess.NewInMemory()
	if err != nil {
		t.Fatalf("error creating db: %s", err)
	}
	t.Cleanup(func() {
		err := databaseContext.Close()
		if err != nil {
			t.Fatalf("error closing the database: %s", err)
		}
	})
	return dbaccess.NewStore(databaseContext, params)
}

// newTestHarness returns a started Manager on a fresh regtest chain.
// configure may adjust the configuration before the Manager is built.
func newTestHarness(t *testing.T, configure func(cfg *Config)) *testHarness {
	params := newTestParams()
	store := newTestStore(t, params)
	notifier := &testNotifier{}
	h := &testHarness{
		t:        t,
		params:   params,
		chain:    blockchain.New(params, nil),
		wallet:   newTestWallet(t, params, store, notifier),
		store:    store,
		notifier: notifier,
	}

	cfg := &Config{
		Params:   params,
		Chain:    h.chain,
		Wallet:   h.wallet,
		Store:    store,
		Notifier: notifier,
	}
	if configure != nil {
		configure(cfg)
	}
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New unexpectedly failed: %s", err)
	}
	m.Start()
	t.Cleanup(func() {
		m.Stop()
	})
	h.manager = m
	return h
}

// fakeTxHash returns a deterministic transaction hash for tests.
func fakeTxHash(seed uint64) *chainhash.Hash {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	hash := chainhash.DoubleHashH(b[:])
	return &hash
}

// fundingTx returns a transaction paying amount to the receive address of
// w from an outpoint unknown to it.
func fundingTx(t *testing.T, w *wallet.Wallet, amount util.Amount, salt uint64) *wire.MsgTx {
	pkScript, err := txscript.PayToAddrScript(w.ReceiveAddress())
	if err != nil {
		t.Fatalf("PayToAddrScript unexpectedly failed: %s", err)
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(fakeTxHash(salt), 0), nil))
	tx.AddTxOut(wire.NewTxOut(int64(amount), pkScript))
	return tx
}

// mineBlock mines a merkle block on parent holding one unmatched
// transaction followed by the matched ones.
func mineBlock(t *testing.T, params *chaincfg.Params, parent *chainhash.Hash,
	timestamp time.Time, salt uint64, matched ...*wire.MsgTx) *blockchain.MerkleBlock {

	txHashes := []*chainhash.Hash{fakeTxHash(salt)}
	matches := []bool{false}
	for _, tx := range matched {
		hash := tx.TxHash()
		txHashes = append(txHashes, &hash)
		matches = append(matches, true)
	}
	hashes, flags, err := blockchain.BuildPartialMerkleTree(txHashes, matches)
	if err != nil {
		t.Fatalf("BuildPartialMerkleTree unexpectedly failed: %s", err)
	}
	header := wire.BlockHeader{
		Version:    4,
		PrevBlock:  *parent,
		MerkleRoot: blockchain.CalcMerkleRoot(txHashes),
		Timestamp:  timestamp,
		Bits:       params.PowLimitBits,
	}
	target := blockchain.CompactToBig(header.Bits)
	for nonce := uint32(0); ; nonce++ {
		if nonce == 1<<20 {
			t.Fatalf("could not solve block with bits %08x", header.Bits)
		}
		header.Nonce = nonce
		hash := params.BlockHash(&header)
		if chainhash.ToBig(&hash).Cmp(target) <= 0 {
			return &blockchain.MerkleBlock{
				Header:            header,
				Hash:              hash,
				Height:            blockchain.UnknownHeight,
				TotalTransactions: uint32(len(txHashes)),
				Hashes:            hashes,
				Flags:             flags,
			}
		}
	}
}

// testBlock is a block served by a fakeNode together with the transactions
// its partial merkle tree proves.
type testBlock struct {
	block *blockchain.MerkleBlock
	txs   []*wire.MsgTx
}

// mineChain mines count blocks on parent. matched maps block indexes to the
// transactions the block proves.
func mineChain(t *testing.T, params *chaincfg.Params, parent *chainhash.Hash, start time.Time,
	count int, salt uint64, matched map[int][]*wire.MsgTx) []*testBlock {

	blocks := make([]*testBlock, 0, count)
	prev := parent
	for i := 0; i < count; i++ {
		txs := matched[i]
		block := mineBlock(t, params, prev, start.Add(time.Duration(i)*params.TargetSpacing),
			salt<<32|uint64(i), txs...)
		blocks = append(blocks, &testBlock{block: block, txs: txs})
		prev = &block.Hash
	}
	return blocks
}

// fakeNode plays a full node on the far end of a net.Pipe.
type fakeNode struct {
	t        *testing.T
	conn     net.Conn
	params   *chaincfg.Params
	received chan wire.Message
}

func (n *fakeNode) write(msg wire.Message) {
	err := wire.WriteMessage(n.conn, msg, wire.ProtocolVersion, n.params.Net)
	if err != nil {
		n.t.Errorf("WriteMessage unexpectedly failed: %s", err)
	}
}

func (n *fakeNode) read() wire.Message {
	msg, _, err := wire.ReadMessage(n.conn, wire.ProtocolVersion, n.params.Net)
	if err != nil {
		n.t.Fatalf("ReadMessage unexpectedly failed: %s", err)
	}
	return msg
}

// handshake answers the version exchange of the local peer, announcing a
// chain of the given height.
func (n *fakeNode) handshake(lastBlock int32) {
	msg := n.read()
	if _, ok := msg.(*wire.MsgVersion); !ok {
		n.t.Fatalf("handshake: expected version, got %s", msg.Command())
	}

	services := wire.SFNodeNetwork | wire.SFNodeBloom
	me := wire.NewNetAddressIPPort(net.ParseIP("10.0.0.2"), 19899, services)
	you := wire.NewNetAddressIPPort(net.ParseIP("10.0.0.1"), 19899, 0)
	remoteVersion := wire.NewMsgVersion(me, you, 0x5eed, lastBlock)
	remoteVersion.Services = services
	n.write(remoteVersion)

	msg = n.read()
	if _, ok := msg.(*wire.MsgVerAck); !ok {
		n.t.Fatalf("handshake: expected verack, got %s", msg.Command())
	}
	n.write(wire.NewMsgVerAck())
}

// readLoop forwards everything the local peer sends to received until the
// pipe is closed.
func (n *fakeNode) readLoop() {
	go func() {
		for {
			msg, _, err := wire.ReadMessage(n.conn, wire.ProtocolVersion, n.params.Net)
			if err != nil {
				close(n.received)
				return
			}
			n.received <- msg
		}
	}()
}

// expect returns the next message of the given command, skipping others.
func (n *fakeNode) expect(command string) wire.Message {
	n.t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-n.received:
			if !ok {
				n.t.Fatalf("connection closed while waiting for %s", command)
			}
			if msg.Command() == command {
				return msg
			}
		case <-timeout:
			n.t.Fatalf("timed out waiting for %s", command)
		}
	}
}

// expectNone fails if a message of the given command arrives within d.
func (n *fakeNode) expectNone(command string, d time.Duration) {
	n.t.Helper()
	timeout := time.After(d)
	for {
		select {
		case msg, ok := <-n.received:
			if !ok {
				return
			}
			if msg.Command() == command {
				n.t.Fatalf("unexpected %s message", command)
			}
		case <-timeout:
			return
		}
	}
}

// announce sends an inv of the given blocks.
func (n *fakeNode) announce(blocks []*testBlock) {
	inv := wire.NewMsgInv()
	for _, b := range blocks {
		err := inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &b.block.Hash))
		if err != nil {
			n.t.Fatalf("AddInvVect unexpectedly failed: %s", err)
		}
	}
	n.write(inv)
}

// serve answers one getdata for filtered blocks with the requested blocks
// and the transactions they prove.
func (n *fakeNode) serve(blocks []*testBlock) {
	n.t.Helper()
	byHash := make(map[chainhash.Hash]*testBlock, len(blocks))
	for _, b := range blocks {
		byHash[b.block.Hash] = b
	}
	getData := n.expect(wire.CmdGetData).(*wire.MsgGetData)
	for _, iv := range getData.InvList {
		if iv.Type != wire.InvTypeFilteredBlock {
			n.t.Fatalf("expected a filtered block request, got %s", iv.Type)
		}
		b, ok := byHash[iv.Hash]
		if !ok {
			n.t.Fatalf("unexpected request for block %s", iv.Hash)
		}
		n.write(b.block.MsgMerkleBlock())
		for _, tx := range b.txs {
			n.write(tx)
		}
	}
}

// connectPeer connects a new peer to the harness' Manager. The fake node
// on its far end announces lastBlock.
func (h *testHarness) connectPeer(lastBlock int32) (*peer.Peer, *fakeNode) {
	h.peers++
	local, remoteConn := net.Pipe()
	cfg := &peer.Config{
		Params:           h.params,
		BestHeight:       h.chain.Height,
		UserAgentName:    "synctest",
		UserAgentVersion: "1.0.0",
		DisableRelayTx:   true,
		Listeners:        h.manager.Listeners(),
	}
	p, err := peer.NewOutboundPeer(cfg, fmt.Sprintf("10.0.0.%d:19899", h.peers+10))
	if err != nil {
		h.t.Fatalf("NewOutboundPeer unexpectedly failed: %s", err)
	}

	node := &fakeNode{
		t:        h.t,
		conn:     remoteConn,
		params:   h.params,
		received: make(chan wire.Message, 1000),
	}
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.AssociateConnection(local)
	}()
	node.handshake(lastBlock)
	if err := <-errChan; err != nil {
		h.t.Fatalf("AssociateConnection unexpectedly failed: %s", err)
	}
	node.readLoop()
	h.t.Cleanup(func() {
		p.Disconnect()
		remoteConn.Close()
	})

	h.manager.NewPeer(p)
	return p, node
}

func (h *testHarness) syncState() *SyncState {
	state, err := h.manager.SyncState()
	if err != nil {
		h.t.Fatalf("SyncState unexpectedly failed: %s", err)
	}
	return state
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", description)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
