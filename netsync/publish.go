package netsync

import (
	"context"

	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/infrastructure/metrics"
	"github.com/dashpay/dashspv/peer"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/dashpay/dashspv/wire"
	"github.com/jellydator/ttlcache/v3"
	"github.com/pkg/errors"
)

// pendingPublish tracks a published transaction until enough peers relayed
// it or the relay timeout expires.
type pendingPublish struct {
	done      chan error
	relayedBy map[int32]struct{}
}

// complete reports the publish result. Only the first result counts.
func (pp *pendingPublish) complete(err error) {
	select {
	case pp.done <- err:
	default:
	}
}

// PublishTransaction registers tx with the wallet, announces it to every
// connected peer and serves it to the peers that request it. It returns
// once the minimum number of peers requested or announced tx, or with an
// error wrapping ErrRelayTimeout or ErrTransactionRejected. The
// transaction stays registered in either case.
func (m *Manager) PublishTransaction(ctx context.Context, tx *wire.MsgTx) error {
	hash := tx.TxHash()
	_, err := m.wallet.RegisterTransaction(tx)
	if err != nil {
		return errors.Wrapf(err, "failed registering published transaction %s", hash)
	}

	reply := make(chan error, 1)
	if !m.request(&publishTxMsg{tx: tx, reply: reply}) {
		return ErrManagerStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.quit:
		return ErrManagerStopped
	}
}

func (m *Manager) handlePublishTxMsg(msg *publishTxMsg) {
	hash := msg.tx.TxHash()
	if len(m.peerStates) == 0 {
		metrics.PublishedTransactions.WithLabelValues("no_peers").Inc()
		msg.reply <- ErrNoPeers
		return
	}
	if m.pendingPublishes.Get(hash) != nil {
		msg.reply <- errors.Errorf("transaction %s is already being published", hash)
		return
	}

	m.publishedTxs[hash] = msg.tx
	m.pendingPublishes.Set(hash, &pendingPublish{
		done:      msg.reply,
		relayedBy: make(map[int32]struct{}),
	}, ttlcache.DefaultTTL)

	log.Infof("Publishing transaction %s to %d peers", hash, len(m.peerStates))
	iv := wire.NewInvVect(wire.InvTypeTx, &hash)
	for p := range m.peerStates {
		p.PushInvMsg([]*wire.InvVect{iv})
	}
}

// onPublishEvicted hands publishes whose relay timeout expired to the block
// handler. It runs on the goroutine of the cache.
func (m *Manager) onPublishEvicted(_ context.Context, reason ttlcache.EvictionReason,
	item *ttlcache.Item[chainhash.Hash, *pendingPublish]) {

	if reason != ttlcache.EvictionReasonExpired {
		return
	}
	msg := &publishExpiredMsg{hash: item.Key(), pending: item.Value()}
	spawn("onPublishEvicted", func() {
		m.queue(msg)
	})
}

// handlePublishExpiredMsg stops serving a transaction that was not relayed
// in time and fails its publish.
func (m *Manager) handlePublishExpiredMsg(msg *publishExpiredMsg) {
	// The same transaction may have been published again since.
	if m.pendingPublishes.Get(msg.hash) == nil {
		delete(m.publishedTxs, msg.hash)
	}
	log.Warnf("Transaction %s was not relayed within %s", msg.hash, m.relayTimeout)
	metrics.PublishedTransactions.WithLabelValues("timeout").Inc()
	msg.pending.complete(errors.Wrapf(ErrRelayTimeout, "transaction %s", msg.hash))
}

// publishRelayed counts p towards the relay threshold of the published
// transaction hash.
func (m *Manager) publishRelayed(p *peer.Peer, hash *chainhash.Hash) {
	item := m.pendingPublishes.Get(*hash)
	if item == nil {
		return
	}
	pending := item.Value()
	pending.relayedBy[p.ID()] = struct{}{}
	if len(pending.relayedBy) < m.minRelayPeers {
		return
	}
	log.Infof("Transaction %s was relayed by %d peers", hash, len(pending.relayedBy))
	metrics.PublishedTransactions.WithLabelValues("relayed").Inc()
	pending.complete(nil)
	m.pendingPublishes.Delete(*hash)
}

// handleGetDataMsg serves published transactions. Everything else is
// answered with notfound.
func (m *Manager) handleGetDataMsg(gmsg *getDataMsg) {
	p := gmsg.peer
	notFound := wire.NewMsgNotFound()
	for _, iv := range gmsg.getData.InvList {
		tx, ok := m.publishedTxs[iv.Hash]
		if iv.Type != wire.InvTypeTx || !ok {
			err := notFound.AddInvVect(iv)
			if err != nil {
				log.Warnf("Too many unknown items requested by %s", p)
				break
			}
			continue
		}
		p.QueueMessage(tx, nil)
		m.publishRelayed(p, &iv.Hash)
	}
	if len(notFound.InvList) > 0 {
		p.QueueMessage(notFound, nil)
	}
}

// handleRejectMsg fails a pending publish the peer rejected, unless other
// peers already relayed the transaction.
func (m *Manager) handleRejectMsg(rmsg *rejectMsg) {
	p := rmsg.peer
	reject := rmsg.reject
	log.Infof("Peer %s rejected %s %s: %s (%q)", p, reject.Cmd, reject.Hash,
		reject.Code, reject.Reason)
	if reject.Cmd != wire.CmdTx {
		return
	}
	item := m.pendingPublishes.Get(reject.Hash)
	if item == nil {
		return
	}
	if m.relayCount(&reject.Hash) > 0 {
		p.AddBanScore(peer.BanScoreRejectedPublish, "rejected a relayed transaction")
		return
	}

	metrics.PublishedTransactions.WithLabelValues("rejected").Inc()
	item.Value().complete(errors.Wrapf(ErrTransactionRejected, "%s: %s", reject.Code, reject.Reason))
	m.pendingPublishes.Delete(reject.Hash)
	delete(m.publishedTxs, reject.Hash)
}

// recordRelay records that p announced or sent the transaction hash.
func (m *Manager) recordRelay(p *peer.Peer, hash *chainhash.Hash) {
	var relayedBy map[int32]struct{}
	if item := m.relays.Get(*hash); item != nil {
		relayedBy = item.Value()
	} else {
		relayedBy = make(map[int32]struct{})
		m.relays.Set(*hash, relayedBy, ttlcache.DefaultTTL)
	}
	if _, exists := relayedBy[p.ID()]; exists {
		return
	}
	relayedBy[p.ID()] = struct{}{}
	m.publishRelayed(p, hash)

	summary, ok := m.wallet.Transaction(hash)
	if !ok {
		return
	}
	m.notifier.Publish(&events.TxStatusChanged{
		TxHash:      *hash,
		Status:      summary.Status,
		BlockHeight: summary.BlockHeight,
		RelayCount:  m.relayCount(hash),
	})
}

// relayCount returns the number of connected peers that relayed hash.
func (m *Manager) relayCount(hash *chainhash.Hash) int {
	item := m.relays.Get(*hash)
	if item == nil {
		return 0
	}
	count := 0
	for p := range m.peerStates {
		if _, relayed := item.Value()[p.ID()]; relayed {
			count++
		}
	}
	return count
}
