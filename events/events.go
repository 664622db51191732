// Package events carries the notifications the SPV engine emits to outside
// observers. Publishers never learn who is subscribed.
package events

import (
	"github.com/asaskevich/EventBus"
	"github.com/dashpay/dashspv/util"
	"github.com/dashpay/dashspv/util/chainhash"
	"github.com/pkg/errors"
)

// Topic names a kind of event.
type Topic string

// The topics emitted by the engine.
const (
	TopicSyncStarted     Topic = "sync_started"
	TopicSyncFinished    Topic = "sync_finished"
	TopicSyncFailed      Topic = "sync_failed"
	TopicTxStatusChanged Topic = "tx_status_changed"
	TopicBalanceChanged  Topic = "balance_changed"
	TopicPeersChanged    Topic = "peers_changed"
)

// Event is implemented by every event payload.
type Event interface {
	Topic() Topic
}

// SyncStarted is published when the sync manager starts downloading from a
// peer.
type SyncStarted struct {
	StartHeight int32
	PeerHeight  int32
}

// Topic implements Event.
func (*SyncStarted) Topic() Topic { return TopicSyncStarted }

// SyncFinished is published once the chain caught up with the download
// peer.
type SyncFinished struct {
	Height int32
}

// Topic implements Event.
func (*SyncFinished) Topic() Topic { return TopicSyncFinished }

// SyncFailed is published when sync stops before catching up, for example
// because no peer is left to download from.
type SyncFailed struct {
	Err error
}

// Topic implements Event.
func (*SyncFailed) Topic() Topic { return TopicSyncFailed }

// TxStatus is the state of a wallet transaction.
type TxStatus int

// The possible transaction states.
const (
	TxStatusPending TxStatus = iota
	TxStatusUnconfirmed
	TxStatusConfirmed
	TxStatusInvalid
	TxStatusRemoved
)

var txStatusStrings = map[TxStatus]string{
	TxStatusPending:     "pending",
	TxStatusUnconfirmed: "unconfirmed",
	TxStatusConfirmed:   "confirmed",
	TxStatusInvalid:     "invalid",
	TxStatusRemoved:     "removed",
}

func (s TxStatus) String() string {
	if str, ok := txStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// TxStatusChanged is published when a wallet transaction is registered,
// confirmed, relayed, invalidated or removed.
type TxStatusChanged struct {
	TxHash      chainhash.Hash
	Status      TxStatus
	BlockHeight int32
	RelayCount  int
}

// Topic implements Event.
func (*TxStatusChanged) Topic() Topic { return TopicTxStatusChanged }

// BalanceChanged is published whenever the wallet balance changes.
type BalanceChanged struct {
	Balance util.Amount
}

// Topic implements Event.
func (*BalanceChanged) Topic() Topic { return TopicBalanceChanged }

// PeersChanged is published when a peer connects or disconnects.
type PeersChanged struct {
	Connected int
}

// Topic implements Event.
func (*PeersChanged) Topic() Topic { return TopicPeersChanged }

// Notifier is implemented by anything events can be published to.
type Notifier interface {
	Publish(event Event)
}

// Handler receives the events of the topics it was subscribed to.
type Handler func(event Event)

// Bus dispatches events to subscribed handlers. Every handler runs on its
// own goroutine and receives events one at a time, in publish order.
type Bus struct {
	bus EventBus.Bus
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{bus: EventBus.New()}
}

// Publish implements Notifier.
func (b *Bus) Publish(event Event) {
	b.bus.Publish(string(event.Topic()), event)
}

// Subscribe registers handler for topic. The same handler value must be
// passed to Unsubscribe.
func (b *Bus) Subscribe(topic Topic, handler Handler) error {
	err := b.bus.SubscribeAsync(string(topic), handler, true)
	if err != nil {
		return errors.Wrapf(err, "failed subscribing to %s", topic)
	}
	return nil
}

// Unsubscribe removes a handler registered with Subscribe.
func (b *Bus) Unsubscribe(topic Topic, handler Handler) error {
	err := b.bus.Unsubscribe(string(topic), handler)
	if err != nil {
		return errors.Wrapf(err, "failed unsubscribing from %s", topic)
	}
	return nil
}

// WaitAsync blocks until every published event was handled.
func (b *Bus) WaitAsync() {
	b.bus.WaitAsync()
}

// Nop is a Notifier that drops every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(Event) {}
