package netsync

import (
	"context"
	"testing"
	"time"

	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/wire"
	"github.com/pkg/errors"
)

// publishAsync runs PublishTransaction in the background and returns the
// channel its result is delivered on.
func publishAsync(h *testHarness, tx *wire.MsgTx) <-chan error {
	result := make(chan error, 1)
	go func() {
		result <- h.manager.PublishTransaction(context.Background(), tx)
	}()
	return result
}

func waitForResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for the publish result")
	}
	return nil
}

func TestPublishTransaction(t *testing.T) {
	h := newTestHarness(t, nil)
	_, node := h.connectPeer(0)
	node.expect(wire.CmdMemPool)

	tx := fundingTx(t, h.wallet, oneDash, 1)
	hash := tx.TxHash()
	result := publishAsync(h, tx)

	inv := node.expect(wire.CmdInv).(*wire.MsgInv)
	if len(inv.InvList) != 1 || inv.InvList[0].Hash != hash {
		t.Fatalf("unexpected inv %v", inv.InvList)
	}

	getData := wire.NewMsgGetData()
	err := getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	if err != nil {
		t.Fatalf("AddInvVect unexpectedly failed: %s", err)
	}
	node.write(getData)

	served := node.expect(wire.CmdTx).(*wire.MsgTx)
	if served.TxHash() != hash {
		t.Fatalf("served transaction %s, want %s", served.TxHash(), hash)
	}
	err = waitForResult(t, result)
	if err != nil {
		t.Fatalf("PublishTransaction unexpectedly failed: %s", err)
	}

	summary, ok := h.wallet.Transaction(&hash)
	if !ok || summary.Status != events.TxStatusUnconfirmed {
		t.Errorf("published transaction is not registered as unconfirmed")
	}

	// A later announcement by the peer counts as a relay.
	announce := wire.NewMsgInv()
	err = announce.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	if err != nil {
		t.Fatalf("AddInvVect unexpectedly failed: %s", err)
	}
	node.write(announce)
	waitFor(t, "relay count", func() bool {
		return h.manager.RelayCountForTransaction(&hash) == 1
	})
	waitFor(t, "status change with relay count", func() bool {
		event, ok := h.notifier.last(events.TopicTxStatusChanged).(*events.TxStatusChanged)
		return ok && event.TxHash == hash && event.RelayCount == 1
	})
	node.expectNone(wire.CmdGetData, 50*time.Millisecond)
}

func TestPublishTransactionUnknownRequest(t *testing.T) {
	h := newTestHarness(t, nil)
	_, node := h.connectPeer(0)
	node.expect(wire.CmdMemPool)

	getData := wire.NewMsgGetData()
	err := getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, fakeTxHash(7)))
	if err != nil {
		t.Fatalf("AddInvVect unexpectedly failed: %s", err)
	}
	node.write(getData)

	notFound := node.expect(wire.CmdNotFound).(*wire.MsgNotFound)
	if len(notFound.InvList) != 1 || notFound.InvList[0].Hash != *fakeTxHash(7) {
		t.Errorf("unexpected notfound %v", notFound.InvList)
	}
}

func TestPublishTransactionTimeout(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.RelayTimeout = 100 * time.Millisecond
	})
	_, node := h.connectPeer(0)
	node.expect(wire.CmdMemPool)

	tx := fundingTx(t, h.wallet, oneDash, 1)
	result := publishAsync(h, tx)
	node.expect(wire.CmdInv)

	err := waitForResult(t, result)
	if !errors.Is(err, ErrRelayTimeout) {
		t.Fatalf("expected ErrRelayTimeout, got %v", err)
	}
	hash := tx.TxHash()
	if _, ok := h.wallet.Transaction(&hash); !ok {
		t.Errorf("timed out transaction was removed from the wallet")
	}

	// The timed out transaction is no longer served.
	getData := wire.NewMsgGetData()
	err = getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	if err != nil {
		t.Fatalf("AddInvVect unexpectedly failed: %s", err)
	}
	node.write(getData)
	notFound := node.expect(wire.CmdNotFound).(*wire.MsgNotFound)
	if len(notFound.InvList) != 1 || notFound.InvList[0].Hash != hash {
		t.Errorf("unexpected notfound %v", notFound.InvList)
	}

	// Publishing it again announces it again.
	result = publishAsync(h, tx)
	node.expect(wire.CmdInv)
	err = waitForResult(t, result)
	if !errors.Is(err, ErrRelayTimeout) {
		t.Fatalf("expected ErrRelayTimeout, got %v", err)
	}
}

func TestPublishTransactionNoPeers(t *testing.T) {
	h := newTestHarness(t, nil)
	tx := fundingTx(t, h.wallet, oneDash, 1)

	err := h.manager.PublishTransaction(context.Background(), tx)
	if !errors.Is(err, ErrNoPeers) {
		t.Fatalf("expected ErrNoPeers, got %v", err)
	}
}

func TestPublishTransactionRejected(t *testing.T) {
	h := newTestHarness(t, nil)
	_, node := h.connectPeer(0)
	node.expect(wire.CmdMemPool)

	tx := fundingTx(t, h.wallet, oneDash, 1)
	result := publishAsync(h, tx)
	node.expect(wire.CmdInv)

	reject := wire.NewMsgReject(wire.CmdTx, wire.RejectInvalid, "bad-txns-inputs-missingorspent")
	reject.Hash = tx.TxHash()
	node.write(reject)

	err := waitForResult(t, result)
	if !errors.Is(err, ErrTransactionRejected) {
		t.Fatalf("expected ErrTransactionRejected, got %v", err)
	}
}

func TestPublishTransactionRejectedAfterRelay(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.MinRelayPeers = 2
		cfg.RelayTimeout = 200 * time.Millisecond
	})
	_, node1 := h.connectPeer(0)
	node1.expect(wire.CmdMemPool)
	p2, node2 := h.connectPeer(0)
	node2.expect(wire.CmdMemPool)

	tx := fundingTx(t, h.wallet, oneDash, 1)
	hash := tx.TxHash()
	result := publishAsync(h, tx)
	node1.expect(wire.CmdInv)
	node2.expect(wire.CmdInv)

	announce := wire.NewMsgInv()
	err := announce.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &hash))
	if err != nil {
		t.Fatalf("AddInvVect unexpectedly failed: %s", err)
	}
	node1.write(announce)
	waitFor(t, "relay count", func() bool {
		return h.manager.RelayCountForTransaction(&hash) == 1
	})

	reject := wire.NewMsgReject(wire.CmdTx, wire.RejectInvalid, "bad-txns")
	reject.Hash = hash
	node2.write(reject)
	waitFor(t, "ban score increase", func() bool {
		return p2.BanScore() > 0
	})

	// One relay is short of the threshold, so the publish still times out.
	err = waitForResult(t, result)
	if !errors.Is(err, ErrRelayTimeout) {
		t.Fatalf("expected ErrRelayTimeout, got %v", err)
	}
}
