// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dashpay/dashspv/dbaccess"
	"github.com/dashpay/dashspv/events"
	"github.com/dashpay/dashspv/infrastructure/config"
	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/infrastructure/metrics"
	"github.com/dashpay/dashspv/infrastructure/os/signal"
	"github.com/dashpay/dashspv/keychain/bip32"
	"github.com/dashpay/dashspv/spv"
	"github.com/dashpay/dashspv/util/panics"
	"github.com/dashpay/dashspv/version"
	"github.com/dashpay/dashspv/wallet"
	"github.com/dashpay/dashspv/wallet/keystore"
	"github.com/pkg/errors"
)

func main() {
	defer panics.HandlePanic(log, "main", nil)

	if err := dashspvMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dashspvMain() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	defer logger.BackendLog.Close()

	interrupt := signal.InterruptListener()

	log.Infof("Version %s", version.Version())
	log.Infof("Loading database from '%s'", cfg.DataDir)
	databaseContext, err := dbaccess.New(cfg.DataDir)
	if err != nil {
		return errors.Wrapf(err, "failed opening the database at %s", cfg.DataDir)
	}
	defer func() {
		err := databaseContext.Close()
		if err != nil {
			log.Errorf("Error closing the database: %s", err)
		}
	}()

	ks, err := openWallet(cfg, databaseContext)
	if err != nil {
		return err
	}
	accountKey, err := bip32.DeserializeExtendedKey(ks.ExtendedPublicKey)
	if err != nil {
		return errors.Wrap(err, "the stored account key is corrupted")
	}

	if cfg.MetricsListen != "" {
		metricsServer := metrics.NewServer(cfg.MetricsListen)
		metricsServer.Start()
		defer func() {
			err := metricsServer.Stop()
			if err != nil {
				log.Errorf("Error stopping the metrics server: %s", err)
			}
		}()
	}

	engine, err := spv.New(&spv.Config{
		Params:            cfg.NetParams(),
		DatabaseContext:   databaseContext,
		WalletID:          cfg.WalletID,
		AccountKey:        accountKey,
		EarliestKeyTime:   ks.EarliestKeyTime,
		ExternalGapLimit:  cfg.ExternalGapLimit,
		InternalGapLimit:  cfg.InternalGapLimit,
		FeePerKb:          cfg.FeePerKb,
		MaxPeers:          cfg.MaxPeers,
		ConnectPeers:      cfg.ConnectPeers,
		DisableDNSSeed:    cfg.DisableDNSSeed,
		Dial:              cfg.Dial,
		UserAgentComments: cfg.UserAgentComments,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		PingInterval:      cfg.PingInterval,
		PingTimeout:       cfg.PingTimeout,
		RelayTimeout:      cfg.RelayTimeout,
		BanThreshold:      cfg.BanThreshold,
		BanDuration:       cfg.BanDuration,
	})
	if err != nil {
		return err
	}

	err = subscribeReporters(engine)
	if err != nil {
		return err
	}
	if cfg.PayTo != nil {
		err = scheduleSend(engine, ks, cfg)
		if err != nil {
			return err
		}
	}

	err = engine.Start()
	if err != nil {
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the SPV engine...")
		err := engine.Stop()
		if err != nil {
			log.Errorf("Error stopping the SPV engine: %s", err)
		}
	}()

	log.Infof("Wallet balance: %s", engine.Wallet().Balance())
	log.Infof("Receive address: %s", engine.Wallet().ReceiveAddress())

	<-interrupt
	return nil
}

// subscribeReporters logs the engine's events.
func subscribeReporters(engine *spv.Engine) error {
	handlers := map[events.Topic]events.Handler{
		events.TopicSyncStarted: func(event events.Event) {
			e := event.(*events.SyncStarted)
			log.Infof("Syncing from height %d to %d", e.StartHeight, e.PeerHeight)
		},
		events.TopicSyncFinished: func(event events.Event) {
			log.Infof("Synced to height %d", event.(*events.SyncFinished).Height)
		},
		events.TopicSyncFailed: func(event events.Event) {
			log.Warnf("Sync failed: %s", event.(*events.SyncFailed).Err)
		},
		events.TopicBalanceChanged: func(event events.Event) {
			log.Infof("Wallet balance: %s", event.(*events.BalanceChanged).Balance)
		},
		events.TopicTxStatusChanged: func(event events.Event) {
			e := event.(*events.TxStatusChanged)
			log.Infof("Transaction %s is %s (height %d, relayed by %d peers)",
				e.TxHash, e.Status, e.BlockHeight, e.RelayCount)
		},
		events.TopicPeersChanged: func(event events.Event) {
			log.Debugf("Connected to %d peers", event.(*events.PeersChanged).Connected)
		},
	}
	for topic, handler := range handlers {
		err := engine.Subscribe(topic, handler)
		if err != nil {
			return err
		}
	}
	return nil
}

// scheduleSend sends the configured payment once, after the first
// completed sync.
func scheduleSend(engine *spv.Engine, ks *keystore.Keystore, cfg *config.Config) error {
	var once sync.Once
	return engine.Subscribe(events.TopicSyncFinished, func(event events.Event) {
		once.Do(func() {
			spawn("scheduleSend", func() {
				outputs := []wallet.Output{{Address: cfg.PayTo, Amount: cfg.Amount}}
				tx, err := engine.Send(context.Background(), outputs, seedSource(ks))
				if err != nil {
					log.Errorf("Failed sending %s to %s: %s", cfg.Amount, cfg.PayTo, err)
					signal.ShutdownRequestChannel <- struct{}{}
					return
				}
				log.Infof("Sent %s to %s in transaction %s", cfg.Amount, cfg.PayTo, tx.TxHash())
			})
		})
	})
}
