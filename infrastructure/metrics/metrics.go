// Package metrics holds the prometheus metrics of the SPV engine and serves
// them over HTTP.
package metrics

import (
	"net/http"
	"time"

	"github.com/dashpay/dashspv/infrastructure/logger"
	"github.com/dashpay/dashspv/util/panics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashspv"

var log = logger.RegisterSubSystem("MTRC")
var spawn = panics.GoroutineWrapperFunc(log)

var (
	// ConnectedPeers is the number of peers that completed the handshake.
	ConnectedPeers prometheus.Gauge

	// SyncHeight is the height of the main chain tip.
	SyncHeight prometheus.Gauge

	// DownloadPeerHeight is the chain height the download peer announced.
	DownloadPeerHeight prometheus.Gauge

	// MerkleBlocksProcessed counts merkle blocks accepted into the chain.
	MerkleBlocksProcessed prometheus.Counter

	// RejectedBlocks counts blocks that failed validation, by reason.
	RejectedBlocks *prometheus.CounterVec

	// MisbehavingPeers counts peers that crossed the ban threshold.
	MisbehavingPeers prometheus.Counter

	// PublishedTransactions counts publish attempts, by result.
	PublishedTransactions *prometheus.CounterVec

	// FilterLoads counts bloom filters sent to peers.
	FilterLoads prometheus.Counter
)

func init() {
	ConnectedPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "peers",
		Name:      "connected",
		Help:      "Number of connected peers",
	})
	SyncHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "height",
		Help:      "Height of the main chain tip",
	})
	DownloadPeerHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "download_peer_height",
		Help:      "Chain height announced by the download peer",
	})
	MerkleBlocksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "merkle_blocks_processed",
		Help:      "Number of merkle blocks connected to the chain",
	})
	RejectedBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "rejected_blocks",
		Help:      "Number of blocks that failed validation",
	}, []string{"reason"})
	MisbehavingPeers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "peers",
		Name:      "misbehaving",
		Help:      "Number of peers disconnected for misbehavior",
	})
	PublishedTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wallet",
		Name:      "published_transactions",
		Help:      "Number of published transactions",
	}, []string{"result"})
	FilterLoads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "peers",
		Name:      "filter_loads",
		Help:      "Number of bloom filters sent to peers",
	})
}

// Server serves the registered metrics on /metrics.
type Server struct {
	httpServer *http.Server
}

// NewServer returns a metrics server listening on listenAddr once started.
func NewServer(listenAddr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		httpServer: &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start starts listening in the background.
func (s *Server) Start() {
	log.Infof("Serving metrics on %s", s.httpServer.Addr)
	spawn("Server.Start", func() {
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server stopped: %s", err)
		}
	})
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	return s.httpServer.Close()
}
