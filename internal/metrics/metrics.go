// Package metrics exposes the client's Prometheus instrumentation and the
// optional HTTP listener serving it. Collectors are package-level and
// registered once via promauto; an empty metrics address in the config
// simply means no listener is started, the collectors still update.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionUp reports whether the streaming transport currently holds
	// an open session.
	ConnectionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goxtool_connection_up",
		Help: "Streaming connection status (1=connected, 0=down)",
	})

	// ReconnectsTotal counts dropped sessions, i.e. entries into the
	// fixed five-second reconnect pause.
	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goxtool_reconnects_total",
		Help: "Streaming session drops followed by a reconnect attempt",
	})

	// FramesTotal counts inbound stream frames by the message kind the
	// dispatcher routed them as.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goxtool_frames_total",
		Help: "Inbound stream frames by message kind",
	}, []string{"kind"})

	// CallsSentTotal counts signed streaming calls by endpoint, resends
	// included.
	CallsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goxtool_calls_sent_total",
		Help: "Signed streaming calls sent by endpoint",
	}, []string{"endpoint"})

	// CallResendsTotal counts bootstrap calls resent after the server
	// remarked a silent failure.
	CallResendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goxtool_call_resends_total",
		Help: "Bootstrap calls resent after a silent-failure remark",
	})

	// CallsExpiredTotal counts pending signed calls dropped by the sweeper
	// because no result ever arrived.
	CallsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goxtool_calls_expired_total",
		Help: "Pending signed calls dropped without a result",
	})

	// RestRequestsTotal counts HTTP API requests by endpoint and outcome.
	RestRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goxtool_rest_requests_total",
		Help: "REST API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// BookLevels tracks the price levels currently resting per book side.
	BookLevels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "goxtool_book_levels",
		Help: "Price levels currently resting per book side",
	}, []string{"side"})

	// OwnOrders tracks the own orders currently known to the book.
	OwnOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goxtool_own_orders",
		Help: "Own orders currently tracked",
	})

	// TradesTotal counts trades consumed from the stream, split into the
	// public feed and echoes of the account's own fills.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goxtool_trades_total",
		Help: "Trades consumed from the stream by scope (public or own)",
	}, []string{"scope"})

	// Candles tracks the size of the in-memory candle history.
	Candles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "goxtool_candles",
		Help: "Candles held in the in-memory history",
	})
)

// ObserveRest records one REST call outcome.
func ObserveRest(endpoint string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RestRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

// Server serves /metrics and /health on its own listener.
type Server struct {
	addr   string
	server *http.Server
	logger *slog.Logger
}

// NewServer builds a metrics listener for addr.
func NewServer(addr string, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return &Server{
		addr:   addr,
		logger: logger.With("component", "metrics"),
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until Stop is called. Blocks.
func (s *Server) Start() error {
	s.logger.Info("metrics listening", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Stop closes the listener.
func (s *Server) Stop() error {
	return s.server.Close()
}
