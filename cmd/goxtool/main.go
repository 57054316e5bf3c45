// goxtool — a live market client for the MtGox bitcoin exchange.
//
// Architecture:
//
//	main.go              — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go     — orchestrator: wires client → book/history → strategy, owns wallet state
//	exchange/client.go   — streaming client: frame dispatch, signed call multiplexer, reconnect loop
//	exchange/transport   — the two duplex transports (plain websocket and socket.io 0.9)
//	exchange/rest.go     — REST snapshots (full depth, trade backlog) and order add/cancel
//	market/book.go       — order book mirror fed by ticker/depth/trade events, tracks own orders
//	market/history.go    — trade-to-candle aggregator (OHLCV, fixed timeframe)
//	strategy/registry.go — named strategy factories, observer attached by default
//	signal/signal.go     — typed publish/subscribe primitive connecting all of the above
//
// Keys typed on stdin are forwarded to the strategy (the observer answers
// b=book, c=candle, o=orders, w=wallet). Credentials come from the config
// file or GOXTOOL_SECRET_KEY / GOXTOOL_SECRET_SECRET; without them the
// client runs read-only.
package main

import (
	"bufio"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/5l1v3r1/goxtool/internal/config"
	"github.com/5l1v3r1/goxtool/internal/engine"
	"github.com/5l1v3r1/goxtool/internal/metrics"
	"github.com/5l1v3r1/goxtool/internal/strategy"
)

func main() {
	cfgPath := os.Getenv("GOXTOOL_CONFIG")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	// Create engine and attach the configured strategy
	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	strat, err := strategy.New(cfg.Gox.Strategy, eng, logger)
	if err != nil {
		logger.Error("failed to create strategy", "error", err)
		os.Exit(1)
	}

	// Start metrics listener if configured
	var metricsServer *metrics.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	eng.Start()

	logger.Info("goxtool started",
		"currency", cfg.Gox.Currency,
		"strategy", cfg.Gox.Strategy,
		"transport", transportName(cfg.Gox.UsePlainOldWebsocket),
		"read_only", cfg.Gox.SecretKey == "",
	)

	// Forward typed keys to the strategy until stdin closes
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			key, _, err := reader.ReadRune()
			if err != nil {
				return
			}
			if key == '\n' || key == '\r' {
				continue
			}
			strat.OnKey(key)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	strat.OnBeforeUnload()
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}
	eng.Stop()
}

func transportName(plainWebsocket bool) string {
	if plainWebsocket {
		return "websocket"
	}
	return "socketio"
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
