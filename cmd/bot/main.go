// Polymarket Quoter — an automated quoting bot for Polymarket binary
// prediction markets, built around liquidity-reward (sponsored) markets.
//
// Architecture:
//
//	main.go              — entry point: loads config, wires everything, waits for SIGINT/SIGTERM
//	engine/engine.go     — periodic cycle driver with overlap guard and health counters
//	engine/cycle.go      — one trading cycle: breaker → catalog → enrich → select → quote
//	engine/reconcile.go  — aligns resting venue orders with target quotes per (token, side)
//	market/              — Gamma catalog fetch, reward-pool lookup, book enrichment, scoring
//	strategy/quoter.go   — two-sided quote: dynamic spread, inventory skew, tick alignment
//	strategy/paper.go    — paper-trading fill simulator with spread-capture PnL
//	exchange/            — CLOB REST client, L1/L2 auth, per-category rate limits
//	risk/governor.go     — daily circuit breaker (latched per UTC date) and position repair
//	store/store.go       — SQLite persistence: positions, daily PnL, trade log
//	oracle/oracle.go     — advisory spot-price reference for crypto-keyword markets
//	api/                 — JSON action dispatch, health endpoints, log-line WebSocket
//
// How it makes money:
//
//	The bot quotes both sides of markets whose sponsors pay daily liquidity
//	rewards, capturing the bid-ask spread plus the reward pool share while
//	keeping inventory centered via price skew and hard position caps.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"polymarket-quoter/internal/api"
	"polymarket-quoter/internal/config"
	"polymarket-quoter/internal/engine"
	"polymarket-quoter/internal/exchange"
	"polymarket-quoter/internal/store"
)

func main() {
	// .env is optional; real deployments set POLY_* directly.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

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

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("failed to open store", "error", err, "path", cfg.Store.Path)
		os.Exit(1)
	}
	defer st.Close()

	// Venue client. Paper mode runs unauthenticated (book reads only);
	// live mode signs with the wallet and derives L2 credentials when the
	// config does not carry them.
	var client *exchange.Client
	if cfg.Paper {
		client = exchange.NewClient(*cfg, nil, logger)
		logger.Info("paper mode — no orders will reach the venue")
	} else {
		auth, err := exchange.NewAuth(*cfg)
		if err != nil {
			logger.Error("failed to build signer", "error", err)
			os.Exit(1)
		}
		client = exchange.NewClient(*cfg, auth, logger)

		if !auth.HasL2Credentials() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			if _, err := client.DeriveAPIKey(ctx); err != nil {
				cancel()
				logger.Error("failed to derive API credentials", "error", err)
				os.Exit(1)
			}
			cancel()
		}
		logger.Info("live mode", "address", auth.Address().Hex(), "api_key", auth.APIKeyPrefix())
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	eng := engine.New(*cfg, client, st, rng, logger)

	// Venue-backed API actions (cancel_all, derive_creds, whoami probes)
	// only work in live mode; the paper client has no signer.
	var venue api.VenueControl
	if !cfg.Paper {
		venue = client
	}
	apiServer := api.NewServer(cfg.Dashboard, eng, venue, st, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("control api failed", "error", err)
		}
	}()
	logger.Info("control api started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))

	if cfg.Dashboard.StartPaused {
		logger.Info("starting paused — send {\"action\":\"start\"} to begin quoting")
	} else {
		eng.Start()
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("polymarket quoter started",
		"paper", cfg.Paper,
		"max_markets", cfg.Selection.MaxMarkets,
		"order_size", cfg.Quoting.OrderSize,
		"interval", cfg.Interval(),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("failed to stop control api", "error", err)
	}
	eng.Stop()
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
