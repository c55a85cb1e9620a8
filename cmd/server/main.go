package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/ultrapreps/hypehub/internal/config"
	"github.com/ultrapreps/hypehub/internal/hub"
	"github.com/ultrapreps/hypehub/internal/ledger"
	"github.com/ultrapreps/hypehub/internal/logging"
	"github.com/ultrapreps/hypehub/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupLedger(cfg *config.Config) hub.HypeLedger {
	if cfg.LedgerURL == "" {
		slog.Warn("LEDGER_URL not set, hype totals are process-local only")
		return ledger.NewMemory()
	}
	return ledger.NewHTTPClient(cfg.LedgerURL)
}

func runGracefulShutdown(srv *server.Server, h *hub.Hub, cfg *config.Config) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, draining connections...")

		// Stop accepting new connections first, then drain every
		// active connection through the normal disconnect path.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		h.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Hub starting", "env", cfg.AppEnv, "port", cfg.Port)

	hypeLedger := setupLedger(cfg)

	h := hub.New(hypeLedger, clock, hub.Config{
		MaxConnections: cfg.MaxConnections,
		SendBufferSize: cfg.SendBufferSize,
		Backpressure:   hub.BackpressurePolicy(cfg.BackpressurePolicy),
		StopTimeout:    cfg.ShutdownTimeout,
	})

	srv := server.NewServer(cfg, h)

	done := runGracefulShutdown(srv, h, cfg)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
