package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger and sync endpoints over HTTP",
	Long: `Start an HTTP server for the configured ledger.

Endpoints:
  GET  /health     health check
  GET  /ledger     the ledger in canonical form
  GET  /sync       last sync time
  POST /sync       run a sync (flags: dry_run, sort, opening_balances)
  GET  /download   preview new transactions as a ledger file

Example:
  ledger-sync serve
  LISTEN_ADDR=127.0.0.1:9000 ledger-sync serve`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	// Setup structured JSON logging.
	jsonLogs = true
	setupLogging(slog.LevelInfo)

	cfg := loadConfig([]string{"server", "listenAddr"})
	if err := cfg.Validate(cfg.SourceRequirements()...); err != nil {
		exitOnError(err, "invalid configuration")
	}

	s := openSession(cfg, nil)
	defer func() {
		if err := s.Close(); err != nil {
			slog.Error("failed to close session", "error", err)
		}
	}()

	srv := server.NewServer(cfg.Server.ListenAddr, s)

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting ledger-sync server", "addr", cfg.Server.ListenAddr, "ledger", s.LedgerPath())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		exitOnError(err, "server error")
	}

	slog.Info("server stopped")
}
