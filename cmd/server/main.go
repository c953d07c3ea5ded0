/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the fabric ledger server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from environment
  2. Initialize structured logging
  3. Open SQLite store
  4. Audit cached stock totals against the ledger
  5. Wire engine, aggregator, queries, and reconciler into the API
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT:
  LEDGER_ADDR        Listen address (default :8090)
  LEDGER_DB_PATH     SQLite database path; ":memory:" for in-memory
  LEDGER_LOG_LEVEL   trace, debug, info, warn, error
  LEDGER_LOG_FORMAT  pretty or json

COMMAND-LINE FLAGS:
  -addr    Listen address (overrides LEDGER_ADDR)
  -db      SQLite database path (overrides LEDGER_DB_PATH)

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/loomworks/fabric-ledger/api"
	"github.com/loomworks/fabric-ledger/config"
	"github.com/loomworks/fabric-ledger/ledger"
	"github.com/loomworks/fabric-ledger/report"
	"github.com/loomworks/fabric-ledger/store/sqlite"
)

func main() {
	addr := flag.String("addr", "", "listen address (overrides LEDGER_ADDR)")
	dbPath := flag.String("db", "", "SQLite database path (overrides LEDGER_DB_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	log := newLogger(cfg)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", cfg.DBPath).Msg("failed to initialize database")
	}
	defer store.Close()

	engine := ledger.NewEngine(store, log)
	aggregator := ledger.NewAggregator(store)
	queries := ledger.NewQueries(store)
	reconciler := ledger.NewReconciler(store, log)
	reports := report.NewGenerator(aggregator, queries, cfg.ReportDir, log)

	// Flag drift between cached stock and the ledger before serving.
	if drifts, err := reconciler.Audit(context.Background()); err != nil {
		log.Warn().Err(err).Msg("startup stock audit failed")
	} else if len(drifts) > 0 {
		log.Warn().Int("items", len(drifts)).Msg("stock drift detected; run reconciliation repair")
	}

	handler := api.NewHandler(engine, aggregator, queries, reconciler, reports, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.LogFormat == "pretty" {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}
	return zerolog.New(w).Level(parseLevel(cfg.LogLevel)).With().Timestamp().Logger()
}

func parseLevel(s string) zerolog.Level {
	switch s {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
