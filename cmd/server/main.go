/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the repasse engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, YAML file, REPASSE_* env, flags)
  2. Build the zap logger
  3. Open the store selected by database.driver
  4. Create the closer and API handler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS (override file and environment):
  -config    YAML config file
  -port      HTTP server port
  -driver    sqlite | postgres | memory
  -db        SQLite path or Postgres DSN
             Use ":memory:" for an in-memory SQLite database
  -log-mode  development | production

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (http.shutdown_timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/repasse.db"

  # Run against Postgres
  ./server -driver=postgres -db="postgres://repasse@localhost/repasse"

  # Run with in-memory store
  ./server -driver=memory

SEE ALSO:
  - config/config.go: Configuration layers
  - api/server.go: Router configuration
  - payout/closer.go: The close operation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/warp/repasse-engine/api"
	"github.com/warp/repasse-engine/config"
	"github.com/warp/repasse-engine/logger"
	"github.com/warp/repasse-engine/payout"
	"github.com/warp/repasse-engine/store/gormstore"
	"github.com/warp/repasse-engine/store/memory"
	"github.com/warp/repasse-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "", "YAML config file")
	port := flag.Int("port", 8080, "HTTP server port")
	driver := flag.String("driver", config.DriverSQLite, "Store driver: sqlite, postgres or memory")
	dsn := flag.String("db", "repasse.db", "SQLite database path or Postgres DSN")
	logMode := flag.String("log-mode", "development", "Log mode: development or production")
	flag.Parse()

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.HTTP.Addr = fmt.Sprintf(":%d", *port)
		case "driver":
			cfg.Database.Driver = *driver
		case "db":
			cfg.Database.DSN = *dsn
		case "log-mode":
			cfg.Log.Mode = *logMode
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Initialize store
	store, err := openStore(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	limit, err := cfg.RollLimit()
	if err != nil {
		return err
	}
	closer := payout.NewCloser(store, log.With("component", "closer"))
	closer.MaxRollFraction = limit

	handler := api.NewHandler(store, closer, log.With("component", "api"))
	router := api.NewRouter(handler, api.RouterOptions{CORSOrigins: cfg.HTTP.CORSOrigins})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "addr", cfg.HTTP.Addr, "driver", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}

func openStore(db config.DatabaseConfig, log *logger.Logger) (payout.Store, error) {
	switch db.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		return gormstore.OpenPostgres(db.DSN, log.With("component", "gorm"))
	case config.DriverSQLite:
		return sqlite.New(db.DSN)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", config.ErrInvalidConfig, db.Driver)
	}
}
