package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentbroker/broker/internal/config"
	"github.com/agentbroker/broker/internal/logging"
	"github.com/agentbroker/broker/internal/maintainer"
	"github.com/agentbroker/broker/internal/server"
	"github.com/agentbroker/broker/internal/session"
	"github.com/agentbroker/broker/internal/storage"
)

var (
	servePort   int
	serveConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config/env)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to a YAML config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	logging.Info().Str("version", Version).Msg("starting broker")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	configPath := serveConfig
	if configPath == "" {
		if _, err := os.Stat("broker.yaml"); err == nil {
			configPath = "broker.yaml"
		} else {
			configPath = config.DefaultConfigPath()
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if cfg.Storage == config.StorageSQLite && cfg.SQLitePath == "broker.db" {
		cfg.SQLitePath = paths.DefaultSQLitePath()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	mgr := session.NewManager(cfg, store, logging.Logger)

	maint := maintainer.New(mgr, cfg, logging.Logger)
	maint.Start()

	httpCfg := server.DefaultConfig()
	httpCfg.Port = cfg.Port
	srv := server.New(httpCfg, mgr, cfg.Storage, logging.Logger)

	go func() {
		logging.Info().Int("port", cfg.Port).Msg("listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	maint.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown")
	}
	mgr.Shutdown()

	logging.Info().Msg("stopped")
	return nil
}

func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		return storage.NewSQLiteStore(cfg.SQLitePath)
	case config.StoragePostgreSQL:
		return storage.NewPostgresStore(context.Background(), cfg.Postgres)
	default:
		return storage.NewMemoryStore(), nil
	}
}
