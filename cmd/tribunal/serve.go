package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpAdapter "github.com/oralsim/tribunal/internal/adapters/http"
	"github.com/oralsim/tribunal/internal/config"
	"github.com/oralsim/tribunal/internal/logging"
	"github.com/oralsim/tribunal/internal/metrics"
	"github.com/oralsim/tribunal/pkg/adapters/memory"
	"github.com/oralsim/tribunal/pkg/adapters/redis"
	"github.com/oralsim/tribunal/pkg/adapters/sqlite"
	"github.com/oralsim/tribunal/pkg/coordinator"
	"github.com/oralsim/tribunal/pkg/domain"
	"github.com/oralsim/tribunal/pkg/graph"
	"github.com/oralsim/tribunal/pkg/persistence/middleware"
	"github.com/oralsim/tribunal/pkg/ports"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the session gateway",
	Long:  `Loads the dialogue graphs, opens the configured session store and exposes the JSON API over HTTP. Configuration comes from TRIBUNAL_* environment variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.ParseEnv()
		if err != nil {
			return err
		}
		// Flags win over environment when set explicitly.
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetString("port")
		}
		if cmd.Flags().Changed("graphs") {
			cfg.GraphsDir, _ = cmd.Flags().GetString("graphs")
		}
		if cmd.Flags().Changed("store") {
			cfg.Store, _ = cmd.Flags().GetString("store")
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("graphs", "./graphs", "Directory containing YAML dialogue graphs")
	serveCmd.Flags().String("store", "memory", "Session store backend: memory, redis or sqlite")
}

func runServe(cfg config.Server) error {
	logger := logging.New(logLevel(cfg.LogLevel))

	registry, err := graph.LoadDir(cfg.GraphsDir)
	if err != nil {
		return fmt.Errorf("load graphs from %s: %w", cfg.GraphsDir, err)
	}
	logger.Info("graphs loaded", "dir", cfg.GraphsDir, "graphs", registry.List())

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("session store ready", "backend", cfg.Store)

	m := metrics.New()
	wrapped := middleware.Chain(store,
		middleware.NewLoggingMiddleware(logger),
		middleware.NewInstrumentationMiddleware(m.StoreOps),
	)

	coord := coordinator.New(registry, wrapped,
		coordinator.WithLogger(logger),
		coordinator.WithTieBreakPolicy(domain.TieBreakPolicy(cfg.TieBreak)),
	)

	server := httpAdapter.NewServer(coord,
		httpAdapter.WithLogger(logger),
		httpAdapter.WithMetrics(m),
		httpAdapter.WithJWTSecret([]byte(cfg.JWTSecret)),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
		}
		logger.Info("gateway stopped")
	}
	return nil
}

func openStore(cfg config.Server) (ports.SessionStore, func(), error) {
	switch cfg.Store {
	case "memory":
		return memory.NewStore(), func() {}, nil
	case "redis":
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return store, func() { _ = store.Close() }, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func logLevel(name string) slog.Level {
	switch name {
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
