package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Werdo/ose-platform-sub000/internal/config"
	"github.com/Werdo/ose-platform-sub000/internal/core"
	"github.com/Werdo/ose-platform-sub000/internal/logging"
	"github.com/Werdo/ose-platform-sub000/internal/metrics"
	"github.com/Werdo/ose-platform-sub000/internal/registry"
	"github.com/Werdo/ose-platform-sub000/internal/store/memory"
	"github.com/Werdo/ose-platform-sub000/internal/store/postgres"
	"github.com/Werdo/ose-platform-sub000/internal/store/sqlite"
	"github.com/Werdo/ose-platform-sub000/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"max_batch_size", cfg.Generation.MaxBatchSize,
		"gen_max_concurrent", cfg.Generation.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()

	reg, err := registry.Load(cfg.Registry.File, registry.Options{
		ExpectedMII:          cfg.Registry.ExpectedMII,
		DefaultIINLength:     cfg.Registry.DefaultIINLength,
		MaxIINLength:         cfg.Registry.MaxIINLength,
		MaxCountryCodeLength: cfg.Registry.MaxCountryCodeLength,
	})
	if err != nil {
		slog.Error("failed to load registry", "file", cfg.Registry.File, "error", err)
		os.Exit(1)
	}
	slog.Info("registry loaded",
		"version", reg.Version(),
		"checksum", reg.Checksum(),
		"profiles", reg.ProfileCount(),
		"countries", reg.CountryCount(),
	)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open batch store", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	service := core.NewService(store, reg, cfg, m)
	server := web.NewServer(service, cfg, m.Handler())

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Stop taking requests first so no new generation can start.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		if status := service.GenerationStatus(); status.Active > 0 {
			slog.Info("waiting for generations to complete", "active", status.Active)
			if err := service.WaitForGenerations(shutdownCtx); err != nil {
				slog.Warn("generations did not complete in time", "error", err)
			} else {
				slog.Info("all generations completed")
			}
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}

// openStore builds the configured BatchStore and runs its migrations. The
// returned func releases the underlying connections.
func openStore(ctx context.Context, cfg *config.Config) (core.BatchStore, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		store := postgres.New(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("connected to database", "driver", "postgres", "max_conns", cfg.Database.MaxConns)
		return store, pool.Close, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("opened database", "driver", "sqlite", "path", cfg.Database.SQLitePath)
		return store, func() { store.Close() }, nil

	case config.DriverMemory:
		slog.Warn("using in-memory store; batches are lost on restart")
		return memory.New(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver %q", cfg.Database.Driver)
	}
}
