package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/geostage/shpgate/internal/config"
	"github.com/geostage/shpgate/internal/core"
	"github.com/geostage/shpgate/internal/database"
	"github.com/geostage/shpgate/internal/gis"
	"github.com/geostage/shpgate/internal/logging"
	"github.com/geostage/shpgate/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"target_table", cfg.Pipeline.TargetTable,
		"staging_table", cfg.Pipeline.StagingTable,
		"max_upload_bytes", cfg.Pipeline.MaxUploadBytes,
		"auth_enabled", cfg.Security.AuthEnabled(),
	)

	// Connect to database
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		dbName := strings.TrimPrefix(u.Path, "/")
		slog.Info("connected to database", "name", dbName)
	} else {
		slog.Info("connected to database")
	}

	// The conversion gateway shells out to ogr2ogr
	converter := &gis.Ogr2ogr{
		Binary:         cfg.Convert.Ogr2ogrPath,
		DSN:            cfg.Database.URL,
		TargetSRS:      cfg.Convert.TargetSRS,
		GeometryColumn: cfg.Convert.GeometryColumn,
		Encoding:       cfg.Convert.SourceEncoding,
		Timeout:        cfg.Convert.Timeout,
	}

	// Create service and server with config
	service := core.NewService(pool, converter, cfg)
	server := web.NewServer(service, pool, cfg)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let an in-flight reconcile finish before the pool closes
		if status := service.GateStatus(); status.Active {
			slog.Info("waiting for reconciliation to complete")
			if err := service.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("reconciliation did not complete in time", "error", err)
			} else {
				slog.Info("reconciliation completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	// Start server (uses addr from config internally)
	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}
