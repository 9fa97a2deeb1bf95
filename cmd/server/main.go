package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxforge/voxforge/internal/config"
	"github.com/voxforge/voxforge/internal/database"
	"github.com/voxforge/voxforge/internal/qualityprofile"
	"github.com/voxforge/voxforge/internal/registry"
	"github.com/voxforge/voxforge/internal/repository"
	"github.com/voxforge/voxforge/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := &cobra.Command{
		Use:   "voxforge",
		Short: "voxforge is a job-oriented speech synthesis service",
	}
	root.AddCommand(serveCmd(), seedCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("voxforge %s (%s)\n", version, commit)
			return nil
		},
	}
}

// seedCmd builds just the database and quality profile catalog, so an
// operator can pre-seed a fresh volume before the first server start.
func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "initialize the database and seed built-in quality profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger.Init(cfg.LogLevel)
			if err := database.Initialize(cfg.DatabasePath); err != nil {
				return fmt.Errorf("seeding: %w", err)
			}
			defer database.Close()
			catalog := qualityprofile.New(repository.NewQualityProfileRepository(database.DB))
			if err := catalog.SeedBuiltins(cmd.Context()); err != nil {
				return fmt.Errorf("seeding: %w", err)
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API and worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	cfg := config.Load()

	reg, err := registry.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	reg.Start()

	logger.Info("voxforge starting up", "version", version, "commit", commit)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: reg.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "host", cfg.Host, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-quit:
	}

	logger.Info("shutdown signal received, draining in-flight jobs", "grace", cfg.ShutdownGrace)
	reg.BeginShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		logger.Error("registry shutdown reported an error", "error", err)
	}

	logger.Info("voxforge exited")
	return nil
}
