package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NamanBalaji/updater/internal/api"
	"github.com/NamanBalaji/updater/internal/config"
	"github.com/NamanBalaji/updater/internal/installer"
	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/metrics"
	"github.com/NamanBalaji/updater/internal/mirror"
	"github.com/NamanBalaji/updater/internal/orchestrator"
	"github.com/NamanBalaji/updater/internal/power"
	"github.com/NamanBalaji/updater/internal/repository"
	"github.com/NamanBalaji/updater/internal/transfer"
	"github.com/NamanBalaji/updater/internal/verify"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	inhibitorName     = "updater"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the update daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	if err := logger.InitLogging(debug, cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()

	repo, err := repository.NewBboltRepository(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("error creating repository: %w", err)
	}

	defer func() {
		if err := repo.Close(); err != nil {
			logger.Errorf("Error closing repository: %v", err)
		}
	}()

	inst, err := installer.NewFileInstaller(cfg.Installer.SpoolDir)
	if err != nil {
		return fmt.Errorf("error creating installer: %w", err)
	}

	m := metrics.New()

	resolver := mirror.NewService(mirror.Config{
		ListingURL:       cfg.Mirror.ListingURL,
		HostSuffix:       cfg.Mirror.HostSuffix,
		Project:          cfg.Mirror.Project,
		RootPath:         cfg.Mirror.RootPath,
		Device:           cfg.Mirror.Device,
		ProbeConcurrency: cfg.Mirror.ProbeConcurrency,
		ProbeTimeout:     cfg.Mirror.ProbeTimeout,
	},
		mirror.WithProber(mirror.NewTCPProber(cfg.Mirror.ProbePort, cfg.Mirror.ProbeCount)),
		mirror.WithMetrics(m),
	)

	inhibitor := power.NewInhibitor(cfg.Power.DisableInhibit, inhibitorName)
	if c, ok := inhibitor.(io.Closer); ok {
		defer c.Close()
	}

	orch, err := orchestrator.New(orchestrator.Options{
		DownloadDir:      cfg.DownloadDir,
		ProgressInterval: cfg.ProgressInterval,
		Updates:          repo,
		Mirrors:          repo,
		Transfers:        transfer.NewHTTPFactory(),
		Verifier:         verify.NewPackageVerifier(),
		Installer:        inst,
		Resolver:         resolver,
		Inhibitor:        inhibitor,
		Metrics:          m,
	})
	if err != nil {
		return fmt.Errorf("error creating orchestrator: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := orch.Load(ctx)
	if err != nil {
		logger.Errorf("Error loading stored updates: %v", err)
	}

	logger.Infof("Loaded %d stored updates", n)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewHandler(orch, m.Handler()),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		logger.Infof("Listening on %s", cfg.ListenAddr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Infof("Signal received, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Errorf("Error stopping API server: %v", shutdownErr)
	}

	if shutdownErr := orch.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Errorf("Error during orchestrator shutdown: %v", shutdownErr)
		if err == nil {
			err = shutdownErr
		}
	}

	logger.Infof("Shutdown complete.")

	return err
}
