package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kondee/pocsdcard/internal/cleanup"
	"github.com/kondee/pocsdcard/internal/config"
	"github.com/kondee/pocsdcard/internal/downloader"
	"github.com/kondee/pocsdcard/internal/http/rest"
	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/notifier"
	"github.com/kondee/pocsdcard/internal/relocation"
	"github.com/kondee/pocsdcard/internal/service"
	"github.com/kondee/pocsdcard/internal/status"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/storage/sqlite"
	"github.com/kondee/pocsdcard/internal/telemetry"
	"github.com/kondee/pocsdcard/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := logctx.New(os.Stdout, cfg.SlogLevel())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("pocsdcard starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to start telemetry: %w", err)
	}

	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	prefs := sqlite.NewInstrumentedPreferenceRepository(database, tel)
	jobs := sqlite.NewInstrumentedJobRepository(database, tel)

	// =========================================================================
	// Start Storage
	layout := storage.NewLayout(cfg.UserID, cfg.BookID, cfg.FileName)
	locator := storage.NewLocator(cfg.InternalRoot, cfg.Removable(), storage.NewSystemProbe())
	resolver := storage.NewResolver(locator, prefs)
	tracker := status.NewTracker(resolver, layout, status.NewBroadcaster(status.Idle()))

	// =========================================================================
	// Start Jobs
	instanceID := storage.GenerateInstanceID()
	scheduler := worker.NewScheduler(jobs, instanceID, 0)

	var notif notifier.Notifier = notifier.Nop{}
	if cfg.DiscordWebhookURL != "" {
		notif = notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, &http.Client{Transport: tel.Transport(http.DefaultTransport)})
	}

	svc := service.New(
		service.Options{FileURL: cfg.FileURL, DownloadTimeout: cfg.DownloadTimeout},
		resolver,
		downloader.NewDownloader(nil, layout, tel),
		relocation.NewRelocator(resolver, layout, tracker, tel),
		tracker,
		scheduler,
		jobs,
		notif,
		tel,
	)

	st := svc.Refresh(ctx)
	logger.Info("initial file status", "status", st.String(), "instance_id", instanceID)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, svc, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.ConsumeSignals(gctx)

		return nil
	})

	resumed, err := svc.Resume(ctx)
	if err != nil {
		logger.Error("failed to resume jobs", "err", err)
	} else if resumed > 0 {
		logger.Info("resumed interrupted downloads", "count", resumed)
	}

	g.Go(func() error {
		svc.WatchMedia(gctx, cfg.MediaPollInterval)

		return nil
	})

	g.Go(func() error {
		cleanup.Run(gctx, jobs, cfg.CleanupInterval, cfg.JobRetention)

		return nil
	})

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		scheduler.Close()

		return nil
	})

	logger.Info("waiting for requests...",
		"file_url", cfg.FileURL,
		"internal_root", cfg.InternalRoot,
		"removable_roots", cfg.Removable(),
		"media_poll_interval", cfg.MediaPollInterval.String(),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, svc *service.Service, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	handler := rest.NewFileHandler(cfg.Web.Username, cfg.Web.Password, svc)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      rest.NewRouter(handler, tel),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
