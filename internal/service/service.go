package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kondee/pocsdcard/internal/cleanup"
	"github.com/kondee/pocsdcard/internal/downloader"
	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/notifier"
	"github.com/kondee/pocsdcard/internal/relocation"
	"github.com/kondee/pocsdcard/internal/status"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/telemetry"
	"github.com/kondee/pocsdcard/internal/transfer"
	"github.com/kondee/pocsdcard/internal/worker"
)

// ErrBusy is returned when the managed file is being downloaded or moved.
var ErrBusy = errors.New("a download or relocation is in progress")

const notifyTimeout = 10 * time.Second

// Options configures a Service.
type Options struct {
	FileURL         string
	DownloadTimeout time.Duration
}

// Service ties the download, relocation and status components together. It
// keeps relocations and deletions from overlapping a running download.
type Service struct {
	opts Options

	resolver   *storage.Resolver
	downloader *downloader.Downloader
	relocator  *relocation.Relocator
	tracker    *status.Tracker
	scheduler  *worker.Scheduler
	jobs       storage.JobWriteRepository
	notifier   notifier.Notifier
	telemetry  *telemetry.Telemetry

	mu         sync.Mutex
	relocating bool
}

func New(
	opts Options,
	resolver *storage.Resolver,
	dl *downloader.Downloader,
	relocator *relocation.Relocator,
	tracker *status.Tracker,
	scheduler *worker.Scheduler,
	jobs storage.JobWriteRepository,
	notif notifier.Notifier,
	tel *telemetry.Telemetry,
) *Service {
	if notif == nil {
		notif = notifier.Nop{}
	}

	return &Service{
		opts:       opts,
		resolver:   resolver,
		downloader: dl,
		relocator:  relocator,
		tracker:    tracker,
		scheduler:  scheduler,
		jobs:       jobs,
		notifier:   notif,
		telemetry:  tel,
	}
}

// RequestDownload enqueues the download of the configured file into the
// preferred root. It returns false when the download is already running.
func (s *Service) RequestDownload(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relocating {
		return false, ErrBusy
	}

	started, err := s.scheduler.Enqueue(ctx, s.opts.FileURL, s.downloadJob())
	if err != nil {
		return false, fmt.Errorf("failed to enqueue download: %w", err)
	}

	if started {
		logctx.LoggerFromContext(ctx).Info("download requested", "url", s.opts.FileURL)
	}

	return started, nil
}

// Resume re-attaches to a download interrupted by a restart.
func (s *Service) Resume(ctx context.Context) (int, error) {
	return s.scheduler.Resume(ctx, func(tag string) (worker.Job, bool) {
		if tag != s.opts.FileURL {
			return nil, false
		}

		return s.downloadJob(), true
	})
}

// Tag identifies the download job.
func (s *Service) Tag() string {
	return s.opts.FileURL
}

// CancelDownload stops the running download. It reports whether one was active.
func (s *Service) CancelDownload() bool {
	return s.scheduler.Cancel(s.opts.FileURL)
}

// ChangeLocation switches the preferred location, moving the managed files
// along when moveFiles is set.
func (s *Service) ChangeLocation(ctx context.Context, loc storage.Location, moveFiles bool) (status.FileStatus, error) {
	if err := s.begin(); err != nil {
		return s.tracker.Current(), err
	}
	defer s.end()

	return s.relocator.Relocate(ctx, loc, moveFiles)
}

// DeleteFile removes the managed file from the preferred root.
func (s *Service) DeleteFile(ctx context.Context) (status.FileStatus, error) {
	if err := s.begin(); err != nil {
		return s.tracker.Current(), err
	}
	defer s.end()

	return s.relocator.Delete(ctx)
}

// Status returns the last published status.
func (s *Service) Status() status.FileStatus {
	return s.tracker.Current()
}

// Refresh re-derives the status from disk and publishes it.
func (s *Service) Refresh(ctx context.Context) status.FileStatus {
	return s.tracker.Refresh(ctx)
}

// Subscribe streams status changes, starting with the current status.
func (s *Service) Subscribe() (<-chan status.FileStatus, func()) {
	return s.tracker.Subscribe()
}

func (s *Service) SDCardAvailable(ctx context.Context) bool {
	return s.resolver.SDCardAvailable(ctx)
}

func (s *Service) Location(ctx context.Context) (storage.Location, error) {
	return s.resolver.Location(ctx)
}

// ConsumeSignals feeds scheduler signals into the status tracker until ctx is
// done or the scheduler is closed.
func (s *Service) ConsumeSignals(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("signal consumer shutting down")

			return
		case sig, ok := <-s.scheduler.Signals():
			if !ok {
				return
			}

			s.handleSignal(ctx, sig)
		}
	}
}

func (s *Service) handleSignal(ctx context.Context, sig transfer.Signal) {
	logger := logctx.LoggerFromContext(ctx)

	// replayed signals were already counted and announced by the process
	// that finished the job
	if sig.Replayed {
		s.tracker.ApplySignal(ctx, sig)

		return
	}

	s.telemetry.RecordJobSignal(sig.State.String())

	st, changed := s.tracker.ApplySignal(ctx, sig)
	if !changed {
		return
	}

	logger.Debug("status changed", "job_tag", sig.Tag, "state", sig.State.String(), "status", st.String())

	var msg string

	switch sig.State {
	case transfer.StateSucceeded:
		msg = "✅ Download finished: " + sig.OutputPath
	case transfer.StateFailed:
		msg = "❌ Download failed: " + sig.Message

		s.telemetry.RecordSystemError("downloader", "download_failed")
	default:
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(notifyCtx, msg); err != nil {
		logger.Error("failed to send notification", "job_tag", sig.Tag, "err", err)
	}
}

// WatchMedia polls removable media availability. When it changes all work
// is cancelled, finished job records are pruned and the status re-derived.
func (s *Service) WatchMedia(ctx context.Context, interval time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	available := s.resolver.SDCardAvailable(ctx)
	s.recordDiskUsage(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("media watcher shutting down")

			return
		case <-ticker.C:
			now := s.resolver.SDCardAvailable(ctx)
			if now != available {
				logger.Info("removable media changed", "sd_card_available", now)

				s.MediaChanged(ctx)

				available = now
			}

			s.recordDiskUsage(ctx)
		}
	}
}

// MediaChanged reacts to removable media being mounted or removed.
func (s *Service) MediaChanged(ctx context.Context) {
	s.scheduler.CancelAll()

	if _, err := cleanup.PruneFinishedJobs(ctx, s.jobs, 0); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to prune job records", "err", err)
	}

	s.tracker.Refresh(ctx)
}

func (s *Service) recordDiskUsage(ctx context.Context) {
	for loc, root := range s.resolver.Roots(ctx) {
		used, total, err := storage.DiskUsage(ctx, root)
		if err != nil {
			logctx.LoggerFromContext(ctx).Debug("failed to read disk usage", "root", root, "err", err)

			continue
		}

		s.telemetry.RecordDiskUsage(loc.String(), used, total)
	}
}

func (s *Service) downloadJob() worker.Job {
	return func(ctx context.Context, report func(int)) (string, error) {
		if s.opts.DownloadTimeout > 0 {
			var cancel context.CancelFunc

			ctx, cancel = context.WithTimeout(ctx, s.opts.DownloadTimeout)
			defer cancel()
		}

		_, root, err := s.resolver.Preferred(ctx)
		if err != nil {
			return "", err
		}

		return s.downloader.Download(ctx, s.opts.FileURL, root, report)
	}
}

func (s *Service) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.relocating || s.scheduler.IsActive(s.opts.FileURL) {
		return ErrBusy
	}

	s.relocating = true

	return nil
}

func (s *Service) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.relocating = false
}
