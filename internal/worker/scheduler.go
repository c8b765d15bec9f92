package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/transfer"
)

// ErrClosed is returned when work is submitted to a closed Scheduler.
var ErrClosed = errors.New("scheduler closed")

const (
	defaultBuffer        = 32
	progressPersistDelta = 10 // percent
)

// Job is a unit of background work. It reports whole-percent progress through
// report and returns the path it produced.
type Job func(ctx context.Context, report func(percent int)) (string, error)

// Factory rebuilds the job for a persisted tag. ok is false for tags the
// caller no longer knows how to run.
type Factory func(tag string) (job Job, ok bool)

// Scheduler runs at most one job per tag in the background and publishes
// their lifecycle as transfer signals. Claims are persisted so a restarted
// process can re-attach to work it left behind.
type Scheduler struct {
	repo       storage.JobRepository
	instanceID string

	signals chan transfer.Signal
	done    chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(repo storage.JobRepository, instanceID string, buffer int) *Scheduler {
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	return &Scheduler{
		repo:       repo,
		instanceID: instanceID,
		signals:    make(chan transfer.Signal, buffer),
		done:       make(chan struct{}),
		active:     make(map[string]context.CancelFunc),
	}
}

// Signals returns the stream of job signals. It is closed by Close.
func (s *Scheduler) Signals() <-chan transfer.Signal {
	return s.signals
}

// Enqueue starts job under tag unless a job with the same tag is already
// active, in which case it returns false. The job outlives ctx; use Cancel to
// stop it.
func (s *Scheduler) Enqueue(ctx context.Context, tag string, job Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	if _, ok := s.active[tag]; ok {
		return false, nil
	}

	claimed, err := s.repo.ClaimJob(ctx, tag, s.instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	if !claimed {
		logctx.LoggerFromContext(ctx).Debug("job held by another instance", "job_tag", tag)

		return false, nil
	}

	s.start(ctx, tag, job)

	return true, nil
}

// Resume re-attaches to jobs persisted by a previous process. Unfinished jobs
// are re-run from scratch and succeeded jobs replay their Succeeded signal.
// It returns the number of jobs restarted.
func (s *Scheduler) Resume(ctx context.Context, factory Factory) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	records, err := s.repo.GetJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	resumed := 0

	for _, rec := range records {
		switch {
		case rec.State == transfer.StateSucceeded:
			sig := transfer.Succeeded(rec.Tag, rec.OutputPath)
			sig.Replayed = true

			s.replay(sig)
		case !rec.State.IsFinished():
			job, ok := factory(rec.Tag)
			if !ok {
				logger.Warn("no job for persisted tag", "job_tag", rec.Tag, "state", rec.State.String())

				continue
			}

			started, err := s.reclaim(ctx, rec.Tag, job)
			if err != nil {
				return resumed, err
			}

			if started {
				logger.Info("resumed job", "job_tag", rec.Tag, "previous_state", rec.State.String())

				resumed++
			}
		}
	}

	return resumed, nil
}

func (s *Scheduler) reclaim(ctx context.Context, tag string, job Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	if _, ok := s.active[tag]; ok {
		return false, nil
	}

	claimed, err := s.repo.ReclaimJob(ctx, tag, s.instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim job: %w", err)
	}

	if claimed {
		s.start(ctx, tag, job)
	}

	return claimed, nil
}

// Cancel stops the job running under tag. It reports whether one was active.
func (s *Scheduler) Cancel(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, ok := s.active[tag]
	if ok {
		cancel()
	}

	return ok
}

// CancelAll stops every active job.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cancel := range s.active {
		cancel()
	}
}

// Active returns the tags of the jobs currently running, sorted.
func (s *Scheduler) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := make([]string, 0, len(s.active))
	for tag := range s.active {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// IsActive reports whether a job is running under tag.
func (s *Scheduler) IsActive(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.active[tag]

	return ok
}

// Wait blocks until every started job has finished and delivered its
// terminal signal.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels all jobs, waits for them and closes the signal stream. Jobs
// interrupted this way stay unfinished in the repository so a later Resume
// picks them up.
// Signals that cannot be delivered during shutdown are discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()

		return
	}

	s.closed = true

	for _, cancel := range s.active {
		cancel()
	}
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	close(s.signals)
}

// start must be called with s.mu held.
func (s *Scheduler) start(ctx context.Context, tag string, job Job) {
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.active[tag] = cancel

	s.wg.Add(1)

	go s.run(jobCtx, cancel, tag, job)
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, tag string, job Job) {
	defer s.wg.Done()
	defer cancel()

	logger := logctx.LoggerFromContext(ctx).With("job_tag", tag)
	ctx = logctx.WithLogger(ctx, logger)

	s.send(transfer.Enqueued(tag))

	s.persist(ctx, storage.JobRecord{Tag: tag, State: transfer.StateRunning})
	s.send(transfer.Running(tag, 0))

	persisted := 0
	report := func(percent int) {
		s.offer(ctx, transfer.Running(tag, percent))

		if percent-persisted >= progressPersistDelta {
			persisted = percent
			s.persist(ctx, storage.JobRecord{Tag: tag, State: transfer.StateRunning, Progress: percent})
		}
	}

	logger.Info("job started")

	path, err := job(ctx, report)

	var (
		sig transfer.Signal
		rec storage.JobRecord
	)

	switch {
	case err == nil:
		logger.Info("job succeeded", "output_path", path)

		sig = transfer.Succeeded(tag, path)
		rec = storage.JobRecord{Tag: tag, State: transfer.StateSucceeded, Progress: 100, OutputPath: path}
	case ctx.Err() != nil && errors.Is(err, context.Canceled) && s.isClosed():
		logger.Info("job interrupted by shutdown, left for resume")

		sig = transfer.Cancelled(tag, "")
		rec = storage.JobRecord{Tag: tag, State: transfer.StateEnqueued, Progress: persisted}
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		logger.Info("job cancelled")

		sig = transfer.Cancelled(tag, "")
		rec = storage.JobRecord{Tag: tag, State: transfer.StateCancelled, Progress: persisted}
	default:
		logger.Error("job failed", "err", err)

		sig = transfer.Failed(tag, err.Error())
		rec = storage.JobRecord{Tag: tag, State: transfer.StateFailed, Progress: persisted, Message: err.Error()}
	}

	s.persist(context.WithoutCancel(ctx), rec)

	s.mu.Lock()
	delete(s.active, tag)
	s.mu.Unlock()

	s.send(sig)
}

func (s *Scheduler) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *Scheduler) replay(sig transfer.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.send(sig)
	}()
}

func (s *Scheduler) persist(ctx context.Context, rec storage.JobRecord) {
	if err := s.repo.UpdateJob(ctx, rec); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to persist job state",
			"job_tag", rec.Tag, "state", rec.State.String(), "err", err)
	}
}

// send delivers sig unless the scheduler is shutting down.
func (s *Scheduler) send(sig transfer.Signal) {
	select {
	case s.signals <- sig:
	case <-s.done:
	}
}

// offer delivers sig only if the consumer keeps up.
func (s *Scheduler) offer(ctx context.Context, sig transfer.Signal) {
	select {
	case s.signals <- sig:
	default:
		logctx.LoggerFromContext(ctx).Debug("dropped progress signal", "progress", sig.Progress)
	}
}
