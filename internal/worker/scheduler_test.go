package worker_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/storage/sqlite"
	"github.com/kondee/pocsdcard/internal/transfer"
	"github.com/kondee/pocsdcard/internal/worker"
)

const waitFor = 5 * time.Second

func newRepo(t *testing.T) *sqlite.JobRepository {
	t.Helper()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return sqlite.NewJobRepository(db)
}

// collect reads signals until tag reaches a finished state.
func collect(t *testing.T, ch <-chan transfer.Signal, tag string) []transfer.Signal {
	t.Helper()

	var got []transfer.Signal

	timeout := time.After(waitFor)

	for {
		select {
		case sig, ok := <-ch:
			require.True(t, ok, "signal stream closed early")

			if sig.Tag != tag {
				continue
			}

			got = append(got, sig)

			if sig.State.IsFinished() {
				return got
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s, got %v", tag, got)
		}
	}
}

func states(sigs []transfer.Signal) []transfer.State {
	out := make([]transfer.State, len(sigs))
	for i, s := range sigs {
		out[i] = s.State
	}

	return out
}

func TestScheduler_RunsJobAndEmitsLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	s := worker.NewScheduler(repo, "test", 64)
	defer s.Close()

	ok, err := s.Enqueue(ctx, "file", func(_ context.Context, report func(int)) (string, error) {
		for _, p := range []int{10, 50, 100} {
			report(p)
		}

		return "/data/user_42/7/file_1.mp4", nil
	})
	require.NoError(t, err)
	require.True(t, ok)

	sigs := collect(t, s.Signals(), "file")

	assert.Equal(t, []transfer.State{
		transfer.StateEnqueued,
		transfer.StateRunning,
		transfer.StateRunning,
		transfer.StateRunning,
		transfer.StateRunning,
		transfer.StateSucceeded,
	}, states(sigs))

	assert.Equal(t, 0, sigs[1].Progress)
	assert.Equal(t, 100, sigs[4].Progress)
	assert.Equal(t, "/data/user_42/7/file_1.mp4", sigs[5].OutputPath)

	s.Wait()
	assert.Empty(t, s.Active())

	rec, err := repo.GetJob(ctx, "file")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateSucceeded, rec.State)
	assert.Equal(t, "/data/user_42/7/file_1.mp4", rec.OutputPath)
	assert.Empty(t, rec.LockedBy)
}

func TestScheduler_AtMostOneJobPerTag(t *testing.T) {
	ctx := context.Background()
	s := worker.NewScheduler(newRepo(t), "test", 64)
	defer s.Close()

	release := make(chan struct{})
	job := func(context.Context, func(int)) (string, error) {
		<-release

		return "/out", nil
	}

	ok, err := s.Enqueue(ctx, "file", job)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Enqueue(ctx, "file", job)
	require.NoError(t, err)
	assert.False(t, ok, "second enqueue while active is refused")

	assert.True(t, s.IsActive("file"))
	assert.Equal(t, []string{"file"}, s.Active())

	close(release)
	collect(t, s.Signals(), "file")
	s.Wait()

	ok, err = s.Enqueue(ctx, "file", func(context.Context, func(int)) (string, error) { return "/out", nil })
	require.NoError(t, err)
	assert.True(t, ok, "finished tags can be enqueued again")

	collect(t, s.Signals(), "file")
}

func TestScheduler_Cancel(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	s := worker.NewScheduler(repo, "test", 64)
	defer s.Close()

	started := make(chan struct{})

	ok, err := s.Enqueue(ctx, "file", func(ctx context.Context, _ func(int)) (string, error) {
		close(started)
		<-ctx.Done()

		return "", ctx.Err()
	})
	require.NoError(t, err)
	require.True(t, ok)

	<-started
	assert.True(t, s.Cancel("file"))
	assert.False(t, s.Cancel("unknown"))

	sigs := collect(t, s.Signals(), "file")
	assert.Equal(t, transfer.StateCancelled, sigs[len(sigs)-1].State)

	s.Wait()

	rec, err := repo.GetJob(ctx, "file")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateCancelled, rec.State)
}

func TestScheduler_EnqueueContextDoesNotBindJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := worker.NewScheduler(newRepo(t), "test", 64)
	defer s.Close()

	release := make(chan struct{})

	ok, err := s.Enqueue(ctx, "file", func(ctx context.Context, _ func(int)) (string, error) {
		<-release

		return "/out", ctx.Err()
	})
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	close(release)

	sigs := collect(t, s.Signals(), "file")
	assert.Equal(t, transfer.StateSucceeded, sigs[len(sigs)-1].State)
}

func TestScheduler_Failure(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	s := worker.NewScheduler(repo, "test", 64)
	defer s.Close()

	_, err := s.Enqueue(ctx, "file", func(context.Context, func(int)) (string, error) {
		return "", &transfer.EmptyResponseError{URL: "http://x"}
	})
	require.NoError(t, err)

	sigs := collect(t, s.Signals(), "file")
	last := sigs[len(sigs)-1]
	assert.Equal(t, transfer.StateFailed, last.State)
	assert.Equal(t, "cannot download", last.Message)

	s.Wait()

	rec, err := repo.GetJob(ctx, "file")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateFailed, rec.State)
	assert.Equal(t, "cannot download", rec.Message)
}

func TestScheduler_SlowConsumerKeepsTerminalSignal(t *testing.T) {
	ctx := context.Background()
	s := worker.NewScheduler(newRepo(t), "test", 1)
	defer s.Close()

	_, err := s.Enqueue(ctx, "file", func(_ context.Context, report func(int)) (string, error) {
		for p := 1; p <= 100; p++ {
			report(p)
		}

		return "/out", nil
	})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	sigs := collect(t, s.Signals(), "file")
	require.NotEmpty(t, sigs)
	assert.Equal(t, transfer.StateSucceeded, sigs[len(sigs)-1].State)

	last := -1

	for _, sig := range sigs[:len(sigs)-1] {
		if sig.State == transfer.StateRunning {
			assert.GreaterOrEqual(t, sig.Progress, last)
			last = sig.Progress
		}
	}
}

func TestScheduler_Resume(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	// state left behind by a previous process
	_, err := repo.ClaimJob(ctx, "interrupted", "old")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateJob(ctx, storage.JobRecord{Tag: "interrupted", State: transfer.StateRunning, Progress: 40}))

	_, err = repo.ClaimJob(ctx, "done", "old")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateJob(ctx, storage.JobRecord{Tag: "done", State: transfer.StateSucceeded, Progress: 100, OutputPath: "/done"}))

	_, err = repo.ClaimJob(ctx, "unknown", "old")
	require.NoError(t, err)

	s := worker.NewScheduler(repo, "new", 64)
	defer s.Close()

	resumed, err := s.Resume(ctx, func(tag string) (worker.Job, bool) {
		if tag != "interrupted" {
			return nil, false
		}

		return func(context.Context, func(int)) (string, error) { return "/interrupted", nil }, true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	seen := map[string]transfer.Signal{}
	timeout := time.After(waitFor)

	for len(seen) < 2 {
		select {
		case sig := <-s.Signals():
			if sig.State.IsFinished() {
				seen[sig.Tag] = sig
			}
		case <-timeout:
			t.Fatalf("timed out, saw %v", seen)
		}
	}

	assert.Equal(t, "/done", seen["done"].OutputPath)
	assert.True(t, seen["done"].Replayed)
	assert.Equal(t, "/interrupted", seen["interrupted"].OutputPath)
	assert.False(t, seen["interrupted"].Replayed)

	s.Wait()

	rec, err := repo.GetJob(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateSucceeded, rec.State)

	rec, err = repo.GetJob(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateEnqueued, rec.State, "jobs without a factory are left alone")
}

func TestScheduler_Close(t *testing.T) {
	ctx := context.Background()
	s := worker.NewScheduler(newRepo(t), "test", 64)

	started := make(chan struct{})

	_, err := s.Enqueue(ctx, "file", func(ctx context.Context, _ func(int)) (string, error) {
		close(started)
		<-ctx.Done()

		return "", ctx.Err()
	})
	require.NoError(t, err)

	<-started
	s.Close()
	s.Close()

	_, err = s.Enqueue(ctx, "other", func(context.Context, func(int)) (string, error) { return "", nil })
	assert.True(t, errors.Is(err, worker.ErrClosed))

	for range s.Signals() {
	}
}

func TestScheduler_CloseLeavesJobsForResume(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	first := worker.NewScheduler(repo, "first", 64)
	started := make(chan struct{})

	_, err := first.Enqueue(ctx, "file", func(ctx context.Context, _ func(int)) (string, error) {
		close(started)
		<-ctx.Done()

		return "", ctx.Err()
	})
	require.NoError(t, err)

	<-started
	first.Close()

	rec, err := repo.GetJob(ctx, "file")
	require.NoError(t, err)
	assert.False(t, rec.State.IsFinished(), "shutdown must not finish the job, got %s", rec.State)

	second := worker.NewScheduler(repo, "second", 64)
	defer second.Close()

	resumed, err := second.Resume(ctx, func(string) (worker.Job, bool) {
		return func(context.Context, func(int)) (string, error) { return "/file", nil }, true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)

	sigs := collect(t, second.Signals(), "file")
	assert.Equal(t, transfer.StateSucceeded, sigs[len(sigs)-1].State)

	second.Wait()

	rec, err = repo.GetJob(ctx, "file")
	require.NoError(t, err)
	assert.Equal(t, transfer.StateSucceeded, rec.State)
}
