package cleanup

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
)

type failingPruner struct{}

func (failingPruner) DeleteFinishedJobs(context.Context, time.Time) (int64, error) {
	return 0, errors.New("locked")
}

func TestPruneFinishedJobs(t *testing.T) {
	ctx := context.Background()

	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := sqlite.NewJobRepository(db)

	for _, tag := range []string{"done", "running"} {
		_, err := repo.ClaimJob(ctx, tag, "i")
		require.NoError(t, err)
	}

	require.NoError(t, repo.UpdateJob(ctx, storage.JobRecord{Tag: "done", State: transfer.StateSucceeded, OutputPath: "/x"}))
	require.NoError(t, repo.UpdateJob(ctx, storage.JobRecord{Tag: "running", State: transfer.StateRunning}))

	deleted, err := PruneFinishedJobs(ctx, repo, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, deleted, "recent records are kept")

	// timestamps have second resolution
	deleted, err = PruneFinishedJobs(ctx, repo, -2*time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	jobs, err := repo.GetJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "running", jobs[0].Tag)
}

func TestPruneFinishedJobs_Error(t *testing.T) {
	_, err := PruneFinishedJobs(context.Background(), failingPruner{}, time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestRun_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})

	go func() {
		defer close(done)
		Run(ctx, nil, time.Hour, time.Hour)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
