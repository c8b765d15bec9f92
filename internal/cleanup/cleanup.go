package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/storage"
)

// JobPruner deletes finished job records.
type JobPruner interface {
	DeleteFinishedJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// PruneFinishedJobs deletes succeeded, failed and cancelled job records last
// updated more than keep ago. A zero keep prunes every finished record.
func PruneFinishedJobs(ctx context.Context, repo JobPruner, keep time.Duration) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	deleted, err := repo.DeleteFinishedJobs(ctx, time.Now().Add(-keep))
	if err != nil {
		logger.Error("Failed to prune finished jobs", "err", err)

		return 0, fmt.Errorf("failed to prune finished jobs: %w", err)
	}

	if deleted > 0 {
		logger.Info("Pruned finished jobs", "count", deleted, "retention", keep.String())
	}

	return deleted, nil
}

// Run prunes on every tick until ctx is done.
func Run(ctx context.Context, repo storage.JobWriteRepository, interval, keep time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			if _, err := PruneFinishedJobs(ctx, repo, keep); err != nil {
				logger.Error("failed to prune job records", "err", err)
			}
		}
	}
}
