package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kondee/pocsdcard/internal/storage"
)

// JobWriteRepository implements storage.JobWriteRepository
// and stores job records in SQLite.
type JobWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewJobWriteRepository(db *sql.DB) *JobWriteRepository {
	return &JobWriteRepository{db: db, now: time.Now}
}

// ClaimJob atomically marks tag as enqueued and locked by instanceID, unless
// another claim on the same tag is still unfinished.
func (r *JobWriteRepository) ClaimJob(ctx context.Context, tag, instanceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (tag, state, progress, output_path, message, updated_at, locked_by)
		VALUES (?, 'enqueued', 0, '', '', ?, ?)
		ON CONFLICT(tag) DO UPDATE SET
			state = 'enqueued',
			progress = 0,
			output_path = '',
			message = '',
			updated_at = excluded.updated_at,
			locked_by = excluded.locked_by
		WHERE jobs.state IN ('succeeded', 'failed', 'cancelled')
			OR jobs.locked_by IS NULL OR jobs.locked_by = ''
	`, tag, r.timestamp(), instanceID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ReclaimJob takes over an unfinished job left behind by another instance.
func (r *JobWriteRepository) ReclaimJob(ctx context.Context, tag, instanceID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET state = 'enqueued', progress = 0, locked_by = ?, updated_at = ?
		WHERE tag = ? AND state IN ('enqueued', 'running', 'blocked')
			AND (locked_by IS NULL OR locked_by != ?)
	`, instanceID, r.timestamp(), tag, instanceID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// UpdateJob writes the job state. Finished states release the lock.
func (r *JobWriteRepository) UpdateJob(ctx context.Context, rec storage.JobRecord) error {
	query := `UPDATE jobs SET state = ?, progress = ?, output_path = ?, message = ?, updated_at = ? WHERE tag = ?`
	if rec.State.IsFinished() {
		query = `UPDATE jobs SET state = ?, progress = ?, output_path = ?, message = ?, updated_at = ?, locked_by = NULL WHERE tag = ?`
	}

	_, err := r.db.ExecContext(ctx, query,
		rec.State.String(), rec.Progress, rec.OutputPath, rec.Message, r.timestamp(), rec.Tag)

	return err
}

// DeleteFinishedJobs removes finished records last updated at or before olderThan.
func (r *JobWriteRepository) DeleteFinishedJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE state IN ('succeeded', 'failed', 'cancelled') AND updated_at <= ?
	`, olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *JobWriteRepository) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}
