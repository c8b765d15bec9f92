package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/transfer"
)

type JobReadRepository struct {
	db *sql.DB
}

func NewJobReadRepository(dbConn *sql.DB) *JobReadRepository {
	return &JobReadRepository{db: dbConn}
}

func (r *JobReadRepository) GetJobs(ctx context.Context) ([]storage.JobRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tag, state, progress, output_path, message, updated_at, locked_by FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []storage.JobRecord

	for rows.Next() {
		record, err := scanJob(rows)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, record)
	}

	return jobs, rows.Err()
}

// GetJob returns the record for tag or storage.ErrJobNotFound.
func (r *JobReadRepository) GetJob(ctx context.Context, tag string) (storage.JobRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT tag, state, progress, output_path, message, updated_at, locked_by FROM jobs WHERE tag = ?`, tag)

	record, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.JobRecord{}, storage.ErrJobNotFound
	}

	return record, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (storage.JobRecord, error) {
	var (
		record    storage.JobRecord
		state     string
		updatedAt sql.NullString
		lockedBy  sql.NullString
	)

	if err := s.Scan(&record.Tag, &state, &record.Progress, &record.OutputPath, &record.Message, &updatedAt, &lockedBy); err != nil {
		return storage.JobRecord{}, err
	}

	record.State = transfer.ParseState(state)

	if updatedAt.Valid {
		// Unparseable timestamps leave UpdatedAt zero, which reads as "very old".
		record.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt.String)
	}

	if lockedBy.Valid {
		record.LockedBy = lockedBy.String
	}

	return record, nil
}
