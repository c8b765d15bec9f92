package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/telemetry"
)

// InstrumentedJobRepository wraps JobRepository with telemetry.
type InstrumentedJobRepository struct {
	repo      *JobRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedJobRepository creates a new instrumented job repository.
func NewInstrumentedJobRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedJobRepository {
	return &InstrumentedJobRepository{
		repo:      NewJobRepository(dbConn),
		telemetry: tel,
	}
}

// GetJobs retrieves all job records with telemetry.
func (r *InstrumentedJobRepository) GetJobs(ctx context.Context) ([]storage.JobRecord, error) {
	var result []storage.JobRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_jobs", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetJobs(ctx)

		return err
	})

	return result, err
}

// GetJob retrieves a single job record with telemetry.
func (r *InstrumentedJobRepository) GetJob(ctx context.Context, tag string) (storage.JobRecord, error) {
	var result storage.JobRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_job", func(ctx context.Context) error {
		var err error
		result, err = r.repo.GetJob(ctx, tag)

		return err
	})

	return result, err
}

// ClaimJob claims a job tag with telemetry.
func (r *InstrumentedJobRepository) ClaimJob(ctx context.Context, tag, instanceID string) (bool, error) {
	var result bool

	err := r.telemetry.InstrumentDBOperation(ctx, "claim_job", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ClaimJob(ctx, tag, instanceID)

		return err
	})

	return result, err
}

// ReclaimJob takes over an orphaned job with telemetry.
func (r *InstrumentedJobRepository) ReclaimJob(ctx context.Context, tag, instanceID string) (bool, error) {
	var result bool

	err := r.telemetry.InstrumentDBOperation(ctx, "reclaim_job", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ReclaimJob(ctx, tag, instanceID)

		return err
	})

	return result, err
}

// UpdateJob updates a job record with telemetry.
func (r *InstrumentedJobRepository) UpdateJob(ctx context.Context, rec storage.JobRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "update_job", func(ctx context.Context) error {
		return r.repo.UpdateJob(ctx, rec)
	})
}

// DeleteFinishedJobs prunes finished job records with telemetry.
func (r *InstrumentedJobRepository) DeleteFinishedJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	var deleted int64

	err := r.telemetry.InstrumentDBOperation(ctx, "delete_finished_jobs", func(ctx context.Context) error {
		var err error
		deleted, err = r.repo.DeleteFinishedJobs(ctx, olderThan)

		return err
	})

	return deleted, err
}

// InstrumentedPreferenceRepository wraps PreferenceRepository with telemetry.
type InstrumentedPreferenceRepository struct {
	repo      *PreferenceRepository
	telemetry *telemetry.Telemetry
}

func NewInstrumentedPreferenceRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedPreferenceRepository {
	return &InstrumentedPreferenceRepository{
		repo:      NewPreferenceRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedPreferenceRepository) Location(ctx context.Context) (storage.Location, error) {
	var result storage.Location

	err := r.telemetry.InstrumentDBOperation(ctx, "get_location", func(ctx context.Context) error {
		var err error
		result, err = r.repo.Location(ctx)

		return err
	})

	return result, err
}

func (r *InstrumentedPreferenceRepository) SetLocation(ctx context.Context, loc storage.Location) error {
	return r.telemetry.InstrumentDBOperation(ctx, "set_location", func(ctx context.Context) error {
		return r.repo.SetLocation(ctx, loc)
	})
}
