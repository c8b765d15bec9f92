package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kondee/pocsdcard/internal/storage"
)

const locationKey = "location"

// PreferenceRepository implements storage.PreferenceStore on top of SQLite.
type PreferenceRepository struct {
	db *sql.DB
}

func NewPreferenceRepository(dbConn *sql.DB) *PreferenceRepository {
	return &PreferenceRepository{db: dbConn}
}

// Location returns the persisted location, LocationInternal when nothing was stored yet.
func (r *PreferenceRepository) Location(ctx context.Context) (storage.Location, error) {
	var ordinal int

	err := r.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, locationKey).Scan(&ordinal)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.LocationInternal, nil
	}

	if err != nil {
		return storage.LocationInternal, err
	}

	return storage.LocationFromOrdinal(ordinal), nil
}

// SetLocation stores the location ordinal.
func (r *PreferenceRepository) SetLocation(ctx context.Context, loc storage.Location) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, locationKey, int(loc))

	return err
}
