package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kondee/pocsdcard/internal/transfer"
)

// ErrUnavailable is returned when a requested storage root cannot be resolved.
var ErrUnavailable = errors.New("storage root unavailable")

// Location selects the storage root downloads are written to.
// It is persisted as its ordinal.
type Location int

const (
	LocationInternal Location = iota
	LocationSDCard
)

func (l Location) String() string {
	switch l {
	case LocationSDCard:
		return "sdcard"
	default:
		return "internal"
	}
}

// MarshalText encodes the location by name.
func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText accepts the names produced by String as well as ordinals.
func (l *Location) UnmarshalText(b []byte) error {
	parsed, err := ParseLocation(string(b))
	if err != nil {
		return err
	}

	*l = parsed

	return nil
}

// ParseLocation parses a location name ("internal", "sdcard") or ordinal.
func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "internal", "0":
		return LocationInternal, nil
	case "sdcard", "sd_card", "sd", "1":
		return LocationSDCard, nil
	}

	return LocationInternal, fmt.Errorf("invalid download location: %q", s)
}

// LocationFromOrdinal maps a persisted ordinal back to a Location.
// Out of range values fall back to LocationInternal.
func LocationFromOrdinal(ordinal int) Location {
	if ordinal == int(LocationSDCard) {
		return LocationSDCard
	}

	return LocationInternal
}

// Layout computes where the managed file lives under a storage root.
type Layout struct {
	UserID   string
	BookID   string
	FileName string
}

const defaultFileName = "file_1.mp4"

func NewLayout(userID, bookID, fileName string) Layout {
	if fileName == "" {
		fileName = defaultFileName
	}

	return Layout{UserID: userID, BookID: bookID, FileName: fileName}
}

// Dir returns <root>/user_<UserID>/<BookID>.
func (l Layout) Dir(root string) string {
	return filepath.Join(root, "user_"+l.UserID, l.BookID)
}

// File returns the absolute path of the managed file under root.
func (l Layout) File(root string) string {
	return filepath.Join(l.Dir(root), l.FileName)
}

// JobRecord represents a persisted background job.
type JobRecord struct {
	Tag        string
	State      transfer.State
	Progress   int
	OutputPath string
	Message    string
	UpdatedAt  time.Time
	LockedBy   string
}

// PreferenceStore persists the preferred download location.
type PreferenceStore interface {
	Location(ctx context.Context) (Location, error)
	SetLocation(ctx context.Context, loc Location) error
}

type JobReadRepository interface {
	GetJobs(ctx context.Context) ([]JobRecord, error)
	GetJob(ctx context.Context, tag string) (JobRecord, error)
}

type JobWriteRepository interface {
	ClaimJob(ctx context.Context, tag, instanceID string) (bool, error)   // atomically claim a tag
	ReclaimJob(ctx context.Context, tag, instanceID string) (bool, error) // take over a job orphaned by a dead instance
	UpdateJob(ctx context.Context, rec JobRecord) error
	DeleteFinishedJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

type JobRepository interface {
	JobReadRepository
	JobWriteRepository
}

// ErrJobNotFound is returned by GetJob for unknown tags.
var ErrJobNotFound = errors.New("job not found")
