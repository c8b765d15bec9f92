package relocation

import (
	"context"
	"os"

	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/status"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/telemetry"
	"github.com/kondee/pocsdcard/internal/transfer"
)

// Roots resolves storage locations and persists the preferred one.
type Roots interface {
	Location(ctx context.Context) (storage.Location, error)
	SetLocation(ctx context.Context, loc storage.Location) error
	Resolve(ctx context.Context, loc storage.Location) (string, error)
}

// Relocator moves the managed directory between storage roots and switches
// the preferred location.
type Relocator struct {
	roots     Roots
	layout    storage.Layout
	tracker   *status.Tracker
	telemetry *telemetry.Telemetry
}

func NewRelocator(roots Roots, layout storage.Layout, tracker *status.Tracker, tel *telemetry.Telemetry) *Relocator {
	return &Relocator{
		roots:     roots,
		layout:    layout,
		tracker:   tracker,
		telemetry: tel,
	}
}

// Relocate makes destination the preferred location. The destination root is
// validated before anything is touched. With preserveFiles the managed
// directory is copied over first; the source directory is removed either way.
// The returned status is the one published once the move settles.
func (r *Relocator) Relocate(ctx context.Context, destination storage.Location, preserveFiles bool) (status.FileStatus, error) {
	var result status.FileStatus

	err := r.telemetry.InstrumentRelocation(ctx, destination.String(), func(ctx context.Context) error {
		var err error

		result, err = r.relocate(ctx, destination, preserveFiles)

		return err
	})

	return result, err
}

func (r *Relocator) relocate(ctx context.Context, destination storage.Location, preserveFiles bool) (status.FileStatus, error) {
	logger := logctx.LoggerFromContext(ctx).With("destination", destination.String(), "preserve_files", preserveFiles)

	current, err := r.roots.Location(ctx)
	if err != nil {
		return r.fail(err), err
	}

	targetRoot, err := r.roots.Resolve(ctx, destination)
	if err != nil {
		logger.Warn("destination not available, keeping files in place", "err", err)

		return r.fail(err), err
	}

	if destination == current {
		logger.Debug("destination is already the preferred location")

		return r.tracker.Refresh(ctx), nil
	}

	sourceRoot, err := r.roots.Resolve(ctx, current)
	if err != nil {
		logger.Warn("source location not available, skipping move", "source", current.String(), "err", err)
	} else if err := r.move(ctx, sourceRoot, targetRoot, preserveFiles); err != nil {
		return r.fail(err), err
	}

	if err := r.roots.SetLocation(ctx, destination); err != nil {
		return r.fail(err), err
	}

	logger.Info("download location changed", "source", current.String())

	return r.tracker.Refresh(ctx), nil
}

func (r *Relocator) move(ctx context.Context, sourceRoot, targetRoot string, preserveFiles bool) error {
	logger := logctx.LoggerFromContext(ctx)

	sourceDir := r.layout.Dir(sourceRoot)
	targetDir := r.layout.Dir(targetRoot)

	if preserveFiles {
		r.tracker.Publish(status.Moving())

		if exists(sourceDir) {
			logger.Info("copying files", "from", sourceDir, "to", targetDir)

			if err := copyDir(sourceDir, targetDir); err != nil {
				return &transfer.FilesystemError{Operation: "copy_dir", Path: targetDir, Err: err}
			}
		}
	}

	// the target is complete, so a leftover source is not fatal
	if err := os.RemoveAll(sourceDir); err != nil {
		delErr := &transfer.FilesystemError{Operation: "delete_dir", Path: sourceDir, Err: err}
		logger.Warn("source directory left behind", "dir", sourceDir, "err", delErr.Error())
	}

	return nil
}

// Delete removes the managed directory from the preferred root.
func (r *Relocator) Delete(ctx context.Context) (status.FileStatus, error) {
	loc, err := r.roots.Location(ctx)
	if err != nil {
		return r.fail(err), err
	}

	root, err := r.roots.Resolve(ctx, loc)
	if err != nil {
		return r.fail(err), err
	}

	dir := r.layout.Dir(root)
	if err := os.RemoveAll(dir); err != nil {
		err = &transfer.FilesystemError{Operation: "delete_dir", Path: dir, Err: err}

		return r.fail(err), err
	}

	logctx.LoggerFromContext(ctx).Info("deleted managed directory", "dir", dir)

	return r.tracker.Refresh(ctx), nil
}

func (r *Relocator) fail(err error) status.FileStatus {
	st := status.Error(err.Error())
	r.tracker.Publish(st)

	return st
}
