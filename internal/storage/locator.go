package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/transfer"
)

const dirPerm = 0755

// MediaProbe reports the mount state of an auxiliary storage root.
type MediaProbe interface {
	// Mounted reports whether path sits on a filesystem that is mounted read-write.
	Mounted(ctx context.Context, path string) (bool, error)
	// Removable reports whether the filesystem backing path lives on removable media.
	Removable(ctx context.Context, path string) (bool, error)
}

// Locator resolves storage locations to filesystem roots.
type Locator struct {
	internalRoot   string
	removableRoots []string
	probe          MediaProbe
}

func NewLocator(internalRoot string, removableRoots []string, probe MediaProbe) *Locator {
	return &Locator{
		internalRoot:   internalRoot,
		removableRoots: removableRoots,
		probe:          probe,
	}
}

// Resolve returns the root directory for loc. The internal root is always
// present; the removable root is the first candidate that is mounted and
// removable. When none qualifies a *transfer.ResolutionError wrapping
// ErrUnavailable is returned. Falling back to internal storage is up to the caller.
func (l *Locator) Resolve(ctx context.Context, loc Location) (string, error) {
	switch loc {
	case LocationInternal:
		return l.internal()
	case LocationSDCard:
		return l.removable(ctx)
	}

	return "", &transfer.ResolutionError{Location: loc.String(), Err: ErrUnavailable}
}

// SDCardAvailable reports whether a removable root can currently be resolved.
func (l *Locator) SDCardAvailable(ctx context.Context) bool {
	_, err := l.removable(ctx)

	return err == nil
}

// Roots returns every root that currently resolves, keyed by location.
func (l *Locator) Roots(ctx context.Context) map[Location]string {
	roots := make(map[Location]string, 2)

	for _, loc := range []Location{LocationInternal, LocationSDCard} {
		if root, err := l.Resolve(ctx, loc); err == nil {
			roots[loc] = root
		}
	}

	return roots
}

func (l *Locator) internal() (string, error) {
	root, err := filepath.Abs(l.internalRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve internal root: %w", err)
	}

	if err := os.MkdirAll(root, dirPerm); err != nil {
		return "", &transfer.FilesystemError{Operation: "create_dir", Path: root, Err: err}
	}

	return root, nil
}

func (l *Locator) removable(ctx context.Context) (string, error) {
	logger := logctx.LoggerFromContext(ctx)

	for _, candidate := range l.removableRoots {
		root, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}

		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}

		mounted, err := l.probe.Mounted(ctx, root)
		if err != nil {
			logger.Debug("failed to probe mount state", "root", root, "err", err)

			continue
		}

		removable, err := l.probe.Removable(ctx, root)
		if err != nil {
			logger.Debug("failed to probe removable media", "root", root, "err", err)

			continue
		}

		if mounted && removable {
			return root, nil
		}
	}

	return "", &transfer.ResolutionError{Location: LocationSDCard.String(), Err: ErrUnavailable}
}
