package status

import (
	"context"
	"errors"
	"os"

	"github.com/kondee/pocsdcard/internal/logctx"
	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/transfer"
)

const (
	defaultFailedMessage    = "download failed"
	defaultCancelledMessage = "download cancelled"
)

// RootResolver resolves the currently preferred storage root.
type RootResolver interface {
	Preferred(ctx context.Context) (storage.Location, string, error)
}

// Tracker derives the managed file's status and publishes transitions.
type Tracker struct {
	resolver    RootResolver
	layout      storage.Layout
	broadcaster *Broadcaster
}

func NewTracker(resolver RootResolver, layout storage.Layout, broadcaster *Broadcaster) *Tracker {
	return &Tracker{
		resolver:    resolver,
		layout:      layout,
		broadcaster: broadcaster,
	}
}

// CurrentStatus checks the preferred root for the managed file. It has no
// side effects: Downloaded(path) if the file exists, Idle otherwise, and
// Error when the preferred root cannot be resolved.
func (t *Tracker) CurrentStatus(ctx context.Context) FileStatus {
	_, root, err := t.resolver.Preferred(ctx)
	if err != nil {
		return Error(err.Error())
	}

	path := t.layout.File(root)

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logctx.LoggerFromContext(ctx).Warn("failed to stat managed file", "path", path, "err", err)
		}

		return Idle()
	}

	if info.IsDir() {
		return Idle()
	}

	return Downloaded(path)
}

// Refresh re-derives the status and publishes it.
func (t *Tracker) Refresh(ctx context.Context) FileStatus {
	s := t.CurrentStatus(ctx)
	t.broadcaster.Publish(s)

	return s
}

// Publish sets a transient status such as Moving.
func (t *Tracker) Publish(s FileStatus) {
	t.broadcaster.Publish(s)
}

// Current returns the last published status.
func (t *Tracker) Current() FileStatus {
	return t.broadcaster.Current()
}

// Subscribe streams published statuses, starting with the current one.
func (t *Tracker) Subscribe() (<-chan FileStatus, func()) {
	return t.broadcaster.Subscribe()
}

// ApplySignal maps a job signal to a status transition. It returns the
// resulting status and whether anything was published; enqueued and
// unrecognised states are no-ops.
func (t *Tracker) ApplySignal(ctx context.Context, sig transfer.Signal) (FileStatus, bool) {
	var next FileStatus

	switch sig.State {
	case transfer.StateRunning:
		next = Downloading(sig.Progress)
	case transfer.StateSucceeded:
		return t.Refresh(ctx), true
	case transfer.StateFailed:
		next = Error(messageOr(sig.Message, defaultFailedMessage))
	case transfer.StateCancelled:
		next = Error(messageOr(sig.Message, defaultCancelledMessage))
	default:
		return t.broadcaster.Current(), false
	}

	t.broadcaster.Publish(next)

	return next, true
}

func messageOr(msg, fallback string) string {
	if msg == "" {
		return fallback
	}

	return msg
}
