package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kondee/pocsdcard/internal/storage"
	"github.com/kondee/pocsdcard/internal/storage/storagetest"
	"github.com/kondee/pocsdcard/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator_ResolveInternalCreatesRoot(t *testing.T) {
	internal := filepath.Join(t.TempDir(), "files")
	loc := storage.NewLocator(internal, nil, storagetest.NewProbe(false))

	root, err := loc.Resolve(context.Background(), storage.LocationInternal)
	require.NoError(t, err)
	assert.Equal(t, internal, root)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocator_ResolveSDCard(t *testing.T) {
	ctx := context.Background()
	missing := filepath.Join(t.TempDir(), "not-there")
	sd := t.TempDir()
	probe := storagetest.NewProbe(true)
	loc := storage.NewLocator(t.TempDir(), []string{missing, sd}, probe)

	root, err := loc.Resolve(ctx, storage.LocationSDCard)
	require.NoError(t, err)
	assert.Equal(t, sd, root, "first existing candidate wins")
	assert.True(t, loc.SDCardAvailable(ctx))

	probe.SetPresent(false)

	_, err = loc.Resolve(ctx, storage.LocationSDCard)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnavailable))

	var resErr *transfer.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "sdcard", resErr.Location)
	assert.False(t, loc.SDCardAvailable(ctx))
}

func TestLocator_NoCandidates(t *testing.T) {
	loc := storage.NewLocator(t.TempDir(), nil, storagetest.NewProbe(true))

	_, err := loc.Resolve(context.Background(), storage.LocationSDCard)
	require.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestLocator_Roots(t *testing.T) {
	ctx := context.Background()
	sd := t.TempDir()
	probe := storagetest.NewProbe(true)
	loc := storage.NewLocator(t.TempDir(), []string{sd}, probe)

	assert.Len(t, loc.Roots(ctx), 2)

	probe.SetPresent(false)

	roots := loc.Roots(ctx)
	assert.Len(t, roots, 1)
	assert.Contains(t, roots, storage.LocationInternal)
}

func TestResolver_Preferred(t *testing.T) {
	ctx := context.Background()
	internal := t.TempDir()
	sd := t.TempDir()
	probe := storagetest.NewProbe(true)
	prefs := storagetest.NewPreferences(storage.LocationInternal)
	r := storage.NewResolver(storage.NewLocator(internal, []string{sd}, probe), prefs)

	loc, root, err := r.Preferred(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.LocationInternal, loc)
	assert.Equal(t, internal, root)

	require.NoError(t, r.SetLocation(ctx, storage.LocationSDCard))

	loc, root, err = r.Preferred(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.LocationSDCard, loc)
	assert.Equal(t, sd, root)

	probe.SetPresent(false)

	loc, _, err = r.Preferred(ctx)
	require.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Equal(t, storage.LocationSDCard, loc)
}

func TestResolver_PreferenceFailure(t *testing.T) {
	prefs := storagetest.NewPreferences(storage.LocationInternal)
	prefs.FailWith(errors.New("disk full"))
	r := storage.NewResolver(storage.NewLocator(t.TempDir(), nil, storagetest.NewProbe(false)), prefs)

	_, _, err := r.Preferred(context.Background())
	require.ErrorContains(t, err, "disk full")

	require.ErrorContains(t, r.SetLocation(context.Background(), storage.LocationSDCard), "disk full")
}
