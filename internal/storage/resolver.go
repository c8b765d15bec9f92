package storage

import (
	"context"
	"fmt"
)

// Resolver combines the persisted location preference with the Locator.
type Resolver struct {
	locator *Locator
	prefs   PreferenceStore
}

func NewResolver(locator *Locator, prefs PreferenceStore) *Resolver {
	return &Resolver{locator: locator, prefs: prefs}
}

// Location returns the persisted preferred location.
func (r *Resolver) Location(ctx context.Context) (Location, error) {
	loc, err := r.prefs.Location(ctx)
	if err != nil {
		return LocationInternal, fmt.Errorf("failed to read download location: %w", err)
	}

	return loc, nil
}

// SetLocation persists loc as the preferred location.
func (r *Resolver) SetLocation(ctx context.Context, loc Location) error {
	if err := r.prefs.SetLocation(ctx, loc); err != nil {
		return fmt.Errorf("failed to persist download location: %w", err)
	}

	return nil
}

// Resolve returns the root for loc.
func (r *Resolver) Resolve(ctx context.Context, loc Location) (string, error) {
	return r.locator.Resolve(ctx, loc)
}

// Preferred returns the preferred location together with its current root.
func (r *Resolver) Preferred(ctx context.Context) (Location, string, error) {
	loc, err := r.Location(ctx)
	if err != nil {
		return loc, "", err
	}

	root, err := r.locator.Resolve(ctx, loc)
	if err != nil {
		return loc, "", err
	}

	return loc, root, nil
}

// SDCardAvailable reports whether removable media is currently usable.
func (r *Resolver) SDCardAvailable(ctx context.Context) bool {
	return r.locator.SDCardAvailable(ctx)
}

// Roots returns the roots that currently resolve.
func (r *Resolver) Roots(ctx context.Context) map[Location]string {
	return r.locator.Roots(ctx)
}
