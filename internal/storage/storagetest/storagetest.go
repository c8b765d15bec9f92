// Package storagetest provides in-memory stand-ins for the storage collaborators.
package storagetest

import (
	"context"
	"sync"

	"github.com/kondee/pocsdcard/internal/storage"
)

// Preferences is an in-memory storage.PreferenceStore.
type Preferences struct {
	mu  sync.Mutex
	loc storage.Location
	err error
}

func NewPreferences(loc storage.Location) *Preferences {
	return &Preferences{loc: loc}
}

func (p *Preferences) Location(context.Context) (storage.Location, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.loc, p.err
}

func (p *Preferences) SetLocation(_ context.Context, loc storage.Location) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.loc = loc

	return nil
}

// FailWith makes every subsequent call return err.
func (p *Preferences) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.err = err
}

// Probe is a storage.MediaProbe that reports every path as mounted removable
// media while Present is true.
type Probe struct {
	mu      sync.Mutex
	present bool
}

func NewProbe(present bool) *Probe {
	return &Probe{present: present}
}

func (p *Probe) SetPresent(present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.present = present
}

func (p *Probe) Mounted(context.Context, string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.present, nil
}

func (p *Probe) Removable(context.Context, string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.present, nil
}
