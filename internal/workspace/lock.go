package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"factreel/internal/services"
)

// Lock holds an advisory lock on one episode workspace.
type Lock struct {
	flock *flock.Flock
}

// Acquire takes the episode lock without blocking. A held lock from
// another process yields services.ErrBusy so callers can exit cleanly.
func (w *Workspace) Acquire() (*Lock, error) {
	dir := w.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "lock",
			fmt.Sprintf("create %s", dir), err)
	}
	fl := flock.New(filepath.Join(dir, ".factreel.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "lock", "acquire episode lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrBusy, "workspace", "lock",
			fmt.Sprintf("episode %s is already being processed", w.episode.Label), nil)
	}
	return &Lock{flock: fl}, nil
}

// Release drops the lock. Safe to call on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	return l.flock.Unlock()
}
