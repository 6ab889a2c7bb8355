// Package stagecache persists validated stage artifacts in the episode
// workspace so completed stages are skipped on re-runs. Every read
// revalidates against the artifact schema; files that fail validation are
// quarantined rather than trusted or silently deleted.
package stagecache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"factreel/internal/artifact"
	"factreel/internal/logging"
	"factreel/internal/workspace"
)

// Cache reads and writes schema-validated artifacts for one episode.
type Cache struct {
	ws     *workspace.Workspace
	logger *slog.Logger
	now    func() time.Time
}

// New returns a cache bound to the episode workspace.
func New(ws *workspace.Workspace, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Cache{ws: ws, logger: logger, now: time.Now}
}

// Get loads and validates a cached artifact. A missing file is a plain
// miss. A file that fails schema validation is renamed aside with an
// .invalid.<timestamp> suffix and reported as a miss so the producing
// stage re-runs.
func (c *Cache) Get(name string, schema artifact.Schema) (any, bool, error) {
	path, err := c.ws.Path(name)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached %s: %w", name, err)
	}
	value, err := artifact.Validate(schema, data)
	if err != nil {
		quarantined := c.quarantine(path)
		c.logger.Warn("cached artifact failed validation, quarantined",
			logging.String("artifact", name),
			logging.String("quarantined_as", filepath.Base(quarantined)),
			logging.Error(err))
		return nil, false, nil
	}
	return value, true, nil
}

// Put validates and atomically persists a stage artifact.
func (c *Cache) Put(name string, schema artifact.Schema, value any) error {
	data, err := artifact.Encode(value)
	if err != nil {
		return err
	}
	if _, err := artifact.Validate(schema, data); err != nil {
		return err
	}
	path, err := c.ws.Path(name)
	if err != nil {
		return err
	}
	return c.ws.WriteAtomic(path, data)
}

// Quarantine renames a cached artifact aside after it failed a check
// the schema alone cannot express, such as a cross-artifact invariant
// against a regenerated upstream output. The caller treats the read as
// a miss so the producing sub-stage re-runs. Missing files are not an
// error.
func (c *Cache) Quarantine(name string, cause error) error {
	path, err := c.ws.Path(name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	quarantined := c.quarantine(path)
	c.logger.Warn("cached artifact failed validation, quarantined",
		logging.String("artifact", name),
		logging.String("quarantined_as", filepath.Base(quarantined)),
		logging.Error(cause))
	return nil
}

// Invalidate removes a cached artifact so its stage re-runs. Missing
// files are not an error.
func (c *Cache) Invalidate(name string) error {
	path, err := c.ws.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate %s: %w", name, err)
	}
	return nil
}

func (c *Cache) quarantine(path string) string {
	target := fmt.Sprintf("%s.invalid.%d", path, c.now().Unix())
	if err := os.Rename(path, target); err != nil {
		c.logger.Warn("quarantine rename failed", logging.String("path", path), logging.Error(err))
		return path
	}
	return target
}
