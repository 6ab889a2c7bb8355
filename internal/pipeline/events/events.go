// Package events provides the append-only NDJSON progress log written
// alongside each pipeline run.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"factreel/internal/logging"
)

// State enumerates the lifecycle notifications a stage emits.
type State string

const (
	StateStarted   State = "started"
	StateProgress  State = "progress"
	StateCompleted State = "completed"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
	StateWarning   State = "warning"
)

// Event is one progress record. Progress percentages are clamped to be
// monotonic within a stage.
type Event struct {
	SessionID   string    `json:"session_id"`
	Stage       string    `json:"stage"`
	State       State     `json:"state"`
	ProgressPct float64   `json:"progress_pct"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter appends events to one session file.
type Emitter struct {
	mu        sync.Mutex
	sessionID string
	file      *os.File
	now       func() time.Time

	// highest progress seen per stage, for clamping
	progress map[string]float64
	sampler  *logging.ProgressSampler
}

// heartbeatInterval is how long a suppressed progress stream stays quiet
// before the sampler lets the next event through.
const heartbeatInterval = 5 * time.Second

// NewEmitter opens (creating if needed) the session log under dir.
func NewEmitter(dir, sessionID string) (*Emitter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("events: create log dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".ndjson")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("events: open session log: %w", err)
	}
	return &Emitter{
		sessionID: sessionID,
		file:      file,
		now:       time.Now,
		progress:  make(map[string]float64),
		sampler:   logging.NewProgressSampler(5, heartbeatInterval),
	}, nil
}

// Close flushes and closes the session log.
func (e *Emitter) Close() error {
	if e == nil || e.file == nil {
		return nil
	}
	return e.file.Close()
}

// Emit appends one event. Regressing progress values are clamped to the
// stage's high-water mark, and repetitive progress events are sampled:
// bucket boundaries and stage changes pass, and a long quiet stretch lets
// a heartbeat through.
func (e *Emitter) Emit(stage string, state State, pct float64, message string) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if high := e.progress[stage]; pct < high {
		pct = high
	}
	e.progress[stage] = pct

	if state == StateProgress && !e.sampler.ShouldLog(pct, stage) {
		return nil
	}

	event := Event{
		SessionID:   e.sessionID,
		Stage:       stage,
		State:       state,
		ProgressPct: pct,
		Message:     message,
		Timestamp:   e.now().UTC(),
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode event: %w", err)
	}
	if _, err := e.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("events: append event: %w", err)
	}
	return nil
}
