// Package pipeline sequences the seven processing stages for one episode:
// extract, transcribe, analyze, narrate, voice, clip, compose. Stages are
// skipped when their outputs are already present and valid, so a re-run
// resumes from the first missing artifact.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"factreel/internal/artifact"
	"factreel/internal/config"
	"factreel/internal/logging"
	"factreel/internal/pipeline/events"
	"factreel/internal/services/retry"
	"factreel/internal/stagecache"
	"factreel/internal/workspace"
)

// Stage names, in execution order.
const (
	StageExtract    = "extract"
	StageTranscribe = "transcribe"
	StageAnalyze    = "analyze"
	StageNarrate    = "narrate"
	StageVoice      = "voice"
	StageClip       = "clip"
	StageCompose    = "compose"
)

// StageNames lists the seven stages in order.
func StageNames() []string {
	return []string{StageExtract, StageTranscribe, StageAnalyze, StageNarrate, StageVoice, StageClip, StageCompose}
}

// Fetcher acquires source media. Satisfied by *fetch.Service; metadata
// probing stays on the concrete service since only episode resolution
// needs it.
type Fetcher interface {
	DownloadAudio(ctx context.Context, source, dest string) error
	DownloadVideo(ctx context.Context, source, dest string) error
}

// Diarizer produces the transcript artifact. Satisfied by
// *diarize.Service.
type Diarizer interface {
	Transcribe(ctx context.Context, source, workDir string) (*artifact.Transcript, error)
}

// Speech renders narration audio. Satisfied by *tts.Client.
type Speech interface {
	Synthesize(ctx context.Context, text, tone, dest string) error
}

// Video performs clip extraction and composition. Satisfied by
// *ffmpeg.Service.
type Video interface {
	Clip(ctx context.Context, source string, start, end float64, dest string) error
	NarrationVideo(ctx context.Context, audio, dest string) error
	Concat(ctx context.Context, parts []string, workDir, dest string) error
}

// Analyzer runs the content-analysis sub-stages. Satisfied by
// *analysis.Controller.
type Analyzer interface {
	RunPass1(ctx context.Context) (*artifact.Pass1Analysis, error)
	RunFilterScriptVerify(ctx context.Context) (*artifact.Script, error)
}

// Runner executes the stage sequence for one episode.
type Runner struct {
	cfg      *config.Config
	ws       *workspace.Workspace
	cache    *stagecache.Cache
	fetcher  Fetcher
	diarizer Diarizer
	speech   Speech
	video    Video
	analyzer Analyzer
	logger   *slog.Logger
	emitter  *events.Emitter
	session  string

	// heartbeat overrides the liveness-event interval (tests); zero
	// means the default.
	heartbeat time.Duration
}

// Deps bundles the runner's collaborators.
type Deps struct {
	Config   *config.Config
	Work     *workspace.Workspace
	Cache    *stagecache.Cache
	Fetcher  Fetcher
	Diarizer Diarizer
	Speech   Speech
	Video    Video
	Analyzer Analyzer
	Logger   *slog.Logger
	Emitter  *events.Emitter
	// SessionID labels this run in reports and event logs. Generated
	// when empty.
	SessionID string
}

// NewRunner wires a runner from its dependencies.
func NewRunner(deps Deps) *Runner {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{
		cfg:      deps.Config,
		ws:       deps.Work,
		cache:    deps.Cache,
		fetcher:  deps.Fetcher,
		diarizer: deps.Diarizer,
		speech:   deps.Speech,
		video:    deps.Video,
		analyzer: deps.Analyzer,
		logger:   logger,
		emitter:  deps.Emitter,
		session:  deps.SessionID,
	}
}

// NewSessionID produces a sortable, unique id for one run's event log.
func NewSessionID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
}

// retryOptions maps the configured retry policy onto adapter calls.
func (r *Runner) retryOptions() retry.Options {
	opts := retry.Options{}
	if r.cfg != nil {
		opts.MaxAttempts = r.cfg.Retry.MaxAttempts
		opts.BaseDelay = time.Duration(r.cfg.Retry.BaseDelaySeconds) * time.Second
		opts.PerCallTimeout = time.Duration(r.cfg.Retry.PerCallTimeoutSeconds) * time.Second
	}
	return opts
}
