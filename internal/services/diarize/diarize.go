// Package diarize wraps the WhisperX speaker-diarization pipeline and
// converts its JSON output into the transcript artifact.
package diarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"factreel/internal/artifact"
	"factreel/internal/services"
)

// Config carries diarizer settings.
type Config struct {
	Binary         string
	Model          string
	Language       string
	TimeoutSeconds int
}

// Service shells out to whisperx.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a diarization service.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "whisperx"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "large-v3"
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string { return s.cfg.Model }

func (s *Service) run(ctx context.Context, args ...string) error {
	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	err := s.exec(ctx, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "diarize", "run",
			fmt.Sprintf("%s exceeded %ds", s.cfg.Binary, s.cfg.TimeoutSeconds), err)
	}
	return err
}

func (s *Service) exec(ctx context.Context, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.Binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return services.Wrap(services.ErrExternalTool, "diarize", "run",
			fmt.Sprintf("%s: %s", s.cfg.Binary, strings.TrimSpace(string(output))), err)
	}
	return nil
}

// Transcribe runs diarization on an audio file and returns the validated
// transcript. workDir holds the tool's raw output files.
func (s *Service) Transcribe(ctx context.Context, source, workDir string) (*artifact.Transcript, error) {
	if strings.TrimSpace(source) == "" {
		return nil, services.Wrap(services.ErrInput, "diarize", "transcribe", "source path required", nil)
	}
	if workDir == "" {
		workDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "diarize", "transcribe", "ensure work dir", err)
	}

	args := []string{
		source,
		"--model", s.cfg.Model,
		"--diarize",
		"--output_dir", workDir,
		"--output_format", "json",
	}
	if lang := strings.TrimSpace(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if err := s.run(ctx, args...); err != nil {
		return nil, err
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	jsonPath := filepath.Join(workDir, baseName+".json")
	return LoadTranscript(jsonPath, s.cfg.Model)
}

// rawSegment mirrors the WhisperX diarized JSON schema.
type rawSegment struct {
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

type rawPayload struct {
	Language string       `json:"language"`
	Segments []rawSegment `json:"segments"`
}

// LoadTranscript reads a WhisperX JSON output file and normalizes it into
// the transcript artifact: segments sorted by start, sequential ids, and
// empty spans dropped.
func LoadTranscript(jsonPath, model string) (*artifact.Transcript, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "load",
			fmt.Sprintf("read %s", filepath.Base(jsonPath)), err)
	}
	var payload rawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "load", "parse diarizer output", err)
	}

	segments := make([]rawSegment, 0, len(payload.Segments))
	for _, seg := range payload.Segments {
		if strings.TrimSpace(seg.Text) == "" || seg.End <= seg.Start {
			continue
		}
		segments = append(segments, seg)
	}
	sort.SliceStable(segments, func(i, j int) bool { return segments[i].Start < segments[j].Start })
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "diarize", "load", "diarizer produced no usable segments", nil)
	}

	out := &artifact.Transcript{
		Language:      payload.Language,
		Model:         model,
		TotalSegments: len(segments),
		Segments:      make([]artifact.TranscriptSegment, 0, len(segments)),
	}
	for i, seg := range segments {
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = "SPEAKER_UNKNOWN"
		}
		out.Segments = append(out.Segments, artifact.TranscriptSegment{
			ID:      i + 1,
			Speaker: speaker,
			Text:    strings.TrimSpace(seg.Text),
			Start:   seg.Start,
			End:     seg.End,
		})
	}
	return out, nil
}
