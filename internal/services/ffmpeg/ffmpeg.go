// Package ffmpeg wraps the ffmpeg/ffprobe binaries used for clip
// extraction, narration rendering, and final composition.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"factreel/internal/services"
)

// Config names the binaries.
type Config struct {
	FFmpegBinary  string
	FFprobeBinary string
}

// Service shells out to ffmpeg and ffprobe.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates an ffmpeg service.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(cfg.FFprobeBinary) == "" {
		cfg.FFprobeBinary = "ffprobe"
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, services.Wrap(services.ErrExternalTool, "ffmpeg", filepath.Base(name),
			strings.TrimSpace(string(output)), err)
	}
	return output, nil
}

func formatSeconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}

// Probe returns the container duration in seconds.
func (s *Service) Probe(ctx context.Context, path string) (float64, error) {
	output, err := s.run(ctx, s.cfg.FFprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, err
	}
	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &payload); err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffmpeg", "probe", "parse ffprobe output", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(payload.Format.Duration), 64)
	if err != nil {
		return 0, services.Wrap(services.ErrExternalTool, "ffmpeg", "probe",
			fmt.Sprintf("unusable duration %q", payload.Format.Duration), err)
	}
	return duration, nil
}

// Clip extracts [start, end) from the source with a re-encode so cuts land
// on exact timestamps rather than keyframes.
func (s *Service) Clip(ctx context.Context, source string, start, end float64, dest string) error {
	if end <= start {
		return services.Wrap(services.ErrValidation, "ffmpeg", "clip",
			fmt.Sprintf("invalid range [%f, %f]", start, end), nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "clip", "create destination dir", err)
	}
	_, err := s.run(ctx, s.cfg.FFmpegBinary,
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", source,
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-c:a", "aac", "-b:a", "192k",
		"-vf", "scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:(ow-iw)/2:(oh-ih)/2",
		"-r", "30",
		dest,
	)
	return err
}

// NarrationVideo renders a narration mp3 into a video segment over a plain
// background so it can be concatenated with source clips.
func (s *Service) NarrationVideo(ctx context.Context, audio, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "narration", "create destination dir", err)
	}
	_, err := s.run(ctx, s.cfg.FFmpegBinary,
		"-y",
		"-f", "lavfi", "-i", "color=c=0x101418:s=1920x1080:r=30",
		"-i", audio,
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-c:a", "aac", "-b:a", "192k",
		"-shortest",
		dest,
	)
	return err
}

// Concat joins prepared segments in order into the final container using
// the concat demuxer. All inputs share the codec settings produced by Clip
// and NarrationVideo, so streams are copied rather than re-encoded.
func (s *Service) Concat(ctx context.Context, parts []string, workDir, dest string) error {
	if len(parts) == 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "concat", "no segments to join", nil)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "create destination dir", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "create work dir", err)
	}

	var list strings.Builder
	for _, part := range parts {
		abs, err := filepath.Abs(part)
		if err != nil {
			return services.Wrap(services.ErrValidation, "ffmpeg", "concat",
				fmt.Sprintf("resolve %s", part), err)
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	listPath := filepath.Join(workDir, "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, "ffmpeg", "concat", "write concat list", err)
	}

	_, err := s.run(ctx, s.cfg.FFmpegBinary,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		dest,
	)
	return err
}
