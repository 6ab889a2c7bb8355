// Package fetch wraps the yt-dlp downloader used to acquire source media
// and metadata for an episode.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"factreel/internal/services"
)

// Config carries downloader settings.
type Config struct {
	Binary         string
	TimeoutSeconds int
}

// Metadata is the subset of source metadata the pipeline needs.
type Metadata struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Channel  string  `json:"channel"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
}

// ChannelName prefers the channel field and falls back to uploader.
func (m Metadata) ChannelName() string {
	if name := strings.TrimSpace(m.Channel); name != "" {
		return name
	}
	return strings.TrimSpace(m.Uploader)
}

// Service shells out to yt-dlp.
type Service struct {
	cfg           Config
	commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewService creates a downloader service.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "yt-dlp"
	}
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	s.commandRunner = runner
}

func (s *Service) run(ctx context.Context, args ...string) ([]byte, error) {
	if s.cfg.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSeconds)*time.Second)
		defer cancel()
	}
	output, err := s.exec(ctx, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return output, services.Wrap(services.ErrTimeout, "fetch", "run",
			fmt.Sprintf("%s exceeded %ds", s.cfg.Binary, s.cfg.TimeoutSeconds), err)
	}
	return output, err
}

func (s *Service) exec(ctx context.Context, args ...string) ([]byte, error) {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.cfg.Binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.cfg.Binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", s.cfg.Binary, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}

// Probe fetches source metadata without downloading media.
func (s *Service) Probe(ctx context.Context, source string) (Metadata, error) {
	var meta Metadata
	source = strings.TrimSpace(source)
	if source == "" {
		return meta, services.Wrap(services.ErrInput, "fetch", "probe", "source required", nil)
	}
	output, err := s.run(ctx, "--dump-json", "--no-download", "--no-playlist", source)
	if err != nil {
		return meta, classify("probe", output, err)
	}
	// yt-dlp may prepend warnings; the JSON document is the last line.
	payload := lastJSONLine(output)
	if err := json.Unmarshal(payload, &meta); err != nil {
		return meta, services.Wrap(services.ErrExternalTool, "fetch", "probe", "parse metadata", err)
	}
	return meta, nil
}

// DownloadAudio fetches the source audio track as mp3.
func (s *Service) DownloadAudio(ctx context.Context, source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "audio", "create destination dir", err)
	}
	output, err := s.run(ctx,
		"--no-playlist",
		"-x", "--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", dest,
		source,
	)
	if err != nil {
		return classify("audio", output, err)
	}
	return nil
}

// DownloadVideo fetches the source as an mp4 suitable for clipping.
func (s *Service) DownloadVideo(ctx context.Context, source, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "fetch", "video", "create destination dir", err)
	}
	output, err := s.run(ctx,
		"--no-playlist",
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"-o", dest,
		source,
	)
	if err != nil {
		return classify("video", output, err)
	}
	return nil
}

// classify maps yt-dlp failures onto service markers so the orchestrator
// knows which are worth retrying.
func classify(op string, output []byte, err error) error {
	if errors.Is(err, services.ErrTimeout) {
		return err
	}
	text := strings.ToLower(string(output) + " " + err.Error())
	switch {
	case strings.Contains(text, "video unavailable"),
		strings.Contains(text, "has been removed"),
		strings.Contains(text, "404"):
		return services.Wrap(services.ErrNotFound, "fetch", op, "source unavailable", err)
	case strings.Contains(text, "private video"),
		strings.Contains(text, "sign in to confirm"),
		strings.Contains(text, "age-restricted"),
		strings.Contains(text, "members-only"):
		return services.Wrap(services.ErrInput, "fetch", op, "source is access-restricted", err)
	case strings.Contains(text, "requested format is not available"):
		return services.Wrap(services.ErrExternalTool, "fetch", op, "no usable format", err)
	case strings.Contains(text, "timed out"),
		strings.Contains(text, "timeout"),
		strings.Contains(text, "connection reset"),
		strings.Contains(text, "temporary failure"),
		strings.Contains(text, "unable to download"),
		strings.Contains(text, "http error 5"):
		return services.Wrap(services.ErrTransient, "fetch", op, "network failure", err)
	case strings.Contains(text, "http error 429"),
		strings.Contains(text, "too many requests"):
		return services.Wrap(services.ErrRateLimited, "fetch", op, "provider rate limit", err)
	}
	return services.Wrap(services.ErrExternalTool, "fetch", op, "downloader failed", err)
}

func lastJSONLine(output []byte) []byte {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "{") {
			return []byte(line)
		}
	}
	return output
}
