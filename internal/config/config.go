package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ContentRoot       string `toml:"content_root"`
	PromptsDir        string `toml:"prompts_dir"`
	AnalysisRulesPath string `toml:"analysis_rules_path"`
	LogDir            string `toml:"log_dir"`
}

// Analysis contains the two-pass controller knobs.
type Analysis struct {
	TargetCount          int     `toml:"target_count"`
	MinCount             int     `toml:"min_count"`
	MaxCount             int     `toml:"max_count"`
	QualityThreshold     float64 `toml:"quality_threshold"`
	FallbackThreshold    float64 `toml:"fallback_threshold"`
	AutoIncludeThreshold float64 `toml:"auto_include_threshold"`
	MaxCategoryFraction  float64 `toml:"max_category_fraction"`
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	// MaxAttempts bounds regenerations after schema or invariant violations.
	MaxAttempts int `toml:"max_attempts"`
}

// Retry contains the retry policy applied to external adapter calls.
type Retry struct {
	MaxAttempts           int `toml:"max_attempts"`
	BaseDelaySeconds      int `toml:"base_delay_seconds"`
	PerCallTimeoutSeconds int `toml:"per_call_timeout_seconds"`
}

// Concurrency contains worker counts for the audio and clip stages.
type Concurrency struct {
	TTSWorkers  int `toml:"tts_workers"`
	ClipWorkers int `toml:"clip_workers"`
}

// LLM contains connection settings for the analysis model.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	FilesURL       string `toml:"files_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains connection settings for speech synthesis.
type TTS struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Voice          string `toml:"voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Downloader contains settings for the source media fetcher.
type Downloader struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Diarizer contains settings for transcription and speaker diarization.
type Diarizer struct {
	Binary         string `toml:"binary"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for factreel.
//
// Configuration sections by subsystem:
//   - Paths: content root, prompt overrides, analysis rules
//   - Analysis: two-pass quality-control thresholds and counts
//   - Retry: attempts, base delay, per-call timeouts
//   - Concurrency: worker pools for audio generation and clipping
//   - LLM / TTS / Downloader / Diarizer: adapter endpoints and binaries
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Analysis    Analysis    `toml:"analysis"`
	Retry       Retry       `toml:"retry"`
	Concurrency Concurrency `toml:"concurrency"`
	LLM         LLM         `toml:"llm"`
	TTS         TTS         `toml:"tts"`
	Downloader  Downloader  `toml:"downloader"`
	Diarizer    Diarizer    `toml:"diarizer"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration
// file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/factreel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("factreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.ContentRoot,
		&c.Paths.PromptsDir,
		&c.Paths.AnalysisRulesPath,
		&c.Paths.LogDir,
	} {
		if strings.TrimSpace(*field) == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ContentRoot, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for clipping and
// composition.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
