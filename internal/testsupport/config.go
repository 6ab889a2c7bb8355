package testsupport

import (
	"path/filepath"
	"testing"

	"factreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ContentRoot = filepath.Join(base, "content")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.AnalysisRulesPath = filepath.Join(base, "rules.md")
	cfgVal.LLM.APIKey = "test"
	cfgVal.TTS.APIKey = "test"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAnalysis overrides the two-pass filtering knobs on the test config.
func WithAnalysis(analysis config.Analysis) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Analysis = analysis
	}
}

// WithRetry overrides the adapter retry policy on the test config.
func WithRetry(retry config.Retry) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry = retry
	}
}

// WithLLMBaseURL points the analysis client at a test server.
func WithLLMBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ContentRoot)
}
