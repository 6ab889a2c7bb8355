package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing stage failures mid-run.
func (c *Config) Validate() error {
	var problems []string

	a := c.Analysis
	if a.MinCount <= 0 {
		problems = append(problems, "analysis.min_count must be positive")
	}
	if a.MaxCount < a.MinCount {
		problems = append(problems, "analysis.max_count must be >= analysis.min_count")
	}
	if a.TargetCount < a.MaxCount {
		problems = append(problems, "analysis.target_count must be >= analysis.max_count")
	}
	if a.MaxCategoryFraction <= 0 || a.MaxCategoryFraction > 1 {
		problems = append(problems, "analysis.max_category_fraction must be in (0, 1]")
	}
	if a.SimilarityThreshold <= 0 || a.SimilarityThreshold > 1 {
		problems = append(problems, "analysis.similarity_threshold must be in (0, 1]")
	}
	if a.FallbackThreshold > a.QualityThreshold {
		problems = append(problems, "analysis.fallback_threshold must be <= analysis.quality_threshold")
	}
	if a.MaxAttempts <= 0 {
		problems = append(problems, "analysis.max_attempts must be positive")
	}

	if c.Retry.MaxAttempts <= 0 {
		problems = append(problems, "retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelaySeconds < 0 {
		problems = append(problems, "retry.base_delay_seconds must not be negative")
	}
	if c.Concurrency.TTSWorkers <= 0 {
		problems = append(problems, "concurrency.tts_workers must be positive")
	}
	if c.Concurrency.ClipWorkers <= 0 {
		problems = append(problems, "concurrency.clip_workers must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("config validation: %s", strings.Join(problems, "; "))
	}
	return nil
}
