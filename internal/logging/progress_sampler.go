package logging

import (
	"strings"
	"time"
)

// ProgressSampler suppresses repetitive progress events while preserving
// signal: stage changes and percentage bucket boundaries always emit, and
// a minimum interval forces a periodic heartbeat through even when the
// percentage is unchanged.
type ProgressSampler struct {
	bucketSize  float64
	minInterval time.Duration
	lastStage   string
	lastBucket  int
	lastEmit    time.Time
	now         func() time.Time
}

// NewProgressSampler constructs a sampler that emits when the percent
// crosses bucket boundaries (default 5%), when the stage changes, or when
// minInterval has elapsed since the last emitted event (0 disables the
// interval rule).
func NewProgressSampler(bucketSize float64, minInterval time.Duration) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{
		bucketSize:  bucketSize,
		minInterval: minInterval,
		lastBucket:  -1,
		now:         time.Now,
	}
}

// ShouldLog reports whether a progress event should be logged. Percent can
// be negative to indicate "unknown"; stage is trimmed before comparison.
func (s *ProgressSampler) ShouldLog(percent float64, stage string) bool {
	if s == nil {
		return true
	}
	stage = strings.TrimSpace(stage)
	emit := false
	if stage != "" && stage != s.lastStage {
		s.lastStage = stage
		emit = true
		s.lastBucket = -1
	}
	if percent >= 0 {
		bucket := int(percent / s.bucketSize)
		if percent >= 100 {
			bucket = int(100 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	if !emit && s.minInterval > 0 && s.now().Sub(s.lastEmit) >= s.minInterval {
		emit = true
	}
	if emit {
		s.lastEmit = s.now()
	}
	return emit
}

// Reset clears the sampler state (e.g. when a new stage starts).
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStage = ""
	s.lastBucket = -1
	s.lastEmit = time.Time{}
}
