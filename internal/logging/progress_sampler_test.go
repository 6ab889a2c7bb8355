package logging

import (
	"testing"
	"time"
)

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5, 0)
	if !s.ShouldLog(0, "voice") {
		t.Fatal("first event should emit")
	}
	if s.ShouldLog(2, "voice") {
		t.Fatal("same bucket should be suppressed")
	}
	if !s.ShouldLog(6, "voice") {
		t.Fatal("new bucket should emit")
	}
	if !s.ShouldLog(6, "clip") {
		t.Fatal("stage change should emit")
	}
	if !s.ShouldLog(100, "clip") {
		t.Fatal("completion should emit")
	}
	if s.ShouldLog(100, "clip") {
		t.Fatal("repeated completion should be suppressed")
	}
}

func TestProgressSamplerMinInterval(t *testing.T) {
	clock := time.Unix(1000, 0)
	s := NewProgressSampler(5, 5*time.Second)
	s.now = func() time.Time { return clock }

	if !s.ShouldLog(50, "transcribe") {
		t.Fatal("first event should emit")
	}
	clock = clock.Add(2 * time.Second)
	if s.ShouldLog(50, "transcribe") {
		t.Fatal("same bucket within interval should be suppressed")
	}
	clock = clock.Add(3 * time.Second)
	if !s.ShouldLog(50, "transcribe") {
		t.Fatal("elapsed interval should force an emit")
	}
	clock = clock.Add(time.Second)
	if s.ShouldLog(50, "transcribe") {
		t.Fatal("interval clock should reset after the forced emit")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(0, 0)
	if !s.ShouldLog(50, "voice") {
		t.Fatal("first event should emit")
	}
	s.Reset()
	if !s.ShouldLog(50, "voice") {
		t.Fatal("post-reset event should emit")
	}
}

func TestProgressSamplerNil(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(1, "x") {
		t.Fatal("nil sampler always emits")
	}
	s.Reset()
}
