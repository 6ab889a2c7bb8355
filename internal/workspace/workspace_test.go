package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"factreel/internal/services"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"The Daily Show", "the-daily-show"},
		{"Café Münchén #42!", "cafe-munchen-42"},
		{"  spaced   out  ", "spaced-out"},
		{"---", ""},
		{"MiXeD_Case_01", "mixed-case-01"},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewEpisodeRef(t *testing.T) {
	ref, err := NewEpisodeRef("https://example.com/watch?v=abc", "Health Watch", "Episode 12: Miracle Cures")
	if err != nil {
		t.Fatalf("NewEpisodeRef() error = %v", err)
	}
	if ref.Label != "health-watch-episode-12-miracle-cures" {
		t.Fatalf("Label = %q", ref.Label)
	}

	if _, err := NewEpisodeRef("   ", "c", "t"); err == nil || !errors.Is(err, services.ErrInput) {
		t.Fatalf("empty source error = %v, want input marker", err)
	}

	// Metadata-free sources still get a deterministic label.
	ref, err = NewEpisodeRef("https://example.com/v/abc123", "", "")
	if err != nil {
		t.Fatalf("NewEpisodeRef() error = %v", err)
	}
	if ref.Label == "" {
		t.Fatal("expected fallback label from source")
	}
}

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ref, err := NewEpisodeRef("https://example.com/v/abc", "Channel", "Title")
	if err != nil {
		t.Fatal(err)
	}
	ws, err := New(t.TempDir(), ref)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestEnsureCreatesSkeleton(t *testing.T) {
	ws := testWorkspace(t)
	if err := ws.Ensure(); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for _, sub := range []string{
		"Input",
		"Processing",
		filepath.Join("Output", "Audio"),
		filepath.Join("Output", "Video"),
		filepath.Join("Output", "Final"),
		"Logs",
	} {
		info, err := os.Stat(filepath.Join(ws.Dir(), sub))
		if err != nil || !info.IsDir() {
			t.Fatalf("missing subdir %s: %v", sub, err)
		}
	}

	// Idempotent: existing content must survive a second Ensure.
	marker := filepath.Join(ws.Dir(), "Processing", "transcript.json")
	if err := os.WriteFile(marker, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ws.Ensure(); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("Ensure() clobbered existing artifact: %v", err)
	}
}

func TestPathMapping(t *testing.T) {
	ws := testWorkspace(t)
	tests := []struct {
		name string
		want string
	}{
		{FileOriginalAudio, filepath.Join("Input", "original_audio.mp3")},
		{FileOriginalVideo, filepath.Join("Input", "original_video.mp4")},
		{FileTranscript, filepath.Join("Processing", "transcript.json")},
		{FilePass1Analysis, filepath.Join("Processing", "pass1_analysis.json")},
		{FilePass2Filtered, filepath.Join("Processing", "pass2_filtered.json")},
		{FileUnifiedScript, filepath.Join("Processing", "unified_script.json")},
		{FileVerifiedScript, filepath.Join("Processing", "verified_script.json")},
		{FileFinalVideo, filepath.Join("Output", "Final", "channel-title_final.mp4")},
	}
	for _, tt := range tests {
		got, err := ws.Path(tt.name)
		if err != nil {
			t.Fatalf("Path(%s) error = %v", tt.name, err)
		}
		if got != filepath.Join(ws.Dir(), tt.want) {
			t.Fatalf("Path(%s) = %q, want suffix %q", tt.name, got, tt.want)
		}
	}

	if _, err := ws.Path("bogus"); err == nil || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("Path(bogus) error = %v, want validation marker", err)
	}
}

func TestSectionPaths(t *testing.T) {
	ws := testWorkspace(t)
	if got := ws.AudioPath("intro"); got != filepath.Join(ws.Dir(), "Output", "Audio", "intro.mp3") {
		t.Fatalf("AudioPath() = %q", got)
	}
	if got := ws.ClipPath("clip_1"); got != filepath.Join(ws.Dir(), "Output", "Video", "clip_1.mp4") {
		t.Fatalf("ClipPath() = %q", got)
	}
	if got := ws.LogPath("transcribe"); got != filepath.Join(ws.Dir(), "Logs", "transcribe.log") {
		t.Fatalf("LogPath() = %q", got)
	}
}

func TestWriteAtomicAndExists(t *testing.T) {
	ws := testWorkspace(t)
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	path, err := ws.Path(FileTranscript)
	if err != nil {
		t.Fatal(err)
	}
	if Exists(path) {
		t.Fatal("Exists() true before write")
	}
	if err := ws.WriteAtomic(path, []byte(`{"segments":[]}`)); err != nil {
		t.Fatalf("WriteAtomic() error = %v", err)
	}
	if !Exists(path) {
		t.Fatal("Exists() false after write")
	}
	if Exists(ws.Dir()) {
		t.Fatal("Exists() true for directory")
	}
}

func TestAcquireLock(t *testing.T) {
	ws := testWorkspace(t)
	lock, err := ws.Acquire()
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer lock.Release()

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	again, err := ws.Acquire()
	if err != nil {
		t.Fatalf("re-Acquire() error = %v", err)
	}
	if err := again.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Fatalf("nil Release() error = %v", err)
	}
}
