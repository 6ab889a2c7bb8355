package stagecache

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"factreel/internal/artifact"
	"factreel/internal/logging"
	"factreel/internal/workspace"
)

func testCache(t *testing.T) (*Cache, *workspace.Workspace) {
	t.Helper()
	ref, err := workspace.NewEpisodeRef("https://example.com/v/abc", "Channel", "Title")
	if err != nil {
		t.Fatal(err)
	}
	ws, err := workspace.New(t.TempDir(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.Ensure(); err != nil {
		t.Fatal(err)
	}
	return New(ws, logging.NewNop()), ws
}

func sampleTranscript() artifact.Transcript {
	return artifact.Transcript{
		Language: "en",
		Model:    "large-v3",
		Segments: []artifact.TranscriptSegment{
			{ID: 1, Speaker: "SPEAKER_00", Text: "hello there", Start: 0, End: 2},
		},
	}
}

func TestGetMissOnAbsentFile(t *testing.T) {
	cache, _ := testCache(t)
	value, ok, err := cache.Get(workspace.FileTranscript, artifact.SchemaTranscript)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || value != nil {
		t.Fatalf("Get() = %v, %v; want miss", value, ok)
	}
}

func TestPutThenGet(t *testing.T) {
	cache, _ := testCache(t)
	if err := cache.Put(workspace.FileTranscript, artifact.SchemaTranscript, sampleTranscript()); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	value, ok, err := cache.Get(workspace.FileTranscript, artifact.SchemaTranscript)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() missed after Put()")
	}
	tr, isTr := value.(*artifact.Transcript)
	if !isTr || len(tr.Segments) != 1 || tr.Segments[0].Text != "hello there" {
		t.Fatalf("Get() = %#v", value)
	}
}

func TestPutRejectsInvalid(t *testing.T) {
	cache, _ := testCache(t)
	bad := sampleTranscript()
	bad.Segments[0].End = 0
	if err := cache.Put(workspace.FileTranscript, artifact.SchemaTranscript, bad); err == nil {
		t.Fatal("Put() accepted invalid artifact")
	}
}

func TestGetQuarantinesCorruptFile(t *testing.T) {
	cache, ws := testCache(t)
	path, err := ws.Path(workspace.FileTranscript)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(`{"segments":[{"id":1,"text":"","start":0,"end":2}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	value, ok, err := cache.Get(workspace.FileTranscript, artifact.SchemaTranscript)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok || value != nil {
		t.Fatal("Get() returned corrupt artifact as a hit")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file still in place: %v", err)
	}

	matches, err := filepath.Glob(path + ".invalid.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("quarantine files = %v, want exactly one", matches)
	}
	if !strings.Contains(matches[0], "transcript.json.invalid.") {
		t.Fatalf("quarantine name = %s", matches[0])
	}
}

func TestQuarantineMovesValidatedArtifactAside(t *testing.T) {
	cache, ws := testCache(t)
	if err := cache.Put(workspace.FileTranscript, artifact.SchemaTranscript, sampleTranscript()); err != nil {
		t.Fatal(err)
	}
	path, err := ws.Path(workspace.FileTranscript)
	if err != nil {
		t.Fatal(err)
	}

	if err := cache.Quarantine(workspace.FileTranscript, errors.New("stale against upstream")); err != nil {
		t.Fatalf("Quarantine() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact still in place after Quarantine: %v", err)
	}
	matches, err := filepath.Glob(path + ".invalid.*")
	if err != nil || len(matches) != 1 {
		t.Fatalf("quarantine files = %v, err = %v", matches, err)
	}
	if _, ok, err := cache.Get(workspace.FileTranscript, artifact.SchemaTranscript); err != nil || ok {
		t.Fatalf("Get() after Quarantine = hit=%v err=%v, want miss", ok, err)
	}

	// Quarantining an already-missing artifact is a no-op.
	if err := cache.Quarantine(workspace.FileTranscript, errors.New("again")); err != nil {
		t.Fatalf("Quarantine() on absent file error = %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	cache, ws := testCache(t)
	if err := cache.Put(workspace.FileTranscript, artifact.SchemaTranscript, sampleTranscript()); err != nil {
		t.Fatal(err)
	}
	if err := cache.Invalidate(workspace.FileTranscript); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	path, _ := ws.Path(workspace.FileTranscript)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact still present after Invalidate: %v", err)
	}
	if err := cache.Invalidate(workspace.FileTranscript); err != nil {
		t.Fatalf("Invalidate() on absent file error = %v", err)
	}
}
