package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteMedia drops a placeholder media file of the given size at path,
// creating parent directories first. A size <= 0 still produces one
// byte so existence checks pass.
func WriteMedia(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	payload := bytes.Repeat([]byte{0xFA, 0xC7}, int(size/2)+1)
	if err := os.WriteFile(path, payload[:size], 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
