package fetch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"factreel/internal/services"
)

func TestProbeParsesMetadata(t *testing.T) {
	svc := NewService(Config{})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "yt-dlp" {
			t.Errorf("binary = %q", name)
		}
		if !contains(args, "--dump-json") {
			t.Errorf("args = %v", args)
		}
		return []byte("WARNING: something\n{\"id\":\"abc\",\"title\":\"Episode 12\",\"channel\":\"Health Watch\",\"duration\":5400}"), nil
	})

	meta, err := svc.Probe(context.Background(), "https://example.com/v/abc")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if meta.Title != "Episode 12" || meta.ChannelName() != "Health Watch" {
		t.Fatalf("meta = %+v", meta)
	}
}

func TestProbeFallsBackToUploader(t *testing.T) {
	m := Metadata{Uploader: "Someone"}
	if m.ChannelName() != "Someone" {
		t.Fatalf("ChannelName() = %q", m.ChannelName())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"removed", "ERROR: Video unavailable", services.ErrNotFound},
		{"private", "ERROR: Private video. Sign in if you've been granted access", services.ErrInput},
		{"age gate", "ERROR: Sign in to confirm your age. This video may be age-restricted", services.ErrInput},
		{"format", "ERROR: Requested format is not available", services.ErrExternalTool},
		{"network", "ERROR: unable to download webpage: connection reset by peer", services.ErrTransient},
		{"server error", "ERROR: HTTP Error 503: Service Unavailable", services.ErrTransient},
		{"rate limit", "ERROR: HTTP Error 429: Too Many Requests", services.ErrRateLimited},
		{"unknown", "ERROR: something odd happened", services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Config{})
			svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
				return []byte(tt.stderr), errors.New("exit status 1")
			})
			err := svc.DownloadAudio(context.Background(), "https://example.com/v/abc", filepath.Join(t.TempDir(), "a.mp3"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want marker %v", err, tt.want)
			}
		})
	}
}

func TestDownloadVideoArgs(t *testing.T) {
	var got []string
	svc := NewService(Config{Binary: "yt-dlp"})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = args
		return nil, nil
	})
	dest := filepath.Join(t.TempDir(), "video.mp4")
	if err := svc.DownloadVideo(context.Background(), "https://example.com/v/abc", dest); err != nil {
		t.Fatalf("DownloadVideo() error = %v", err)
	}
	if !contains(got, "--merge-output-format") || !contains(got, dest) {
		t.Fatalf("args = %v", got)
	}
}

func TestRunAppliesConfiguredTimeout(t *testing.T) {
	svc := NewService(Config{TimeoutSeconds: 1})
	svc.WithCommandRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			t.Error("command context has no deadline")
		}
		if remaining := time.Until(deadline); remaining > time.Second {
			t.Errorf("deadline too far out: %s", remaining)
		}
		// Hang until the deadline kills the call.
		<-ctx.Done()
		return nil, ctx.Err()
	})

	err := svc.DownloadAudio(context.Background(), "https://example.com/v/abc", filepath.Join(t.TempDir(), "a.mp3"))
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error = %v, want timeout marker", err)
	}
	if !services.Retriable(err) {
		t.Fatalf("timeout not retriable: %v", err)
	}
}

func TestProbeRequiresSource(t *testing.T) {
	svc := NewService(Config{})
	if _, err := svc.Probe(context.Background(), "  "); !errors.Is(err, services.ErrInput) {
		t.Fatalf("error = %v, want input marker", err)
	}
}

func contains(args []string, want string) bool {
	for _, arg := range args {
		if arg == want || strings.Contains(arg, want) {
			return true
		}
	}
	return false
}
