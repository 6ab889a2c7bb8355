package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"factreel/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/audio/speech",
		Model:   "tts-1",
		Voice:   "onyx",
	})
}

func TestSynthesizeWritesAudio(t *testing.T) {
	var req speechRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte("mp3-bytes"))
	})

	dest := filepath.Join(t.TempDir(), "Audio", "intro.mp3")
	if err := client.Synthesize(context.Background(), "Welcome to the show.", "serious", dest); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "mp3-bytes" {
		t.Fatalf("dest = %q, %v", data, err)
	}
	if req.Voice != "onyx" || req.Model != "tts-1" {
		t.Fatalf("request = %+v", req)
	}
	if !strings.Contains(req.Instructions, "serious") {
		t.Fatalf("instructions = %q", req.Instructions)
	}
}

func TestSynthesizeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, services.ErrRateLimited},
		{"server error", http.StatusBadGateway, services.ErrTransient},
		{"client error", http.StatusBadRequest, services.ErrExternalTool},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			err := client.Synthesize(context.Background(), "text", "", filepath.Join(t.TempDir(), "x.mp3"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want marker %v", err, tt.want)
			}
		})
	}
}

func TestSynthesizeRejectsEmptyAudio(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	err := client.Synthesize(context.Background(), "text", "", filepath.Join(t.TempDir(), "x.mp3"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("error = %v, want external tool marker", err)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "http://localhost"})
	if err := client.Synthesize(context.Background(), "  ", "", "x.mp3"); !errors.Is(err, services.ErrInput) {
		t.Fatalf("empty text error = %v", err)
	}
	client = NewClient(Config{BaseURL: "http://localhost"})
	if err := client.Synthesize(context.Background(), "text", "", "x.mp3"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("missing key error = %v", err)
	}
}
