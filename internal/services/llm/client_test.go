package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"factreel/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := Config{
		APIKey:   "test-key",
		BaseURL:  server.URL + "/chat/completions",
		FilesURL: server.URL + "/files",
		Model:    "test/model",
	}
	opts = append([]Option{WithSleeper(func(time.Duration) {})}, opts...)
	return NewClient(cfg, opts...), server
}

func completionBody(content string) string {
	return `{"choices":[{"message":{"content":` + content + `}}]}`
}

func TestCompleteJSONSuccess(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(completionBody(`"{\"answer\":42}"`)))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if content != `{"answer":42}` {
		t.Fatalf("content = %q", content)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(completionBody(`"{}"`)))
	})

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestCompleteJSONRateLimitExhaustion(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "1")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}, WithRetryMaxAttempts(2))

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("CompleteJSON() succeeded against permanent 429")
	}
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("error = %v, want rate-limited marker", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCompleteJSONClientErrorIsFatal(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("CompleteJSON() succeeded against 400")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want no retry on 4xx", calls)
	}
	if errors.Is(err, services.ErrRateLimited) || errors.Is(err, services.ErrTransient) {
		t.Fatalf("4xx should not carry a retriable marker: %v", err)
	}
}

func TestCompleteJSONRefusalIsFatal(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot assist"},"finish_reason":"content_filter"}]}`))
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("CompleteJSON() succeeded against refusal")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want no retry on refusal", calls)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("error = %v, want validation marker", err)
	}
	if !strings.Contains(err.Error(), "cannot assist") {
		t.Fatalf("refusal text missing from %v", err)
	}
}

func TestCompleteJSONEmptyContentRetries(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`))
			return
		}
		w.Write([]byte(completionBody(`"{}"`)))
	})

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestCompleteJSONRequiresPrompts(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if _, err := client.CompleteJSON(context.Background(), "", "user"); err == nil {
		t.Fatal("empty system prompt accepted")
	}
	if _, err := client.CompleteJSON(context.Background(), "system", ""); err == nil {
		t.Fatal("empty user prompt accepted")
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration marker", err)
	}
}

func TestUploadAndDeleteFile(t *testing.T) {
	var uploaded, deleted bool
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			uploaded = true
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			w.Write([]byte(`{"id":"file-123","filename":"transcript.json"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/files/file-123":
			deleted = true
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ref, err := client.UploadFile(context.Background(), "transcript.json", []byte(`{"segments":[]}`))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	if ref.ID != "file-123" {
		t.Fatalf("ref = %+v", ref)
	}
	if err := client.DeleteFile(context.Background(), ref); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if !uploaded || !deleted {
		t.Fatalf("uploaded=%v deleted=%v", uploaded, deleted)
	}
}

func TestDeleteFileTolerates404(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if err := client.DeleteFile(context.Background(), FileRef{ID: "gone"}); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
}

func TestCompleteJSONAttachesFiles(t *testing.T) {
	var body string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Write([]byte(completionBody(`"{}"`)))
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user", FileRef{ID: "file-9"})
	if err != nil {
		t.Fatalf("CompleteJSON() error = %v", err)
	}
	if !strings.Contains(body, `"file_id":"file-9"`) {
		t.Fatalf("attachment missing from request body: %s", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"plain", `{"ok":true}`, false},
		{"fenced", "```json\n{\"ok\":true}\n```", false},
		{"prose prefix", "Here you go: {\"ok\":true}", false},
		{"array", "```\n[1,2,3]\n```", false},
		{"empty", "   ", true},
		{"garbage", "not json at all", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var target any
			err := DecodeJSON(tt.payload, &target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
		})
	}
}
