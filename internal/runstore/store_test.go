package runstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"factreel/internal/runstore"
)

func openStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRunLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "s-1", "https://example.com/v/abc", "channel-title"); err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if err := store.RecordStage(ctx, runstore.StageRecord{
		SessionID: "s-1", Stage: "extract", Status: "done", Duration: 1500 * time.Millisecond,
	}); err != nil {
		t.Fatalf("RecordStage failed: %v", err)
	}
	if err := store.RecordStage(ctx, runstore.StageRecord{
		SessionID: "s-1", Stage: "transcribe", Status: "failed", Error: "whisperx exited 1",
	}); err != nil {
		t.Fatalf("RecordStage failed: %v", err)
	}
	if err := store.FinishRun(ctx, "s-1", "failed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.Runs(ctx, "", 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.Outcome != "failed" || run.Episode != "channel-title" {
		t.Fatalf("unexpected run: %#v", run)
	}
	if run.FinishedAt.IsZero() || run.FinishedAt.Before(run.StartedAt) {
		t.Fatalf("bad timestamps: %v .. %v", run.StartedAt, run.FinishedAt)
	}

	records, err := store.StageRecords(ctx, "s-1")
	if err != nil {
		t.Fatalf("StageRecords failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 stage records, got %d", len(records))
	}
	if records[0].Stage != "extract" || records[0].Duration != 1500*time.Millisecond {
		t.Fatalf("unexpected first record: %#v", records[0])
	}
	if records[1].Status != "failed" || records[1].Error != "whisperx exited 1" {
		t.Fatalf("unexpected second record: %#v", records[1])
	}
}

func TestRunsFiltersBySource(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, "s-a", "source-a", "ep-a"); err != nil {
		t.Fatal(err)
	}
	if err := store.StartRun(ctx, "s-b", "source-b", "ep-b"); err != nil {
		t.Fatal(err)
	}

	runs, err := store.Runs(ctx, "source-b", 10)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 || runs[0].SessionID != "s-b" {
		t.Fatalf("unexpected runs: %#v", runs)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")
	store, err := runstore.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ctx := context.Background()
	if err := store.StartRun(ctx, "s-1", "src", "ep"); err != nil {
		t.Fatal(err)
	}
	if err := runstore.ExecRaw(store, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := runstore.Open(path); !errors.Is(err, runstore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
