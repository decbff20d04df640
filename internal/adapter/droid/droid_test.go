package droid

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lsj5031/remi/internal/model"
)

func TestDroidDiscoverAndNormalize(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".factory", "sessions")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, "s1.jsonl"),
		[]byte(`{"id":"m1","type":"message","timestamp":"2025-01-01T00:00:00Z","sessionId":"sess-1","message":{"role":"user","content":"hi"}}`+"\n"),
		0644)

	a := &Adapter{Home: home}
	if a.Kind() != model.AgentDroid {
		t.Fatal("wrong kind")
	}
	paths, err := a.DiscoverSourcePaths(context.Background())
	if err != nil || len(paths) != 1 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
	records, err := a.ScanChangesSince(context.Background(), paths, nil)
	if err != nil || len(records) != 1 {
		t.Fatalf("records=%v err=%v", records, err)
	}
	batch := a.Normalize(records)
	if len(batch.Sessions) != 1 || len(batch.Messages) != 1 {
		t.Fatalf("batch=%+v", batch)
	}
	if a.CheckpointCursor(records) == nil {
		t.Fatal("expected non-nil checkpoint cursor")
	}
	if a.CheckpointCursor(nil) != nil {
		t.Fatal("expected nil checkpoint cursor for empty records")
	}
}
