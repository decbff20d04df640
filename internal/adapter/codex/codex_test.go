package codex

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCodexSkipsDeveloperAndSystemRoles(t *testing.T) {
	dir := t.TempDir()
	sessDir := filepath.Join(dir, ".codex", "sessions")
	os.MkdirAll(sessDir, 0755)
	content := `{"type":"session_meta","payload":{"id":"sess-1","cwd":"/home/user/project"}}
{"type":"response_item","payload":{"type":"message","role":"developer","content":[{"type":"input_text","text":"be careful"}]}}
{"type":"response_item","payload":{"type":"message","role":"system","content":[{"type":"input_text","text":"system prompt"}]}}
{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"hello world"}]}}
{"type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hi there"}]}}
`
	os.WriteFile(filepath.Join(sessDir, "s1.jsonl"), []byte(content), 0644)

	a := &Adapter{Home: dir}
	paths, err := a.DiscoverSourcePaths(context.Background())
	if err != nil || len(paths) != 1 {
		t.Fatalf("paths=%v err=%v", paths, err)
	}
	records, err := a.ScanChangesSince(context.Background(), paths, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected exactly 2 records, got %d: %+v", len(records), records)
	}
	for i, want := range []string{"user", "assistant"} {
		role, _ := records[i].Payload.Field("__role").AsString()
		if role != want {
			t.Errorf("record %d role = %q, want %q", i, role, want)
		}
	}
	if records[0].SourceID != "sess-1:0" || records[1].SourceID != "sess-1:1" {
		t.Fatalf("unexpected source ids: %q %q", records[0].SourceID, records[1].SourceID)
	}

	batch := a.Normalize(records)
	if len(batch.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(batch.Sessions))
	}
	if batch.Sessions[0].Title != "hello world" {
		t.Fatalf("expected title 'hello world', got %q", batch.Sessions[0].Title)
	}
	if batch.Provenance[0].SourcePath != "/home/user/project" {
		t.Fatalf("expected workspace path propagated, got %q", batch.Provenance[0].SourcePath)
	}
}
