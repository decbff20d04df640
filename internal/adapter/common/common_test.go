package common

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/jsonval"
	"github.com/lsj5031/remi/internal/model"
)

func mustParse(t *testing.T, s string) jsonval.Value {
	t.Helper()
	v, err := jsonval.Parse([]byte(s))
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return v
}

func TestExtractContentTextString(t *testing.T) {
	v := mustParse(t, `"hello"`)
	if got := ExtractContentText(v); got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractContentTextArrayWithThinking(t *testing.T) {
	v := mustParse(t, `[{"type":"thinking","thinking":"let me think"},{"type":"text","text":"answer"}]`)
	got := ExtractContentText(v)
	if got != "let me think\nanswer" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractContentTextEmpty(t *testing.T) {
	if got := ExtractContentText(mustParse(t, `[]`)); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractContentText(mustParse(t, `null`)); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractTsRFC3339(t *testing.T) {
	v := mustParse(t, `{"timestamp":"2025-01-01T00:00:01Z"}`)
	ts, ok := ExtractTs(v)
	if !ok || !ts.Equal(time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)) {
		t.Fatalf("got %v %v", ts, ok)
	}
}

func TestExtractTsMessageMillis(t *testing.T) {
	v := mustParse(t, `{"message":{"timestamp":1700000000000}}`)
	ts, ok := ExtractTs(v)
	if !ok || ts.Unix() != 1700000000 {
		t.Fatalf("got %v %v", ts, ok)
	}
}

func TestExtractTsMissing(t *testing.T) {
	if _, ok := ExtractTs(mustParse(t, `{}`)); ok {
		t.Fatal("expected no timestamp")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	enc := EncodeCursor(ts, "mmm")
	c, ok := ParseCursor(enc)
	if !ok {
		t.Fatal("expected cursor to parse")
	}
	if !c.Ts.Equal(ts) || c.SourceID != "mmm" {
		t.Fatalf("got %+v", c)
	}
}

func TestParseCursorRejectsPlainTimestamp(t *testing.T) {
	if _, ok := ParseCursor("2025-01-10T00:00:00Z"); ok {
		t.Fatal("expected bare timestamp to be rejected")
	}
}

func TestShouldSkip(t *testing.T) {
	cursor := &adapter.Cursor{Ts: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), SourceID: "mmm"}
	cases := []struct {
		ts   time.Time
		id   string
		skip bool
	}{
		{cursor.Ts.Add(-time.Second), "zzz", true},
		{cursor.Ts, "aaa", true},
		{cursor.Ts, "mmm", true},
		{cursor.Ts, "zzz", false},
		{cursor.Ts.Add(time.Second), "aaa", false},
	}
	for _, c := range cases {
		if got := ShouldSkip(c.ts, c.id, cursor); got != c.skip {
			t.Errorf("ShouldSkip(%v, %q) = %v, want %v", c.ts, c.id, got, c.skip)
		}
	}
}

func TestCheckpointCursorFromRecordsEmpty(t *testing.T) {
	if c := CheckpointCursorFromRecords(nil); c != nil {
		t.Fatalf("expected nil cursor for empty input, got %+v", c)
	}
}

func TestCheckpointCursorFromRecordsPicksMaxTiebreakBySourceID(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []adapter.NativeRecord{
		{SourceID: "aaa", UpdatedAt: ts},
		{SourceID: "zzz", UpdatedAt: ts},
	}
	c := CheckpointCursorFromRecords(records)
	if c == nil || c.SourceID != "zzz" {
		t.Fatalf("got %+v", c)
	}
}

func TestDiscoverSortedAndMissing(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "b.jsonl"), []byte("{}"), 0644)
	os.WriteFile(filepath.Join(dir, "sub", "a.jsonl"), []byte("{}"), 0644)
	os.WriteFile(filepath.Join(dir, "c.txt"), []byte("x"), 0644)

	got, err := Discover(dir, "**/*.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] > got[i] {
			t.Fatalf("expected sorted output, got %v", got)
		}
	}

	missing, err := Discover(filepath.Join(dir, "nonexistent"), "**/*.jsonl")
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no files for nonexistent dir, got %v", missing)
	}
}

func TestLoadJSONLBasicAndCursorFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.jsonl")
	content := `{"id":"m1","type":"message","timestamp":"2025-01-01T00:00:00Z","message":{"role":"user","content":"hi"}}
{"id":"m2","type":"message","timestamp":"2025-01-02T00:00:00Z","message":{"role":"assistant","content":"there"}}
not json
`
	os.WriteFile(path, []byte(content), 0644)

	records, err := LoadJSONL(context.Background(), []string{path}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].SourceID != "m1" || records[1].SourceID != "m2" {
		t.Fatalf("unexpected ordering: %+v", records)
	}

	cursor := &adapter.Cursor{Ts: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), SourceID: "m1"}
	filtered, err := LoadJSONL(context.Background(), []string{path}, cursor)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].SourceID != "m2" {
		t.Fatalf("expected only m2 after cursor, got %+v", filtered)
	}
}

func TestNormalizeJSONLRecordsSkipsNonMessage(t *testing.T) {
	records := []adapter.NativeRecord{
		{SourceID: "x", UpdatedAt: time.Now(), Payload: mustParse(t, `{"type":"other"}`)},
	}
	batch := NormalizeJSONLRecords(model.AgentDroid, records)
	if len(batch.Messages) != 0 || len(batch.Sessions) != 0 {
		t.Fatalf("expected empty batch, got %+v", batch)
	}
}

func TestNormalizeJSONLRecordsBasic(t *testing.T) {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []adapter.NativeRecord{
		{SourceID: "s1", UpdatedAt: ts, Payload: mustParse(t, `{"type":"message","sessionId":"sess-1","message":{"role":"user","content":"hello"}}`)},
	}
	batch := NormalizeJSONLRecords(model.AgentDroid, records)
	if len(batch.Sessions) != 1 || len(batch.Messages) != 1 || len(batch.Provenance) != 1 {
		t.Fatalf("unexpected batch shape: %+v", batch)
	}
	if batch.Sessions[0].SourceRef != "sess-1" {
		t.Fatalf("got %+v", batch.Sessions[0])
	}
	if batch.Messages[0].Role != model.RoleUser || batch.Messages[0].Content != "hello" {
		t.Fatalf("got %+v", batch.Messages[0])
	}
}
