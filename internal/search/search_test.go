package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/store"
	"github.com/lsj5031/remi/internal/vector"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "remi.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedMessage(t *testing.T, s *store.Store, sessionID, msgID, content string, ts time.Time) {
	t.Helper()
	batch := model.NormalizedBatch{
		Sessions: []model.Session{{
			ID: sessionID, Agent: model.AgentPi, SourceRef: "test", Title: "test session",
			CreatedAt: ts, UpdatedAt: ts,
		}},
		Messages: []model.Message{{
			ID: msgID, SessionID: sessionID, Role: model.RoleUser, Content: content, Ts: ts,
		}},
	}
	if err := s.SaveBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
}

// TestRRFFusionOrdering reproduces the testable-properties scenario: two
// messages about distinct topics, queried with an OR of both terms. Both
// come back, and the one with the better BM25 rank sorts first, with
// monotonically non-increasing scores.
func TestRRFFusionOrdering(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedMessage(t, s, "sess-1", "m1", "rust programming is fast and safe", base)
	seedMessage(t, s, "sess-2", "m2", "python scripting for automation", base.Add(time.Minute))

	e := New(s, nil)
	hits, err := e.SearchMessages(ctx, "rust OR python", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v, want 2", hits)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("scores not descending: %+v", hits)
	}
}

func TestSanitizeQuery(t *testing.T) {
	got := sanitizeQuery("rust! OR  python?  file.go")
	want := `"rust" OR "OR" OR "python" OR "file.go"`
	if got != want {
		t.Fatalf("sanitizeQuery = %q, want %q", got, want)
	}
}

// TestSubstringFallbackWhenNoEmbedder exercises the spec's fallback path:
// a query that is only part of a word gets no FTS5 token match, so with
// no embedder wired the engine falls back to the raw substring search,
// which matches it.
func TestSubstringFallbackWhenNoEmbedder(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedMessage(t, s, "sess-1", "m1", "contains the word unicorn somewhere", base)

	e := New(s, nil)
	hits, err := e.SearchMessages(ctx, "nicor", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].MessageID != "m1" {
		t.Fatalf("hits = %+v, want exactly m1", hits)
	}
}

type fakeQueryEmbedder struct{ vector []float32 }

func (f fakeQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]byte, error) {
	return vector.Encode(f.vector), nil
}

// TestSemanticFusionHydratesUnknownMessage covers the case where a
// message only ever matched via its embedding, never lexically or by
// recency: fuseSemantic must fetch its row directly so it still shows up
// with content and session id populated. To actually exclude it from the
// top-200 recency candidates, the store needs more than 200 newer rows.
func TestSemanticFusionHydratesUnknownMessage(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedMessage(t, s, "sess-target", "m-target", "a message about quantum entanglement", base)
	if err := s.SaveEmbedding(ctx, "m-target", vector.Encode([]float32{1, 0, 0})); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < candidateLimit+5; i++ {
		id := "filler-" + string(rune('a'+i%26)) + "-" + time.Duration(i).String()
		seedMessage(t, s, "sess-filler", id, "filler content with no bearing on the target", base.Add(time.Duration(i+1)*time.Hour))
	}

	e := New(s, fakeQueryEmbedder{vector: []float32{1, 0, 0}})
	hits, err := e.SearchMessages(ctx, "completely unrelated query text", 10)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, h := range hits {
		if h.MessageID == "m-target" {
			found = true
			if h.SessionID != "sess-target" || h.Content == "" {
				t.Fatalf("hydrated hit incomplete: %+v", h)
			}
		}
	}
	if !found {
		t.Fatalf("expected m-target to be surfaced via semantic fusion, hits=%+v", hits)
	}
}

func TestSearchSessionsGroupsAndSums(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedMessage(t, s, "sess-1", "m1", "rust programming basics", base)
	batch := model.NormalizedBatch{
		Messages: []model.Message{{
			ID: "m2", SessionID: "sess-1", Role: model.RoleAssistant,
			Content: "more rust programming detail", Ts: base.Add(time.Second),
		}},
	}
	if err := s.SaveBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}
	seedMessage(t, s, "sess-2", "m3", "unrelated python note", base)

	e := New(s, nil)
	sessions, err := e.SearchSessions(ctx, "rust", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) == 0 || sessions[0].SessionID != "sess-1" {
		t.Fatalf("sessions = %+v, want sess-1 first", sessions)
	}
}
