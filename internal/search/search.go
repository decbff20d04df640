// Package search implements the hybrid ranked retrieval engine: lexical
// (BM25 via FTS5), recency, and optional semantic candidates combined by
// Reciprocal Rank Fusion.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lsj5031/remi/internal/store"
	"github.com/lsj5031/remi/internal/vector"
)

const (
	rrfK = 60

	candidateLimit = 200

	weightLexical  = 1.0
	weightRecency  = 0.3
	weightSemantic = 0.5
)

// QueryEmbedder computes a query-side embedding, distinct from the
// document-side Embed an ingest.Embedder performs: some embedders
// prepend a query prefix the document path never sees. A concrete
// embedder satisfies both interfaces with two methods.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]byte, error)
}

// Hit is one ranked message-level result.
type Hit struct {
	MessageID string
	SessionID string
	Content   string
	Ts        time.Time
	Score     float64
}

// SessionHit is one ranked session-level result: the summed score of its
// matching messages, plus the single highest-scoring message as the
// representative snippet.
type SessionHit struct {
	SessionID string
	Score     float64
	Top       Hit
}

// Engine runs the retrieval pipeline against a Store. The semantic pass
// is skipped entirely when Embedder is nil.
type Engine struct {
	store    *store.Store
	embedder QueryEmbedder

	mu    sync.Mutex
	cache map[string][]float32
}

func New(st *store.Store, embedder QueryEmbedder) *Engine {
	return &Engine{store: st, embedder: embedder, cache: make(map[string][]float32)}
}

// sanitizeAllowed matches the characters an FTS5 term is allowed to keep;
// everything else is stripped before the term is quoted.
func sanitizeAllowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case strings.ContainsRune("_./:-", r):
		return true
	}
	return false
}

func sanitizeQuery(raw string) string {
	var terms []string
	for _, t := range strings.Fields(raw) {
		kept := strings.Map(func(r rune) rune {
			if sanitizeAllowed(r) {
				return r
			}
			return -1
		}, t)
		if kept == "" {
			continue
		}
		terms = append(terms, `"`+kept+`"`)
	}
	return strings.Join(terms, " OR ")
}

// SearchMessages runs the full pipeline and returns up to limit
// message-level hits, ranked by fused RRF score descending.
func (e *Engine) SearchMessages(ctx context.Context, query string, limit int) ([]Hit, error) {
	acc := make(map[string]*Hit)
	fuse := func(hits []store.Hit, weight float64) {
		for i, h := range hits {
			mh, ok := acc[h.MessageID]
			if !ok {
				mh = &Hit{MessageID: h.MessageID, SessionID: h.SessionID, Content: h.Content, Ts: h.Ts}
				acc[h.MessageID] = mh
			}
			mh.Score += weight / float64(rrfK+i+1)
		}
	}

	ftsQuery := sanitizeQuery(query)
	lexical, err := e.store.SearchLexical(ctx, ftsQuery, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("search: lexical: %w", err)
	}

	if (ftsQuery == "" || len(lexical) == 0) && e.embedder == nil {
		sub, err := e.store.SearchSubstring(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("search: substring fallback: %w", err)
		}
		lexical = sub
	}
	fuse(lexical, weightLexical)

	recency, err := e.store.RecentMessages(ctx, candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("search: recency: %w", err)
	}
	fuse(recency, weightRecency)

	if e.embedder != nil {
		if err := e.fuseSemantic(ctx, query, acc); err != nil {
			return nil, err
		}
	}

	out := make([]Hit, 0, len(acc))
	for _, h := range acc {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fuseSemantic scores every stored embedding against the query vector by
// cosine similarity, keeps the top candidateLimit, and folds them into
// acc at semantic weight. Messages with no lexical/recency hit yet are
// hydrated here by fetching their row directly.
func (e *Engine) fuseSemantic(ctx context.Context, query string, acc map[string]*Hit) error {
	qvec, err := e.queryVector(ctx, query)
	if err != nil {
		return fmt.Errorf("search: query embedding: %w", err)
	}
	if len(qvec) == 0 {
		return nil
	}

	embeddings, err := e.store.LoadAllEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("search: load embeddings: %w", err)
	}

	type scored struct {
		messageID string
		score     float64
	}
	ranked := make([]scored, 0, len(embeddings))
	for _, emb := range embeddings {
		ranked = append(ranked, scored{emb.MessageID, vector.Cosine(qvec, vector.Decode(emb.Vector))})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > candidateLimit {
		ranked = ranked[:candidateLimit]
	}

	for i, r := range ranked {
		mh, ok := acc[r.messageID]
		if !ok {
			msg, err := e.store.GetMessageByID(ctx, r.messageID)
			if err != nil {
				continue
			}
			mh = &Hit{MessageID: msg.ID, SessionID: msg.SessionID, Content: msg.Content, Ts: msg.Ts}
			acc[r.messageID] = mh
		}
		mh.Score += weightSemantic / float64(rrfK+i+1)
	}
	return nil
}

// queryVector returns the query embedding, memoized per raw query string
// for the lifetime of the process.
func (e *Engine) queryVector(ctx context.Context, query string) ([]float32, error) {
	e.mu.Lock()
	if v, ok := e.cache[query]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	raw, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	v := vector.Decode(raw)

	e.mu.Lock()
	e.cache[query] = v
	e.mu.Unlock()
	return v, nil
}

// SearchSessions groups message-level hits by session, summing scores,
// and returns up to limit sessions ranked by that sum. The representative
// Top hit is the highest-scoring message within the group.
func (e *Engine) SearchSessions(ctx context.Context, query string, limit int) ([]SessionHit, error) {
	hits, err := e.SearchMessages(ctx, query, 5*limit)
	if err != nil {
		return nil, err
	}

	bySession := make(map[string]*SessionHit)
	var order []string
	for _, h := range hits {
		sh, ok := bySession[h.SessionID]
		if !ok {
			sh = &SessionHit{SessionID: h.SessionID, Top: h}
			bySession[h.SessionID] = sh
			order = append(order, h.SessionID)
		}
		sh.Score += h.Score
		if h.Score > sh.Top.Score {
			sh.Top = h
		}
	}

	out := make([]SessionHit, 0, len(order))
	for _, id := range order {
		out = append(out, *bySession[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
