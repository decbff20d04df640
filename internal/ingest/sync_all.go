package ingest

import (
	"context"
	"fmt"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/store"
)

// AgentProgressFunc is ProgressFunc tagged with which adapter emitted it,
// for a sink driving a CLI or TUI across a multi-agent sync.
type AgentProgressFunc func(model.AgentKind, Progress)

// Result is one adapter's outcome from SyncAll.
type Result struct {
	Agent       model.AgentKind
	RecordCount int
	Err         error
}

// SyncAll runs Sync for every adapter in turn, collecting each result
// rather than stopping at the first error: one agent's source being
// unreadable must never block ingestion for the others.
func SyncAll(ctx context.Context, adapters []adapter.Adapter, st *store.Store, embedder Embedder, sink AgentProgressFunc) []Result {
	results := make([]Result, 0, len(adapters))
	for _, a := range adapters {
		kind := a.Kind()
		var wrapped ProgressFunc
		if sink != nil {
			wrapped = func(p Progress) { sink(kind, p) }
		}
		n, err := Sync(ctx, a, st, embedder, wrapped)
		if err != nil {
			err = fmt.Errorf("ingest: sync %s: %w", kind, err)
		}
		results = append(results, Result{Agent: kind, RecordCount: n, Err: err})
	}
	return results
}
