package ingest

import (
	"context"
	"fmt"

	"github.com/lsj5031/remi/internal/store"
)

// RebuildEmbeddings re-embeds every stored message's content, overwriting
// whatever vector (if any) it already has. Used by `embed --rebuild` when
// the embedding model changes and existing vectors are no longer
// comparable to freshly computed ones. Returns the number of stored
// messages processed, which counts messages with blank content and
// messages whose embedding failed as well as those that received a new
// vector; individual embedding failures are swallowed for the
// same reason Sync's embed step swallows them, so one bad message never
// aborts the rebuild.
func RebuildEmbeddings(ctx context.Context, st *store.Store, embedder Embedder) (int, error) {
	messages, err := st.AllMessages(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: rebuild embeddings: list messages: %w", err)
	}

	embedMessages(ctx, st, embedder, messages)
	return len(messages), nil
}
