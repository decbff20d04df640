package opencode

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lsj5031/remi/internal/adapter/common"
	"github.com/lsj5031/remi/internal/jsonval"
)

type sessionMeta struct {
	canonicalKey string
	title        string
}

// SessionIndex resolves legacy IDs, UUIDs, and path-derived keys to one
// canonical session key. The Adapter builds it on its first legacy-mode
// scan and keeps it in a field rather than a package-level singleton; no
// constructor or setter accepts a prebuilt index.
type SessionIndex struct {
	metas   map[string]sessionMeta // canonical key -> meta
	aliases map[string]string      // alias -> canonical key
}

// BuildSessionIndex walks storage/session under home and builds the
// canonical-key and alias maps. Missing or unreadable entries are
// skipped; a session with no resolvable id falls back to its path stem.
func BuildSessionIndex(home string) *SessionIndex {
	idx := &SessionIndex{metas: map[string]sessionMeta{}, aliases: map[string]string{}}

	paths, err := common.Discover(home, sessionGlob)
	if err != nil {
		return idx
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil || !jsonval.Valid(data) {
			continue
		}
		val, err := jsonval.Parse(data)
		if err != nil {
			continue
		}

		canonical, ok := common.ExtractID(val, "id")
		if !ok {
			canonical = strings.TrimSuffix(filepath.Base(path), ".json")
		}
		title, ok := val.FirstNonEmptyString("title", "slug")
		if !ok {
			title = canonical
		}
		idx.metas[canonical] = sessionMeta{canonicalKey: canonical, title: title}
		idx.aliases[canonical] = canonical

		for _, aliasField := range []string{"slug", "uuid", "legacyId", "legacy_id"} {
			if alias, ok := val.FirstNonEmptyString(aliasField); ok {
				idx.aliases[alias] = canonical
			}
		}
	}
	return idx
}

// Resolve maps a raw session reference (possibly an alias) to its
// canonical key, falling back to the raw value itself when unknown, and
// to the literal "session-root" when the raw value is empty.
func (idx *SessionIndex) Resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "session-root"
	}
	if canonical, ok := idx.aliases[raw]; ok {
		return canonical
	}
	return raw
}

// Title returns the best-known title for a canonical session key,
// falling back to the key itself when the index has no entry.
func (idx *SessionIndex) Title(canonicalKey string) string {
	if m, ok := idx.metas[canonicalKey]; ok && m.title != "" {
		return m.title
	}
	return canonicalKey
}
