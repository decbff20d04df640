package common

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// HomeDir returns the user's home directory, or "" if it can't be
// determined. Adapters resolve every discovery root relative to this.
func HomeDir() string {
	h, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return h
}

// Discover expands a set of doublestar glob patterns (e.g.
// ".claude/projects/**/*.jsonl") relative to root into a deduplicated,
// sorted list of existing file paths. A pattern whose root directory
// doesn't exist contributes no paths rather than erroring, matching the
// common-contract rule that a missing discovery root isn't fatal.
func Discover(root string, patterns ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, pattern := range patterns {
		full := filepath.Join(root, pattern)
		matches, err := doublestar.FilepathGlob(full)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			info, err := os.Stat(m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
