// Package project resolves the git worktree root of a directory, so
// project-scoped config and ingestion paths are found consistently
// regardless of which subdirectory Remi is invoked from.
package project

import (
	"os"
	"path/filepath"
	"strings"
)

// Root returns the git worktree root containing directory, or directory
// itself (absolute, cleaned) if it is not inside a git repository.
func Root(directory string) (string, error) {
	directory, err := filepath.Abs(directory)
	if err != nil {
		return "", err
	}

	gitDir := findGitDir(directory)
	if gitDir == "" {
		return directory, nil
	}
	return filepath.Dir(gitDir), nil
}

// findGitDir walks up from start looking for a .git directory or worktree
// pointer file, returning its resolved path or "" if none is found.
func findGitDir(start string) string {
	current := start
	for {
		gitPath := filepath.Join(current, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			if info.IsDir() {
				return gitPath
			}
			if content, err := os.ReadFile(gitPath); err == nil {
				line := strings.TrimSpace(string(content))
				if strings.HasPrefix(line, "gitdir: ") {
					gitdir := strings.TrimPrefix(line, "gitdir: ")
					if !filepath.IsAbs(gitdir) {
						gitdir = filepath.Join(current, gitdir)
					}
					return gitdir
				}
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return ""
		}
		current = parent
	}
}
