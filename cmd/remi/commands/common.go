package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lsj5031/remi/internal/adapter"
	"github.com/lsj5031/remi/internal/adapter/amp"
	"github.com/lsj5031/remi/internal/adapter/claude"
	"github.com/lsj5031/remi/internal/adapter/codex"
	"github.com/lsj5031/remi/internal/adapter/droid"
	"github.com/lsj5031/remi/internal/adapter/opencode"
	"github.com/lsj5031/remi/internal/adapter/pi"
	"github.com/lsj5031/remi/internal/config"
	"github.com/lsj5031/remi/internal/embedding"
	"github.com/lsj5031/remi/internal/model"
	"github.com/lsj5031/remi/internal/project"
	"github.com/lsj5031/remi/internal/store"
)

// workDir resolves the --dir flag to an absolute project directory,
// defaulting to the git worktree root containing the current working
// directory (or the current directory itself outside a git repo), so
// `.remi/remi.json` is found the same way from any subdirectory.
func workDir() (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return project.Root(cwd)
}

// loadConfig loads Remi's merged configuration for the current --dir.
func loadConfig() (*config.Config, error) {
	dir, err := workDir()
	if err != nil {
		return nil, fmt.Errorf("commands: resolve work dir: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("commands: load config: %w", err)
	}
	return cfg, nil
}

// dbPath resolves the --db flag, falling back to the XDG data directory.
func dbPath() string {
	if flagDB != "" {
		return flagDB
	}
	return config.GetPaths().DBPath()
}

// openStore opens the Remi store, creating its parent directory and
// schema if this is the first run.
func openStore(ctx context.Context) (*store.Store, error) {
	path := dbPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("commands: create store directory: %w", err)
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("commands: open store %s: %w", path, err)
	}
	return st, nil
}

// openEmbedder constructs the embedding model from cfg, returning (nil,
// nil) when no model directory is configured or it doesn't exist on
// disk — semantic fusion and `embed --rebuild` are optional features.
func openEmbedder(cfg *config.Config) (*embedding.Embedder, error) {
	if cfg.Embedding.ModelDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Embedding.ModelDir); err != nil {
		return nil, nil
	}
	emb, err := embedding.New(embedding.Config{
		ModelDir:    cfg.Embedding.ModelDir,
		Pooling:     embedding.Pooling(cfg.Embedding.Pooling),
		QueryPrefix: cfg.Embedding.QueryPrefix,
		DylibPath:   cfg.Embedding.DylibPath,
	})
	if err != nil {
		return nil, fmt.Errorf("commands: init embedder: %w", err)
	}
	return emb, nil
}

// newAdapter constructs the adapter for a single named agent.
func newAdapter(name string) (adapter.Adapter, error) {
	kind, err := model.ParseAgentKind(name)
	if err != nil {
		return nil, fmt.Errorf("commands: unknown agent %q: %w", name, err)
	}
	switch kind {
	case model.AgentPi:
		return pi.New(), nil
	case model.AgentDroid:
		return droid.New(), nil
	case model.AgentOpenCode:
		return opencode.New(), nil
	case model.AgentClaude:
		return claude.New(), nil
	case model.AgentAmp:
		return amp.New(), nil
	case model.AgentCodex:
		return codex.New(), nil
	default:
		return nil, fmt.Errorf("commands: no adapter registered for agent %q", name)
	}
}
