package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lsj5031/remi/internal/model"
)

func TestNewAdapterKnownAgents(t *testing.T) {
	for _, name := range []string{"pi", "droid", "opencode", "claude", "amp", "codex"} {
		a, err := newAdapter(name)
		if err != nil {
			t.Fatalf("newAdapter(%q): %v", name, err)
		}
		if a.Kind() != model.AgentKind(name) {
			t.Fatalf("newAdapter(%q).Kind() = %s, want %s", name, a.Kind(), name)
		}
	}
}

func TestNewAdapterUnknownAgent(t *testing.T) {
	if _, err := newAdapter("not-a-real-agent"); err == nil {
		t.Fatal("expected an error for an unknown agent name")
	}
}

func TestDBPathHonorsFlagOverride(t *testing.T) {
	old := flagDB
	defer func() { flagDB = old }()

	flagDB = "/tmp/custom-remi.db"
	if got := dbPath(); got != "/tmp/custom-remi.db" {
		t.Fatalf("dbPath() = %s, want /tmp/custom-remi.db", got)
	}
}

func TestInitCommandCreatesStore(t *testing.T) {
	home := t.TempDir()
	oldHome := os.Getenv("HOME")
	os.Setenv("HOME", home)
	t.Cleanup(func() { os.Setenv("HOME", oldHome) })

	oldDB := flagDB
	defer func() { flagDB = oldDB }()
	flagDB = filepath.Join(t.TempDir(), "remi.db")

	rootCmd.SetArgs([]string{"init"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(flagDB); err != nil {
		t.Fatalf("expected store file to exist after init: %v", err)
	}
}
