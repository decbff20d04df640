package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
)

// EmbeddingConfig controls the local ONNX embedding model used for
// semantic retrieval fusion.
type EmbeddingConfig struct {
	ModelDir    string `json:"model_dir,omitempty"`
	Pooling     string `json:"pooling,omitempty"`
	QueryPrefix string `json:"query_prefix,omitempty"`
	DylibPath   string `json:"dylib_path,omitempty"`
}

// ArchiveConfig controls the default retention window `archive plan`
// uses when no flags are given on the command line.
type ArchiveConfig struct {
	OlderThanDays int `json:"older_than_days,omitempty"`
	KeepLatest    int `json:"keep_latest,omitempty"`
}

// Config is Remi's own configuration surface: which agents to sync,
// logging verbosity, the embedding model, and archive defaults.
type Config struct {
	Agents    []string        `json:"agents,omitempty"`
	LogLevel  string          `json:"log_level,omitempty"`
	Embedding EmbeddingConfig `json:"embedding,omitempty"`
	Archive   ArchiveConfig   `json:"archive,omitempty"`
}

// Default returns the configuration used when no config file or
// environment override supplies a value.
func Default() *Config {
	return &Config{
		Agents:   []string{"pi", "codex", "claude", "amp", "droid", "opencode"},
		LogLevel: "info",
		Archive:  ArchiveConfig{OlderThanDays: 90, KeepLatest: 3},
	}
}

// Load loads configuration from, in increasing priority order:
//  1. the global config (~/.config/remi/remi.json[c])
//  2. the project config (<directory>/.remi/remi.json[c])
//  3. a .env file in directory, if present (REMI_*/ORT_DYLIB_PATH only)
//  4. environment variables already set in the process
func Load(directory string) (*Config, error) {
	cfg := Default()

	globalDir := GetPaths().Config
	loadConfigFile(filepath.Join(globalDir, "remi.json"), cfg)
	loadConfigFile(filepath.Join(globalDir, "remi.jsonc"), cfg)

	if directory != "" {
		loadConfigFile(filepath.Join(directory, ".remi", "remi.json"), cfg)
		loadConfigFile(filepath.Join(directory, ".remi", "remi.jsonc"), cfg)
		loadDotEnv(filepath.Join(directory, ".env"))
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadDotEnv loads every variable in a .env file into the process
// environment, without overwriting variables already set there; of
// these, only REMI_* and ORT_DYLIB_PATH affect the Config. A missing
// file is not an error.
func loadDotEnv(path string) {
	godotenv.Load(path)
}

// loadConfigFile reads a single JSON or JSONC config file and merges it
// into cfg. A missing file is not an error; it is simply skipped.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data = jsonc.ToJSON(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}
	mergeConfig(cfg, &fileConfig)
	return nil
}

// mergeConfig merges source into target: scalars and slices in source
// overwrite target when non-empty, per-field for the nested structs.
func mergeConfig(target, source *Config) {
	if len(source.Agents) > 0 {
		target.Agents = source.Agents
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.Embedding.ModelDir != "" {
		target.Embedding.ModelDir = source.Embedding.ModelDir
	}
	if source.Embedding.Pooling != "" {
		target.Embedding.Pooling = source.Embedding.Pooling
	}
	if source.Embedding.QueryPrefix != "" {
		target.Embedding.QueryPrefix = source.Embedding.QueryPrefix
	}
	if source.Embedding.DylibPath != "" {
		target.Embedding.DylibPath = source.Embedding.DylibPath
	}
	if source.Archive.OlderThanDays != 0 {
		target.Archive.OlderThanDays = source.Archive.OlderThanDays
	}
	if source.Archive.KeepLatest != 0 {
		target.Archive.KeepLatest = source.Archive.KeepLatest
	}
}

// applyEnvOverrides applies environment variable overrides, which take
// priority over every config file.
func applyEnvOverrides(cfg *Config) {
	if agents := os.Getenv("REMI_AGENTS"); agents != "" {
		cfg.Agents = strings.Split(agents, ",")
	}
	if level := os.Getenv("REMI_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if dir := os.Getenv("REMI_EMBEDDING_MODEL_DIR"); dir != "" {
		cfg.Embedding.ModelDir = dir
	}
	if dylib := os.Getenv("ORT_DYLIB_PATH"); dylib != "" {
		cfg.Embedding.DylibPath = dylib
	}
	if days := os.Getenv("REMI_ARCHIVE_OLDER_THAN_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			cfg.Archive.OlderThanDays = n
		}
	}
	if keep := os.Getenv("REMI_ARCHIVE_KEEP_LATEST"); keep != "" {
		if n, err := strconv.Atoi(keep); err == nil {
			cfg.Archive.KeepLatest = n
		}
	}
}

// Save writes cfg as indented JSON to path, creating parent directories
// as needed.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
