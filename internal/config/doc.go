// Package config provides configuration loading, merging, and XDG path
// management for Remi.
//
// # Configuration Loading
//
// Load merges configuration from, in increasing priority order:
//
//  1. Global config (~/.config/remi/remi.json or remi.jsonc)
//  2. Project config (<directory>/.remi/remi.json or remi.jsonc)
//  3. A .env file in directory, loaded with github.com/joho/godotenv
//     (only fills variables not already set in the process environment)
//  4. Environment variables
//
// # Supported Formats
//
// Both JSON and JSONC (JSON with comments) are accepted; JSONC is
// stripped to plain JSON with github.com/tidwall/jsonc before unmarshal.
//
// # Path Management
//
// Paths follows the XDG Base Directory Specification:
//   - Data: ~/.local/share/remi (XDG_DATA_HOME)
//   - Config: ~/.config/remi (XDG_CONFIG_HOME)
//   - Cache: ~/.cache/remi (XDG_CACHE_HOME)
//   - State: ~/.local/state/remi (XDG_STATE_HOME)
//
// On Windows these fall back to APPDATA.
//
// # Environment Variable Overrides
//
//   - REMI_AGENTS - comma-separated list of agents to sync
//   - REMI_LOG_LEVEL - zerolog level name
//   - REMI_EMBEDDING_MODEL_DIR - path to the local ONNX embedding model
//   - ORT_DYLIB_PATH - path to the onnxruntime shared library
//   - REMI_ARCHIVE_OLDER_THAN_DAYS, REMI_ARCHIVE_KEEP_LATEST - archive
//     plan defaults
package config
