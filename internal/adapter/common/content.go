package common

import (
	"strings"

	"github.com/lsj5031/remi/internal/jsonval"
)

// ExtractContentText implements the common-contract content extraction:
// a plain string is returned as-is; an array of {type, text|thinking}
// parts has every non-empty "text" and "thinking" field concatenated, in
// array order, newline-joined. Adapters needing narrower rules (Pi
// rollout excludes "thinking"; Codex reads input_text/output_text) define
// their own variant instead of calling this one.
func ExtractContentText(content jsonval.Value) string {
	if s, ok := content.AsString(); ok {
		return s
	}
	items, ok := content.AsArray()
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range items {
		if text, ok := item.Field("text").AsString(); ok && strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
		if thinking, ok := item.Field("thinking").AsString(); ok && strings.TrimSpace(thinking) != "" {
			parts = append(parts, thinking)
		}
	}
	return strings.Join(parts, "\n")
}

// TruncateTitle truncates s to at most maxLen runes, appending an
// ellipsis when truncated. Used for the "first user utterance" title
// derivation shared by Pi and Codex.
func TruncateTitle(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen]) + "…"
}
