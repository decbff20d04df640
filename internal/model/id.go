package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// separator delimits parts fed into DeterministicID, matching the unit
// separator convention used elsewhere in the cursor codec (see
// internal/adapter/common.EncodeCursor).
const separator = 0x1f

// DeterministicID hashes namespace-separated parts into a reproducible hex
// digest. Swapping the order of parts, or changing any single part,
// changes the resulting ID; identical parts in identical order always
// hash identically.
//
// The original implementation this was distilled from used blake3; no
// repository in this module's reference corpus vendors a blake3 binding,
// so SHA-256 is substituted (see SPEC_FULL.md design notes). Remi never
// compares its hashes against another implementation's, so the choice of
// digest algorithm is an internal implementation detail.
func DeterministicID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{separator})
	}
	return hex.EncodeToString(h.Sum(nil))
}
