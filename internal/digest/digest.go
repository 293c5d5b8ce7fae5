// Package digest produces the one-way content digest stored in place of
// clipboard text. Raw snippets never leave the ingestion handler.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
)

// snippetBytes is how much of the SHA-256 sum is kept. Enough to compare
// events, far too little to invert.
const snippetBytes = 8

// Snippet returns "sha256:<hex>" over the first 8 bytes of the content's
// SHA-256 sum, or "" for empty input.
func Snippet(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(sum[:snippetBytes])
}
