package copilot

import (
	"crypto/sha256"
	"encoding/hex"
)

// sha256Hash returns the hex-encoded SHA-256 digest of s, used to fingerprint
// the user's query text and the response summary in every SuggestionAudit
// row.
func sha256Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
