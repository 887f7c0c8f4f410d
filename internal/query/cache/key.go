package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FingerprintKey derives a stable exact-match cache key from a query
// and its top_k, mirroring the reference processor's
// _generate_cache_key (sha256 of "query:top_k", truncated).
func FingerprintKey(query string, topK int) string {
	combined := fmt.Sprintf("%s:%d", query, topK)
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])[:16]
}
