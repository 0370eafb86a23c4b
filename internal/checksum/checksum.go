// Package checksum derives content fingerprints for cached articles.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns the strong entity tag for rendered article content.
func ETag(content string) string {
	return `"` + Sum([]byte(content)) + `"`
}

// Matches reports whether an If-None-Match header value names etag.
// The header may list several tags and may use the weak form or "*".
func Matches(header, etag string) bool {
	for tag := range strings.SplitSeq(header, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" || strings.TrimPrefix(tag, "W/") == etag {
			return true
		}
	}
	return false
}
