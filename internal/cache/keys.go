package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Tier selects which TTL policy applies to a cache entry. The analysis tier
// holds the slow-changing course analysis sub-result; the full tier holds
// complete discovery results.
type Tier string

const (
	TierAnalysis Tier = "analysis"
	TierFull     Tier = "full"
)

// DeriveKey builds the deterministic cache key for a normalized input set
// under the given config fingerprint and tier. Only present fields contribute
// a fragment, so an unset field and an empty field hash identically. The
// fragment list is hashed to keep keys a fixed, manageable length, and the
// tier prefix keeps the two TTL namespaces disjoint.
func DeriveKey(n NormalizedInputs, fp string, tier Tier) string {
	var parts []string

	if n.CourseURL != "" {
		parts = append(parts, "course:"+n.CourseURL)
	}
	if n.BookURL != "" {
		parts = append(parts, "book_url:"+n.BookURL)
	}
	if n.BookTitle != "" && n.BookAuthor != "" {
		parts = append(parts, "book:"+n.BookTitle+"|"+n.BookAuthor)
	}
	if n.ISBN != "" {
		parts = append(parts, "isbn:"+n.ISBN)
	}
	if len(n.Topics) > 0 {
		parts = append(parts, "topics:"+strings.Join(n.Topics, ","))
	}
	if len(n.ResourceTypes) > 0 {
		parts = append(parts, "resources:"+strings.Join(n.ResourceTypes, ","))
	}
	parts = append(parts, "config:"+fp)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return string(tier) + ":" + hex.EncodeToString(sum[:])
}
