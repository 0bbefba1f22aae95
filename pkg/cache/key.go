package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every key written by this package.
const KeyPrefix = "clubrides"

// CacheKey represents a unique identifier for a cached API response.
type CacheKey struct {
	// Endpoint is the API path (e.g., "/athlete/clubs")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"page": "1"})
	QueryParams url.Values

	// Subject identifies whose data this is. Responses for different
	// athletes must never share a key.
	Subject string
}

// SubjectFromToken derives a stable, non-reversible subject from an access token.
func SubjectFromToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// String generates a deterministic cache key string.
// Format: clubrides:endpoint:query1=val1:sub=abcdef
//
// Example:
//
//	clubrides:athlete/clubs:page=1:sub=4f2a9c0b1d2e3f40
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	// Sorted for determinism
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if k.Subject != "" {
		parts = append(parts, "sub="+k.Subject)
	}

	return strings.Join(parts, ":")
}
