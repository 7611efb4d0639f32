package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CacheKey identifies a cached forum response.
type CacheKey struct {
	// Endpoint is the request path (e.g. "/t/123.json").
	Endpoint string

	// Query holds the query parameters.
	Query url.Values

	// Identity is the username or API client the response was fetched for.
	// Empty for anonymous reads.
	Identity string
}

// String generates a deterministic cache key string.
//
// Example:
//
//	forum:search.json:page=2:q=amex:user=alice
func (k CacheKey) String() string {
	parts := []string{"forum"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		keys := make([]string, 0, len(k.Query))
		for key := range k.Query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.Query[key], ",")))
		}
	}

	if k.Identity != "" {
		parts = append(parts, "user="+k.Identity)
	}

	return strings.Join(parts, ":")
}
