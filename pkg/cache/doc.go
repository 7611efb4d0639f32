// Package cache stores forum read responses in Redis.
//
// Only idempotent GET requests marked cacheable by the dispatcher are stored,
// and only when the response was a successful JSON document. Keys include the
// session identity so one user's personalised view is never served to another.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, 2*time.Minute)
//
//	key := cache.CacheKey{
//		Endpoint: "/latest.json",
//		Query:    url.Values{"page": {"1"}},
//		Identity: "alice",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the forum
//	}
//
// # Expiry
//
// The TTL of an entry comes from Cache-Control max-age, then Expires, then
// the manager's default. Responses marked no-store or private are not cached.
//
// # Conditional Requests
//
// Entries carrying an ETag or Last-Modified value let the dispatcher send
// If-None-Match / If-Modified-Since. A 304 reply refreshes the entry's TTL
// and the cached body is returned.
//
// # Metrics
//
//   - forum_cache_hits_total{layer="redis"}
//   - forum_cache_misses_total
//   - forum_cache_size_bytes{layer="redis"}
//   - forum_cache_not_modified_total
//   - forum_cache_errors_total{operation}
package cache
