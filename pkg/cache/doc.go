// Package cache provides optional Redis-backed caching of fetched payloads.
//
// The store keeps the raw response body per work item together with its
// ETag, Last-Modified and Expires metadata so repeat runs can issue
// conditional requests (If-None-Match) and reuse the cached payload on a
// 304 Not Modified instead of downloading it again.
//
// # Basic Usage
//
//	// Create Redis client
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// Create the payload store
//	store := cache.NewStore(redisClient)
//
//	// Look up an item
//	entry, err := store.Get(ctx, cache.Key{Identifier: "bulbasaur"})
//	if err == cache.ErrCacheMiss {
//		// Not cached - fetch from the API
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//		// The API returns 304 if the payload is unchanged
//	}
//
// # Metrics
//
// The store exports Prometheus metrics:
//
//   - pokefetch_cache_hits_total{layer="redis"} - Cache hits
//   - pokefetch_cache_misses_total - Cache misses
//   - pokefetch_304_responses_total - Conditional request successes
//   - pokefetch_cache_errors_total{operation} - Cache operation errors
package cache
