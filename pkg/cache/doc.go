// Package cache provides the Redis-backed response cache used by the
// Gemini client.
//
// The cache stores raw response bodies under a fingerprint derived by the
// client. It is strictly best effort:
//
// - Connection is attempted only when caching is enabled
// - A failed PING at construction disables the manager for its lifetime
// - Every store error is logged and reported as a miss or a failed write
// - Keys live under the "gemini_mind:" prefix so ClearAll never touches
//   unrelated data in a shared Redis
// - Entries expire passively through the Redis TTL (SETEX)
//
// # Basic Usage
//
//	manager := cache.NewManager(ctx, cache.Config{
//		Enabled:  true,
//		TTL:      time.Hour,
//		RedisURL: "redis://localhost:6379/0",
//	}, logger)
//	defer manager.Close()
//
//	if body, ok := manager.Get(ctx, fingerprint); ok {
//		// Cache hit
//	}
//
//	manager.Set(ctx, fingerprint, body)
//
// # Metrics
//
// The manager exports Prometheus metrics:
//
//   - gemini_cache_hits_total - Cache hits
//   - gemini_cache_misses_total - Cache misses
//   - gemini_cache_errors_total{operation} - Store errors by operation
//   - gemini_cache_disabled_total - Managers that fell back to disabled
package cache
