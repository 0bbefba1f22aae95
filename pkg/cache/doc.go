// Package cache provides a Redis-backed response cache for Strava API
// endpoints that change rarely.
//
// The club directory (GET /athlete/clubs) is requested on every collection
// run and on every scheduled refresh in server mode. Caching it for a few
// minutes saves one request against the 15-minute Strava budget per run.
// Group events are never cached: they are the data being collected.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		Endpoint: "/athlete/clubs",
//		Subject:  cache.SubjectFromToken(token),
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and store
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, 5*time.Minute))
//	}
//
// Keys are namespaced with the "clubrides" prefix and scoped by a hash of
// the access token so different athletes never share entries.
//
// # Metrics
//
//   - club_rides_cache_hits_total{layer="redis"}
//   - club_rides_cache_misses_total
//   - club_rides_cache_errors_total{operation}
package cache
