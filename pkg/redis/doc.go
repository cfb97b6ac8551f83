// Package redis opens go-redis clients with startup retries, and provides
// readiness checks and shutdown hooks for them.
//
//	client, err := redis.Open(ctx, redis.Config{URL: os.Getenv("REDIS_URL")})
//	if err != nil {
//		return err
//	}
//	checks := health.Checks{"redis": redis.Healthcheck(client)}
//
// The client is shared by the send rate limiter and the failure counters.
package redis
