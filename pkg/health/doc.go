// Package health serves liveness and readiness probes.
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//		"db":    db.Healthcheck(pool),
//		"redis": redis.Healthcheck(client),
//	}, health.WithLogger(log)))
//
// Checks run concurrently under a shared timeout; the readiness endpoint
// answers 503 with a per-check JSON report when any of them fails.
package health
