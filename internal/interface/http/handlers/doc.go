// Package handlers contains the reusable pieces of the HTTP interface:
// health checks and middleware.
//
// # Health Checks
//
// The HealthChecker interface runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.NewPingCheck(backend))
//	checker.AddCheck("scheduler", handlers.NewFlagCheck(sched.IsRunning, "scheduler stopped"))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
//   - APIKeyAuth compares X-API-Key against a bcrypt hash
//   - RateLimiter keeps a token bucket per client IP
//   - RequestLogger logs each request through pkg/logger
//   - NoCacheMiddleware, SecurityHeadersMiddleware, RequestSizeLimitMiddleware
package handlers
