// Package middleware provides HTTP middleware for the evaluation server.
//
// Available middleware:
//   - RateLimiter: Per-client rate limiting using token bucket algorithm
//   - Recovery: turns handler panics into 500 responses
//   - Logging: logs every request at debug level
//
// Usage:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	defer rl.Close()
//	handler = rl.Middleware(handler)
//	handler = middleware.Logging(handler, log)
//	handler = middleware.Recovery(handler, log)
package middleware
