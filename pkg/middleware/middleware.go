// Package middleware provides the gin middleware chain shared by the API
// server:
//
//   - Recovery: panic recovery with an errno JSON response
//   - RequestID: adds a unique request ID to each request
//   - Logger: structured request logging through kart-io/logger
//   - Tracing: a server span per request, continuing incoming W3C context
//   - BodyLimit: request body size limit
//
// Usage:
//
//	r := gin.New()
//	r.Use(
//	    middleware.Recovery(),
//	    middleware.RequestID(),
//	    middleware.Tracing(middleware.WithTracingSkipPaths("/healthz")),
//	    middleware.Logger(middleware.WithLoggerSkipPaths("/healthz", "/readyz")),
//	)
package middleware

// skipSet builds a lookup set of paths.
func skipSet(paths []string) map[string]struct{} {
	m := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		m[p] = struct{}{}
	}
	return m
}
