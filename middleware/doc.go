// Package middleware adapts the gatekeeper engine to gin.
//
// # Handlers
//
//   - [RequestID]: correlation ID plus client IP and User-Agent on the request context.
//   - [Logger]: one zap line per request.
//   - [RateLimit]: fixed-window budget per client IP and policy.
//   - [RequireRole]: cookie or Bearer authentication for one role.
//
// Authentication decisions are made by Engine.Authenticate; this package only
// extracts credentials and translates results into the JSON envelope.
package middleware
