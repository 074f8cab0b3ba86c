package gatekeeper

import "context"

// requestMeta is the per-request data the HTTP layer hands to the engine.
// It is stored by value under one key; each With* call copies it.
type requestMeta struct {
	clientIP  string
	userAgent string
	requestID string
}

type requestMetaKey struct{}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

func withMeta(ctx context.Context, update func(*requestMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	update(&m)
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithClientIP attaches the caller's IP address to ctx. It is recorded on
// audit events and sessions.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.clientIP = ip })
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.userAgent = userAgent })
}

// WithRequestID attaches a request correlation ID to ctx. Audit events and
// infra warnings carry it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withMeta(ctx, func(m *requestMeta) { m.requestID = id })
}

// ClientIPFromContext returns the IP set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	return metaFrom(ctx).clientIP
}

func userAgentFromContext(ctx context.Context) string {
	return metaFrom(ctx).userAgent
}

// RequestIDFromContext returns the ID set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return metaFrom(ctx).requestID
}
