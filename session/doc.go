// Package session provides the Redis-backed session store.
//
// # Key layout
//
// Each session lives under its own key:
//
//	{prefix}:{role}:{identity}:{sessionId}
//
// where prefix defaults to "session". The value is a JSON blob (see [Session])
// written with a fixed TTL. There is no secondary index: listing the sessions
// of one identity is a SCAN over the identity prefix followed by MGET. That is
// only acceptable because the per-identity key count is bounded by the role's
// session limit; the store must not be used for unbounded key spaces.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not sign or
// parse tokens and it does not decide what happens when a limit is hit; the
// Engine makes that call.
package session
