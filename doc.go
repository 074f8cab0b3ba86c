// Package gatekeeper owns the session, rate limiting, token and admin
// invite request logic of the Lernio learning platform.
//
// An [Engine] is assembled by a [Builder] from a [Config], an injected Redis
// client and, for the admin workflow, an injected [AdminRequestRepository]
// and [AccountStore]. Engine methods are safe to call from multiple
// goroutines once Build returns.
//
// # Sessions
//
// Sessions live in Redis under session:{role}:{identity}:{sessionId} with a
// fixed TTL. Each role has a concurrent-session limit; a create beyond the
// limit is reported through [SessionResult.LimitExceeded] together with the
// active sessions, and nothing is written. Sessions are never evicted to
// make room.
//
// The limit check and the write are two round-trips by default, so
// concurrent creates near the limit can overshoot it. Set
// SessionConfig.AtomicLimit to run the check and write as one Lua script.
//
// # Rate limiting
//
// [Engine.ConsumeRateLimit] runs a fixed-window counter per (policy,
// client). A client can burst up to twice the limit across a window
// boundary.
//
// # Admin requests
//
// Requests move PENDING to APPROVED or REJECTED exactly once. Approval
// creates the admin account and flips the status inside one database
// transaction; the email carrying the temporary password is queued after
// the commit and delivered by a background worker.
//
// # Tokens
//
// Tokens are signed JWTs carrying the user id, email, full name, role,
// session id and avatar link. [Engine.VerifyToken] never returns an error:
// a bad token simply yields no payload.
package gatekeeper
