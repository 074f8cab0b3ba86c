// Package audit implements async event dispatching for session, rate-limit and
// admin-request operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (zap, channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured audit record with timestamp, type, identity, role, actor, IP, metadata.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the Engine does that.
//   - Import gatekeeper or any sibling internal package.
package audit
