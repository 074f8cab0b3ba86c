// Package flows contains the orchestration behind each Engine operation.
//
// Each flow function (RunCreateSession, RunLogin, RunApproveAdminRequest, etc.)
// accepts a typed dependency struct and returns results without side-effects
// beyond those dependencies. The Engine builds the dependency sets once and
// stays a thin delegating layer.
//
// # Architecture boundaries
//
// Flow functions coordinate the session store, the admin request repository,
// password hashing, notifications, audit and metrics. They do NOT own any of
// these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import gatekeeper (to avoid import cycles).
//   - Perform I/O directly. All I/O goes through dependency interfaces.
package flows
