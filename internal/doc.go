// Package internal holds identifier helpers shared by the gatekeeper engine:
// random session IDs, password reset tokens and numeric one-time codes, their
// shape checks, and a coarse device label derived from a User-Agent.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: YAML and environment configuration for cmd/gatekeeper
//   - database: gorm models and repositories for accounts and admin requests
//   - flows: orchestration behind each Engine operation
//   - httpapi: gin router and handlers
//   - kvstore: Redis client construction
//   - notify: bounded fire-and-forget mail queue
//   - rate: Redis-backed fixed-window counters
//   - response: the JSON envelope shared by handlers and middleware
//   - stores: short-lived Redis records (password reset tokens)
package internal
