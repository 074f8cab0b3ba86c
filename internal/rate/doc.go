// Package rate implements Redis-backed fixed-window request counters keyed by
// client and policy class.
//
// # Window semantics
//
// Each (policy, client) pair owns one counter at {prefix}:{policy}:{client}.
// The first hit in a window INCRs the key and sets its expiry to the policy
// window; later hits only INCR. When the key expires the window restarts.
//
// Windows are fixed, not sliding: a client that spends its budget at the end
// of one window and again at the start of the next can land up to 2x the
// policy maximum inside one window-length span.
//
// # What this package must NOT do
//
//   - Decide what happens to a denied request (callers map it to 429).
//   - Be imported outside the gatekeeper module.
package rate
