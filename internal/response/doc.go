// Package response writes the {success, data, error, message} envelope shared
// by every HTTP handler and middleware, and maps engine errors to statuses.
//
// Internal errors are reported with a generic message; their detail is for
// the logs only.
package response
