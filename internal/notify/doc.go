// Package notify runs outbound email off the request path.
//
// Handlers enqueue a [Job] and return; worker goroutines deliver it through
// a [Sender] (the mail package's retrying sender) under a per-job timeout.
// Failures are logged and counted, never returned to the enqueuing request.
package notify
