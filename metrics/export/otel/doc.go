// Package otel publishes gatekeeper counters and the authenticate latency
// histogram through an OpenTelemetry Meter supplied by the caller.
package otel
