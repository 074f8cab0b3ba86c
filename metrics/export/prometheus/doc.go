// Package prometheus renders gatekeeper metrics in the Prometheus text
// exposition format.
//
// Counter names are gatekeeper_*_total; the single histogram is
// gatekeeper_authenticate_latency_seconds. Nothing is registered in a global
// registry: callers mount [PrometheusExporter.Handler] themselves.
package prometheus
