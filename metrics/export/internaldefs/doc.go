// Package internaldefs holds the metric names, bucket boundaries and the
// Source contract shared by the Prometheus and OpenTelemetry exporters, so
// both expose identical series.
package internaldefs
