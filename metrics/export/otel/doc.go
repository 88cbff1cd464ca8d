// Package otel exports session manager metrics through an OpenTelemetry Meter.
//
// [New] registers an Int64ObservableCounter per counter and an Int64ObservableGauge per
// histogram bucket. A single callback reads MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate manager state.
package otel
