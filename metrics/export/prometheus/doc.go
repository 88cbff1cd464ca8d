// Package prometheus renders session manager metrics in Prometheus text exposition format.
//
// Counter names are gosession_*_total; the refresh latency histogram is
// gosession_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry; callers mount the Handler.
//   - Mutate manager state.
package prometheus
