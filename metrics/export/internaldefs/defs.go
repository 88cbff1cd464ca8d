package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one counter for export.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram for export.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter of audit events dropped under backpressure.
const AuditDroppedName = "gosession_audit_dropped_total"

// CounterDefs lists every exported counter in output order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that produced a session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Rejected or failed logins."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Applied session renewals."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Renewals that ended the session."},
	{ID: goSession.MetricRefreshStale, Name: "gosession_refresh_stale_total", Help: "Renewal results discarded because the session changed meanwhile."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Local logouts."},
	{ID: goSession.MetricInvalidationFailure, Name: "gosession_invalidation_failure_total", Help: "Failed server-side invalidation calls."},
	{ID: goSession.MetricForeignLogout, Name: "gosession_foreign_logout_total", Help: "Sessions ended by another instance."},
	{ID: goSession.MetricUnauthorized, Name: "gosession_unauthorized_total", Help: "Sessions ended by an unauthorized notification."},
	{ID: goSession.MetricSessionAdopted, Name: "gosession_session_adopted_total", Help: "Sessions adopted from storage written by another instance."},
	{ID: goSession.MetricStoreDiscarded, Name: "gosession_store_discarded_total", Help: "Stored envelopes discarded as unreadable or ill-formed."},
	{ID: goSession.MetricRenewalArmed, Name: "gosession_renewal_armed_total", Help: "Renewal timers armed."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh exchange latency histogram."},
}

// HistogramBounds are the upper bounds of the histogram buckets, in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
