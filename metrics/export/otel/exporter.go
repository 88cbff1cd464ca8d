package otel

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no metrics source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is implemented by [goSession.Manager].
type MetricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

// StateSource is optionally implemented by a [MetricsSource]. When present the exporter also
// reports the current session status and state version.
type StateSource interface {
	Snapshot() goSession.Snapshot
}

// Metric names for the session state gauges.
const (
	StatusGaugeName  = "gosession_session_status"
	VersionGaugeName = "gosession_session_version"
)

var statuses = []goSession.Status{
	goSession.StatusIdle,
	goSession.StatusAuthenticated,
	goSession.StatusUnauthenticated,
}

type observedCounter struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes a session manager on every collection.
type Exporter struct {
	source       MetricsSource
	state        StateSource
	registration metric.Registration

	counters     []observedCounter
	histograms   []observedHistogram
	auditDropped metric.Int64ObservableCounter
	status       metric.Int64ObservableGauge
	version      metric.Int64ObservableGauge

	bucketSets  []metric.MeasurementOption
	statusSets  []metric.MeasurementOption
	observables []metric.Observable
}

// New registers one observable counter per session counter, a bucket gauge carrying an "le"
// attribute and a count gauge per histogram, the audit drop counter and, for a [StateSource],
// the status and version gauges. A single callback serves all of them.
func New(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	e.state, _ = source.(StateSource)
	for _, bound := range internaldefs.HistogramBounds {
		e.bucketSets = append(e.bucketSets, metric.WithAttributeSet(attribute.NewSet(attribute.String("le", bound))))
	}

	if err := e.registerCounters(meter); err != nil {
		return nil, err
	}
	if err := e.registerHistograms(meter); err != nil {
		return nil, err
	}
	if e.state != nil {
		if err := e.registerState(meter); err != nil {
			return nil, err
		}
	}

	registration, err := meter.RegisterCallback(e.observe, e.observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) registerCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, observedCounter{id: def.ID, instrument: ins})
		e.observables = append(e.observables, ins)
	}

	dropped, err := meter.Int64ObservableCounter(
		internaldefs.AuditDroppedName,
		metric.WithDescription("Audit events dropped because the dispatcher buffer was full."),
	)
	if err != nil {
		return fmt.Errorf("create audit dropped counter: %w", err)
	}
	e.auditDropped = dropped
	e.observables = append(e.observables, dropped)
	return nil
}

func (e *Exporter) registerHistograms(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."))
		if err != nil {
			return fmt.Errorf("create histogram bucket gauge %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."))
		if err != nil {
			return fmt.Errorf("create histogram count gauge %s: %w", def.Name, err)
		}
		e.histograms = append(e.histograms, observedHistogram{id: def.ID, buckets: buckets, count: count})
		e.observables = append(e.observables, buckets, count)
	}
	return nil
}

func (e *Exporter) registerState(meter metric.Meter) error {
	status, err := meter.Int64ObservableGauge(StatusGaugeName,
		metric.WithDescription("1 for the current session status, 0 for the others."))
	if err != nil {
		return fmt.Errorf("create status gauge: %w", err)
	}
	version, err := meter.Int64ObservableGauge(VersionGaugeName,
		metric.WithDescription("Session state version, incremented on every transition."))
	if err != nil {
		return fmt.Errorf("create version gauge: %w", err)
	}
	e.status, e.version = status, version
	for _, s := range statuses {
		e.statusSets = append(e.statusSets, metric.WithAttributeSet(attribute.NewSet(attribute.String("status", s.String()))))
	}
	e.observables = append(e.observables, status, version)
	return nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		o.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}

	for _, h := range e.histograms {
		raw, ok := snapshot.Histograms[h.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, n := range cumulative {
			o.ObserveInt64(h.buckets, int64(n), e.bucketSets[i])
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))

	if e.state != nil {
		snap := e.state.Snapshot()
		for i, s := range statuses {
			var v int64
			if snap.Status == s {
				v = 1
			}
			o.ObserveInt64(e.status, v, e.statusSets[i])
		}
		o.ObserveInt64(e.version, int64(snap.Version))
	}
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
