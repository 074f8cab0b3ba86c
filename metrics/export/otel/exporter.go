package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/lernio/gatekeeper"
	"github.com/lernio/gatekeeper/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// binding pairs an instrument with the function that reads its value from
// one snapshot.
type binding struct {
	instrument metric.Int64Observable
	read       func(internaldefs.Source, gatekeeper.MetricsSnapshot) int64
}

// OTelExporter publishes engine metrics as observable instruments read on
// every collection cycle.
type OTelExporter struct {
	source       internaldefs.Source
	bindings     []binding
	registration metric.Registration
}

// NewOTelExporter registers the engine's metrics on meter.
func NewOTelExporter(meter metric.Meter, engine *gatekeeper.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source internaldefs.Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	if err := e.bindCounters(meter); err != nil {
		return nil, err
	}
	if err := e.bindHistograms(meter); err != nil {
		return nil, err
	}
	if err := e.bindExtras(meter); err != nil {
		return nil, err
	}

	observables := make([]metric.Observable, len(e.bindings))
	for i, b := range e.bindings {
		observables[i] = b.instrument
	}
	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) bindCounters(meter metric.Meter) error {
	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		e.bindings = append(e.bindings, binding{
			instrument: ins,
			read: func(_ internaldefs.Source, s gatekeeper.MetricsSnapshot) int64 {
				return int64(s.Counters[id])
			},
		})
	}
	return nil
}

// bindHistograms publishes each cumulative bucket and the sample count as
// gauges; the snapshot has no raw samples to feed an OTel histogram.
func (e *OTelExporter) bindHistograms(meter metric.Meter) error {
	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			bucket := i
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			e.bindings = append(e.bindings, binding{
				instrument: ins,
				read: func(_ internaldefs.Source, s gatekeeper.MetricsSnapshot) int64 {
					return int64(cumulative(s, id)[bucket])
				},
			})
		}

		name := def.Name + "_count"
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return fmt.Errorf("create histogram count gauge %s: %w", name, err)
		}
		e.bindings = append(e.bindings, binding{
			instrument: ins,
			read: func(_ internaldefs.Source, s gatekeeper.MetricsSnapshot) int64 {
				c := cumulative(s, id)
				return int64(c[len(c)-1])
			},
		})
	}
	return nil
}

func (e *OTelExporter) bindExtras(meter metric.Meter) error {
	for _, def := range internaldefs.ExtraDefs {
		read := def.Read
		var (
			ins metric.Int64Observable
			err error
		)
		if def.Kind == internaldefs.KindGauge {
			ins, err = meter.Int64ObservableGauge(def.Name, metric.WithDescription(def.Help))
		} else {
			ins, err = meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		}
		if err != nil {
			return fmt.Errorf("create %s: %w", def.Name, err)
		}
		e.bindings = append(e.bindings, binding{
			instrument: ins,
			read: func(src internaldefs.Source, _ gatekeeper.MetricsSnapshot) int64 {
				return int64(read(src))
			},
		})
	}
	return nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, b := range e.bindings {
		o.ObserveInt64(b.instrument, b.read(e.source, snapshot))
	}
	return nil
}

func cumulative(s gatekeeper.MetricsSnapshot, id gatekeeper.MetricID) [8]uint64 {
	return internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(s.Histograms[id]))
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
