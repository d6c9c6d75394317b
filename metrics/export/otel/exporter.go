package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goTenant "github.com/MrEthical07/goTenant"
	"github.com/MrEthical07/goTenant/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type family struct {
	def        internaldefs.Family
	instrument metric.Int64ObservableCounter
	attrs      []metric.ObserveOption
}

// Exporter publishes client metrics as observable OTel instruments. Each
// counter family becomes one instrument with its labels as attributes.
type Exporter struct {
	source       internaldefs.Source
	registration metric.Registration
	families     []family

	buckets  metric.Int64ObservableGauge
	count    metric.Int64ObservableGauge
	bucketLE []metric.ObserveOption
}

// New registers instruments on meter reading from client.
func New(meter metric.Meter, client *goTenant.Client) (*Exporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, client)
}

// NewFromSource registers instruments on meter reading from source.
func NewFromSource(meter metric.Meter, source internaldefs.Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.Families {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("otel: counter %s: %w", def.Name, err)
		}
		f := family{def: def, instrument: ins, attrs: make([]metric.ObserveOption, len(def.Samples))}
		for i, s := range def.Samples {
			kvs := make([]attribute.KeyValue, 0, len(s.Labels))
			for _, l := range s.Labels {
				kvs = append(kvs, attribute.String(l.Name, l.Value))
			}
			f.attrs[i] = metric.WithAttributeSet(attribute.NewSet(kvs...))
		}
		e.families = append(e.families, f)
		observables = append(observables, ins)
	}

	name := internaldefs.Latency.Name
	var err error
	if e.buckets, err = meter.Int64ObservableGauge(name+"_bucket",
		metric.WithDescription(internaldefs.Latency.Help+" Cumulative count per upper bound.")); err != nil {
		return nil, fmt.Errorf("otel: gauge %s_bucket: %w", name, err)
	}
	if e.count, err = meter.Int64ObservableGauge(name+"_count",
		metric.WithDescription(internaldefs.Latency.Help+" Total samples.")); err != nil {
		return nil, fmt.Errorf("otel: gauge %s_count: %w", name, err)
	}
	observables = append(observables, e.buckets, e.count)
	for _, bound := range internaldefs.LatencyBounds {
		e.bucketLE = append(e.bucketLE, metric.WithAttributes(attribute.String("le", strconv.FormatFloat(bound, 'g', -1, 64))))
	}
	e.bucketLE = append(e.bucketLE, metric.WithAttributes(attribute.String("le", "+Inf")))

	if e.registration, err = meter.RegisterCallback(e.observe, observables...); err != nil {
		return nil, fmt.Errorf("otel: register callback: %w", err)
	}
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	r := internaldefs.Read(e.source)
	if r.Empty() {
		return nil
	}
	for _, f := range e.families {
		for i, s := range f.def.Samples {
			o.ObserveInt64(f.instrument, int64(s.Value(r)), f.attrs[i])
		}
	}
	if _, ok := r.Snapshot.Histograms[internaldefs.Latency.ID]; !ok {
		return nil
	}
	buckets := internaldefs.LatencyBuckets(r)
	for i, n := range buckets {
		o.ObserveInt64(e.buckets, int64(n), e.bucketLE[i])
	}
	o.ObserveInt64(e.count, int64(buckets[len(buckets)-1]))
	return nil
}

// Close unregisters the callback.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
