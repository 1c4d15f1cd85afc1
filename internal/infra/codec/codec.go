// Package codec provides the default on-disk wire format for events: a
// goccy/go-json encoding of the Value/Metric sum types, used by the disk
// buffer (internal/infra/diskbuf) and any sink that needs to serialize an
// event outside the process. The core event model deliberately exposes no
// serialization of its own, so this package owns the wire shape.
package codec

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/conduit/internal/domain/event"
)

// EventCodec implements diskbuf.Codec (and is usable anywhere an
// Encode/Decode pair over *event.Event is needed) using JSON as the wire
// format.
type EventCodec struct{}

// New constructs the default JSON-backed codec.
func New() EventCodec { return EventCodec{} }

func (EventCodec) Encode(e *event.Event) ([]byte, error) {
	w, err := toWireEvent(e)
	if err != nil {
		return nil, fmt.Errorf("codec: encode event: %w", err)
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal event: %w", err)
	}
	return b, nil
}

func (EventCodec) Decode(b []byte) (*event.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("codec: unmarshal event: %w", err)
	}
	return fromWireEvent(w)
}

type wireEvent struct {
	Kind event.EventKind `json:"kind"`
	Fields *wireValue `json:"fields,omitempty"`
	Metric *wireMetric `json:"metric,omitempty"`
}

func toWireEvent(e *event.Event) (wireEvent, error) {
	w := wireEvent{Kind: e.Kind()}
	switch e.Kind() {
	case event.EventMetric:
		w.Metric = toWireMetric(e.Metric())
	default:
		wv := toWireValue(*e.Fields())
		w.Fields = &wv
	}
	return w, nil
}

func fromWireEvent(w wireEvent) (*event.Event, error) {
	switch w.Kind {
	case event.EventMetric:
		if w.Metric == nil {
			return nil, fmt.Errorf("codec: metric event missing metric payload")
		}
		m, err := fromWireMetric(w.Metric)
		if err != nil {
			return nil, err
		}
		return event.NewMetric(m), nil
	case event.EventTrace:
		v, err := fromWireValue(w.Fields)
		if err != nil {
			return nil, err
		}
		ev := event.NewTrace()
		obj, _ := v.AsObject()
		*ev.Fields() = event.Obj(obj)
		return ev, nil
	default:
		v, err := fromWireValue(w.Fields)
		if err != nil {
			return nil, err
		}
		ev := event.NewLog()
		obj, _ := v.AsObject()
		*ev.Fields() = event.Obj(obj)
		return ev, nil
	}
}

type wireValue struct {
	Kind event.Kind `json:"kind"`
	B bool `json:"b,omitempty"`
	I int64 `json:"i,omitempty"`
	F float64 `json:"f,omitempty"`
	Bytes []byte `json:"bytes,omitempty"`
	TS *time.Time `json:"ts,omitempty"`
	Regex string `json:"regex,omitempty"`
	Arr []wireValue `json:"arr,omitempty"`
	Obj *wireObject `json:"obj,omitempty"`
}

type wireObject struct {
	Keys []string `json:"keys"`
	Vals []wireValue `json:"vals"`
}

func toWireValue(v event.Value) wireValue {
	w := wireValue{Kind: v.Kind()}
	switch v.Kind() {
	case event.KindBool:
		w.B, _ = v.AsBool()
	case event.KindInteger:
		w.I, _ = v.AsInteger()
	case event.KindFloat:
		w.F, _ = v.AsFloat()
	case event.KindBytes:
		b, _ := v.AsBytes()
		w.Bytes = append([]byte(nil), b...)
	case event.KindTimestamp:
		ts, _ := v.AsTimestamp()
		w.TS = &ts
	case event.KindRegex:
		w.Regex, _ = v.AsRegex()
	case event.KindArray:
		arr, _ := v.AsArray()
		w.Arr = make([]wireValue, len(arr))
		for i, e := range arr {
			w.Arr[i] = toWireValue(e)
		}
	case event.KindObject:
		obj, _ := v.AsObject()
		wo := &wireObject{Keys: append([]string(nil), obj.Keys()...)}
		wo.Vals = make([]wireValue, len(wo.Keys))
		for i, k := range wo.Keys {
			val, _ := obj.Get(k)
			wo.Vals[i] = toWireValue(val)
		}
		w.Obj = wo
	}
	return w
}

func fromWireValue(w *wireValue) (event.Value, error) {
	if w == nil {
		return event.Null(), nil
	}
	switch w.Kind {
	case event.KindNull:
		return event.Null(), nil
	case event.KindBool:
		return event.Bool(w.B), nil
	case event.KindInteger:
		return event.Integer(w.I), nil
	case event.KindFloat:
		return event.TryFloat(w.F)
	case event.KindBytes:
		return event.Bytes(w.Bytes), nil
	case event.KindTimestamp:
		if w.TS == nil {
			return event.Value{}, fmt.Errorf("codec: timestamp value missing ts field")
		}
		return event.Timestamp(*w.TS), nil
	case event.KindRegex:
		return event.Regex(w.Regex), nil
	case event.KindArray:
		vs := make([]event.Value, len(w.Arr))
		for i, wv := range w.Arr {
			v, err := fromWireValue(&wv)
			if err != nil {
				return event.Value{}, err
			}
			vs[i] = v
		}
		return event.Array(vs), nil
	case event.KindObject:
		obj := event.NewObject()
		if w.Obj != nil {
			for i, k := range w.Obj.Keys {
				v, err := fromWireValue(&w.Obj.Vals[i])
				if err != nil {
					return event.Value{}, err
				}
				obj.Set(k, v)
			}
		}
		return event.Obj(obj), nil
	default:
		return event.Value{}, fmt.Errorf("codec: unknown value kind %d", w.Kind)
	}
}

type wireMetric struct {
	Name string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Tags event.TagSet `json:"tags,omitempty"`
	MetricKind event.MetricKind `json:"metric_kind"`
	ValueKind event.MetricValueKind `json:"value_kind"`
	Scalar float64 `json:"scalar,omitempty"`
	SetMembers []string `json:"set_members,omitempty"`
	Samples []event.Sample `json:"samples,omitempty"`
	Statistic event.DistributionStatistic `json:"statistic,omitempty"`
	Buckets []event.HistogramBucket `json:"buckets,omitempty"`
	Quantiles []event.SummaryQuantile `json:"quantiles,omitempty"`
	Sum float64 `json:"sum,omitempty"`
	Count uint64 `json:"count,omitempty"`
	Sketch []byte `json:"sketch,omitempty"`
}

func toWireMetric(m *event.Metric) *wireMetric {
	w := &wireMetric{
		Name: m.Name,
		Namespace: m.Namespace,
		Timestamp: m.Timestamp,
		Tags: m.Tags,
		MetricKind: m.MetricKind,
		ValueKind: m.Value.Kind(),
	}
	switch w.ValueKind {
	case event.MetricValueCounter, event.MetricValueGauge:
		w.Scalar, _ = m.Value.Scalar()
	case event.MetricValueSet:
		members, _ := m.Value.SetMembers()
		for member := range members {
			w.SetMembers = append(w.SetMembers, member)
		}
	case event.MetricValueDistribution:
		w.Samples, w.Statistic, _ = m.Value.Samples()
	case event.MetricValueAggregatedHistogram:
		w.Buckets, w.Sum, w.Count, _ = m.Value.Histogram()
	case event.MetricValueAggregatedSummary:
		w.Quantiles, w.Sum, w.Count, _ = m.Value.Summary()
	case event.MetricValueSketch:
		w.Sketch, _ = m.Value.Sketch()
	}
	return w
}

func fromWireMetric(w *wireMetric) (*event.Metric, error) {
	m := &event.Metric{
		Name: w.Name,
		Namespace: w.Namespace,
		Timestamp: w.Timestamp,
		Tags: w.Tags,
		MetricKind: w.MetricKind,
	}
	switch w.ValueKind {
	case event.MetricValueCounter:
		m.Value = event.CounterValue(w.Scalar)
	case event.MetricValueGauge:
		m.Value = event.GaugeValue(w.Scalar)
	case event.MetricValueSet:
		m.Value = event.SetValue(w.SetMembers)
	case event.MetricValueDistribution:
		m.Value = event.DistributionValue(w.Samples, w.Statistic)
	case event.MetricValueAggregatedHistogram:
		m.Value = event.AggregatedHistogramValue(w.Buckets, w.Sum, w.Count)
	case event.MetricValueAggregatedSummary:
		m.Value = event.AggregatedSummaryValue(w.Quantiles, w.Sum, w.Count)
	case event.MetricValueSketch:
		m.Value = event.SketchValue(w.Sketch)
	default:
		return nil, fmt.Errorf("codec: unknown metric value kind %d", w.ValueKind)
	}
	return m, nil
}
