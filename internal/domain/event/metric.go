package event

import "time"

// MetricKind distinguishes whether a metric's value is a delta since the
// last observation or a point-in-time absolute reading.
type MetricKind uint8

const (
	MetricIncremental MetricKind = iota
	MetricAbsolute
)

// DistributionStatistic selects how a Distribution's samples should be
// interpreted when aggregated.
type DistributionStatistic uint8

const (
	StatisticHistogram DistributionStatistic = iota
	StatisticSummary
)

// MetricValueKind discriminates the MetricValue sum type.
type MetricValueKind uint8

const (
	MetricValueCounter MetricValueKind = iota
	MetricValueGauge
	MetricValueSet
	MetricValueDistribution
	MetricValueAggregatedHistogram
	MetricValueAggregatedSummary
	MetricValueSketch
)

// Sample is one observation backing a Distribution metric value.
type Sample struct {
	Value float64
	Rate uint32
}

// HistogramBucket is one bucket of an AggregatedHistogram.
type HistogramBucket struct {
	UpperLimit float64
	Count uint64
}

// SummaryQuantile is one quantile/value pair of an AggregatedSummary.
type SummaryQuantile struct {
	Quantile float64
	Value float64
}

// MetricValue is the tagged union of the seven metric value shapes defined
// in the documented contract.
type MetricValue struct {
	kind MetricValueKind

	scalar float64 // Counter / Gauge

	setValues map[string]struct{} // Set

	samples []Sample
	statistic DistributionStatistic // Distribution

	buckets []HistogramBucket
	sum float64
	count uint64 // AggregatedHistogram

	quantiles []SummaryQuantile // AggregatedSummary, reuses sum/count

	sketchBytes []byte // Sketch: opaque serialized sketch (e.g. DDSketch)
}

func CounterValue(v float64) MetricValue { return MetricValue{kind: MetricValueCounter, scalar: v} }
func GaugeValue(v float64) MetricValue { return MetricValue{kind: MetricValueGauge, scalar: v} }

func SetValue(members []string) MetricValue {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return MetricValue{kind: MetricValueSet, setValues: set}
}

func DistributionValue(samples []Sample, statistic DistributionStatistic) MetricValue {
	return MetricValue{kind: MetricValueDistribution, samples: samples, statistic: statistic}
}

func AggregatedHistogramValue(buckets []HistogramBucket, sum float64, count uint64) MetricValue {
	return MetricValue{kind: MetricValueAggregatedHistogram, buckets: buckets, sum: sum, count: count}
}

func AggregatedSummaryValue(quantiles []SummaryQuantile, sum float64, count uint64) MetricValue {
	return MetricValue{kind: MetricValueAggregatedSummary, quantiles: quantiles, sum: sum, count: count}
}

func SketchValue(encoded []byte) MetricValue {
	return MetricValue{kind: MetricValueSketch, sketchBytes: encoded}
}

func (mv MetricValue) Kind() MetricValueKind { return mv.kind }

func (mv MetricValue) Scalar() (float64, bool) {
	return mv.scalar, mv.kind == MetricValueCounter || mv.kind == MetricValueGauge
}

func (mv MetricValue) SetMembers() (map[string]struct{}, bool) {
	return mv.setValues, mv.kind == MetricValueSet
}

func (mv MetricValue) Samples() ([]Sample, DistributionStatistic, bool) {
	return mv.samples, mv.statistic, mv.kind == MetricValueDistribution
}

func (mv MetricValue) Histogram() ([]HistogramBucket, float64, uint64, bool) {
	return mv.buckets, mv.sum, mv.count, mv.kind == MetricValueAggregatedHistogram
}

func (mv MetricValue) Summary() ([]SummaryQuantile, float64, uint64, bool) {
	return mv.quantiles, mv.sum, mv.count, mv.kind == MetricValueAggregatedSummary
}

func (mv MetricValue) Sketch() ([]byte, bool) {
	return mv.sketchBytes, mv.kind == MetricValueSketch
}

// ByteSize estimates the metric value's in-memory footprint.
func (mv MetricValue) ByteSize() int {
	const overhead = 24
	switch mv.kind {
	case MetricValueCounter, MetricValueGauge:
		return overhead
	case MetricValueSet:
		total := overhead
		for m := range mv.setValues {
			total += len(m) + 16
		}
		return total
	case MetricValueDistribution:
		return overhead + len(mv.samples)*16
	case MetricValueAggregatedHistogram:
		return overhead + len(mv.buckets)*16
	case MetricValueAggregatedSummary:
		return overhead + len(mv.quantiles)*16
	case MetricValueSketch:
		return overhead + len(mv.sketchBytes)
	default:
		return overhead
	}
}

// Clone deep-copies a MetricValue.
func (mv MetricValue) Clone() MetricValue {
	clone := mv
	if mv.setValues != nil {
		clone.setValues = make(map[string]struct{}, len(mv.setValues))
		for k := range mv.setValues {
			clone.setValues[k] = struct{}{}
		}
	}
	clone.samples = append([]Sample(nil), mv.samples...)
	clone.buckets = append([]HistogramBucket(nil), mv.buckets...)
	clone.quantiles = append([]SummaryQuantile(nil), mv.quantiles...)
	clone.sketchBytes = append([]byte(nil), mv.sketchBytes...)
	return clone
}

// Tag is one member of a metric's canonical tag set.
type Tag struct {
	Key string
	Value string
}

// TagSet is an ordered collection of Tags that compares equal to another
// TagSet holding the same members regardless of insertion order, satisfying
// this "canonical" tag-set invariant.
type TagSet []Tag

// Equal reports whether two tag sets have the same members irrespective of
// order.
func (ts TagSet) Equal(other TagSet) bool {
	if len(ts) != len(other) {
		return false
	}
	count := make(map[Tag]int, len(ts))
	for _, t := range ts {
		count[t]++
	}
	for _, t := range other {
		count[t]--
	}
	for _, n := range count {
		if n != 0 {
			return false
		}
	}
	return true
}

// Clone copies the tag set.
func (ts TagSet) Clone() TagSet {
	return append(TagSet(nil), ts...)
}

// ByteSize estimates the tag set's footprint.
func (ts TagSet) ByteSize() int {
	total := 0
	for _, t := range ts {
		total += len(t.Key) + len(t.Value) + 16
	}
	return total
}

// Metric is the `{name, namespace?, timestamp?, tags, kind, value}` shape
// from the documented contract.
type Metric struct {
	Name string
	Namespace string
	Timestamp *time.Time
	Tags TagSet
	MetricKind MetricKind
	Value MetricValue
}

// Clone deep-copies a Metric.
func (m *Metric) Clone() *Metric {
	if m == nil {
		return nil
	}
	clone := &Metric{
		Name: m.Name,
		Namespace: m.Namespace,
		MetricKind: m.MetricKind,
		Tags: m.Tags.Clone(),
		Value: m.Value.Clone(),
	}
	if m.Timestamp != nil {
		t := *m.Timestamp
		clone.Timestamp = &t
	}
	return clone
}

// ByteSize estimates the metric's footprint.
func (m *Metric) ByteSize() int {
	if m == nil {
		return 0
	}
	const overhead = 32
	return overhead + len(m.Name) + len(m.Namespace) + m.Tags.ByteSize() + m.Value.ByteSize()
}
