package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/conduit/internal/domain/event"
)

func TestEventCodec_RoundTrip_Log(t *testing.T) {
	c := New()

	e := event.NewLog()
	path, err := event.ParsePath("host.name")
	require.NoError(t, err)
	e.Insert(path, event.BytesString("web-01"))
	e.Insert(event.MustParsePath("retries"), event.Integer(3))
	e.Insert(event.MustParsePath("ok"), event.Bool(true))

	b, err := c.Encode(e)
	require.NoError(t, err)

	got, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, event.EventLog, got.Kind())

	v, ok := got.Get(path)
	require.True(t, ok)
	raw, _ := v.AsBytes()
	require.Equal(t, "web-01", string(raw))

	v, ok = got.Get(event.MustParsePath("retries"))
	require.True(t, ok)
	n, _ := v.AsInteger()
	require.EqualValues(t, 3, n)
}

func TestEventCodec_RoundTrip_Metric(t *testing.T) {
	c := New()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := &event.Metric{
		Name: "requests_total",
		Namespace: "http",
		Timestamp: &ts,
		Tags: event.TagSet{{Key: "method", Value: "GET"}, {Key: "status", Value: "200"}},
		MetricKind: event.MetricIncremental,
		Value: event.CounterValue(42),
	}
	e := event.NewMetric(m)

	b, err := c.Encode(e)
	require.NoError(t, err)

	got, err := c.Decode(b)
	require.NoError(t, err)
	require.Equal(t, event.EventMetric, got.Kind())

	gm := got.Metric()
	require.Equal(t, "requests_total", gm.Name)
	require.Equal(t, "http", gm.Namespace)
	require.True(t, gm.Timestamp.Equal(ts))
	require.True(t, gm.Tags.Equal(m.Tags))
	scalar, ok := gm.Value.Scalar()
	require.True(t, ok)
	require.Equal(t, float64(42), scalar)
}

func TestEventCodec_RoundTrip_Histogram(t *testing.T) {
	c := New()
	m := &event.Metric{
		Name: "latency_ms",
		Value: event.AggregatedHistogramValue(
			[]event.HistogramBucket{{UpperLimit: 10, Count: 5}, {UpperLimit: 50, Count: 2}},
			123.4, 7,
		),
	}
	e := event.NewMetric(m)

	b, err := c.Encode(e)
	require.NoError(t, err)
	got, err := c.Decode(b)
	require.NoError(t, err)

	buckets, sum, count, ok := got.Metric().Value.Histogram()
	require.True(t, ok)
	require.Equal(t, m.Value.Clone(), got.Metric().Value) // sanity: whole value clones equal
	require.Len(t, buckets, 2)
	require.Equal(t, 123.4, sum)
	require.EqualValues(t, 7, count)
}
