package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures the process-wide MeterProvider. An empty OTLPEndpoint
// yields a no-op provider so the runtime can start without a collector
// present.
type Config struct {
	ServiceName string
	Environment string
	OTLPEndpoint string
}

// Init constructs the MeterProvider for Config, returning it alongside a
// shutdown func and the Observer already wired to its counters. Adapted
// from the teacher's lib/telemetry/otel.go Init, trimmed to metrics only
// (this runtime's tracing needs are met by request-scoped log fields rather
// than spans).
func Init(ctx context.Context, cfg Config) (Observer, func(context.Context) error, error) {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "conduit"
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)

	setEnvironment(cfg.Environment)

	if endpoint == "" {
		mp := noop.NewMeterProvider()
		otel.SetMeterProvider(mp)
		counters, err := NewCounters(mp.Meter(service))
		if err != nil {
			return Observer{}, nil, fmt.Errorf("telemetry: register counters: %w", err)
		}
		return NewObserver(counters, cfg.Environment), func(context.Context) error { return nil }, nil
	}

	host, insecure, err := parseEndpoint(endpoint)
	if err != nil {
		return Observer{}, nil, err
	}

	metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
	}
	metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return Observer{}, nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return Observer{}, nil, fmt.Errorf("telemetry: create resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	counters, err := NewCounters(mp.Meter(service))
	if err != nil {
		return Observer{}, nil, fmt.Errorf("telemetry: register counters: %w", err)
	}

	return NewObserver(counters, cfg.Environment), mp.Shutdown, nil
}

func parseEndpoint(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("telemetry: parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	insecure := parsed.Scheme != "https"
	return host, insecure, nil
}
