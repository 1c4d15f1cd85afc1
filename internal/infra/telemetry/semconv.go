// Package telemetry provides the semantic conventions and component.Observer
// implementation the topology supervisor installs: structured logging via
// zerolog and OpenTelemetry counters for the four side-effect shapes every
// component emits. Adapted from telemetry/semconv.go's attribute-key
// catalogue, re-keyed from exchange/provider telemetry to pipeline/component
// telemetry.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for this runtime's telemetry, following
// OpenTelemetry naming conventions: namespace.attribute_name.
const (
	// AttrComponent identifies the named source/transform/sink instance that
	// produced a side effect.
	AttrComponent = attribute.Key("component")
	// AttrComponentKind classifies AttrComponent as source, transform, or sink.
	AttrComponentKind = attribute.Key("component.kind")
	// AttrStage records which pipeline stage (source/transform/sink/buffer
	// name) an error was attributed to.
	AttrStage = attribute.Key("stage")
	// AttrBuffer identifies the named buffer stage a drop or corruption
	// occurred in.
	AttrBuffer = attribute.Key("buffer")
	// AttrIntentional distinguishes a policy-driven drop (e.g. buffer full
	// under DropNewest) from a failure-driven one.
	AttrIntentional = attribute.Key("intentional")
	// AttrReason provides additional free-form context for a drop or error.
	AttrReason = attribute.Key("reason")
	// AttrErrorKind categorizes failures by the errs.Kind taxonomy
	// (config/fatal_runtime/transient/deserialize/backpressure).
	AttrErrorKind = attribute.Key("error.kind")
	// AttrEnvironment specifies the deployment environment (dev/staging/prod)
	// for every metric.
	AttrEnvironment = attribute.Key("environment")
)

// Component kind values used with AttrComponentKind.
const (
	ComponentKindSource = "source"
	ComponentKindTransform = "transform"
	ComponentKindSink = "sink"
)

// ReceivedAttributes returns attributes for a component_received_events_total
// increment.
func ReceivedAttributes(environment, component string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
	}
}

// SentAttributes returns attributes for a component_sent_events_total
// increment.
func SentAttributes(environment, component string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
	}
}

// DroppedAttributes returns attributes for a
// component_discarded_events_total increment (buffer drops included).
func DroppedAttributes(environment, component string, intentional bool, reason string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
		AttrIntentional.Bool(intentional),
	}
	if reason != "" {
		attrs = append(attrs, AttrReason.String(reason))
	}
	return attrs
}

// ErroredAttributes returns attributes for a component_errors_total
// increment.
func ErroredAttributes(environment, component, stage, errorKind string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrComponent.String(component),
	}
	if stage != "" {
		attrs = append(attrs, AttrStage.String(stage))
	}
	if errorKind != "" {
		attrs = append(attrs, AttrErrorKind.String(errorKind))
	}
	return attrs
}
