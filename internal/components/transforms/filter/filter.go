// Package filter provides the conditional-drop transform: events whose
// configured field path compares equal to a configured value pass through;
// everything else is dropped Delivered (a policy decision, not a failure).
package filter

import (
	"fmt"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

const componentName = "transform.filter"

// Transform drops any Log/Trace event whose field at Path does not equal
// Equals. Metric events always pass through.
type Transform struct {
	path event.Path
	equals event.Value
}

// New builds a filter Transform from cfg["field"] (a dotted field path
// string) and cfg["equals"] (a string compared against the field's bytes
// value).
func New(cfg map[string]any) (component.FunctionTransform, component.TaskTransform, component.BatchReducer, error) {
	field, _ := cfg["field"].(string)
	if field == "" {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage("field: required dotted path string"))
	}
	path, err := event.ParsePath(field)
	if err != nil {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage(fmt.Sprintf("field: %v", err)))
	}
	equals, _ := cfg["equals"].(string)

	return &Transform{path: path, equals: event.BytesString(equals)}, nil, nil, nil
}

func (t *Transform) Transform(e *event.Event) []*event.Event {
	if e.Kind() == event.EventMetric {
		return []*event.Event{e}
	}
	v, ok := e.Get(t.path)
	if !ok || !v.Equal(t.equals) {
		e.Finalize(finalizer.StatusDelivered)
		return nil
	}
	return []*event.Event{e}
}
