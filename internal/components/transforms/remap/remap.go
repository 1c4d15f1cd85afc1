// Package remap provides the script transform: a user-supplied JavaScript
// function, run in an isolated goja.Runtime, that receives an event's
// fields as a plain object and returns the transformed fields (or null/
// false to drop the event). Grounded on the teacher's
// internal/app/lambda/js package, which embeds goja the same way to run
// user strategy code in-process.
package remap

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

const componentName = "transform.remap"

// Transform evaluates a fixed JavaScript source against every Log/Trace
// event's fields, calling its exported `remap(event)` function. Metric
// events pass through unmodified: the script operates on the field-tree
// shape only.
type Transform struct {
	rt *goja.Runtime
	fn goja.Callable
}

// New compiles the `source` JavaScript (expected to define a top-level
// `remap` function) from cfg["source"] into an isolated goja.Runtime.
func New(cfg map[string]any) (component.FunctionTransform, component.TaskTransform, component.BatchReducer, error) {
	source, _ := cfg["source"].(string)
	if source == "" {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage("source: required JavaScript string"))
	}

	rt := goja.New()
	if _, err := rt.RunString(source); err != nil {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage(fmt.Sprintf("compile script: %v", err)))
	}
	value := rt.Get("remap")
	if goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage("source: must define a top-level remap(event) function"))
	}
	fn, ok := goja.AssertFunction(value)
	if !ok {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage("source: remap export is not callable"))
	}

	return &Transform{rt: rt, fn: fn}, nil, nil, nil
}

// Transform applies the script to e, dropping e (Rejected) if the script
// throws, and dropping it (Delivered, a policy decision) if the script
// returns null, undefined or false. Any other non-object result is Rejected.
func (t *Transform) Transform(e *event.Event) []*event.Event {
	if e.Kind() == event.EventMetric {
		return []*event.Event{e}
	}

	native := toNative(*e.Fields())
	jsResult, err := t.fn(goja.Undefined(), t.rt.ToValue(native))
	if err != nil {
		e.Finalize(finalizer.StatusRejected)
		return nil
	}

	exported := jsResult.Export()
	if exported == nil || exported == false {
		e.Finalize(finalizer.StatusDelivered)
		return nil
	}

	fields := fromNative(exported)
	obj, ok := fields.AsObject()
	if !ok {
		e.Finalize(finalizer.StatusRejected)
		return nil
	}
	*e.Fields() = event.Obj(obj)
	return []*event.Event{e}
}
