// Package unittest runs the `tests:` blocks a configuration may embed
// against the named transform they target, in isolation from any running
// topology: each case builds one literal input event, feeds it to the
// transform via the same registry the topology builder uses, and checks
// the result against the case's assertions. Grounded on the teacher's
// dry-run style validation commands (cmd/conduit's own `validate`/`test`
// build the graph and registry the same way without starting a topology);
// the build-test/run/collect-pass-fail shape mirrors how a unit-test
// runner aggregates independent cases into one pass/fail report per case.
package unittest

import (
	"fmt"

	"github.com/coachpo/conduit/internal/app/registry"
	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/infra/config"
)

// Result is one test case's outcome: Passed is true only when every
// assertion held; Failures explains each one that didn't (empty when
// Passed).
type Result struct {
	Name string
	Failures []string
}

// Passed reports whether every assertion in the case held.
func (r Result) Passed() bool { return len(r.Failures) == 0 }

// Run executes every g.Tests case against the transform it names, building
// that transform fresh from reg for each case so cases never share state.
// A case naming an undeclared transform, or a transform type reg cannot
// build, is a configuration error returned immediately rather than folded
// into a Result, since it means the config itself is broken, not that the
// test failed.
func Run(g *config.Graph, reg *registry.Registry) ([]Result, error) {
	results := make([]Result, 0, len(g.Tests))
	for _, tc := range g.Tests {
		spec, ok := g.Transforms[tc.Transform]
		if !ok {
			return nil, fmt.Errorf("test %q: transform %q is not declared", tc.Name, tc.Transform)
		}
		fn, task, reducer, err := reg.BuildTransform(spec.Type, spec.Config)
		if err != nil {
			return nil, fmt.Errorf("test %q: build transform %q: %w", tc.Name, tc.Transform, err)
		}
		results = append(results, runCase(tc, fn, task, reducer))
	}
	return results, nil
}

func runCase(tc config.TestCase, fn component.FunctionTransform, task component.TaskTransform, reducer component.BatchReducer) Result {
	res := Result{Name: tc.Name}

	var outputs []*event.Event
	switch {
	case fn != nil:
		outputs = fn.Transform(buildEvent(tc.Input))
	case reducer != nil:
		if emit, ready := reducer.Add(buildEvent(tc.Input)); ready {
			outputs = []*event.Event{emit}
		}
	case task != nil:
		res.Failures = append(res.Failures, fmt.Sprintf("transform %q is a streaming task transform; only pure transforms and batch reducers can be unit tested", tc.Transform))
		return res
	default:
		res.Failures = append(res.Failures, fmt.Sprintf("transform %q built no runnable shape", tc.Transform))
		return res
	}

	if tc.Drops {
		if len(outputs) != 0 {
			res.Failures = append(res.Failures, fmt.Sprintf("expected the input to be dropped, got %d output event(s)", len(outputs)))
		}
		return res
	}

	if len(outputs) == 0 {
		res.Failures = append(res.Failures, "expected an output event, got none")
		return res
	}
	out := outputs[0]
	for _, want := range tc.Outputs {
		path, err := event.ParsePath(want.Path)
		if err != nil {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: %v", want.Path, err))
			continue
		}
		got, ok := out.Get(path)
		if !ok {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: path not present in output", want.Path))
			continue
		}
		if wantVal := anyToValue(want.Equals); !got.Equal(wantVal) {
			res.Failures = append(res.Failures, fmt.Sprintf("%s: expected %v, got %v", want.Path, want.Equals, got))
		}
	}
	return res
}

// buildEvent constructs a Log event from a test case's literal input
// fields, the same map[string]any -> event.Value conversion
// internal/components/sources/websocket uses for decoded JSON frames.
func buildEvent(fields map[string]any) *event.Event {
	obj := event.NewObject()
	for k, v := range fields {
		obj.Set(k, anyToValue(v))
	}
	e := event.NewLog()
	*e.Fields() = event.Obj(obj)
	return e
}

func anyToValue(v any) event.Value {
	switch t := v.(type) {
	case nil:
		return event.Null()
	case bool:
		return event.Bool(t)
	case int:
		return event.Integer(int64(t))
	case int64:
		return event.Integer(t)
	case float64:
		return event.Float(t)
	case string:
		return event.BytesString(t)
	case []any:
		vals := make([]event.Value, len(t))
		for i, elem := range t {
			vals[i] = anyToValue(elem)
		}
		return event.Array(vals)
	case map[string]any:
		obj := event.NewObject()
		for k, elem := range t {
			obj.Set(k, anyToValue(elem))
		}
		return event.Obj(obj)
	default:
		return event.Null()
	}
}
