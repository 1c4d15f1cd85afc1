// Package reduce provides the sync batch reducer transform: events sharing
// a group key are folded together via event.MergeObjects until a max count
// or max duration condition fires, then emitted as one event whose
// finalizer subsumes every input (the BatchReducer contract in
// internal/domain/component).
package reduce

import (
	"fmt"
	"sync"
	"time"

	"github.com/coachpo/conduit/internal/domain/component"
	"github.com/coachpo/conduit/internal/domain/errs"
	"github.com/coachpo/conduit/internal/domain/event"
	"github.com/coachpo/conduit/internal/domain/finalizer"
)

const componentName = "transform.reduce"

const defaultMaxDuration = 10 * time.Second

// Reducer groups consecutive Log/Trace events by a configured field path,
// merging them with event.MergeObjects, and flushes a group once it
// reaches MaxEvents or has been open longer than MaxDuration. Safe for
// concurrent use: the supervisor calls Add/Flush from the node's Recv loop
// and Sweep from a separate ticker goroutine.
type Reducer struct {
	groupBy event.Path
	maxEvents int
	maxDuration time.Duration

	mu sync.Mutex
	groups map[string]*group
}

type group struct {
	fields *event.Object
	count int
	opened time.Time
	notif []*finalizer.Finalizer
}

// New builds a Reducer from cfg["group_by"] (a dotted field path), and
// optional cfg["max_events"]/cfg["max_duration_ms"].
func New(cfg map[string]any) (component.FunctionTransform, component.TaskTransform, component.BatchReducer, error) {
	field, _ := cfg["group_by"].(string)
	if field == "" {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage("group_by: required dotted path string"))
	}
	path, err := event.ParsePath(field)
	if err != nil {
		return nil, nil, nil, errs.Config(componentName, errs.WithMessage(fmt.Sprintf("group_by: %v", err)))
	}

	r := &Reducer{groupBy: path, maxEvents: 100, maxDuration: defaultMaxDuration, groups: make(map[string]*group)}
	if n, ok := toInt(cfg["max_events"]); ok && n > 0 {
		r.maxEvents = n
	}
	if n, ok := toInt(cfg["max_duration_ms"]); ok && n > 0 {
		r.maxDuration = time.Duration(n) * time.Millisecond
	}
	return nil, nil, r, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (r *Reducer) keyOf(e *event.Event) string {
	v, ok := e.Get(r.groupBy)
	if !ok {
		return ""
	}
	switch v.Kind() {
	case event.KindBytes:
		b, _ := v.AsBytes()
		return string(b)
	case event.KindInteger:
		i, _ := v.AsInteger()
		return fmt.Sprintf("i:%d", i)
	case event.KindFloat:
		f, _ := v.AsFloat()
		return fmt.Sprintf("f:%v", f)
	case event.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("b:%v", b)
	default:
		return ""
	}
}

// Add folds e into its group, returning the merged event and true once the
// group's flush condition fires.
func (r *Reducer) Add(e *event.Event) (*event.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.keyOf(e)
	g, exists := r.groups[key]
	if !exists {
		obj, _ := e.Fields().AsObject()
		g = &group{fields: obj.Clone(), count: 1, opened: r.now(), notif: e.DetachFinalizers()}
		r.groups[key] = g
	} else {
		incoming, _ := e.Fields().AsObject()
		g.fields = event.MergeObjects(g.fields, incoming)
		g.count++
		g.notif = append(g.notif, e.DetachFinalizers()...)
	}

	if g.count >= r.maxEvents || r.now().Sub(g.opened) >= r.maxDuration {
		delete(r.groups, key)
		return r.flushGroup(g), true
	}
	return nil, false
}

// Sweep force-flushes every group whose MaxDuration has elapsed without a
// new Add, independent of new arrivals. Called periodically by the
// supervisor so a group that stops receiving events before MaxDuration
// elapses still resolves instead of sitting open until either another
// event lands in the same group or the transform is torn down.
func (r *Reducer) Sweep() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.groups) == 0 {
		return nil
	}
	now := r.now()
	var out []*event.Event
	for key, g := range r.groups {
		if now.Sub(g.opened) >= r.maxDuration {
			delete(r.groups, key)
			out = append(out, r.flushGroup(g))
		}
	}
	return out
}

// Flush force-emits every still-open group, merging their results into a
// single emitted event (the BatchReducer contract permits only one return
// value for a caller-forced flush; Sweep flushes groups individually since
// it only targets the ones whose own MaxDuration has actually elapsed).
func (r *Reducer) Flush() *event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.groups) == 0 {
		return nil
	}
	var merged *event.Event
	for key, g := range r.groups {
		delete(r.groups, key)
		e := r.flushGroup(g)
		if merged == nil {
			merged = e
			continue
		}
		obj, _ := merged.Fields().AsObject()
		incoming, _ := e.Fields().AsObject()
		*merged.Fields() = event.Obj(event.MergeObjects(obj, incoming))
		merged.SetFinalizers(append(merged.Finalizers(), e.DetachFinalizers()...))
	}
	return merged
}

func (r *Reducer) flushGroup(g *group) *event.Event {
	e := event.NewLog()
	*e.Fields() = event.Obj(g.fields)
	e.SetFinalizers(g.notif)
	return e
}

// now returns the current wall-clock time (time.Now); it has no override.
func (r *Reducer) now() time.Time { return time.Now() }
