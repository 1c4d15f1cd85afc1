// Package registry implements the component registry the documented contract calls for: "a
// registry keyed by string name that returns a typed constructor" in place
// of runtime reflection. Sources, transforms, and sinks each register a
// Factory under their config `type` string; the topology builder looks the
// factory up by name instead of switching on a type tag.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/coachpo/conduit/internal/domain/component"
)

// SourceFactory builds a component.Source from its decoded component-local
// configuration (already unmarshaled into a map by internal/infra/config).
type SourceFactory func(cfg map[string]any) (component.Source, error)

// TransformFactory builds one of the three transform shapes. Exactly one of
// the returned values is non-nil; the topology builder dispatches on which.
type TransformFactory func(cfg map[string]any) (fn component.FunctionTransform, task component.TaskTransform, reducer component.BatchReducer, err error)

// SinkFactory builds a component.Sink from its decoded configuration.
type SinkFactory func(cfg map[string]any) (component.Sink, error)

// Registry maintains factories keyed by the component `type` string
// declared in configuration. Grounded on the teacher's provider
// Registry, generalized from one factory kind (provider instances) to three
// (source/transform/sink).
type Registry struct {
	mu sync.RWMutex
	sources map[string]SourceFactory
	transforms map[string]TransformFactory
	sinks map[string]SinkFactory
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sources: make(map[string]SourceFactory),
		transforms: make(map[string]TransformFactory),
		sinks: make(map[string]SinkFactory),
	}
}

// RegisterSource registers a source factory under typeName. Panics on a nil
// factory or duplicate registration, mirroring a programming error rather
// than a runtime condition — registration happens once at process startup
// from a fixed call site (see cmd/conduit), never from user input.
func (r *Registry) RegisterSource(typeName string, factory SourceFactory) {
	if factory == nil {
		panic("registry: source factory required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[typeName]; exists {
		panic(fmt.Sprintf("registry: source type %q already registered", typeName))
	}
	r.sources[typeName] = factory
}

// RegisterTransform registers a transform factory under typeName.
func (r *Registry) RegisterTransform(typeName string, factory TransformFactory) {
	if factory == nil {
		panic("registry: transform factory required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transforms[typeName]; exists {
		panic(fmt.Sprintf("registry: transform type %q already registered", typeName))
	}
	r.transforms[typeName] = factory
}

// RegisterSink registers a sink factory under typeName.
func (r *Registry) RegisterSink(typeName string, factory SinkFactory) {
	if factory == nil {
		panic("registry: sink factory required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sinks[typeName]; exists {
		panic(fmt.Sprintf("registry: sink type %q already registered", typeName))
	}
	r.sinks[typeName] = factory
}

// BuildSource instantiates the named source type with cfg.
func (r *Registry) BuildSource(typeName string, cfg map[string]any) (component.Source, error) {
	r.mu.RLock()
	factory, ok := r.sources[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: source type %q not registered", typeName)
	}
	return factory(cfg)
}

// BuildTransform instantiates the named transform type with cfg.
func (r *Registry) BuildTransform(typeName string, cfg map[string]any) (component.FunctionTransform, component.TaskTransform, component.BatchReducer, error) {
	r.mu.RLock()
	factory, ok := r.transforms[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("registry: transform type %q not registered", typeName)
	}
	return factory(cfg)
}

// BuildSink instantiates the named sink type with cfg.
func (r *Registry) BuildSink(typeName string, cfg map[string]any) (component.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: sink type %q not registered", typeName)
	}
	return factory(cfg)
}

// SourceTypes returns the registered source type names, sorted.
func (r *Registry) SourceTypes() []string { return sortedKeysOfSources(r) }

func sortedKeysOfSources(r *Registry) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for k := range r.sources {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
