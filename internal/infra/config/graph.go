// Package config loads and validates the topology configuration surface
// the documented contract describes: named sources, transforms, and sinks wired by input
// references, each optionally fronted by a buffer stage. Grounded on the
// teacher's internal/infra/config package (YAML-sourced AppConfig,
// normalise-then-validate shape), generalized from one fixed application
// schema to the graph-shaped schema this runtime's topology supervisor
// consumes.
package config

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/conduit/internal/domain/errs"
)

// BufferType selects the storage medium of one buffer stage.
type BufferType string

const (
	BufferMemory BufferType = "memory"
	BufferDisk BufferType = "disk"
)

// FullPolicy mirrors membuf.FullPolicy/diskbuf at the configuration surface,
// kept as its own string enum here so the config package does not import
// the runtime buffer packages.
type FullPolicy string

const (
	PolicyBlock FullPolicy = "block"
	PolicyDropNewest FullPolicy = "drop_newest"
	PolicyOverflow FullPolicy = "overflow"
)

// BufferSpec configures one stage of a buffer topology. When
// WhenFull is "overflow", Overflow must name the next stage a send falls
// through to; the terminal stage in the chain may not itself be "overflow"
//).
type BufferSpec struct {
	Type BufferType `yaml:"type" json:"type"`
	MaxEvents int `yaml:"max_events,omitempty" json:"maxEvents,omitempty"`
	MaxSize int64 `yaml:"max_size,omitempty" json:"maxSize,omitempty"`
	WhenFull FullPolicy `yaml:"when_full,omitempty" json:"whenFull,omitempty"`
	Overflow *BufferSpec `yaml:"overflow,omitempty" json:"overflow,omitempty"`
}

// ComponentSpec is one named node in the graph: its registered type, the
// components feeding it (empty for sources), its buffer boundary, and its
// type-specific configuration passed through to the registry factory
// unparsed.
type ComponentSpec struct {
	Type string `yaml:"type" json:"type"`
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Buffer *BufferSpec `yaml:"buffer,omitempty" json:"buffer,omitempty"`
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// equalTo reports byte-identical configuration, the test Reload
// uses to decide whether a component needs rebuilding: "existing
// components whose configuration is byte-identical are left running."
func (c ComponentSpec) equalTo(other ComponentSpec) bool {
	a, errA := json.Marshal(c)
	b, errB := json.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}

// TestAssertion checks that a transform's output event carries value at
// path, compared via event.Value.Equal.
type TestAssertion struct {
	Path string `yaml:"path" json:"path"`
	Equals any `yaml:"equals" json:"equals"`
}

// TestCase is one `tests:` entry: feeds Input to the named Transform in
// isolation (outside any running topology) and checks the result. Drops
// asserts the transform produced no output at all (for a filter-style
// transform); otherwise Outputs is checked against the first output event.
type TestCase struct {
	Name string `yaml:"name" json:"name"`
	Transform string `yaml:"transform" json:"transform"`
	Input map[string]any `yaml:"input" json:"input"`
	Outputs []TestAssertion `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Drops bool `yaml:"drops,omitempty" json:"drops,omitempty"`
}

// Graph is the top-level configuration surface: a data directory
// for disk buffers plus keyed maps of named sources, transforms, and sinks,
// plus optional embedded unit-test cases run by `conduit test`.
type Graph struct {
	DataDir string `yaml:"data_dir,omitempty" json:"dataDir,omitempty"`
	Sources map[string]ComponentSpec `yaml:"sources" json:"sources"`
	Transforms map[string]ComponentSpec `yaml:"transforms,omitempty" json:"transforms,omitempty"`
	Sinks map[string]ComponentSpec `yaml:"sinks" json:"sinks"`
	Tests []TestCase `yaml:"tests,omitempty" json:"tests,omitempty"`
}

// ParseYAML substitutes environment variables then unmarshals raw YAML into
// a Graph. It does not validate; callers should call Validate separately so
// `conduit validate` can report validation errors distinctly from parse
// errors.
func ParseYAML(raw []byte) (*Graph, error) {
	substituted, err := substituteEnv(raw)
	if err != nil {
		return nil, errs.Config("config", errs.WithMessage(err.Error()))
	}
	var g Graph
	if err := yaml.Unmarshal(substituted, &g); err != nil {
		return nil, errs.Config("config", errs.WithCause(err), errs.WithMessage("parse yaml"))
	}
	return &g, nil
}

// kind tags which top-level map a component name was declared in, used to
// produce clearer validation errors and to forbid sinks from being named as
// another component's input.
type kind uint8

const (
	kindSource kind = iota
	kindTransform
	kindSink
)

// Validate checks the structural rules the documented contract requires: no cycles (self-
// loops included), every input names an existing source or transform, every
// sink has a non-empty input list, and no buffer chain ends in the overflow
// policy.
func (g *Graph) Validate() error {
	kinds := make(map[string]kind, len(g.Sources)+len(g.Transforms)+len(g.Sinks))
	for name := range g.Sources {
		if _, dup := kinds[name]; dup {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("component name %q declared more than once", name)))
		}
		kinds[name] = kindSource
	}
	for name := range g.Transforms {
		if _, dup := kinds[name]; dup {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("component name %q declared more than once", name)))
		}
		kinds[name] = kindTransform
	}
	for name := range g.Sinks {
		if _, dup := kinds[name]; dup {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("component name %q declared more than once", name)))
		}
		kinds[name] = kindSink
	}

	if len(g.Sources) == 0 {
		return errs.Config("config", errs.WithMessage("at least one source is required"))
	}
	if len(g.Sinks) == 0 {
		return errs.Config("config", errs.WithMessage("at least one sink is required"))
	}

	for name, spec := range g.Sources {
		if len(spec.Inputs) != 0 {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("source %q must not declare inputs", name)))
		}
		if err := validateBufferChain(spec.Buffer); err != nil {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("source %q: %v", name, err)))
		}
	}

	checkInputs := func(name string, spec ComponentSpec, selfKind kind) error {
		if len(spec.Inputs) == 0 {
			return fmt.Errorf("%q must declare at least one input", name)
		}
		for _, in := range spec.Inputs {
			if in == name {
				return fmt.Errorf("%q: self-loops are forbidden", name)
			}
			k, ok := kinds[in]
			if !ok {
				return fmt.Errorf("%q: input %q does not name a declared component", name, in)
			}
			if k == kindSink {
				return fmt.Errorf("%q: input %q is a sink, which cannot feed another component", name, in)
			}
		}
		return validateBufferChain(spec.Buffer)
	}

	for name, spec := range g.Transforms {
		if err := checkInputs(name, spec, kindTransform); err != nil {
			return errs.Config("config", errs.WithMessage(err.Error()))
		}
	}
	for name, spec := range g.Sinks {
		if err := checkInputs(name, spec, kindSink); err != nil {
			return errs.Config("config", errs.WithMessage(err.Error()))
		}
	}

	if err := g.checkAcyclic(); err != nil {
		return err
	}
	if err := g.checkSinkReachability(); err != nil {
		return err
	}
	if g.usesDiskBuffer() && strings.TrimSpace(g.DataDir) == "" {
		return errs.Config("config", errs.WithMessage("data_dir is required when any buffer uses type: disk"))
	}
	for i, tc := range g.Tests {
		if strings.TrimSpace(tc.Name) == "" {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("tests[%d]: name is required", i)))
		}
		k, ok := kinds[tc.Transform]
		if !ok || k != kindTransform {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("test %q: transform %q does not name a declared transform", tc.Name, tc.Transform)))
		}
		if !tc.Drops && len(tc.Outputs) == 0 {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("test %q: must declare outputs or drops: true", tc.Name)))
		}
	}
	return nil
}

func validateBufferChain(b *BufferSpec) error {
	for b != nil {
		if b.WhenFull == PolicyOverflow && b.Overflow == nil {
			return fmt.Errorf("buffer stage configured with when_full: overflow must declare a next stage")
		}
		b = b.Overflow
	}
	return nil
}

func (g *Graph) usesDiskBuffer() bool {
	chainUsesDisk := func(b *BufferSpec) bool {
		for b != nil {
			if b.Type == BufferDisk {
				return true
			}
			b = b.Overflow
		}
		return false
	}
	for _, spec := range g.Sources {
		if chainUsesDisk(spec.Buffer) {
			return true
		}
	}
	for _, spec := range g.Transforms {
		if chainUsesDisk(spec.Buffer) {
			return true
		}
	}
	for _, spec := range g.Sinks {
		if chainUsesDisk(spec.Buffer) {
			return true
		}
	}
	return false
}

func (g *Graph) inputsOf(name string) []string {
	if spec, ok := g.Transforms[name]; ok {
		return spec.Inputs
	}
	if spec, ok := g.Sinks[name]; ok {
		return spec.Inputs
	}
	return nil
}

// checkAcyclic walks the inputs-graph (consumer -> producer edges) from
// every sink and transform, rejecting a cycle.
func (g *Graph) checkAcyclic() error {
	const (
		unvisited = 0
		visiting = 1
		done = 2
	)
	state := make(map[string]int)
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("cycle detected: %s -> %s", strings.Join(path, " -> "), name)))
		}
		state[name] = visiting
		for _, in := range g.inputsOf(name) {
			if err := visit(in, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(g.Transforms)+len(g.Sinks))
	for name := range g.Transforms {
		names = append(names, name)
	}
	for name := range g.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// checkSinkReachability ensures every sink traces back to at least one
// source.
func (g *Graph) checkSinkReachability() error {
	var reaches func(name string, seen map[string]bool) bool
	reaches = func(name string, seen map[string]bool) bool {
		if seen[name] {
			return false
		}
		seen[name] = true
		if _, isSource := g.Sources[name]; isSource {
			return true
		}
		for _, in := range g.inputsOf(name) {
			if reaches(in, seen) {
				return true
			}
		}
		return false
	}

	names := make([]string, 0, len(g.Sinks))
	for name := range g.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !reaches(name, make(map[string]bool)) {
			return errs.Config("config", errs.WithMessage(fmt.Sprintf("sink %q is not reachable from any source", name)))
		}
	}
	return nil
}
