package main

import (
	"github.com/coachpo/conduit/internal/app/registry"
	"github.com/coachpo/conduit/internal/components/sinks/blackhole"
	"github.com/coachpo/conduit/internal/components/sinks/console"
	"github.com/coachpo/conduit/internal/components/sinks/postgres"
	"github.com/coachpo/conduit/internal/components/sources/generator"
	"github.com/coachpo/conduit/internal/components/sources/websocket"
	"github.com/coachpo/conduit/internal/components/transforms/filter"
	"github.com/coachpo/conduit/internal/components/transforms/reduce"
	"github.com/coachpo/conduit/internal/components/transforms/remap"
)

// buildRegistry registers every reference component this binary ships
// against a fresh registry.Registry. A fixed call site at process startup,
// never from user input (registry.Registry panics on duplicate
// registration, so this is the only place component types are wired).
func buildRegistry() *registry.Registry {
	reg := registry.New()

	reg.RegisterSource("generator", generator.New)
	reg.RegisterSource("websocket", websocket.New)

	reg.RegisterTransform("remap", remap.New)
	reg.RegisterTransform("filter", filter.New)
	reg.RegisterTransform("reduce", reduce.New)

	reg.RegisterSink("console", console.New)
	reg.RegisterSink("blackhole", blackhole.New)
	reg.RegisterSink("postgres", postgres.New)

	return reg
}
