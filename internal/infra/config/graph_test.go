package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
data_dir: /var/lib/conduit
sources:
  in:
    type: generator
transforms:
  t:
    type: filter
    inputs: [in]
sinks:
  out:
    type: console
    inputs: [t]
    buffer:
      type: disk
      when_full: block
`

func TestGraph_ParseAndValidate_OK(t *testing.T) {
	g, err := ParseYAML([]byte(validYAML))
	require.NoError(t, err)
	require.NoError(t, g.Validate())
	require.Equal(t, "generator", g.Sources["in"].Type)
}

func TestGraph_Validate_RejectsCycle(t *testing.T) {
	g := &Graph{
		Sources: map[string]ComponentSpec{"in": {Type: "generator"}},
		Transforms: map[string]ComponentSpec{
			"a": {Type: "filter", Inputs: []string{"b"}},
			"b": {Type: "filter", Inputs: []string{"a"}},
		},
		Sinks: map[string]ComponentSpec{"out": {Type: "console", Inputs: []string{"a"}}},
	}
	err := g.Validate()
	require.Error(t, err)
}

func TestGraph_Validate_RejectsSelfLoop(t *testing.T) {
	g := &Graph{
		Sources: map[string]ComponentSpec{"in": {Type: "generator"}},
		Transforms: map[string]ComponentSpec{"a": {Type: "filter", Inputs: []string{"a"}}},
		Sinks: map[string]ComponentSpec{"out": {Type: "console", Inputs: []string{"a"}}},
	}
	require.Error(t, g.Validate())
}

func TestGraph_Validate_RejectsUnreachableSink(t *testing.T) {
	g := &Graph{
		Sources: map[string]ComponentSpec{"in": {Type: "generator"}},
		Sinks: map[string]ComponentSpec{
			"out": {Type: "console", Inputs: []string{"in"}},
			"orphan": {Type: "console", Inputs: []string{"ghost"}},
		},
	}
	require.Error(t, g.Validate())
}

func TestGraph_Validate_RejectsOverflowAsTerminalStage(t *testing.T) {
	g := &Graph{
		Sources: map[string]ComponentSpec{
			"in": {Type: "generator", Buffer: &BufferSpec{Type: BufferMemory, WhenFull: PolicyOverflow}},
		},
		Sinks: map[string]ComponentSpec{"out": {Type: "console", Inputs: []string{"in"}}},
	}
	require.Error(t, g.Validate())
}

func TestGraph_Validate_RequiresDataDirForDiskBuffer(t *testing.T) {
	g := &Graph{
		Sources: map[string]ComponentSpec{"in": {Type: "generator"}},
		Sinks: map[string]ComponentSpec{
			"out": {Type: "console", Inputs: []string{"in"}, Buffer: &BufferSpec{Type: BufferDisk}},
		},
	}
	require.Error(t, g.Validate())
}

func TestGraph_EnvSubstitution(t *testing.T) {
	t.Setenv("CONDUIT_DATA_DIR", "/tmp/conduit-data")
	raw := []byte("data_dir: ${CONDUIT_DATA_DIR}\nsources:\n  in:\n    type: generator\nsinks:\n  out:\n    type: console\n    inputs: [in]\n")
	g, err := ParseYAML(raw)
	require.NoError(t, err)
	require.Equal(t, "/tmp/conduit-data", g.DataDir)
}

func TestGraph_EnvSubstitution_DefaultValue(t *testing.T) {
	raw := []byte("data_dir: ${CONDUIT_DATA_DIR_UNSET:-/tmp/default}\nsources:\n  in:\n    type: generator\nsinks:\n  out:\n    type: console\n    inputs: [in]\n")
	g, err := ParseYAML(raw)
	require.NoError(t, err)
	require.Equal(t, "/tmp/default", g.DataDir)
}

func TestGraph_EnvSubstitution_UnresolvedFailsParse(t *testing.T) {
	raw := []byte("data_dir: ${CONDUIT_TOTALLY_UNSET_VAR}\nsources: {}\nsinks: {}\n")
	_, err := ParseYAML(raw)
	require.Error(t, err)
}

func TestComponentSpec_EqualTo(t *testing.T) {
	a := ComponentSpec{Type: "console", Inputs: []string{"t"}, Config: map[string]any{"x": 1}}
	b := ComponentSpec{Type: "console", Inputs: []string{"t"}, Config: map[string]any{"x": 1}}
	c := ComponentSpec{Type: "console", Inputs: []string{"t"}, Config: map[string]any{"x": 2}}
	require.True(t, a.equalTo(b))
	require.False(t, a.equalTo(c))
}
