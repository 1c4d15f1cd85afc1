package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/conduit/internal/domain/component"
)

type stubSource struct{}

func (stubSource) Run(ctx context.Context, out component.Sender, shutdown *component.ShutdownSignal) error {
	return nil
}

func TestRegistry_BuildSource(t *testing.T) {
	r := New()
	r.RegisterSource("stub", func(cfg map[string]any) (component.Source, error) {
		return stubSource{}, nil
	})

	src, err := r.BuildSource("stub", nil)
	require.NoError(t, err)
	require.NotNil(t, src)

	require.Equal(t, []string{"stub"}, r.SourceTypes())
}

func TestRegistry_BuildUnknownType(t *testing.T) {
	r := New()
	_, err := r.BuildSource("missing", nil)
	require.Error(t, err)
}

func TestRegistry_RegisterDuplicate_Panics(t *testing.T) {
	r := New()
	factory := func(cfg map[string]any) (component.Source, error) { return stubSource{}, nil }
	r.RegisterSource("dup", factory)
	require.Panics(t, func() { r.RegisterSource("dup", factory) })
}

func TestRegistry_RegisterNilFactory_Panics(t *testing.T) {
	r := New()
	require.Panics(t, func() { r.RegisterSource("nil", nil) })
}
