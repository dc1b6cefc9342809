package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndCreate(t *testing.T) {
	r := NewRegistry()

	factory := func() (Engine, error) {
		return NewStandardEngine(newFakeStore(), nil, &staticDiscoverer{}, testPipelineConfig()), nil
	}

	require.NoError(t, r.Register("standard", factory, true))
	require.NoError(t, r.Register("experimental", factory, false))

	assert.Equal(t, "standard", r.Default())
	assert.Equal(t, []string{"experimental", "standard"}, r.Names())

	engine, err := r.Create("")
	require.NoError(t, err)
	assert.NotNil(t, engine)

	engine, err = r.Create("experimental")
	require.NoError(t, err)
	assert.NotNil(t, engine)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	factory := func() (Engine, error) { return nil, nil }

	require.NoError(t, r.Register("standard", factory, true))
	assert.Error(t, r.Register("standard", factory, false))
	assert.Error(t, r.Register("other", factory, true), "second default must be rejected")
}

func TestRegistryUnknownEngine(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("nope")
	assert.Error(t, err)

	_, err = r.Create("")
	assert.Error(t, err, "no default registered")
}
