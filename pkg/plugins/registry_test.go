package plugins

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPlugin implements the Plugin interface for testing
type mockPlugin struct {
	name     string
	typ      PluginType
	stageErr error
}

func (m *mockPlugin) Name() string { return m.name }
func (m *mockPlugin) Type() PluginType { return m.typ }

func (m *mockPlugin) Stage(ctx context.Context, sc *StageContext) error {
	return m.stageErr
}

func framework(name string) *mockPlugin {
	return &mockPlugin{name: name, typ: PluginTypeFramework}
}

func feature(name string) *mockPlugin {
	return &mockPlugin{name: name, typ: PluginTypeFeature}
}

func TestNewRegistry(t *testing.T) {
	registry := NewRegistry()

	assert.NotNil(t, registry)
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.All())
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		plugin  Plugin
		wantErr bool
	}{
		{
			name:   "successful registration",
			plugin: framework("sinatra"),
		},
		{
			name:    "nil plugin",
			plugin:  nil,
			wantErr: true,
		},
		{
			name:    "empty name",
			plugin:  feature(""),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.plugin)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlugin)
				assert.Equal(t, 0, registry.Count())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 1, registry.Count())
			assert.True(t, registry.Has(tt.plugin.Name()))
		})
	}
}

func TestRegistry_RegisterLastWriteWins(t *testing.T) {
	registry := NewRegistry()
	first := framework("sinatra")
	other := feature("services")
	second := feature("sinatra")

	require.NoError(t, registry.Register(first))
	require.NoError(t, registry.Register(other))
	require.NoError(t, registry.Register(second))

	got, ok := registry.Lookup("sinatra")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 2, registry.Count())

	// The replaced plugin keeps its original slot
	assert.Equal(t, []string{"sinatra", "services"}, registry.Names())
}

func TestRegistry_AllPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry()
	names := []string{"zeta", "alpha", "mid", "beta"}
	for _, n := range names {
		require.NoError(t, registry.Register(feature(n)))
	}

	var got []string
	for _, p := range registry.All() {
		got = append(got, p.Name())
	}
	assert.Equal(t, names, got)
}

func TestRegistry_Lookup(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(framework("node")))

	p, ok := registry.Lookup("node")
	assert.True(t, ok)
	assert.Equal(t, "node", p.Name())

	p, ok = registry.Lookup("missing")
	assert.False(t, ok)
	assert.Nil(t, p)
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(framework("a"), feature("b"), feature("c"))

	require.NoError(t, registry.Unregister("b"))
	assert.Equal(t, []string{"a", "c"}, registry.Names())
	assert.False(t, registry.Has("b"))

	err := registry.Unregister("b")
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestRegistry_ListByType(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(feature("services"), framework("sinatra"), feature("limits"))

	frameworks := registry.ListByType(PluginTypeFramework)
	require.Len(t, frameworks, 1)
	assert.Equal(t, "sinatra", frameworks[0].Name())

	features := registry.ListByType(PluginTypeFeature)
	require.Len(t, features, 2)
	assert.Equal(t, "services", features[0].Name())
	assert.Equal(t, "limits", features[1].Name())
}

func TestRegistry_Reset(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(framework("a"), feature("b"))

	registry.Reset()

	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.All())
	assert.False(t, registry.Has("a"))

	// Usable after reset
	require.NoError(t, registry.Register(feature("b")))
	assert.Equal(t, []string{"b"}, registry.Names())
}

func TestRegistry_MustRegisterPanics(t *testing.T) {
	registry := NewRegistry()
	assert.Panics(t, func() {
		registry.MustRegister(nil)
	})
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = registry.Register(feature(fmt.Sprintf("plugin-%d", i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = registry.All()
			_, _ = registry.Lookup(fmt.Sprintf("plugin-%d", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, registry.Count())
	assert.Len(t, registry.Names(), 50)
}
