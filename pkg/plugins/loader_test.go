package plugins

import (
	"errors"
	"testing"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Resolve(t *testing.T) {
	registry := NewRegistry()
	sinatra := framework("sinatra")
	registry.MustRegister(sinatra)
	loader := NewLoader(registry)

	tests := []struct {
		name     string
		ref      app.PluginReference
		want     Plugin
		wantName string
	}{
		{
			name: "registered gem",
			ref:  app.PluginReference{Kind: "gem", Name: "sinatra"},
			want: sinatra,
		},
		{
			name: "any source kind resolves through the registry",
			ref:  app.PluginReference{Kind: "builtin", Name: "sinatra"},
			want: sinatra,
		},
		{
			name:     "unknown gem",
			ref:      app.PluginReference{Kind: "gem", Name: "invalid_gem"},
			wantName: "invalid_gem",
		},
		{
			name: "empty name",
			ref:  app.PluginReference{Kind: "gem"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loader.Resolve(tt.ref)
			if tt.want != nil {
				require.NoError(t, err)
				assert.Same(t, tt.want, got)
				return
			}

			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, ErrPluginNotFound)

			var notFound *PluginNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, tt.ref.Kind, notFound.Kind)
			assert.Equal(t, tt.ref.Name, notFound.Name)
		})
	}
}

func TestLoader_ResolveNilRegistry(t *testing.T) {
	_, err := NewLoader(nil).Resolve(app.PluginReference{Kind: "gem", Name: "sinatra"})
	assert.ErrorIs(t, err, ErrPluginNotFound)
}

func TestLoader_ResolveAll(t *testing.T) {
	registry := NewRegistry()
	registry.MustRegister(framework("sinatra"), feature("services"))
	loader := NewLoader(registry)

	got, err := loader.ResolveAll([]app.PluginReference{
		{Kind: "gem", Name: "services"},
		{Kind: "gem", Name: "sinatra"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "services", got[0].Name())
	assert.Equal(t, "sinatra", got[1].Name())

	_, err = loader.ResolveAll([]app.PluginReference{
		{Kind: "gem", Name: "sinatra"},
		{Kind: "gem", Name: "missing"},
	})
	assert.ErrorIs(t, err, ErrPluginNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoader_ResolveAcrossRegistries(t *testing.T) {
	references := NewRegistry()
	javaContainer := framework("java-container")
	shadow := feature("services")
	references.MustRegister(javaContainer, shadow)

	ambient := NewRegistry()
	services := feature("services")
	limits := feature("limits")
	ambient.MustRegister(services, limits)

	loader := NewLoader(references, nil, ambient)

	got, err := loader.Resolve(app.PluginReference{Kind: "container", Name: "java-container"})
	require.NoError(t, err)
	assert.Same(t, javaContainer, got)

	got, err = loader.Resolve(app.PluginReference{Kind: "builtin", Name: "limits"})
	require.NoError(t, err)
	assert.Same(t, limits, got)

	// the first registry holding a name wins
	got, err = loader.Resolve(app.PluginReference{Kind: "builtin", Name: "services"})
	require.NoError(t, err)
	assert.Same(t, shadow, got)

	_, err = loader.Resolve(app.PluginReference{Kind: "gem", Name: "missing"})
	assert.ErrorIs(t, err, ErrPluginNotFound)

	_, err = NewLoader().Resolve(app.PluginReference{Kind: "gem", Name: "limits"})
	assert.ErrorIs(t, err, ErrPluginNotFound)
}
