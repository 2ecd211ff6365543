package plugins

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name          string
		plugins       []Plugin
		errType       error
		wantFramework string
		wantFeatures  []string
	}{
		{
			name:          "single framework",
			plugins:       []Plugin{framework("sinatra-detect")},
			wantFramework: "sinatra-detect",
		},
		{
			name:          "framework and features keep feature order",
			plugins:       []Plugin{feature("b"), framework("a"), feature("c")},
			wantFramework: "a",
			wantFeatures:  []string{"b", "c"},
		},
		{
			name:    "empty set",
			plugins: nil,
			errType: ErrMissingFrameworkPlugin,
		},
		{
			name:    "features only",
			plugins: []Plugin{feature("b")},
			errType: ErrMissingFrameworkPlugin,
		},
		{
			name:    "two frameworks",
			plugins: []Plugin{framework("a"), framework("b")},
			errType: ErrDuplicateFrameworkPlugin,
		},
		{
			name:    "unknown type",
			plugins: []Plugin{framework("a"), &mockPlugin{name: "x", typ: "invalid_plugin_type"}},
			errType: ErrUnknownPluginType,
		},
		{
			name:    "unknown type wins over missing framework",
			plugins: []Plugin{&mockPlugin{name: "x", typ: "invalid_plugin_type"}},
			errType: ErrUnknownPluginType,
		},
		{
			name:    "unknown type wins over duplicate framework",
			plugins: []Plugin{framework("a"), framework("b"), &mockPlugin{name: "x", typ: ""}},
			errType: ErrUnknownPluginType,
		},
		{
			name:    "nil plugin",
			plugins: []Plugin{framework("a"), nil},
			errType: ErrInvalidPlugin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Validate(tt.plugins)
			if tt.errType != nil {
				assert.Nil(t, set)
				assert.ErrorIs(t, err, tt.errType)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFramework, set.Framework.Name())

			var features []string
			for _, p := range set.Features {
				features = append(features, p.Name())
			}
			assert.Equal(t, tt.wantFeatures, features)
		})
	}
}

func TestValidate_UnknownTypeNamesFirstOffender(t *testing.T) {
	_, err := Validate([]Plugin{
		framework("a"),
		&mockPlugin{name: "first", typ: "bogus"},
		&mockPlugin{name: "second", typ: "other"},
	})

	var unknown *UnknownPluginTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "first", unknown.Plugin)
	assert.Equal(t, PluginType("bogus"), unknown.Type)
	assert.Contains(t, err.Error(), "first")
}

func TestValidate_DuplicateNamesAllFrameworks(t *testing.T) {
	_, err := Validate([]Plugin{framework("A"), feature("x"), framework("B"), framework("C")})

	var dup *DuplicateFrameworkPluginError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, []string{"A", "B", "C"}, dup.Plugins)
	assert.Contains(t, err.Error(), "found 3: A, B, C")
}

func TestValidate_MissingFrameworkReportsCounts(t *testing.T) {
	_, err := Validate([]Plugin{feature("x"), feature("y")})

	var missing *MissingFrameworkPluginError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 2, missing.Features)
	assert.Contains(t, err.Error(), "found 0")
}

func TestPluginSet_Ordered(t *testing.T) {
	set := &PluginSet{
		Framework: framework("fw"),
		Features:  []Plugin{feature("one"), feature("two")},
	}

	assert.Equal(t, []string{"fw", "one", "two"}, set.Names())
	assert.Len(t, set.Ordered(), 3)
}

func TestValidationReason(t *testing.T) {
	assert.Equal(t, "plugin_not_found", ValidationReason(&PluginNotFoundError{Name: "x"}))
	assert.Equal(t, "unknown_plugin_type", ValidationReason(&UnknownPluginTypeError{Plugin: "x"}))
	assert.Equal(t, "missing_framework", ValidationReason(&MissingFrameworkPluginError{}))
	assert.Equal(t, "duplicate_framework", ValidationReason(&DuplicateFrameworkPluginError{}))
	assert.Equal(t, "", ValidationReason(errors.New("boom")))
}

func TestPluginType_Known(t *testing.T) {
	assert.True(t, PluginTypeFramework.Known())
	assert.True(t, PluginTypeFeature.Known())
	assert.False(t, PluginType("invalid_plugin_type").Known())
	assert.False(t, PluginType("").Known())
}
