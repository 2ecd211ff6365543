package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(src string) *Key {
	return &Key{Framework: "sinatra", Runtime: "ruby18", SourceHash: src, PluginsHash: "p", AppHash: "a"}
}

func TestCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := New(&Config{Size: 10, TTL: time.Minute})

	_, err := c.Get(ctx, testKey("abc"))
	assert.ErrorIs(t, err, ErrCacheMiss)

	entry := &Entry{DropletKey: "droplets/1/t/droplet.tgz", Sha256: "deadbeef", Size: 42, CreatedAt: time.Now()}
	require.NoError(t, c.Set(ctx, testKey("abc"), entry))

	got, err := c.Get(ctx, testKey("abc"))
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, stats.HitRate)
	assert.Equal(t, int64(1), stats.ItemCount)

	require.NoError(t, c.Delete(ctx, testKey("abc")))
	_, err = c.Get(ctx, testKey("abc"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	c := New(nil)

	_, err := c.Get(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalidCacheKey)
	assert.ErrorIs(t, c.Set(ctx, &Key{SourceHash: "x"}, &Entry{}), ErrInvalidCacheKey)
	assert.ErrorIs(t, c.Delete(ctx, &Key{Framework: "node"}), ErrInvalidCacheKey)
	assert.Error(t, c.Set(ctx, testKey("abc"), nil))
}

func TestCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := New(&Config{Size: 2, TTL: time.Minute})

	require.NoError(t, c.Set(ctx, testKey("1"), &Entry{DropletKey: "1"}))
	require.NoError(t, c.Set(ctx, testKey("2"), &Entry{DropletKey: "2"}))
	require.NoError(t, c.Set(ctx, testKey("3"), &Entry{DropletKey: "3"}))

	_, err := c.Get(ctx, testKey("1"))
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, int64(2), c.Stats().ItemCount)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := New(&Config{Size: 10, TTL: 20 * time.Millisecond})

	require.NoError(t, c.Set(ctx, testKey("1"), &Entry{DropletKey: "1"}))
	time.Sleep(60 * time.Millisecond)

	_, err := c.Get(ctx, testKey("1"))
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCache_Purge(t *testing.T) {
	ctx := context.Background()
	c := New(DefaultConfig())
	require.NoError(t, c.Set(ctx, testKey("1"), &Entry{}))

	c.Purge()
	assert.Equal(t, int64(0), c.Stats().ItemCount)
}

func writeSource(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func testDescriptor() app.Descriptor {
	return app.Descriptor{
		ID:             1,
		Name:           "testapp",
		Framework:      "sinatra",
		Runtime:        "ruby18",
		Plugins:        []app.PluginReference{{Kind: "gem", Name: "b"}, {Kind: "gem", Name: "a"}},
		ResourceLimits: app.ResourceLimits{Memory: 128, Disk: 2048, FDs: 1024},
	}
}

func TestGenerateKey(t *testing.T) {
	files := map[string]string{"app.rb": "get('/')", "views/index.erb": "<h1/>"}

	srcA := t.TempDir()
	writeSource(t, srcA, files)
	srcB := t.TempDir()
	writeSource(t, srcB, files)

	keyA, err := GenerateKey(srcA, testDescriptor())
	require.NoError(t, err)
	keyB, err := GenerateKey(srcB, testDescriptor())
	require.NoError(t, err)

	assert.Equal(t, keyA.String(), keyB.String(), "identical trees in different places share a key")
	assert.Contains(t, keyA.String(), "v1:sinatra:ruby18:")
	assert.NoError(t, ValidateKey(keyA))
}

func TestGenerateKey_Sensitivity(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, map[string]string{"app.rb": "get('/')"})
	base, err := GenerateKey(src, testDescriptor())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(t *testing.T, src string, desc *app.Descriptor)
		same   bool
	}{
		{
			name: "reordered plugin references",
			mutate: func(t *testing.T, src string, d *app.Descriptor) {
				d.Plugins = []app.PluginReference{{Kind: "gem", Name: "a"}, {Kind: "gem", Name: "b"}}
			},
			same: true,
		},
		{
			name: "file content",
			mutate: func(t *testing.T, src string, d *app.Descriptor) {
				writeSource(t, src, map[string]string{"app.rb": "get('/') { 'changed' }"})
			},
		},
		{
			name: "new file",
			mutate: func(t *testing.T, src string, d *app.Descriptor) {
				writeSource(t, src, map[string]string{"Gemfile": "source 'https://rubygems.org'"})
			},
		},
		{
			name:   "runtime",
			mutate: func(t *testing.T, src string, d *app.Descriptor) { d.Runtime = "ruby19" },
		},
		{
			name:   "plugin set",
			mutate: func(t *testing.T, src string, d *app.Descriptor) { d.Plugins = d.Plugins[:1] },
		},
		{
			name:   "memory limit",
			mutate: func(t *testing.T, src string, d *app.Descriptor) { d.ResourceLimits.Memory = 256 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSource(t, dir, map[string]string{"app.rb": "get('/')"})
			desc := testDescriptor()
			tt.mutate(t, dir, &desc)

			key, err := GenerateKey(dir, desc)
			require.NoError(t, err)
			if tt.same {
				assert.Equal(t, base.String(), key.String())
			} else {
				assert.NotEqual(t, base.String(), key.String())
			}
		})
	}
}

func TestGenerateKey_MissingSource(t *testing.T) {
	_, err := GenerateKey(filepath.Join(t.TempDir(), "missing"), testDescriptor())
	assert.Error(t, err)
}
