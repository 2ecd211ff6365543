package droplet

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "app", "views"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "logs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "app.rb"), []byte("get('/') { 'hi' }"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app", "views", "index.erb"), []byte("<h1/>"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "startup"), []byte("#!/bin/bash\n"), 0755))
	require.NoError(t, os.Symlink("app/app.rb", filepath.Join(dir, "main.rb")))
	return dir
}

func entryNames(t *testing.T, data []byte) []string {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	var names []string
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return names
		}
		require.NoError(t, err)
		names = append(names, h.Name)
	}
}

func TestPack(t *testing.T) {
	dir := writeTree(t)

	a, err := Pack(dir)
	require.NoError(t, err)

	assert.Len(t, a.Sha256, 64)
	assert.Equal(t, 3, a.Files)
	assert.Equal(t, int64(len("get('/') { 'hi' }")+len("<h1/>")+len("#!/bin/bash\n")), a.Size)
	assert.NoError(t, Verify(a.Data, a.Sha256))

	assert.Equal(t, []string{
		"app/",
		"app/app.rb",
		"app/views/",
		"app/views/index.erb",
		"logs/",
		"main.rb",
		"startup",
	}, entryNames(t, a.Data))
}

func TestPack_Deterministic(t *testing.T) {
	dir := writeTree(t)

	first, err := Pack(dir)
	require.NoError(t, err)
	second, err := Pack(dir)
	require.NoError(t, err)

	assert.Equal(t, first.Sha256, second.Sha256)
}

func TestPack_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := Pack(file)
	assert.Error(t, err)

	_, err = Pack(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestUnpack_RoundTrip(t *testing.T) {
	a, err := Pack(writeTree(t))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Unpack(a.Reader(), out))

	data, err := os.ReadFile(filepath.Join(out, "app", "views", "index.erb"))
	require.NoError(t, err)
	assert.Equal(t, "<h1/>", string(data))

	info, err := os.Stat(filepath.Join(out, "startup"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())

	link, err := os.Readlink(filepath.Join(out, "main.rb"))
	require.NoError(t, err)
	assert.Equal(t, "app/app.rb", link)
	assert.DirExists(t, filepath.Join(out, "logs"))
}

func craftArchive(t *testing.T, headers ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, h := range headers {
		require.NoError(t, tw.WriteHeader(h))
		if h.Typeflag == tar.TypeReg {
			_, err := tw.Write(make([]byte, h.Size))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestUnpack_RejectsUnsafePaths(t *testing.T) {
	tests := []struct {
		name   string
		header *tar.Header
	}{
		{name: "parent traversal", header: &tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0644, Size: 1}},
		{name: "nested traversal", header: &tar.Header{Name: "app/../../evil", Typeflag: tar.TypeReg, Mode: 0644, Size: 1}},
		{name: "absolute", header: &tar.Header{Name: "/etc/passwd", Typeflag: tar.TypeReg, Mode: 0644, Size: 1}},
		{name: "escaping symlink", header: &tar.Header{Name: "app/link", Typeflag: tar.TypeSymlink, Linkname: "../../etc"}},
		{name: "absolute symlink", header: &tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "/etc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := craftArchive(t, tt.header)
			root := t.TempDir()

			err := Unpack(bytes.NewReader(data), filepath.Join(root, "out"))
			assert.ErrorIs(t, err, ErrUnsafePath)
			assert.NoFileExists(t, filepath.Join(root, "evil"))
		})
	}
}

func TestUnpack_RejectsChainedSymlinks(t *testing.T) {
	link := func(name, target string) *tar.Header {
		return &tar.Header{Name: name, Typeflag: tar.TypeSymlink, Linkname: target}
	}
	file := func(name string) *tar.Header {
		return &tar.Header{Name: name, Typeflag: tar.TypeReg, Mode: 0644, Size: 1}
	}

	tests := []struct {
		name    string
		headers []*tar.Header
	}{
		{
			name:    "link through a link to the root",
			headers: []*tar.Header{link("s", "."), link("t", "s/.."), file("t/evil")},
		},
		{
			name:    "nested link through a link",
			headers: []*tar.Header{link("app/s", ".."), link("app/t", "s/.."), file("app/t/evil")},
		},
		{
			name:    "dangling link used as a parent",
			headers: []*tar.Header{link("s", "."), link("d", "s/../outside"), file("d/evil")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := craftArchive(t, tt.headers...)
			root := t.TempDir()

			err := Unpack(bytes.NewReader(data), filepath.Join(root, "out"))
			assert.ErrorIs(t, err, ErrUnsafePath)
			assert.NoFileExists(t, filepath.Join(root, "evil"))
			assert.NoFileExists(t, filepath.Join(root, "outside", "evil"))
			assert.NoDirExists(t, filepath.Join(root, "outside"))
		})
	}
}

func TestUnpack_FileReplacesDanglingLink(t *testing.T) {
	data := craftArchive(t,
		&tar.Header{Name: "s", Typeflag: tar.TypeSymlink, Linkname: "."},
		&tar.Header{Name: "u", Typeflag: tar.TypeSymlink, Linkname: "s/../evil"},
		&tar.Header{Name: "u", Typeflag: tar.TypeReg, Mode: 0644, Size: 1},
	)
	root := t.TempDir()
	out := filepath.Join(root, "out")

	require.NoError(t, Unpack(bytes.NewReader(data), out))
	assert.NoFileExists(t, filepath.Join(root, "evil"))

	info, err := os.Lstat(filepath.Join(out, "u"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestUnpack_NotGzip(t *testing.T) {
	err := Unpack(bytes.NewReader([]byte("plain text")), t.TempDir())
	assert.Error(t, err)
}

func TestVerify_Mismatch(t *testing.T) {
	err := Verify([]byte("droplet"), "0000")
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
