package droplet

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ContentType is the media type of a packed droplet
const ContentType = "application/gzip"

// Archive is a packed droplet held in memory
type Archive struct {
	Data   []byte
	Sha256 string // of Data
	Size   int64  // uncompressed bytes of regular files
	Files  int
}

// Reader returns a reader over the compressed bytes
func (a *Archive) Reader() io.Reader {
	return bytes.NewReader(a.Data)
}

// Pack writes dir as a gzipped tarball. Entries are written in lexical order
// with normalized ownership so the same tree packs to the same bytes.
func Pack(dir string) (*Archive, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat droplet dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("droplet dir %s is not a directory", dir)
	}

	var buf bytes.Buffer
	hasher := sha256.New()
	gzWriter := gzip.NewWriter(io.MultiWriter(&buf, hasher))
	tarWriter := tar.NewWriter(gzWriter)

	archive := &Archive{}
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		return addEntry(tarWriter, p, filepath.ToSlash(rel), d, archive)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack droplet: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to pack droplet: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to pack droplet: %w", err)
	}

	archive.Data = buf.Bytes()
	archive.Sha256 = hex.EncodeToString(hasher.Sum(nil))
	return archive, nil
}

func addEntry(tw *tar.Writer, p, name string, d fs.DirEntry, archive *Archive) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(p); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""
	header.ModTime = info.ModTime().Truncate(time.Second)
	header.AccessTime, header.ChangeTime = time.Time{}, time.Time{}
	header.Format = tar.FormatPAX

	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(tw, f)
	if err != nil {
		return err
	}
	archive.Size += n
	archive.Files++
	return nil
}

// Unpack extracts a gzipped tarball into dir. Entries that would resolve
// outside dir, including through symlinks, fail with ErrUnsafePath.
func Unpack(r io.Reader, dir string) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open droplet: %w", err)
	}
	defer gzReader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read droplet: %w", err)
		}

		name := strings.TrimSuffix(header.Name, "/")
		if !filepath.IsLocal(filepath.FromSlash(name)) {
			return fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}
		rel := filepath.Clean(filepath.FromSlash(name))
		target := filepath.Join(dir, rel)

		// Symlinks unpacked by earlier entries may redirect the parents
		if err := checkParents(root, dir, rel); err != nil {
			return fmt.Errorf("%w: %s", err, header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, header.FileInfo().Mode().Perm()|0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := removeSymlink(target); err != nil {
				return err
			}
			if err := writeFile(target, tarReader, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			resolved := path.Join(path.Dir(name), header.Linkname)
			if path.IsAbs(header.Linkname) || !filepath.IsLocal(filepath.FromSlash(resolved)) {
				return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, header.Name, header.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return err
			}
			// Lexically local links can still escape through other links
			inside, err := within(root, target)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err == nil && !inside {
				_ = os.Remove(target)
				return fmt.Errorf("%w: %s -> %s", ErrUnsafePath, header.Name, header.Linkname)
			}
		default:
			// Devices, fifos and hard links are never produced by Pack
			continue
		}
	}
}

// within reports whether p, with every symlink resolved, is root or below it
func within(root, p string) (bool, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return false, nil
	}
	return rel == "." || filepath.IsLocal(rel), nil
}

// checkParents fails with ErrUnsafePath when an existing ancestor of rel
// under dir resolves outside root or is a dangling symlink
func checkParents(root, dir, rel string) error {
	parent := filepath.Dir(rel)
	if parent == "." {
		return nil
	}

	p := dir
	for _, part := range strings.Split(parent, string(filepath.Separator)) {
		p = filepath.Join(p, part)
		if _, err := os.Lstat(p); errors.Is(err, fs.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}

		inside, err := within(root, p)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrUnsafePath
		}
		if err != nil {
			return err
		}
		if !inside {
			return ErrUnsafePath
		}
	}
	return nil
}

// removeSymlink unlinks target when it is a symlink so a regular file
// entry replaces the link instead of writing through it
func removeSymlink(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return nil
	}
	return os.Remove(target)
}

func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Verify checks data against an expected sha256 hex digest
func Verify(data []byte, want string) error {
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, want)
	}
	return nil
}
