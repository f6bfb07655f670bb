// Package filesystem is the FileSystem collaborator of the orchestrator,
// backed by an afero.Fs so tests can run against in-memory layouts.
package filesystem

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/psantana5/covrun/pkg/retry"
	"github.com/spf13/afero"
)

// FS wraps an afero.Fs.
type FS struct {
	fs afero.Fs
}

// New wraps fsys.
func New(fsys afero.Fs) *FS {
	return &FS{fs: fsys}
}

// OS returns an FS over the real operating system file system.
func OS() *FS {
	return New(afero.NewOsFs())
}

// Afero exposes the underlying file system.
func (f *FS) Afero() afero.Fs {
	return f.fs
}

// Exists reports whether path exists. Errors other than not-exist count
// as existing so that a locked file is not mistaken for a missing one.
func (f *FS) Exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := f.fs.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

// OpenRead opens path for reading.
func (f *FS) OpenRead(path string) (io.ReadCloser, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return nil, f.annotate(path, err)
	}
	return file, nil
}

// ReadFile reads the whole file at path.
func (f *FS) ReadFile(path string) ([]byte, error) {
	rc, err := f.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// Write replaces the contents of path, keeping the existing mode when the
// file is already there.
func (f *FS) Write(path string, data []byte) error {
	// Some afero backends create missing parents on write; refuse instead.
	if _, err := f.fs.Stat(filepath.Dir(path)); err != nil && errors.Is(err, fs.ErrNotExist) {
		return f.annotate(path, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist})
	}
	mode := os.FileMode(0644)
	if info, err := f.fs.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := afero.WriteFile(f.fs, path, data, mode); err != nil {
		return f.annotate(path, err)
	}
	return nil
}

// Copy copies src to dst, creating dst's directory.
func (f *FS) Copy(src, dst string) error {
	data, err := f.ReadFile(src)
	if err != nil {
		return err
	}
	if err := f.fs.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}
	return f.Write(dst, data)
}

// annotate marks not-exist failures whose containing directory is also
// gone with retry.ErrDirectoryNotFound.
func (f *FS) annotate(path string, err error) error {
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	dir := filepath.Dir(path)
	if _, serr := f.fs.Stat(dir); serr != nil && errors.Is(serr, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", retry.ErrDirectoryNotFound, err)
	}
	return err
}

// MkdirAll creates path and any missing parents.
func (f *FS) MkdirAll(path string) error {
	return f.fs.MkdirAll(path, 0755)
}

// Remove deletes path.
func (f *FS) Remove(path string) error {
	if err := f.fs.Remove(path); err != nil {
		return f.annotate(path, err)
	}
	return nil
}
