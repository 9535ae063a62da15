// Package fileio wraps the filesystem operations used by a build.
//
// Every operation returns an error instead of panicking. Writes are atomic:
// data goes to a temp file in the destination directory which is then renamed
// into place, so a crash never leaves a half-written report or artifact.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Reader reads whole files.
type Reader interface {
	ReadFile(path string) ([]byte, error)
}

// Writer writes whole files.
type Writer interface {
	Write(path string, data []byte) error
}

// ReadWriter is the I/O surface the build store needs.
type ReadWriter interface {
	Reader
	Writer
}

// IO implements file operations over an afero filesystem.
type IO struct {
	fs afero.Fs
}

// New creates an IO over fs. A nil fs means the OS filesystem.
func New(fs afero.Fs) *IO {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &IO{fs: fs}
}

// Fs returns the underlying filesystem.
func (f *IO) Fs() afero.Fs {
	return f.fs
}

// ReadFile reads the whole file at path.
func (f *IO) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// Open opens path for streaming reads.
func (f *IO) Open(path string) (afero.File, error) {
	return f.fs.Open(path)
}

// Write atomically writes data to path, creating parent directories.
func (f *IO) Write(path string, data []byte) error {
	return f.writeFrom(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Copy atomically copies src to dst, creating parent directories.
func (f *IO) Copy(src, dst string) error {
	in, err := f.fs.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	return f.writeFrom(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func (f *IO) writeFrom(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := f.fs.Rename(tmpPath, path); err != nil {
		_ = f.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Remove deletes the file at path. A missing file is not an error.
func (f *IO) Remove(path string) error {
	if err := f.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes path and everything below it.
func (f *IO) RemoveAll(path string) error {
	if err := f.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists.
func (f *IO) Exists(path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

// PruneEmptyDirs removes dir and its ancestors while they are empty,
// stopping at (and never removing) stop.
func (f *IO) PruneEmptyDirs(dir, stop string) error {
	dir = filepath.Clean(dir)
	stop = filepath.Clean(stop)
	for dir != stop && len(dir) > len(stop) {
		empty, err := afero.IsEmpty(f.fs, dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				dir = filepath.Dir(dir)
				continue
			}
			return err
		}
		if !empty {
			return nil
		}
		if err := f.fs.Remove(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
