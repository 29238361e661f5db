// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fsys is the filesystem adapter used by the import core.
//
// Everything that touches CSV and OK files goes through an [Adapter] so the
// same code runs against local disk (afero.NewOsFs) or any other afero
// backend, e.g. an in-memory filesystem in tests.
package fsys

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"gitlab.com/tozd/go/errors"
)

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// 💾 Adapter wraps an afero.Fs with the small capability set the importer needs
type Adapter struct {
	fs afero.Fs
}

// 🏭 New creates an adapter over the given filesystem
func New(fs afero.Fs) *Adapter {
	return &Adapter{fs: fs}
}

// 🏭 NewOs creates an adapter over the local OS filesystem
func NewOs() *Adapter {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying afero filesystem
func (a *Adapter) Fs() afero.Fs {
	return a.fs
}

// IsFile reports whether path exists and is a regular file
func (a *Adapter) IsFile(path string) bool {
	info, err := a.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsDir reports whether path exists and is a directory
func (a *Adapter) IsDir(path string) bool {
	ok, err := afero.IsDir(a.fs, path)
	return err == nil && ok
}

// Size returns the size of the file in bytes
func (a *Adapter) Size(path string) (int64, error) {
	info, err := a.fs.Stat(path)
	if err != nil {
		return 0, errors.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// ReadLines returns the lines of a text file without line terminators
func (a *Adapter) ReadLines(path string) ([]string, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Errorf("reading %s: %w", path, err)
	}
	return lines, nil
}

// Write replaces the content of path, creating parent directories as needed
func (a *Adapter) Write(path string, data []byte) error {
	if err := a.fs.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return errors.Errorf("creating parent directories of %s: %w", path, err)
	}
	if err := afero.WriteFile(a.fs, path, data, filePerms); err != nil {
		return errors.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Delete removes a single file
func (a *Adapter) Delete(path string) error {
	if err := a.fs.Remove(path); err != nil {
		return errors.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// Rename moves oldpath to newpath
func (a *Adapter) Rename(oldpath, newpath string) error {
	if err := a.fs.Rename(oldpath, newpath); err != nil {
		return errors.Errorf("renaming %s to %s: %w", oldpath, newpath, err)
	}
	return nil
}

// MkdirAll creates a directory and all of its parents
func (a *Adapter) MkdirAll(path string) error {
	if err := a.fs.MkdirAll(path, dirPerms); err != nil {
		return errors.Errorf("creating directory %s: %w", path, err)
	}
	return nil
}

// List returns the sorted paths of the regular files directly inside dir
func (a *Adapter) List(dir string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return nil, errors.Errorf("listing %s: %w", dir, err)
	}

	var paths []string
	for _, info := range infos {
		if info.Mode().IsRegular() {
			paths = append(paths, filepath.Join(dir, info.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// OpenFile opens path with the given flags, see os.OpenFile
func (a *Adapter) OpenFile(path string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := a.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", path, err)
	}
	return f, nil
}
