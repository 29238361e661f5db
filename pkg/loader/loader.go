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

// Package loader lists candidate files and narrows them down through filters.
//
// Every loader returns lexically sorted paths, so the same directory loaded
// twice yields the same order and multi-part bunches come in counter order.
package loader

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/walteh/bunchimport/pkg/filter"
	"github.com/walteh/bunchimport/pkg/fsys"
	"gitlab.com/tozd/go/errors"
)

// 📂 Loader returns the files matching a glob pattern or inside a directory
type Loader interface {
	Load(ctx context.Context, pattern string) ([]string, error)
}

// 💾 FilesystemLoader loads files through the filesystem adapter
type FilesystemLoader struct {
	files     *fsys.Adapter
	recursive bool
}

var _ Loader = (*FilesystemLoader)(nil)

// 🏭 NewFilesystemLoader creates a loader. When recursive is set a directory
// pattern lists its whole tree instead of only its direct children.
func NewFilesystemLoader(files *fsys.Adapter, recursive bool) *FilesystemLoader {
	return &FilesystemLoader{files: files, recursive: recursive}
}

// Load returns the regular files matching pattern, sorted.
// Patterns use doublestar syntax, so ** crosses directories.
// A pattern that names a directory lists the files inside it.
func (l *FilesystemLoader) Load(ctx context.Context, pattern string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	if l.files.IsDir(pattern) {
		return l.listDir(pattern)
	}

	base, pat := doublestar.SplitPattern(filepath.ToSlash(pattern))
	if !doublestar.ValidatePattern(pat) {
		return nil, errors.Errorf("invalid glob pattern %q", pattern)
	}
	base = filepath.FromSlash(base)

	if !l.files.IsDir(base) {
		logger.Debug().Str("pattern", pattern).Str("base", base).Msg("glob base does not exist")
		return nil, nil
	}

	var files []string
	err := afero.Walk(l.files.Fs(), base, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		matched, err := doublestar.Match(pat, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if matched {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("globbing %s: %w", pattern, err)
	}

	sort.Strings(files)

	logger.Debug().Str("pattern", pattern).Int("files", len(files)).Msg("loaded files")

	return files, nil
}

func (l *FilesystemLoader) listDir(dir string) ([]string, error) {
	if !l.recursive {
		return l.files.List(dir)
	}

	var files []string
	err := afero.Walk(l.files.Fs(), dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", dir, err)
	}

	sort.Strings(files)
	return files, nil
}

// 🔍 FilteredLoader applies its filters in order to the files of another loader.
// Each filter sees the full output of the previous one.
type FilteredLoader struct {
	inner    Loader
	filters  []filter.Filter
	rawCount int
}

var _ Loader = (*FilteredLoader)(nil)

// 🏭 NewFilteredLoader wraps inner with the given filters
func NewFilteredLoader(inner Loader, filters ...filter.Filter) *FilteredLoader {
	return &FilteredLoader{inner: inner, filters: filters}
}

// Filters returns the filter chain
func (l *FilteredLoader) Filters() []filter.Filter {
	return l.filters
}

// RawCount returns the number of files the last Load saw before filtering
func (l *FilteredLoader) RawCount() int {
	return l.rawCount
}

// Load loads the files of the inner loader and filters them
func (l *FilteredLoader) Load(ctx context.Context, pattern string) ([]string, error) {
	files, err := l.inner.Load(ctx, pattern)
	if err != nil {
		return nil, err
	}
	l.rawCount = len(files)

	for _, f := range l.filters {
		kept := make([]string, 0, len(files))
		for _, file := range files {
			ok, err := f.Accept(ctx, file)
			if err != nil {
				return nil, errors.Errorf("filtering %s: %w", file, err)
			}
			if ok {
				kept = append(kept, file)
			}
		}
		files = kept
	}

	return files, nil
}

// 🎯 PatternFilteredLoader is a FilteredLoader that resets stateful filters
// before every pass and never returns a path twice.
type PatternFilteredLoader struct {
	*FilteredLoader
}

var _ Loader = (*PatternFilteredLoader)(nil)

// 🏭 NewPatternFilteredLoader wraps inner with the given filters
func NewPatternFilteredLoader(inner Loader, filters ...filter.Filter) *PatternFilteredLoader {
	return &PatternFilteredLoader{FilteredLoader: NewFilteredLoader(inner, filters...)}
}

// Load resets the filters and returns the filtered, deduplicated files
func (l *PatternFilteredLoader) Load(ctx context.Context, pattern string) ([]string, error) {
	for _, f := range l.filters {
		if r, ok := f.(filter.Resetter); ok {
			r.Reset()
		}
	}

	files, err := l.FilteredLoader.Load(ctx, pattern)
	if err != nil {
		return nil, err
	}

	return lo.Uniq(files), nil
}
