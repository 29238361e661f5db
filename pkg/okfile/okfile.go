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

// Package okfile implements the OK file protocol.
//
// An OK file sits next to the CSV files of a bunch and lists the basenames of
// the CSV files it clears for import, one per line. Every import consumes its
// line; the file is deleted once it is empty. An OK file that is empty from
// the start clears every CSV file of its bunch, and is deleted by the first
// one that uses it.
package okfile

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/lines"
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrMissingOkFile is returned when the OK file to consume does not exist
	ErrMissingOkFile = errors.Base("missing ok file")

	// ErrOkFileNotEmpty is returned when deleting an OK file that still lists CSV files
	ErrOkFileNotEmpty = errors.Base("ok file not empty")
)

// 📦 GroupLoader returns OK file paths mapped to the CSV basenames they should list
type GroupLoader interface {
	LoadGroups(ctx context.Context, pattern string) (map[string][]string, error)
}

// ✅ Handler consumes and creates the OK files of one subject
type Handler struct {
	files  *fsys.Adapter
	fr     *config.FileResolver
	groups GroupLoader
}

// 🏭 New creates a handler for the naming convention in fr.
// groups may be nil when OK files are never created.
func New(files *fsys.Adapter, fr *config.FileResolver, groups GroupLoader) *Handler {
	return &Handler{files: files, fr: fr, groups: groups}
}

// IsOkFile reports whether path is an existing file with the OK file suffix
func (h *Handler) IsOkFile(_ context.Context, path string) bool {
	return strings.HasSuffix(path, "."+h.fr.OkFileSuffix) && h.files.IsFile(path)
}

// 🧹 CleanUpOkFile consumes the entry of csvPath in the OK file at okPath.
//
// An empty OK file clears csvPath when its stem equals the CSV stem or
// prefixes it up to an element separator; the OK file is then deleted. A
// non-empty OK file clears csvPath when one of its lines is the CSV basename;
// that line is removed and the OK file is deleted once empty. Otherwise the OK
// file is left untouched and false is returned.
func (h *Handler) CleanUpOkFile(ctx context.Context, csvPath, okPath string) (bool, error) {
	logger := zerolog.Ctx(ctx)

	if !h.files.IsFile(okPath) {
		return false, errors.Errorf("%w: %s", ErrMissingOkFile, okPath)
	}

	size, err := h.files.Size(okPath)
	if err != nil {
		return false, err
	}

	if size == 0 {
		if !h.clearsByName(csvPath, okPath) {
			return false, nil
		}
		if err := h.DeleteOkFile(ctx, okPath); err != nil {
			return false, err
		}
		logger.Info().Str("file", filepath.Base(csvPath)).Str("ok_file", okPath).Msg("deleted empty ok file")
		return true, nil
	}

	entries, err := h.files.ReadLines(okPath)
	if err != nil {
		return false, err
	}

	base := filepath.Base(csvPath)
	if !lo.ContainsBy(entries, func(e string) bool { return strings.TrimSpace(e) == base }) {
		return false, nil
	}

	if err := h.removeEntry(base, okPath); err != nil {
		if errors.Is(err, lines.ErrLineNotFound) {
			return false, errors.Errorf("%w: %s vanished from %s", lines.ErrLineNotFound, base, okPath)
		}
		return false, err
	}

	left, err := h.entries(okPath)
	if err != nil {
		return false, err
	}
	if len(left) == 0 {
		if err := h.DeleteOkFile(ctx, okPath); err != nil {
			return false, err
		}
		logger.Info().Str("ok_file", okPath).Msg("deleted consumed ok file")
	}

	logger.Debug().Str("file", base).Str("ok_file", okPath).Msg("consumed ok file entry")

	return true, nil
}

func (h *Handler) removeEntry(base, okPath string) error {
	f, err := h.files.OpenFile(okPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}

	if err := lines.RemoveLine(base, f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return errors.Errorf("closing %s: %w", okPath, err)
	}
	return nil
}

// clearsByName reports whether an empty OK file covers csvPath by name
func (h *Handler) clearsByName(csvPath, okPath string) bool {
	csvStem := strings.TrimSuffix(filepath.Base(csvPath), "."+h.fr.Suffix)
	okStem := strings.TrimSuffix(filepath.Base(okPath), "."+h.fr.OkFileSuffix)

	if filepath.Dir(csvPath) != filepath.Dir(okPath) {
		return false
	}

	return csvStem == okStem || strings.HasPrefix(csvStem, okStem+h.fr.ElementSeparator)
}

// entries returns the CSV basenames an OK file still lists, blank lines skipped
func (h *Handler) entries(okPath string) ([]string, error) {
	content, err := h.files.ReadLines(okPath)
	if err != nil {
		return nil, err
	}
	return lo.Compact(lo.Map(content, func(l string, _ int) string {
		return strings.TrimSpace(l)
	})), nil
}

// 🗑️ DeleteOkFile deletes an OK file that no longer lists any CSV file.
// Blank lines do not count as entries.
func (h *Handler) DeleteOkFile(ctx context.Context, okPath string) error {
	if !h.files.IsFile(okPath) {
		return errors.Errorf("%w: %s", ErrMissingOkFile, okPath)
	}

	left, err := h.entries(okPath)
	if err != nil {
		return err
	}
	if len(left) > 0 {
		return errors.Errorf("%w: %s still lists %d csv file(s)", ErrOkFileNotEmpty, okPath, len(left))
	}

	if err := h.files.Delete(okPath); err != nil {
		return err
	}

	zerolog.Ctx(ctx).Debug().Str("ok_file", okPath).Msg("deleted ok file")

	return nil
}

// 📝 CreateOkFiles writes one OK file per bunch of CSV files matching pattern,
// listing every CSV file of the bunch. Existing OK files are left alone.
// It returns the number of OK files written.
func (h *Handler) CreateOkFiles(ctx context.Context, pattern string) (int, error) {
	logger := zerolog.Ctx(ctx)

	if h.groups == nil {
		return 0, errors.Errorf("no group loader configured")
	}

	groups, err := h.groups.LoadGroups(ctx, pattern)
	if err != nil {
		return 0, errors.Errorf("loading bunches for %s: %w", pattern, err)
	}

	okPaths := lo.Keys(groups)
	sort.Strings(okPaths)

	created := 0
	for _, okPath := range okPaths {
		if h.files.IsFile(okPath) {
			logger.Info().Str("ok_file", okPath).Msg("ok file already exists, skipping")
			continue
		}

		content := strings.Join(groups[okPath], lines.Separator) + lines.Separator
		if err := h.files.Write(okPath, []byte(content)); err != nil {
			return created, errors.Errorf("creating ok file: %w", err)
		}

		logger.Info().Str("ok_file", okPath).Int("files", len(groups[okPath])).Msg("created ok file")
		created++
	}

	return created, nil
}
