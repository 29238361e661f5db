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

package filter

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/walteh/bunchimport/pkg/config"
	"gitlab.com/tozd/go/errors"
)

// 📄 FileChecker reports whether a path is an existing regular file
type FileChecker interface {
	IsFile(path string) bool
}

// 🧹 Cleaner consumes an OK file on behalf of one CSV file
type Cleaner interface {
	CleanUpOkFile(ctx context.Context, csvPath, okPath string) (bool, error)
}

// 🏗️ BuildPattern builds the CSV filename pattern of a file resolver:
// one named group per pattern element joined by the element separator,
// followed by the suffix.
func BuildPattern(fr *config.FileResolver) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	sep := regexp.QuoteMeta(fr.ElementSeparator)
	for i, el := range fr.PatternElements {
		pattern, err := fr.ElementPattern(el)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(sep)
		}
		fmt.Fprintf(&b, "(?P<%s>%s)", el, pattern)
	}

	b.WriteString(`\.`)
	b.WriteString(regexp.QuoteMeta(fr.Suffix))
	b.WriteString("$")

	return b.String(), nil
}

// 🔐 OkFileFilter accepts CSV files that follow the subject naming convention
// and, when the subject needs one, are cleared by an OK file.
type OkFileFilter struct {
	*PatternFilter

	subject *config.Subject
	files   FileChecker
	cleaner Cleaner
}

var _ Filter = (*OkFileFilter)(nil)

// 🏭 NewOkFileFilter creates the filter for a validated subject
func NewOkFileFilter(subject *config.Subject, files FileChecker, cleaner Cleaner) (*OkFileFilter, error) {
	pattern, err := BuildPattern(subject.FileResolver)
	if err != nil {
		return nil, errors.Errorf("building pattern for subject %s: %w", subject.Name, err)
	}

	pf, err := NewPatternFilter(pattern)
	if err != nil {
		return nil, errors.Errorf("subject %s: %w", subject.Name, err)
	}

	return &OkFileFilter{
		PatternFilter: pf,
		subject:       subject,
		files:         files,
		cleaner:       cleaner,
	}, nil
}

// Accept reports whether path matches the naming convention and, if needed,
// consumes the OK file that clears it.
func (f *OkFileFilter) Accept(ctx context.Context, path string) (bool, error) {
	logger := zerolog.Ctx(ctx)

	ok, err := f.PatternFilter.Accept(ctx, path)
	if err != nil || !ok {
		return ok, err
	}

	if !f.subject.OkFileNeeded {
		return true, nil
	}

	candidates, err := f.OkFileCandidates(path)
	if err != nil {
		return false, err
	}

	existing := lo.Filter(candidates, func(c string, _ int) bool {
		return f.files.IsFile(c)
	})
	if len(existing) == 0 {
		logger.Debug().Str("file", path).Strs("candidates", candidates).Msg("no ok file found")
		return false, nil
	}

	for _, okPath := range existing {
		cleared, err := f.cleaner.CleanUpOkFile(ctx, path, okPath)
		if err != nil {
			return false, errors.Errorf("clearing %s with %s: %w", path, okPath, err)
		}
		if cleared {
			logger.Debug().Str("file", path).Str("ok_file", okPath).Msg("file cleared by ok file")
			return true, nil
		}
	}

	logger.Debug().Str("file", path).Strs("ok_files", existing).Msg("file not listed in any ok file")

	return false, nil
}

// OkFileCandidates returns the possible OK file paths of the most recent match,
// built from increasing prefixes of its pattern elements, shortest first.
func (f *OkFileFilter) OkFileCandidates(path string) ([]string, error) {
	fr := f.subject.FileResolver
	dir := filepath.Dir(path)

	values := make([]string, 0, len(fr.PatternElements))
	candidates := make([]string, 0, len(fr.PatternElements))
	for _, el := range fr.PatternElements {
		v, err := f.Match(el)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
		name := strings.Join(values, fr.ElementSeparator) + "." + fr.OkFileSuffix
		candidates = append(candidates, filepath.Join(dir, name))
	}

	return candidates, nil
}

// 📦 DefaultOkFileFilter decides which OK file a bunch of CSV files gets when
// OK files are created for existing CSVs. The OK file is named after every
// pattern element except the counter.
type DefaultOkFileFilter struct {
	csv *PatternFilter
	fr  *config.FileResolver
}

// 🏭 NewDefaultOkFileFilter creates the filter for a validated file resolver
func NewDefaultOkFileFilter(fr *config.FileResolver) (*DefaultOkFileFilter, error) {
	pattern, err := BuildPattern(fr)
	if err != nil {
		return nil, err
	}
	pf, err := NewPatternFilter(pattern)
	if err != nil {
		return nil, err
	}
	return &DefaultOkFileFilter{csv: pf, fr: fr}, nil
}

// OkFileName returns the OK file path derived from a CSV path, e.g.
// imp_20240101.ok for imp_20240101_01.csv
func (f *DefaultOkFileFilter) OkFileName(ctx context.Context, csvPath string) (string, bool) {
	f.csv.Reset()
	defer f.csv.Reset()

	ok, err := f.csv.Accept(ctx, csvPath)
	if err != nil || !ok {
		return "", false
	}

	var parts []string
	for _, el := range f.fr.PatternElements {
		if el == config.ElementCounter {
			continue
		}
		v, err := f.csv.Match(el)
		if err != nil {
			return "", false
		}
		parts = append(parts, v)
	}
	if len(parts) == 0 {
		return "", false
	}

	name := strings.Join(parts, f.fr.ElementSeparator) + "." + f.fr.OkFileSuffix
	return filepath.Join(filepath.Dir(csvPath), name), true
}

// Accept keeps an OK file to CSV files mapping entry when the OK file is the
// one derived from its first CSV file.
func (f *DefaultOkFileFilter) Accept(ctx context.Context, okPath string, csvPaths []string) bool {
	if len(csvPaths) == 0 {
		return false
	}
	want, ok := f.OkFileName(ctx, csvPaths[0])
	if !ok {
		return false
	}
	return filepath.Base(want) == filepath.Base(okPath)
}
