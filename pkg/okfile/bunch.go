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

package okfile

import (
	"context"
	"path/filepath"

	"github.com/samber/lo"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/filter"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/loader"
	"gitlab.com/tozd/go/errors"
)

// 📦 BunchLoader groups the CSV files of a subject into bunches keyed by the
// OK file each bunch would get
type BunchLoader struct {
	files    *loader.PatternFilteredLoader
	okFilter *filter.DefaultOkFileFilter
}

var _ GroupLoader = (*BunchLoader)(nil)

// 🏭 NewBunchLoader creates a bunch loader over files for a validated file resolver
func NewBunchLoader(files *fsys.Adapter, fr *config.FileResolver) (*BunchLoader, error) {
	pattern, err := filter.BuildPattern(fr)
	if err != nil {
		return nil, err
	}
	csv, err := filter.NewPatternFilter(pattern)
	if err != nil {
		return nil, err
	}
	okFilter, err := filter.NewDefaultOkFileFilter(fr)
	if err != nil {
		return nil, err
	}

	return &BunchLoader{
		files:    loader.NewPatternFilteredLoader(loader.NewFilesystemLoader(files, false), csv),
		okFilter: okFilter,
	}, nil
}

// LoadGroups maps every derivable OK file path to the sorted CSV basenames of its bunch
func (b *BunchLoader) LoadGroups(ctx context.Context, pattern string) (map[string][]string, error) {
	files, err := b.files.Load(ctx, pattern)
	if err != nil {
		return nil, errors.Errorf("loading csv files: %w", err)
	}

	groups := map[string][]string{}
	for _, f := range files {
		okPath, ok := b.okFilter.OkFileName(ctx, f)
		if !ok {
			continue
		}
		groups[okPath] = append(groups[okPath], filepath.Base(f))
	}

	return lo.PickBy(groups, func(okPath string, csvFiles []string) bool {
		return b.okFilter.Accept(ctx, okPath, csvFiles)
	}), nil
}
