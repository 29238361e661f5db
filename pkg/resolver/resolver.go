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

// Package resolver finds the CSV files of a subject that are ready for import.
//
// Resolving consumes OK files, so it must only run while the PID file lock
// is held.
package resolver

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/filter"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/loader"
	"github.com/walteh/bunchimport/pkg/okfile"
	"gitlab.com/tozd/go/errors"
)

// 📋 Resolution is the outcome of one resolver pass
type Resolution struct {
	Subject string
	// Files are the CSV files cleared for import, sorted
	Files []string
	// Listed is the number of files in the source directory
	Listed int
	// Matched is the number of files following the naming convention,
	// cleared or not
	Matched int
}

// Waiting reports whether CSV files are present but none was cleared
func (r *Resolution) Waiting() bool {
	return len(r.Files) == 0 && r.Matched > 0
}

// 🔍 Resolver resolves the importable files of one subject
type Resolver struct {
	subject   *config.Subject
	sourceDir string
	filter    *filter.OkFileFilter
	loader    *loader.PatternFilteredLoader
	okFiles   *okfile.Handler
}

// 🏭 New creates a resolver for a validated subject reading from sourceDir
func New(files *fsys.Adapter, sourceDir string, subject *config.Subject) (*Resolver, error) {
	bunches, err := okfile.NewBunchLoader(files, subject.FileResolver)
	if err != nil {
		return nil, errors.Errorf("subject %s: %w", subject.Name, err)
	}
	okFiles := okfile.New(files, subject.FileResolver, bunches)

	f, err := filter.NewOkFileFilter(subject, files, okFiles)
	if err != nil {
		return nil, err
	}

	return &Resolver{
		subject:   subject,
		sourceDir: sourceDir,
		filter:    f,
		loader:    loader.NewPatternFilteredLoader(loader.NewFilesystemLoader(files, false), f),
		okFiles:   okFiles,
	}, nil
}

// Subject returns the subject this resolver serves
func (r *Resolver) Subject() *config.Subject {
	return r.subject
}

// OkFiles returns the OK file handler of the subject
func (r *Resolver) OkFiles() *okfile.Handler {
	return r.okFiles
}

// Resolve lists the source directory and returns the files cleared for import
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	logger := zerolog.Ctx(ctx).With().Str("subject", r.subject.Name).Logger()

	files, err := r.loader.Load(logger.WithContext(ctx), r.sourceDir)
	if err != nil {
		return nil, errors.Errorf("resolving files of subject %s: %w", r.subject.Name, err)
	}

	res := &Resolution{
		Subject: r.subject.Name,
		Files:   files,
		Listed:  r.loader.RawCount(),
		Matched: r.filter.CountMatches(),
	}

	logger.Debug().
		Int("listed", res.Listed).
		Int("matched", res.Matched).
		Int("cleared", len(res.Files)).
		Msg("resolved files")

	return res, nil
}
