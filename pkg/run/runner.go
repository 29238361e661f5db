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

package run

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/csvimport"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/log"
	"github.com/walteh/bunchimport/pkg/pidfile"
	"github.com/walteh/bunchimport/pkg/resolver"
	"github.com/walteh/bunchimport/pkg/store"
	"gitlab.com/tozd/go/errors"
)

// Run outcomes stored by the Recorder
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// 📥 Processor imports the rows of one claimed CSV file
type Processor interface {
	Import(ctx context.Context, serial string, subject *config.Subject, name, path string) (*csvimport.Result, error)
}

// 📝 Recorder stores the outcome of a finished run
type Recorder interface {
	RecordRun(ctx context.Context, rec store.RunRecord) error
}

// 🔧 Options contains everything a Runner needs
type Options struct {
	// Config is the validated configuration
	Config *config.Config
	// Files is the filesystem the source and archive directories live on
	Files *fsys.Adapter
	// Processor imports claimed files
	Processor Processor
	// Recorder is optional
	Recorder Recorder
}

// 🏃 Runner performs import runs over all configured subjects
type Runner struct {
	cfg       *config.Config
	files     *fsys.Adapter
	processor Processor
	recorder  Recorder
	resolvers []*resolver.Resolver
}

// 🏭 New creates a runner with the given options
func New(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.Errorf("config is required")
	}
	if opts.Files == nil {
		return nil, errors.Errorf("files are required")
	}
	if opts.Processor == nil {
		return nil, errors.Errorf("processor is required")
	}

	resolvers := make([]*resolver.Resolver, 0, len(opts.Config.Subjects))
	for i := range opts.Config.Subjects {
		res, err := resolver.New(opts.Files, opts.Config.SourceDir, &opts.Config.Subjects[i])
		if err != nil {
			return nil, errors.Errorf("creating resolver: %w", err)
		}
		resolvers = append(resolvers, res)
	}

	return &Runner{
		cfg:       opts.Config,
		files:     opts.Files,
		processor: opts.Processor,
		recorder:  opts.Recorder,
		resolvers: resolvers,
	}, nil
}

// 🚀 Run performs one import run. The PID file lock is held for the whole
// run; when another process holds it the returned error wraps
// pidfile.ErrImportAlreadyRunning and nothing is touched.
//
// Processing stops at the first failed file. Files imported before the
// failure are still archived and recorded.
func (r *Runner) Run(ctx context.Context) (rc *Context, err error) {
	rc = NewContext(r.cfg.Serial)

	logger := zerolog.Ctx(ctx).With().Str("serial", rc.Serial).Logger()
	ctx = logger.WithContext(ctx)

	lock := pidfile.New(r.cfg.PidFilename, rc.Serial)
	if err := lock.Lock(ctx); err != nil {
		return rc, err
	}
	defer func() {
		if uerr := lock.Unlock(ctx); uerr != nil {
			err = errors.Join(err, errors.Errorf("releasing pid file: %w", uerr))
		}
	}()

	logger.Info().Str("source_dir", r.cfg.SourceDir).Int("subjects", len(r.resolvers)).Msg("starting import run")
	log.FromContext(ctx).Header("import run " + rc.Serial)

	runErr := r.importSubjects(ctx, rc)

	if aerr := r.archive(ctx, rc); aerr != nil {
		runErr = errors.Join(runErr, aerr)
	}

	rc.FinishedAt = time.Now()

	if r.recorder != nil {
		if rerr := r.recorder.RecordRun(ctx, r.record(rc, runErr)); rerr != nil {
			runErr = errors.Join(runErr, errors.Errorf("recording run %s: %w", rc.Serial, rerr))
		}
	}

	r.report(ctx, rc, runErr)

	return rc, runErr
}

func (r *Runner) importSubjects(ctx context.Context, rc *Context) error {
	console := log.FromContext(ctx)

	for _, res := range r.resolvers {
		subject := res.Subject()

		logger := zerolog.Ctx(ctx).With().Str("subject", subject.Name).Logger()
		sctx := logger.WithContext(ctx)

		console.StartSubject(sctx, log.SubjectOperation{
			Name:      subject.Name,
			SourceDir: r.cfg.SourceDir,
			Serial:    rc.Serial,
		})
		err := r.importSubject(sctx, rc, res)
		console.EndSubject(sctx)
		console.LogNewline()

		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) importSubject(ctx context.Context, rc *Context, res *resolver.Resolver) error {
	logger := zerolog.Ctx(ctx)
	subject := res.Subject()

	resolution, err := res.Resolve(ctx)
	if err != nil {
		return err
	}

	console := log.FromContext(ctx)

	switch {
	case resolution.Listed == 0:
		console.Infof("no files in %s", r.cfg.SourceDir)
	case resolution.Waiting():
		console.Warningf("%d %s file(s) present but none cleared by an ok file", resolution.Matched, subject.Name)
		console.LogFileOperation(ctx, log.FileOperation{
			Path:    fmt.Sprintf("%d file(s)", resolution.Matched),
			Subject: subject.Name,
			Status:  log.StatusWaiting,
		})
	case len(resolution.Files) == 0:
		logger.Info().Int("listed", resolution.Listed).Msg("no files for subject")
	}

	for _, path := range resolution.Files {
		if err := r.importFile(ctx, rc, subject, path); err != nil {
			return err
		}
	}

	return nil
}

// importFile claims source by renaming it, imports it and renames it after
// its outcome
func (r *Runner) importFile(ctx context.Context, rc *Context, subject *config.Subject, source string) error {
	logger := zerolog.Ctx(ctx)
	name := filepath.Base(source)

	rc.Register(subject.Name, source)

	processing := source + StatusProcessing.Suffix()
	if err := r.files.Rename(source, processing); err != nil {
		_ = rc.Update(source, StatusFailed, source, 0, err)
		return errors.Errorf("claiming %s: %w", name, err)
	}

	logger.Debug().Str("file", name).Msg("importing file")

	res, importErr := r.processor.Import(ctx, rc.Serial, subject, name, processing)
	rows := 0
	if res != nil {
		rows = res.Rows
	}

	status := lo.Ternary(importErr == nil, StatusImported, StatusFailed)
	final := source + status.Suffix()
	if err := r.files.Rename(processing, final); err != nil {
		status, final = StatusFailed, processing
		importErr = errors.Join(importErr, err)
	}

	if err := rc.Update(source, status, final, rows, importErr); err != nil {
		return err
	}

	log.FromContext(ctx).LogFileOperation(ctx, log.FileOperation{
		Path:    name,
		Subject: subject.Name,
		Status:  status.String(),
		Rows:    rows,
		Err:     importErr,
	})

	if importErr != nil {
		return errors.Errorf("importing %s: %w", name, importErr)
	}

	return nil
}

// archive moves the imported files of the run into <archive_dir>/<serial>
func (r *Runner) archive(ctx context.Context, rc *Context) error {
	if r.cfg.ArchiveDir == "" {
		return nil
	}

	imported := lo.Filter(rc.Files(), func(e FileEntry, _ int) bool {
		return e.Status == StatusImported
	})
	if len(imported) == 0 {
		return nil
	}

	dir := filepath.Join(r.cfg.ArchiveDir, rc.Serial)
	if err := r.files.MkdirAll(dir); err != nil {
		return errors.Errorf("archiving: %w", err)
	}

	for _, e := range imported {
		dst := filepath.Join(dir, filepath.Base(e.Source))
		if err := r.files.Rename(e.Path, dst); err != nil {
			return errors.Errorf("archiving %s: %w", filepath.Base(e.Source), err)
		}
		if err := rc.Update(e.Source, StatusArchived, dst, e.Rows, nil); err != nil {
			return err
		}

		log.FromContext(ctx).LogFileOperation(ctx, log.FileOperation{
			Path:    filepath.Base(e.Source),
			Subject: e.Subject,
			Status:  log.StatusArchived,
			Rows:    e.Rows,
		})
	}

	zerolog.Ctx(ctx).Debug().Str("archive_dir", dir).Int("files", len(imported)).Msg("archived imported files")

	return nil
}

func (r *Runner) record(rc *Context, runErr error) store.RunRecord {
	rec := store.RunRecord{
		Serial:     rc.Serial,
		StartedAt:  rc.StartedAt,
		FinishedAt: rc.FinishedAt,
		Status:     RunSucceeded,
		Files:      rc.Summary(),
	}
	if runErr != nil {
		rec.Status = RunFailed
		rec.Error = runErr.Error()
	}
	return rec
}

func (r *Runner) report(ctx context.Context, rc *Context, runErr error) {
	logger := zerolog.Ctx(ctx)
	console := log.FromContext(ctx)

	imported := rc.Count(StatusImported) + rc.Count(StatusArchived)
	elapsed := rc.FinishedAt.Sub(rc.StartedAt).Round(time.Millisecond)

	if runErr != nil {
		logger.Error().Err(runErr).Int("imported", imported).Msg("import run failed")
		console.Errorf("import run %s failed after %d file(s): %v", rc.Serial, imported, runErr)
		return
	}

	logger.Info().
		Int("imported", imported).
		Int("rows", rc.Rows()).
		Dur("elapsed", elapsed).
		Msg("import run finished")

	if imported == 0 {
		console.Info("nothing to import")
		return
	}
	console.Successf("imported %d file(s) with %d row(s) in %s", imported, rc.Rows(), elapsed)
}
