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

package commands

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"github.com/walteh/bunchimport/pkg/csvimport"
	"github.com/walteh/bunchimport/pkg/run"
	"github.com/walteh/bunchimport/pkg/store"
	"gitlab.com/tozd/go/errors"
)

// newRunner wires the import pipeline. Without a database block rows are only
// counted. The returned func releases the database connection.
func newRunner(ctx context.Context, o *opts.RootOpts) (*run.Runner, func(), error) {
	logger := zerolog.Ctx(ctx)

	var (
		sink      csvimport.Sink = &csvimport.CountingSink{}
		recorder  run.Recorder
		batchSize = csvimport.DefaultBatchSize
		release   = func() {}
	)

	if db := o.Config.Database; db != nil {
		s, err := store.Open(ctx, db)
		if err != nil {
			return nil, nil, errors.Errorf("opening store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, errors.Errorf("preparing store: %w", err)
		}
		sink, recorder, batchSize = s, s, db.BatchSize
		release = func() {
			if err := s.Close(); err != nil {
				logger.Warn().Err(err).Msg("closing store")
			}
		}
	} else {
		logger.Warn().Msg("no database configured, rows are only counted")
	}

	runner, err := run.New(run.Options{
		Config:    o.Config,
		Files:     o.Files,
		Processor: csvimport.New(o.Files.Fs(), sink, batchSize),
		Recorder:  recorder,
	})
	if err != nil {
		release()
		return nil, nil, errors.Errorf("creating runner: %w", err)
	}

	return runner, release, nil
}
