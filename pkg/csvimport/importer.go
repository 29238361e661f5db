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

// Package csvimport streams the rows of a CSV file through per-column
// handler chains into a Sink.
package csvimport

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/walteh/bunchimport/pkg/config"
	"gitlab.com/tozd/go/errors"
)

// DefaultBatchSize is used when no batch size is given
const DefaultBatchSize = config.DefaultBatchSize

// 📄 Row is one imported CSV record, keyed by header
type Row struct {
	Serial  string
	Subject string
	File    string
	Line    int
	Values  map[string]string
}

// 💾 Sink receives rows in batches
type Sink interface {
	Write(ctx context.Context, rows []Row) error
}

// 📊 Result summarizes one imported file
type Result struct {
	File string
	Rows int
}

// 📥 Importer reads CSV files from an afero filesystem
type Importer struct {
	fs        afero.Fs
	sink      Sink
	batchSize int
}

// 🏭 New creates an importer. A batch size below 1 uses DefaultBatchSize.
func New(fs afero.Fs, sink Sink, batchSize int) *Importer {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Importer{fs: fs, sink: sink, batchSize: batchSize}
}

// Import reads the CSV file at path and writes its rows to the sink.
// name is the file name recorded on every row; path may differ from it
// while the file is being processed. The first record is the header.
func (i *Importer) Import(ctx context.Context, serial string, subject *config.Subject, name, path string) (*Result, error) {
	logger := zerolog.Ctx(ctx)

	chains := map[string]Chain{}
	for _, c := range subject.Columns {
		chain, err := BuildChain(c.Handlers)
		if err != nil {
			return nil, errors.Errorf("column %s: %w", c.Name, err)
		}
		chains[c.Name] = chain
	}

	f, err := i.fs.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma, _ = utf8.DecodeRuneInString(subject.Delimiter)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.Errorf("%s has no header row", name)
		}
		return nil, errors.Errorf("reading header of %s: %w", name, err)
	}
	for j := range header {
		header[j] = strings.TrimSpace(strings.TrimPrefix(header[j], "\ufeff"))
	}

	for col := range chains {
		if !lo.Contains(header, col) {
			return nil, errors.Errorf("%s: configured column %q not in header %v", name, col, header)
		}
	}

	res := &Result{File: name}
	batch := make([]Row, 0, i.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := i.sink.Write(ctx, batch); err != nil {
			return errors.Errorf("writing rows of %s: %w", name, err)
		}
		res.Rows += len(batch)
		batch = make([]Row, 0, i.batchSize)
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, errors.Errorf("reading %s: %w", name, err)
		}

		line, _ := r.FieldPos(0)

		values := make(map[string]string, len(header))
		for j, col := range header {
			v := record[j]
			if chain, ok := chains[col]; ok {
				if v, err = chain.Handle(v); err != nil {
					return res, errors.Errorf("%s line %d column %s: %w", name, line, col, err)
				}
			}
			values[col] = v
		}

		batch = append(batch, Row{
			Serial:  serial,
			Subject: subject.Name,
			File:    name,
			Line:    line,
			Values:  values,
		})

		if len(batch) >= i.batchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}

	if err := flush(); err != nil {
		return res, err
	}

	logger.Debug().Str("file", name).Int("rows", res.Rows).Msg("imported csv file")

	return res, nil
}

// 🧮 CountingSink counts rows without storing them
type CountingSink struct {
	mu   sync.Mutex
	rows int
}

var _ Sink = (*CountingSink)(nil)

// Write counts the rows
func (s *CountingSink) Write(ctx context.Context, rows []Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows += len(rows)
	zerolog.Ctx(ctx).Debug().Int("rows", len(rows)).Int("total", s.rows).Msg("counted rows")
	return nil
}

// Rows returns the number of rows written so far
func (s *CountingSink) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}
