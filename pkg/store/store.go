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

// Package store persists imported rows and run records in PostgreSQL.
//
// Rows are stored generically: one row per CSV record with its values as
// JSONB, tagged with run serial, subject, file and line.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/csvimport"
	"gitlab.com/tozd/go/errors"
)

const (
	runsTable   = "import_runs"
	pingTimeout = 10 * time.Second
)

// 📋 RunRecord is the outcome of one import run
type RunRecord struct {
	Serial     string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Files      map[string]string
	Error      string
}

// 🗄️ Store writes rows and run records through database/sql
type Store struct {
	db    *sql.DB
	table string
}

var _ csvimport.Sink = (*Store)(nil)

// 🏭 Open connects to PostgreSQL and checks the connection
func Open(ctx context.Context, cfg *config.Database) (*Store, error) {
	logger := zerolog.Ctx(ctx)

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, errors.Errorf("opening database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Errorf("pinging database: %w", err)
	}

	logger.Debug().Str("table", cfg.Table).Msg("database connection established")

	return New(db, cfg.Table), nil
}

// 🏭 New wraps an open database handle
func New(db *sql.DB, table string) *Store {
	if table == "" {
		table = config.DefaultTable
	}
	return &Store{db: db, table: table}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

func createRowsTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	serial      TEXT        NOT NULL,
	subject     TEXT        NOT NULL,
	file        TEXT        NOT NULL,
	line        INTEGER     NOT NULL,
	payload     JSONB       NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pq.QuoteIdentifier(table))
}

func createRunsTableSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	serial      TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	status      TEXT        NOT NULL,
	files       JSONB       NOT NULL,
	error       TEXT        NOT NULL DEFAULT ''
)`, pq.QuoteIdentifier(runsTable))
}

// 🏗️ Migrate creates the rows and runs tables when missing
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createRowsTableSQL(s.table), createRunsTableSQL()} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Errorf("migrating: %w", err)
		}
	}
	return nil
}

// 💾 Write copies one batch of rows in a single transaction
func (s *Store) Write(ctx context.Context, rows []csvimport.Row) (err error) {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(s.table, "serial", "subject", "file", "line", "payload"))
	if err != nil {
		return errors.Errorf("preparing copy into %s: %w", s.table, err)
	}

	for _, r := range rows {
		payload, err := json.Marshal(r.Values)
		if err != nil {
			stmt.Close()
			return errors.Errorf("encoding line %d of %s: %w", r.Line, r.File, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Serial, r.Subject, r.File, r.Line, string(payload)); err != nil {
			stmt.Close()
			return errors.Errorf("copying line %d of %s: %w", r.Line, r.File, err)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return errors.Errorf("flushing copy into %s: %w", s.table, err)
	}
	if err := stmt.Close(); err != nil {
		return errors.Errorf("closing copy into %s: %w", s.table, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Errorf("committing rows: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Int("rows", len(rows)).Str("table", s.table).Msg("stored rows")

	return nil
}

// 📝 RecordRun upserts the record of one run
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return errors.Errorf("encoding files of run %s: %w", rec.Serial, err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (serial, started_at, finished_at, status, files, error)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (serial) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	status = EXCLUDED.status,
	files = EXCLUDED.files,
	error = EXCLUDED.error`, pq.QuoteIdentifier(runsTable))

	if _, err := s.db.ExecContext(ctx, query, rec.Serial, rec.StartedAt, rec.FinishedAt, rec.Status, string(files), rec.Error); err != nil {
		return errors.Errorf("recording run %s: %w", rec.Serial, err)
	}

	return nil
}

// CountRows returns the number of stored rows of a run
func (s *Store) CountRows(ctx context.Context, serial string) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE serial = $1`, pq.QuoteIdentifier(s.table))
	if err := s.db.QueryRowContext(ctx, query, serial).Scan(&n); err != nil {
		return 0, errors.Errorf("counting rows of run %s: %w", serial, err)
	}
	return n, nil
}
