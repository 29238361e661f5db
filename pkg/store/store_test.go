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

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/csvimport"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

// startPostgres runs a throwaway postgres container, skipping when docker is unavailable
func startPostgres(t *testing.T) *config.Database {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	t.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "bunch",
				"POSTGRES_PASSWORD": "bunch",
				"POSTGRES_DB":       "bunch",
			},
			// postgres restarts once after init, the second line is the real one
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return &config.Database{
		DSN:       fmt.Sprintf("postgres://bunch:bunch@%s:%s/bunch?sslmode=disable", host, port.Port()),
		Table:     "product rows",
		BatchSize: 2,
	}
}

func TestSchemaStatements(t *testing.T) {
	rows := createRowsTableSQL(`weird"name`)
	assert.Contains(t, rows, `CREATE TABLE IF NOT EXISTS "weird""name"`, "table identifier should be quoted")
	assert.Contains(t, rows, "payload     JSONB")

	assert.Contains(t, createRunsTableSQL(), `CREATE TABLE IF NOT EXISTS "import_runs"`)
}

func TestNewDefaultsTable(t *testing.T) {
	s := New(nil, "")
	assert.Equal(t, config.DefaultTable, s.table)
}

func TestWriteEmptyBatch(t *testing.T) {
	s := New(nil, "rows")
	assert.NoError(t, s.Write(testContext(t), nil), "an empty batch never touches the database")
}

func TestOpenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(testContext(t), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, &config.Database{DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging database")
}

func TestStorePostgres(t *testing.T) {
	cfg := startPostgres(t)
	ctx := testContext(t)

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrating twice is a no-op")

	rows := []csvimport.Row{
		{Serial: "run-1", Subject: "product", File: "imp_01.csv", Line: 2, Values: map[string]string{"sku": "A-1"}},
		{Serial: "run-1", Subject: "product", File: "imp_01.csv", Line: 3, Values: map[string]string{"sku": "B-2"}},
		{Serial: "run-2", Subject: "product", File: "imp_02.csv", Line: 2, Values: map[string]string{"sku": "C-3"}},
	}
	require.NoError(t, s.Write(ctx, rows))

	n, err := s.CountRows(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var payload string
	err = s.DB().QueryRowContext(ctx,
		`SELECT payload->>'sku' FROM "product rows" WHERE serial = $1 AND line = $2`, "run-2", 2).Scan(&payload)
	require.NoError(t, err)
	assert.Equal(t, "C-3", payload)

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	rec := RunRecord{
		Serial:     "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Status:     "running",
		Files:      map[string]string{"imp_01.csv": "imported"},
	}
	require.NoError(t, s.RecordRun(ctx, rec))

	rec.Status = "failed"
	rec.Error = "boom"
	require.NoError(t, s.RecordRun(ctx, rec), "recording a run again updates it")

	var status, msg string
	err = s.DB().QueryRowContext(ctx, `SELECT status, error FROM import_runs WHERE serial = $1`, "run-1").Scan(&status, &msg)
	require.NoError(t, err)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "boom", msg)
}
