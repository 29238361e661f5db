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
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/csvimport"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/log"
	"github.com/walteh/bunchimport/pkg/store"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Import(ctx context.Context, serial string, subject *config.Subject, name, path string) (*csvimport.Result, error) {
	args := m.Called(serial, subject.Name, name, path)
	res, _ := args.Get(0).(*csvimport.Result)
	return res, args.Error(1)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRun(ctx context.Context, rec store.RunRecord) error {
	return m.Called(rec).Error(0)
}

type testEnv struct {
	dir     string
	source  string
	archive string
	cfg     *config.Config
	files   *fsys.Adapter
}

func newEnv(t *testing.T, okNeeded bool, archive bool, files map[string]string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	env := &testEnv{
		dir:    dir,
		source: filepath.Join(dir, "in"),
		files:  fsys.NewOs(),
	}
	if archive {
		env.archive = filepath.Join(dir, "archive")
	}

	env.cfg = &config.Config{
		Serial:      "run-1",
		SourceDir:   env.source,
		ArchiveDir:  env.archive,
		PidFilename: filepath.Join(dir, "bunchimport.pid"),
		Subjects: []config.Subject{{
			Name:         "product",
			OkFileNeeded: okNeeded,
			FileResolver: &config.FileResolver{
				Prefix:   "imp",
				Filename: `\d{8}`,
				Counter:  `\d{2}`,
			},
			Columns: []config.Column{{Name: "sku", Handlers: []string{"trim", "required"}}},
		}},
	}
	require.NoError(t, config.Validate(testContext(t), env.cfg))

	require.NoError(t, env.files.MkdirAll(env.source))
	for name, content := range files {
		require.NoError(t, env.files.Write(env.path(name), []byte(content)))
	}

	return env
}

func (e *testEnv) path(name string) string {
	return filepath.Join(e.source, name)
}

func TestNewRequiresOptions(t *testing.T) {
	env := newEnv(t, false, false, nil)
	proc := &mockProcessor{}

	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "no_config", opts: Options{Files: env.files, Processor: proc}, want: "config is required"},
		{name: "no_files", opts: Options{Config: env.cfg, Processor: proc}, want: "files are required"},
		{name: "no_processor", opts: Options{Config: env.cfg, Files: env.files}, want: "processor is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunImportsListedBunch(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	env := newEnv(t, true, true, map[string]string{
		"imp_20240101_01.csv": "sku\na\nb\n",
		"imp_20240101_02.csv": "sku\nc\n",
		"imp_20240101.ok":     "imp_20240101_01.csv\nimp_20240101_02.csv\n",
	})

	sink := &csvimport.CountingSink{}
	recorder := &mockRecorder{}
	recorder.On("RecordRun", mock.MatchedBy(func(rec store.RunRecord) bool {
		return rec.Serial == "run-1" && rec.Status == RunSucceeded && len(rec.Files) == 2 && rec.Error == ""
	})).Return(nil).Once()

	runner, err := New(Options{
		Config:    env.cfg,
		Files:     env.files,
		Processor: csvimport.New(env.files.Fs(), sink, 10),
		Recorder:  recorder,
	})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	ctx := log.NewContext(testContext(t), log.New(out, zerolog.Nop()))

	rc, err := runner.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, "run-1", rc.Serial)
	assert.Equal(t, 2, rc.Count(StatusArchived))
	assert.Equal(t, 3, rc.Rows())
	assert.Equal(t, 3, sink.Rows())
	assert.False(t, rc.FinishedAt.IsZero())

	archived := filepath.Join(env.archive, "run-1")
	assert.True(t, env.files.IsFile(filepath.Join(archived, "imp_20240101_01.csv")))
	assert.True(t, env.files.IsFile(filepath.Join(archived, "imp_20240101_02.csv")))

	left, err := env.files.List(env.source)
	require.NoError(t, err)
	assert.Empty(t, left, "csv files are archived and the ok file is consumed")

	assert.NoFileExists(t, env.cfg.PidFilename, "pid file is removed after the run")

	assert.Contains(t, out.String(), "imported (2 rows)")
	assert.Contains(t, out.String(), "imported 2 file(s) with 3 row(s)")

	recorder.AssertExpectations(t)
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	env := newEnv(t, false, true, map[string]string{
		"imp_20240101_01.csv": "sku\n",
		"imp_20240101_02.csv": "sku\n",
	})

	proc := &mockProcessor{}
	proc.On("Import", "run-1", "product", "imp_20240101_01.csv", env.path("imp_20240101_01.csv.in_progress")).
		Return(&csvimport.Result{File: "imp_20240101_01.csv", Rows: 4}, errors.New("bad row")).Once()

	recorder := &mockRecorder{}
	recorder.On("RecordRun", mock.MatchedBy(func(rec store.RunRecord) bool {
		return rec.Status == RunFailed && rec.Files[env.path("imp_20240101_01.csv")] == "failed"
	})).Return(nil).Once()

	runner, err := New(Options{Config: env.cfg, Files: env.files, Processor: proc, Recorder: recorder})
	require.NoError(t, err)

	rc, err := runner.Run(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importing imp_20240101_01.csv")
	assert.Contains(t, err.Error(), "bad row")

	failed, ok := rc.Failed()
	require.True(t, ok)
	assert.Equal(t, env.path("imp_20240101_01.csv.failed"), failed.Path)
	assert.Equal(t, 4, failed.Rows)

	assert.True(t, env.files.IsFile(env.path("imp_20240101_01.csv.failed")))
	assert.True(t, env.files.IsFile(env.path("imp_20240101_02.csv")), "processing stops at the first failure")
	assert.Len(t, rc.Files(), 1)
	assert.NoDirExists(t, env.archive, "nothing imported, nothing archived")

	proc.AssertExpectations(t)
	recorder.AssertExpectations(t)
}

func TestRunWaitingForOkFile(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	env := newEnv(t, true, false, map[string]string{
		"imp_20240101_01.csv": "sku\n",
	})

	proc := &mockProcessor{}
	runner, err := New(Options{Config: env.cfg, Files: env.files, Processor: proc})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	ctx := log.NewContext(testContext(t), log.New(out, zerolog.Nop()))

	rc, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, rc.Files())
	assert.True(t, env.files.IsFile(env.path("imp_20240101_01.csv")), "uncleared csv stays in place")
	assert.Contains(t, out.String(), "bunchimport • import run "+rc.Serial)
	assert.Contains(t, out.String(), "1 file(s)")
	assert.Contains(t, out.String(), "waiting")
	assert.Contains(t, out.String(), "⚠️  1 product file(s) present but none cleared by an ok file")
	assert.Contains(t, out.String(), "nothing to import")

	proc.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunEmptySourceDir(t *testing.T) {
	env := newEnv(t, false, false, nil)

	runner, err := New(Options{Config: env.cfg, Files: env.files, Processor: &mockProcessor{}})
	require.NoError(t, err)

	color.NoColor = true
	defer func() { color.NoColor = false }()

	out := &bytes.Buffer{}
	ctx := log.NewContext(testContext(t), log.New(out, zerolog.Nop()))

	rc, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, rc.Files())
	assert.Contains(t, out.String(), "ℹ️  no files in "+env.source)
}

func TestRunRecorderFailure(t *testing.T) {
	env := newEnv(t, false, false, map[string]string{
		"imp_20240101_01.csv": "sku\na\n",
	})

	recorder := &mockRecorder{}
	recorder.On("RecordRun", mock.Anything).Return(errors.New("database gone")).Once()

	runner, err := New(Options{
		Config:    env.cfg,
		Files:     env.files,
		Processor: csvimport.New(env.files.Fs(), &csvimport.CountingSink{}, 0),
		Recorder:  recorder,
	})
	require.NoError(t, err)

	rc, err := runner.Run(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording run run-1")
	assert.Equal(t, 1, rc.Count(StatusImported), "without an archive dir files keep the .imported suffix")
	assert.True(t, env.files.IsFile(env.path("imp_20240101_01.csv.imported")))

	_, statErr := os.Stat(env.cfg.PidFilename)
	assert.True(t, os.IsNotExist(statErr), "pid file is released even when recording fails")
}
