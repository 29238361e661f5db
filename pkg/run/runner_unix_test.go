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

//go:build unix

package run

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/walteh/bunchimport/pkg/log"
	"github.com/walteh/bunchimport/pkg/pidfile"
)

func TestRunAlreadyRunning(t *testing.T) {
	ctx := testContext(t)
	env := newEnv(t, false, false, map[string]string{
		"imp_20240101_01.csv": "sku\na\n",
	})

	other := pidfile.New(env.cfg.PidFilename, "other-run")
	require.NoError(t, other.Lock(ctx))
	defer other.Unlock(ctx)

	proc := &mockProcessor{}
	runner, err := New(Options{Config: env.cfg, Files: env.files, Processor: proc})
	require.NoError(t, err)

	_, err = runner.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, pidfile.ErrImportAlreadyRunning)

	assert.True(t, env.files.IsFile(env.path("imp_20240101_01.csv")), "nothing is touched without the lock")
	proc.AssertNotCalled(t, "Import", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	// the trigger treats contention as a skipped run
	out := &bytes.Buffer{}
	assert.NoError(t, NewTrigger(runner).Fire(log.NewContext(ctx, log.New(out, zerolog.Nop())), "test"))
	assert.Contains(t, out.String(), "another import is running, skipping test run")
}
