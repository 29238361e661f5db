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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/bunchimport/pkg/pidfile"
	"gitlab.com/tozd/go/errors"
)

type funcOperation func(ctx context.Context) (*Context, error)

func (f funcOperation) Run(ctx context.Context) (*Context, error) {
	return f(ctx)
}

func TestTriggerFire(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{name: "success"},
		{
			name: "already_running",
			err:  errors.Errorf("%w: pid file /tmp/x.pid is locked by another process", pidfile.ErrImportAlreadyRunning),
		},
		{name: "failure", err: errors.New("importing a.csv: bad row"), wantErr: "running import: importing a.csv: bad row"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger := NewTrigger(funcOperation(func(ctx context.Context) (*Context, error) {
				return NewContext("run-1"), tt.err
			}))

			err := trigger.Fire(testContext(t), "test")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTriggerDropsWhileInFlight(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	trigger := NewTrigger(funcOperation(func(ctx context.Context) (*Context, error) {
		calls.Add(1)
		close(started)
		<-release
		return NewContext("run-1"), nil
	}))

	ctx := testContext(t)
	done := make(chan error, 1)
	go func() { done <- trigger.Fire(ctx, "first") }()

	<-started
	assert.NoError(t, trigger.Fire(ctx, "second"), "a trigger during a run is dropped")
	close(release)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first run did not finish")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerCancelled(t *testing.T) {
	trigger := NewTrigger(funcOperation(func(ctx context.Context) (*Context, error) {
		t.Fatal("cancelled trigger must not run")
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()

	err := trigger.Fire(ctx, "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
