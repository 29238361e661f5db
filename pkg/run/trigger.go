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
	"sync"

	"github.com/rs/zerolog"
	"github.com/walteh/bunchimport/pkg/log"
	"github.com/walteh/bunchimport/pkg/pidfile"
	"gitlab.com/tozd/go/errors"
)

// 🔄 Operation is anything that performs an import run
type Operation interface {
	Run(ctx context.Context) (*Context, error)
}

var _ Operation = (*Runner)(nil)

// 🏃 Trigger starts runs on behalf of several sources. At most one run is
// in flight per trigger; a run held off by another process is logged and
// skipped.
type Trigger struct {
	op Operation
	mu sync.Mutex
}

// 🏗️ NewTrigger creates a trigger for op
func NewTrigger(op Operation) *Trigger {
	return &Trigger{op: op}
}

// Fire runs the operation unless a run is already in flight. reason is
// only logged.
func (t *Trigger) Fire(ctx context.Context, reason string) error {
	logger := zerolog.Ctx(ctx).With().Str("trigger", reason).Logger()

	if !t.mu.TryLock() {
		logger.Debug().Msg("import run in flight, dropping trigger")
		return nil
	}
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Errorf("run cancelled: %w", err)
	}

	rc, err := t.op.Run(logger.WithContext(ctx))
	if errors.Is(err, pidfile.ErrImportAlreadyRunning) {
		log.FromContext(ctx).Warningf("another import is running, skipping %s run: %v", reason, err)
		return nil
	}
	if err != nil {
		return errors.Errorf("running import: %w", err)
	}

	logger.Debug().Str("serial", rc.Serial).Int("files", len(rc.Files())).Msg("triggered run finished")

	return nil
}
