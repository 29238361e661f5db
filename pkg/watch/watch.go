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

// Package watch fires import runs when CSV or OK files arrive in the source
// directory, and periodically to catch missed events.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/walteh/bunchimport/pkg/config"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// Trigger reasons
const (
	ReasonStartup  = "startup"
	ReasonEvent    = "fsnotify"
	ReasonInterval = "interval"
)

// 🔥 Firer starts one import run
type Firer interface {
	Fire(ctx context.Context, reason string) error
}

// 👀 Watcher watches one source directory
type Watcher struct {
	dir      string
	suffixes []string
	interval time.Duration
	debounce time.Duration
	firer    Firer

	ready     chan struct{}
	readyOnce sync.Once
}

// 🏭 New creates a watcher for the source directory of a validated config
func New(cfg *config.Config, firer Firer) *Watcher {
	suffixes := lo.FlatMap(cfg.Subjects, func(s config.Subject, _ int) []string {
		if s.OkFileNeeded {
			return []string{"." + s.FileResolver.Suffix, "." + s.FileResolver.OkFileSuffix}
		}
		return []string{"." + s.FileResolver.Suffix}
	})

	return &Watcher{
		dir:      cfg.SourceDir,
		suffixes: lo.Uniq(suffixes),
		interval: cfg.Interval(),
		debounce: cfg.Debounce(),
		firer:    firer,
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the directory is being watched
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Relevant reports whether an event may make new files importable
func (w *Watcher) Relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(ev.Name)
	return lo.SomeBy(w.suffixes, func(suffix string) bool {
		return strings.HasSuffix(base, suffix)
	})
}

// 🚀 Run fires a run at startup, after every burst of relevant events has
// settled for the debounce period, and on every interval tick. Runs never
// overlap. Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	logger := zerolog.Ctx(ctx).With().Str("dir", w.dir).Logger()
	ctx = logger.WithContext(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return errors.Errorf("watching %s: %w", w.dir, err)
	}

	logger.Info().
		Strs("suffixes", w.suffixes).
		Dur("interval", w.interval).
		Dur("debounce", w.debounce).
		Msg("watching source directory")

	// one pending trigger is enough, more would run on the same files
	triggers := make(chan string, 1)
	send := func(reason string) {
		select {
		case triggers <- reason:
		default:
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.watchEvents(gctx, fsw, send)
	})

	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				send(ReasonInterval)
			}
		}
	})

	g.Go(func() error {
		w.fire(gctx, ReasonStartup)
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case reason := <-triggers:
				w.fire(gctx, reason)
			}
		}
	})

	w.readyOnce.Do(func() { close(w.ready) })

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info().Msg("stopped watching")
		return nil
	}
	return err
}

func (w *Watcher) watchEvents(ctx context.Context, fsw *fsnotify.Watcher, send func(string)) error {
	logger := zerolog.Ctx(ctx)

	var timer *time.Timer
	var settled <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.Errorf("file watcher closed")
			}
			if !w.Relevant(ev) {
				continue
			}
			logger.Debug().Str("file", filepath.Base(ev.Name)).Str("op", ev.Op.String()).Msg("file event")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			settled = timer.C

		case <-settled:
			settled = nil
			send(ReasonEvent)

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.Errorf("file watcher closed")
			}
			logger.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) fire(ctx context.Context, reason string) {
	if err := w.firer.Fire(ctx, reason); err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("trigger", reason).Msg("import run failed")
	}
}
