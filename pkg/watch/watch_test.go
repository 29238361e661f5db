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

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/bunchimport/pkg/config"
	"gitlab.com/tozd/go/errors"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

type recordingFirer struct {
	mu      sync.Mutex
	reasons []string
	err     error
}

func (f *recordingFirer) Fire(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return f.err
}

func (f *recordingFirer) count(reason string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Count(f.reasons, reason)
}

func newConfig(t *testing.T, dir, interval, debounce string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		SourceDir:     dir,
		PidFilename:   filepath.Join(dir, "test.pid"),
		WatchInterval: interval,
		WatchDebounce: debounce,
		Subjects: []config.Subject{
			{Name: "product", OkFileNeeded: true},
			{Name: "price", FileResolver: &config.FileResolver{Suffix: "txt"}},
		},
	}
	require.NoError(t, config.Validate(testContext(t), cfg))
	return cfg
}

// start runs the watcher until the test ends and waits until it is ready
func start(t *testing.T, w *Watcher) {
	t.Helper()

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err, "cancelled watcher stops cleanly")
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher stopped early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher not ready")
	}
}

func TestRelevant(t *testing.T) {
	w := New(newConfig(t, t.TempDir(), "", ""), &recordingFirer{})

	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{name: "product_20240101_01.csv", op: fsnotify.Create, want: true},
		{name: "product_20240101.ok", op: fsnotify.Write, want: true},
		{name: "price_20240101_01.txt", op: fsnotify.Create, want: true},
		{name: "product_20240101_01.csv", op: fsnotify.Remove, want: false},
		{name: "product_20240101_01.csv.in_progress", op: fsnotify.Create, want: false},
		{name: "notes.md", op: fsnotify.Create, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name+"_"+tt.op.String(), func(t *testing.T) {
			ev := fsnotify.Event{Name: filepath.Join("/in", tt.name), Op: tt.op}
			assert.Equal(t, tt.want, w.Relevant(ev))
		})
	}
}

func TestRunFiresOnStartupAndEvents(t *testing.T) {
	dir := t.TempDir()
	firer := &recordingFirer{}
	w := New(newConfig(t, dir, "1h", "50ms"), firer)
	start(t, w)

	require.Eventually(t, func() bool {
		return firer.count(ReasonStartup) == 1
	}, 5*time.Second, 10*time.Millisecond, "a run is fired at startup")

	for _, name := range []string{"product_20240101_01.csv", "product_20240101_02.csv", "product_20240101.ok"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("sku\n"), 0o644))
	}

	require.Eventually(t, func() bool {
		return firer.count(ReasonEvent) >= 1
	}, 5*time.Second, 10*time.Millisecond, "arriving files fire a run after the debounce period")

	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, firer.count(ReasonEvent), 2, "a burst of events is coalesced")
}

func TestRunIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	firer := &recordingFirer{}
	w := New(newConfig(t, dir, "1h", "20ms"), firer)
	start(t, w)

	require.Eventually(t, func() bool {
		return firer.count(ReasonStartup) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, firer.count(ReasonEvent))
}

func TestRunFiresOnInterval(t *testing.T) {
	firer := &recordingFirer{err: errors.New("importing a.csv: bad row")}
	w := New(newConfig(t, t.TempDir(), "20ms", ""), firer)
	start(t, w)

	require.Eventually(t, func() bool {
		return firer.count(ReasonInterval) >= 2
	}, 5*time.Second, 10*time.Millisecond, "failed runs do not stop the interval trigger")
}

func TestRunMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	w := New(newConfig(t, dir, "", ""), &recordingFirer{})

	err := w.Run(testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching "+dir)
}
