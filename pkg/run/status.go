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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gitlab.com/tozd/go/errors"
)

// 📊 FileStatus is the state of a CSV file within a run
type FileStatus int

const (
	StatusUnknown    FileStatus = iota
	StatusProcessing            // renamed to .in_progress, rows being imported
	StatusImported              // all rows written
	StatusFailed                // import aborted
	StatusArchived              // imported and moved to the archive
)

// String returns a string representation of FileStatus
func (s FileStatus) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusImported:
		return "imported"
	case StatusFailed:
		return "failed"
	case StatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Suffix is appended to the CSV file name while it has this status
func (s FileStatus) Suffix() string {
	switch s {
	case StatusProcessing:
		return ".in_progress"
	case StatusImported:
		return ".imported"
	case StatusFailed:
		return ".failed"
	default:
		return ""
	}
}

// 📄 FileEntry is one registered CSV file
type FileEntry struct {
	Subject string     // Subject the file belongs to
	Source  string     // Path the file was resolved at
	Path    string     // Current path
	Status  FileStatus // Current status
	Rows    int        // Rows imported
	Err     error      // Failure, if any
}

// 📋 Context is the registry of one import run. Files keep the order in
// which they were registered.
type Context struct {
	Serial     string
	StartedAt  time.Time
	FinishedAt time.Time

	mu    sync.RWMutex
	order []string
	files map[string]*FileEntry
}

// 🏭 NewContext creates the registry of a run. An empty serial gets a
// random UUID.
func NewContext(serial string) *Context {
	if serial == "" {
		serial = uuid.NewString()
	}
	return &Context{
		Serial:    serial,
		StartedAt: time.Now(),
		files:     make(map[string]*FileEntry),
	}
}

// Register adds a resolved file with StatusProcessing
func (c *Context) Register(subject, source string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.files[source]; !ok {
		c.order = append(c.order, source)
	}
	c.files[source] = &FileEntry{
		Subject: subject,
		Source:  source,
		Path:    source + StatusProcessing.Suffix(),
		Status:  StatusProcessing,
	}
}

// Update changes the status of a registered file
func (c *Context) Update(source string, status FileStatus, path string, rows int, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.files[source]
	if !ok {
		return errors.Errorf("file not registered: %s", source)
	}
	entry.Status = status
	entry.Path = path
	entry.Rows = rows
	entry.Err = err
	return nil
}

// Get returns a copy of the entry of a registered file
func (c *Context) Get(source string) (FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.files[source]
	if !ok {
		return FileEntry{}, false
	}
	return *entry, true
}

// Files returns copies of all entries in registration order
func (c *Context) Files() []FileEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return lo.Map(c.order, func(source string, _ int) FileEntry {
		return *c.files[source]
	})
}

// Count returns the number of files with the given status
func (c *Context) Count(status FileStatus) int {
	return lo.CountBy(c.Files(), func(e FileEntry) bool {
		return e.Status == status
	})
}

// Rows returns the number of rows imported in this run
func (c *Context) Rows() int {
	return lo.SumBy(c.Files(), func(e FileEntry) int {
		return e.Rows
	})
}

// Failed returns the failed entry, if any
func (c *Context) Failed() (FileEntry, bool) {
	return lo.Find(c.Files(), func(e FileEntry) bool {
		return e.Status == StatusFailed
	})
}

// Summary maps every source path to its status string
func (c *Context) Summary() map[string]string {
	return lo.SliceToMap(c.Files(), func(e FileEntry) (string, string) {
		return e.Source, e.Status.String()
	})
}
