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

// Package lines removes single entries from shared line-oriented text files
// such as the PID file and OK files.
package lines

import (
	"bufio"
	"io"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// Separator terminates every line written back to a file.
const Separator = "\n"

// ErrLineNotFound is returned when the line to remove is not in the file.
var ErrLineNotFound = errors.Base("line not found")

// 📄 File is an open, readable and writable file handle.
// Both *os.File and afero.File satisfy it.
type File interface {
	io.ReadWriteSeeker
	Truncate(size int64) error
	Sync() error
	Name() string
}

// 🧹 RemoveLine removes every line equal to line (compared trimmed) from f.
//
// The handle is rewound, read completely and, if the line was found, truncated
// and rewritten with the remaining lines, blank ones included, unchanged and in
// their original order. If the line is not present the file is left untouched
// and the returned error wraps ErrLineNotFound. The rewrite is not atomic: a
// crash between truncate and write can leave the file empty.
func RemoveLine(line string, f File) error {
	target := strings.TrimSpace(line)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Errorf("rewinding %s: %w", f.Name(), err)
	}

	var kept []string
	found := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		current := scanner.Text()
		if strings.TrimSpace(current) == target {
			found = true
			continue
		}
		kept = append(kept, current)
	}
	if err := scanner.Err(); err != nil {
		return errors.Errorf("reading %s: %w", f.Name(), err)
	}

	if !found {
		return errors.Errorf("%w: %q in %s", ErrLineNotFound, target, f.Name())
	}

	if err := f.Truncate(0); err != nil {
		return errors.Errorf("truncating %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return errors.Errorf("rewinding %s: %w", f.Name(), err)
	}

	for _, l := range kept {
		if _, err := io.WriteString(f, l+Separator); err != nil {
			return errors.Errorf("writing line %q to %s: %w", l, f.Name(), err)
		}
	}

	if err := f.Sync(); err != nil {
		return errors.Errorf("syncing %s: %w", f.Name(), err)
	}

	return nil
}
