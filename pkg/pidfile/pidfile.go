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

// Package pidfile guards import runs with an exclusive advisory lock on a
// shared PID file. Each running import appends its serial as one line.
//
// The lock is taken non-blocking: a second run fails immediately instead of
// waiting. The operating system drops the lock when the holding process dies,
// so a crashed run never blocks the next one.
package pidfile

import (
	"context"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/walteh/bunchimport/pkg/lines"
	"gitlab.com/tozd/go/errors"
)

// ErrImportAlreadyRunning is returned when another process holds the PID file lock.
var ErrImportAlreadyRunning = errors.Base("import already running")

const (
	filePerms = 0o644

	// openAttempts bounds how often Lock reopens a PID file that was
	// replaced between opening and locking it
	openAttempts = 8
)

// 🔒 Handler owns the PID file lock for one import serial
type Handler struct {
	path   string
	serial string

	file   *os.File
	locked string // serial the current lock was taken with
}

// 🏭 New creates a handler for the PID file at path and the given run serial
func New(path, serial string) *Handler {
	return &Handler{
		path:   path,
		serial: serial,
	}
}

// Path returns the PID file path
func (h *Handler) Path() string {
	return h.path
}

// Serial returns the run serial written to the PID file
func (h *Handler) Serial() string {
	return h.serial
}

// Locked reports whether this handler currently holds the lock
func (h *Handler) Locked() bool {
	return h.file != nil && h.locked != ""
}

// 🔒 Lock opens the PID file, takes the exclusive lock and appends the serial.
// Calling Lock again while locked with the same serial does nothing.
func (h *Handler) Lock(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if h.Locked() && h.locked == h.serial {
		return nil
	}

	f, err := h.openLocked()
	if err != nil {
		return err
	}

	if _, err := f.WriteString(h.serial + lines.Separator); err != nil {
		_ = unlock(f)
		f.Close()
		return errors.Errorf("writing serial %s to pid file %s: %w", h.serial, h.path, err)
	}

	h.file = f
	h.locked = h.serial

	logger.Debug().Str("pid_file", h.path).Str("serial", h.serial).Msg("acquired pid file lock")

	return nil
}

// openLocked opens the PID file and takes the lock. A lock taken on a file
// that is no longer at the path, because its holder deleted it while this
// handler waited, guards nothing; the file is reopened in that case.
func (h *Handler) openLocked() (*os.File, error) {
	for range openAttempts {
		f, err := os.OpenFile(h.path, os.O_APPEND|os.O_RDWR|os.O_CREATE, filePerms)
		if err != nil {
			return nil, errors.Errorf("opening pid file %s: %w", h.path, err)
		}

		if err := tryLock(f); err != nil {
			f.Close()
			if errors.Is(err, errWouldBlock) {
				return nil, errors.Errorf("%w: pid file %s is locked by another process", ErrImportAlreadyRunning, h.path)
			}
			return nil, errors.Errorf("locking pid file %s: %w", h.path, err)
		}

		current, err := isCurrent(f, h.path)
		if err != nil {
			_ = unlock(f)
			f.Close()
			return nil, err
		}
		if current {
			return f, nil
		}

		_ = unlock(f)
		f.Close()
	}

	return nil, errors.Errorf("%w: pid file %s keeps being replaced", ErrImportAlreadyRunning, h.path)
}

// isCurrent reports whether f is still the file at path
func isCurrent(f *os.File, path string) (bool, error) {
	held, err := f.Stat()
	if err != nil {
		return false, errors.Errorf("stat pid file %s: %w", path, err)
	}
	onDisk, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, errors.Errorf("stat pid file %s: %w", path, err)
	}
	return os.SameFile(held, onDisk), nil
}

// 🔓 Unlock removes the serial from the PID file, deletes the file once no
// serial is left in it and releases the lock. The file is deleted while the
// lock is still held.
//
// Unlocking a handler that never locked is a no-op. A PID file or serial line
// that is already gone counts as unlocked.
func (h *Handler) Unlock(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	if !h.Locked() || h.locked != h.serial {
		return nil
	}

	defer h.reset()

	current, err := isCurrent(h.file, h.path)
	if err != nil {
		_ = h.release()
		return err
	}
	if !current {
		logger.Info().Str("pid_file", h.path).Msg("pid file already removed, treating import as unlocked")
		return h.release()
	}

	if err := lines.RemoveLine(h.serial, h.file); err != nil {
		if !errors.Is(err, lines.ErrLineNotFound) {
			_ = h.release()
			return errors.Errorf("removing serial %s from pid file %s: %w", h.serial, h.path, err)
		}
		logger.Info().Str("pid_file", h.path).Str("serial", h.serial).Msg("serial already removed from pid file")
	}

	info, err := h.file.Stat()
	if err != nil {
		_ = h.release()
		return errors.Errorf("checking pid file %s: %w", h.path, err)
	}

	if info.Size() == 0 {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			_ = h.release()
			return errors.Errorf("deleting pid file %s: %w", h.path, err)
		}
	}

	if err := h.release(); err != nil {
		return err
	}

	logger.Debug().Str("pid_file", h.path).Str("serial", h.serial).Msg("released pid file lock")

	return nil
}

// release drops the advisory lock and closes the handle
func (h *Handler) release() error {
	if err := unlock(h.file); err != nil {
		h.file.Close()
		return errors.Errorf("unlocking pid file %s: %w", h.path, err)
	}
	if err := h.file.Close(); err != nil {
		return errors.Errorf("closing pid file %s: %w", h.path, err)
	}
	return nil
}

func (h *Handler) reset() {
	h.file = nil
	h.locked = ""
}

// 🧹 Clear removes a stale PID file left behind by a crashed run.
// It fails with ErrImportAlreadyRunning if a live process still holds the lock.
func Clear(ctx context.Context, path string) error {
	logger := zerolog.Ctx(ctx)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Info().Str("pid_file", path).Msg("no pid file to clear")
			return nil
		}
		return errors.Errorf("opening pid file %s: %w", path, err)
	}
	defer f.Close()

	if err := tryLock(f); err != nil {
		if errors.Is(err, errWouldBlock) {
			return errors.Errorf("%w: refusing to clear pid file %s", ErrImportAlreadyRunning, path)
		}
		return errors.Errorf("locking pid file %s: %w", path, err)
	}
	defer unlock(f)

	current, err := isCurrent(f, path)
	if err != nil {
		return err
	}
	if !current {
		return errors.Errorf("%w: pid file %s was replaced while clearing", ErrImportAlreadyRunning, path)
	}

	if err := os.Remove(path); err != nil {
		return errors.Errorf("deleting pid file %s: %w", path, err)
	}

	logger.Info().Str("pid_file", path).Msg("cleared stale pid file")

	return nil
}
