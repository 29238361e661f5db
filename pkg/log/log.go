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

// Package log sets up structured logging and prints the human readable
// per-file report of an import run.
package log

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// 🎨 Display configuration
const (
	fileIndent    = 4  // spaces to indent file entries
	nameWidth     = 35 // Base width for filename
	subjectWidth  = 15 // Width for subject name
	statusWidth   = 15 // Width for status text
	consoleFormat = time.Kitchen
)

// File statuses printed by the console
const (
	StatusImported = "imported"
	StatusFailed   = "failed"
	StatusArchived = "archived"
	StatusWaiting  = "waiting"
)

// 🏭 Setup returns the process logger. pretty selects zerolog's console
// writer, otherwise JSON lines are written.
func Setup(w io.Writer, level zerolog.Level, pretty bool) zerolog.Logger {
	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleFormat, NoColor: color.NoColor}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}

// 🎯 FileOperation is one CSV file handled by a run
type FileOperation struct {
	Path    string // File path
	Subject string // Subject the file belongs to
	Status  string // One of the Status* constants
	Rows    int    // Rows imported
	Err     error  // Failure, if any
}

// 📦 SubjectOperation is the resolution of one subject
type SubjectOperation struct {
	Name      string // Subject name
	SourceDir string // Directory the files were resolved from
	Serial    string // Run serial
}

// 🎯 Console prints the run report and mirrors it to zerolog
type Console struct {
	zlog       zerolog.Logger
	console    io.Writer
	mu         sync.Mutex
	current    *SubjectOperation
	operations []FileOperation
}

// 🏭 New creates a console writing to w and logging through zlog
func New(w io.Writer, zlog zerolog.Logger) *Console {
	return &Console{
		zlog:    zlog,
		console: w,
	}
}

// 🔑 contextKey is the type for context values
type contextKey struct{}

// 🎯 FromContext gets the console from context. Without one, output is
// discarded and only the context logger is used.
func FromContext(ctx context.Context) *Console {
	c, ok := ctx.Value(contextKey{}).(*Console)
	if !ok {
		return New(io.Discard, *zerolog.Ctx(ctx))
	}
	return c
}

// 🎯 NewContext adds the console to context
func NewContext(ctx context.Context, c *Console) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// 📝 formatFileOperation formats a file operation for display
func (c *Console) formatFileOperation(op FileOperation) string {
	var symbol rune
	var symbolColor color.Attribute
	switch op.Status {
	case StatusImported:
		symbol = '✓'
		symbolColor = color.FgGreen
	case StatusFailed:
		symbol = '✗'
		symbolColor = color.FgRed
	case StatusArchived:
		symbol = '⟳'
		symbolColor = color.FgBlue
	default:
		symbol = '-'
		symbolColor = color.FgYellow
	}

	status := op.Status
	if op.Status == StatusImported {
		status = fmt.Sprintf("%s (%d rows)", op.Status, op.Rows)
	}

	return fmt.Sprintf("%s%s %s %s %s",
		fmt.Sprintf("%*s", fileIndent, ""),
		color.New(symbolColor).Sprint(string(symbol)),
		fmt.Sprintf("%-*s", nameWidth, op.Path),
		color.New(color.FgCyan).Sprint(fmt.Sprintf("%-*s", subjectWidth, op.Subject)),
		fmt.Sprintf("%-*s", statusWidth, status))
}

// 📝 LogFileOperation prints and logs a file operation
func (c *Console) LogFileOperation(ctx context.Context, op FileOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.operations = append(c.operations, op)

	fmt.Fprintln(c.console, c.formatFileOperation(op))

	ev := c.zlog.Info()
	if op.Err != nil {
		ev = c.zlog.Error().Err(op.Err)
	}
	ev.Str("file", op.Path).
		Str("subject", op.Subject).
		Str("status", op.Status).
		Int("rows", op.Rows).
		Msg("file operation")
}

// 📝 StartSubject prints the header of a subject
func (c *Console) StartSubject(ctx context.Context, op SubjectOperation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current = &op
	c.operations = nil

	fmt.Fprintf(c.console, "[importing %s]\n",
		color.New(color.FgCyan).Sprint(op.SourceDir))

	fmt.Fprintf(c.console, "%s %s %s %s\n",
		color.New(color.FgMagenta).Sprint("◆"),
		color.New(color.Bold).Sprint(op.Name),
		color.New(color.Faint).Sprint("•"),
		color.New(color.FgYellow).Sprint(op.Serial))

	c.zlog.Info().
		Str("subject", op.Name).
		Str("source_dir", op.SourceDir).
		Str("serial", op.Serial).
		Msg("starting subject")
}

// 📝 EndSubject logs the summary of the current subject
func (c *Console) EndSubject(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}

	c.zlog.Info().
		Str("subject", c.current.Name).
		Int("files", len(c.operations)).
		Msg("subject complete")

	c.current = nil
	c.operations = nil
}

// 📝 LogNewline prints a newline
func (c *Console) LogNewline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.console)
}

// 📝 Header prints a header
func (c *Console) Header(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := color.New(color.Bold, color.FgCyan).Sprint("bunchimport")
	fmt.Fprintf(c.console, "\n%s %s\n\n", name, color.New(color.Faint).Sprint("• "+msg))
	c.zlog.Info().Msg(msg)
}

// 📝 Success prints a success message
func (c *Console) Success(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.console, "✅ %s\n", color.New(color.FgGreen).Sprint(msg))
	c.zlog.Info().Msg(msg)
}

// 📝 Warning prints a warning message
func (c *Console) Warning(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.console, "⚠️  %s\n", color.New(color.FgYellow).Sprint(msg))
	c.zlog.Warn().Msg(msg)
}

// 📝 Error prints an error message
func (c *Console) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.console, "❌ %s\n", color.New(color.FgRed).Sprint(msg))
	c.zlog.Error().Msg(msg)
}

// 📝 Info prints an info message
func (c *Console) Info(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.console, "ℹ️  %s\n", color.New(color.FgCyan).Sprint(msg))
	c.zlog.Info().Msg(msg)
}

// 📝 Infof prints a formatted info message
func (c *Console) Infof(format string, args ...interface{}) {
	c.Info(fmt.Sprintf(format, args...))
}

// 📝 Warningf prints a formatted warning message
func (c *Console) Warningf(format string, args ...interface{}) {
	c.Warning(fmt.Sprintf(format, args...))
}

// 📝 Errorf prints a formatted error message
func (c *Console) Errorf(format string, args ...interface{}) {
	c.Error(fmt.Sprintf(format, args...))
}

// 📝 Successf prints a formatted success message
func (c *Console) Successf(format string, args ...interface{}) {
	c.Success(fmt.Sprintf(format, args...))
}
