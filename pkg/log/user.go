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

package log

import (
	"context"
	"io"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

// 📢 UserLogger prints command level feedback with pterm and mirrors it to zerolog
type UserLogger struct {
	log zerolog.Logger
	w   io.Writer
}

// 🎯 NewUserLogger creates a user logger writing to w
func NewUserLogger(ctx context.Context, w io.Writer) *UserLogger {
	return &UserLogger{
		log: *zerolog.Ctx(ctx),
		w:   w,
	}
}

func (u *UserLogger) printer(p pterm.PrefixPrinter, prefix string) *pterm.PrefixPrinter {
	return p.WithPrefix(pterm.Prefix{Text: prefix, Style: p.Prefix.Style}).WithWriter(u.w)
}

// 📊 LogStateChange logs a change to the overall state
func (u *UserLogger) LogStateChange(description string) {
	u.printer(pterm.Info, "📦").Println(description)
	u.log.Info().Msg(description)
}

// 🔍 LogValidation logs validation results
func (u *UserLogger) LogValidation(valid bool, description string, err error) {
	switch {
	case valid:
		u.printer(pterm.Success, "✅").Println(description)
		u.log.Info().Msg(description)
	case err != nil:
		u.printer(pterm.Error, "❌").Println(description)
		u.printer(pterm.Error, "ERROR").Println(err.Error())
		u.log.Error().Err(err).Msg(description)
	default:
		u.printer(pterm.Warning, "⚠️").Println(description)
		u.log.Warn().Msg(description)
	}
}

// 🔒 LogLockOperation logs PID file locking
func (u *UserLogger) LogLockOperation(acquired bool, path string, err error) {
	switch {
	case acquired:
		u.printer(pterm.Info, "🔒").Printf("acquired lock on %s\n", path)
		u.log.Debug().Str("pid_file", path).Msg("acquired lock")
	case err != nil:
		u.printer(pterm.Error, "🔓").Printf("failed to acquire lock on %s\n", path)
		u.printer(pterm.Error, "ERROR").Println(err.Error())
		u.log.Error().Err(err).Str("pid_file", path).Msg("failed to acquire lock")
	default:
		u.printer(pterm.Info, "🔓").Printf("released lock on %s\n", path)
		u.log.Debug().Str("pid_file", path).Msg("released lock")
	}
}
