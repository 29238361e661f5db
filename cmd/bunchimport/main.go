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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"github.com/walteh/bunchimport/pkg/log"
	"github.com/walteh/bunchimport/pkg/pidfile"
	"gitlab.com/tozd/go/errors"
)

// Exit codes
const (
	exitOK             = 0
	exitFailure        = 1
	exitAlreadyRunning = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	o := &opts.RootOpts{}
	err := newRootCmd(o).ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(ctx, o, err))
}

// exitCode reports err to the user and maps it to the process exit code
func exitCode(ctx context.Context, o *opts.RootOpts, err error) int {
	if err == nil {
		return exitOK
	}

	userLogger := o.UserLogger
	if userLogger == nil {
		userLogger = log.NewUserLogger(ctx, os.Stderr)
	}
	userLogger.LogValidation(false, "command failed", err)

	if errors.Is(err, pidfile.ErrImportAlreadyRunning) {
		return exitAlreadyRunning
	}
	return exitFailure
}
