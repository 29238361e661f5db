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

package commands

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"github.com/walteh/bunchimport/pkg/run"
	"github.com/walteh/bunchimport/pkg/watch"
)

func NewWatchCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Import files as they arrive",
		Long: `Watch keeps running and starts an import run:
1. At startup
2. When CSV or OK files arrive, once the directory is quiet for watch_debounce
3. Every watch_interval, to catch missed events

Runs never overlap. A run held off by another process is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "watch").Logger().WithContext(cmd.Context())

			runner, release, err := newRunner(ctx, opts)
			if err != nil {
				return err
			}
			defer release()

			opts.UserLogger.LogStateChange("watching " + opts.Config.SourceDir)

			return watch.New(opts.Config, run.NewTrigger(runner)).Run(ctx)
		},
	}

	return cmd
}
