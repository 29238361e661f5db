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
	"github.com/walteh/bunchimport/pkg/pidfile"
	"gitlab.com/tozd/go/errors"
)

func NewPidFileCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pid-file",
		Short: "Manage the PID file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove a stale PID file left by a crashed run",
		Long: `Clear removes the PID file when no running import holds its lock.
It fails when an import is still running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "pid-file clear").Logger().WithContext(cmd.Context())

			if err := pidfile.Clear(ctx, opts.Config.PidFilename); err != nil {
				return errors.Errorf("clearing pid file: %w", err)
			}

			opts.UserLogger.LogStateChange("pid file " + opts.Config.PidFilename + " is clear")

			return nil
		},
	})

	return cmd
}
