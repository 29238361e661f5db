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
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"gitlab.com/tozd/go/errors"
)

func NewRunCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import every cleared CSV file once",
		Long: `Run performs a single import run.
It will:
1. Lock the PID file
2. Resolve the CSV files cleared by OK files, subject by subject
3. Import them in order, stopping at the first failure
4. Archive the imported files and release the lock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "run").Logger().WithContext(cmd.Context())

			runner, release, err := newRunner(ctx, opts)
			if err != nil {
				return err
			}
			defer release()

			rc, err := runner.Run(ctx)
			if err != nil {
				return errors.Errorf("running import: %w", err)
			}

			opts.UserLogger.LogStateChange(fmt.Sprintf("run %s finished with %d file(s)", rc.Serial, len(rc.Files())))

			return nil
		},
	}

	return cmd
}
