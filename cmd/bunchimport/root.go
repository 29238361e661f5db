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
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/bunchimport/cmd/bunchimport/commands"
	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/fsys"
	"github.com/walteh/bunchimport/pkg/log"
	"gitlab.com/tozd/go/errors"
)

const defaultConfigFile = "bunchimport.hcl"

var (
	// Flags
	configFile string
	debug      bool
	jsonLogs   bool
	envFile    string
)

// overrideFlags maps config override keys to the flags setting them
var overrideFlags = map[string]string{
	config.KeySourceDir:   "source-dir",
	config.KeyArchiveDir:  "archive-dir",
	config.KeyPidFilename: "pid-file",
	config.KeySerial:      "serial",
}

func newRootCmd(o *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bunchimport",
		Short: "Import bunches of CSV files once an OK file clears them",
		Long: `bunchimport imports CSV files dropped into a source directory.
A file is only imported once an OK file marks its bunch as complete,
and only one import runs at a time per PID file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := setupRoot(cmd, o)
			if err != nil {
				return err
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	addRootFlags(cmd)

	cmd.AddCommand(
		commands.NewRunCmd(o),
		commands.NewOkFilesCmd(o),
		commands.NewPidFileCmd(o),
		commands.NewWatchCmd(o),
	)

	return cmd
}

func addRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile, "config file path (.hcl, .yaml or .json)")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "write logs as json lines")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config, ignored when missing")
	cmd.PersistentFlags().String("source-dir", "", "override the source directory")
	cmd.PersistentFlags().String("archive-dir", "", "override the archive directory")
	cmd.PersistentFlags().String("pid-file", "", "override the pid file path")
	cmd.PersistentFlags().String("serial", "", "serial of this run (default: random uuid)")
}

// setupRoot loads the environment and config and fills in o
func setupRoot(cmd *cobra.Command, o *opts.RootOpts) (context.Context, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Errorf("loading %s: %w", envFile, err)
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger := log.Setup(os.Stderr, level, !jsonLogs)
	ctx := logger.WithContext(cmd.Context())

	o.UserLogger = log.NewUserLogger(ctx, cmd.OutOrStdout())

	cfg, err := config.LoadConfig(ctx, configFile)
	if err != nil {
		return nil, errors.Errorf("loading config: %w", err)
	}

	v := config.NewViper()
	for key, name := range overrideFlags {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return nil, errors.Errorf("binding flag %s: %w", name, err)
		}
	}
	if err := config.ApplyOverrides(ctx, cfg, v); err != nil {
		return nil, err
	}

	logger.Debug().Str("config", cfg.String()).Msg("loaded config")

	o.Config = cfg
	o.Files = fsys.NewOs()
	o.Console = log.New(cmd.OutOrStdout(), logger)

	return log.NewContext(ctx, o.Console), nil
}
