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
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/bunchimport/cmd/bunchimport/opts"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/pidfile"
	"github.com/walteh/bunchimport/pkg/resolver"
	"gitlab.com/tozd/go/errors"
)

func NewOkFilesCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ok-files",
		Short: "Manage OK files",
	}

	cmd.AddCommand(newOkFilesCreateCmd(opts))
	cmd.AddCommand(newOkFilesDeleteCmd(opts))

	return cmd
}

func newOkFilesCreateCmd(opts *opts.RootOpts) *cobra.Command {
	var subjectName string

	cmd := &cobra.Command{
		Use:   "create [glob]",
		Short: "Create an OK file for every bunch of CSV files",
		Long: `Create groups the CSV files matching glob by their OK file name and
writes one OK file per bunch listing all of its files. Existing OK files
are left alone. Without a glob, all files of each subject in the source
directory are considered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "ok-files create").Logger().WithContext(cmd.Context())
			cfg := opts.Config

			subjects := cfg.Subjects
			if subjectName != "" {
				s, ok := cfg.Subject(subjectName)
				if !ok {
					return errors.Errorf("unknown subject %q", subjectName)
				}
				subjects = []config.Subject{*s}
			}

			created := 0
			err = withPidLock(ctx, opts, func() error {
				for i := range subjects {
					subject := &subjects[i]

					pattern := filepath.Join(cfg.SourceDir, "*."+subject.FileResolver.Suffix)
					if len(args) == 1 {
						pattern = args[0]
					}

					res, err := resolver.New(opts.Files, cfg.SourceDir, subject)
					if err != nil {
						return err
					}

					n, err := res.OkFiles().CreateOkFiles(ctx, pattern)
					created += n
					if err != nil {
						return errors.Errorf("subject %s: %w", subject.Name, err)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			opts.UserLogger.LogStateChange(fmt.Sprintf("created %d ok file(s)", created))

			return nil
		},
	}

	cmd.Flags().StringVar(&subjectName, "subject", "", "only create OK files for this subject")

	return cmd
}

func newOkFilesDeleteCmd(opts *opts.RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <ok-file>...",
		Short: "Delete consumed OK files",
		Long: `Delete removes OK files that no longer list any CSV file. An OK file
that still lists a CSV file is refused, since deleting it would leave that
file waiting forever. Bare file names are looked up in the source directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := zerolog.Ctx(cmd.Context()).With().Str("command", "ok-files delete").Logger().WithContext(cmd.Context())
			cfg := opts.Config

			deleted := 0
			err := withPidLock(ctx, opts, func() error {
				for _, arg := range args {
					path := arg
					if filepath.Base(arg) == arg {
						path = filepath.Join(cfg.SourceDir, arg)
					}

					subject, ok := okFileSubject(cfg, path)
					if !ok {
						return errors.Errorf("%s is not an ok file of any subject", path)
					}

					res, err := resolver.New(opts.Files, cfg.SourceDir, subject)
					if err != nil {
						return err
					}

					if err := res.OkFiles().DeleteOkFile(ctx, path); err != nil {
						return err
					}
					deleted++
				}
				return nil
			})
			if err != nil {
				return err
			}

			opts.UserLogger.LogStateChange(fmt.Sprintf("deleted %d ok file(s)", deleted))

			return nil
		},
	}

	return cmd
}

// okFileSubject returns the first subject whose OK file suffix path carries
func okFileSubject(cfg *config.Config, path string) (*config.Subject, bool) {
	for i := range cfg.Subjects {
		s := &cfg.Subjects[i]
		if s.OkFileNeeded && strings.HasSuffix(path, "."+s.FileResolver.OkFileSuffix) {
			return s, true
		}
	}
	return nil, false
}

// withPidLock runs fn while holding the PID file lock, so OK files are never
// changed under a running import
func withPidLock(ctx context.Context, opts *opts.RootOpts, fn func() error) (err error) {
	cfg := opts.Config

	serial := cfg.Serial
	if serial == "" {
		serial = uuid.NewString()
	}

	lock := pidfile.New(cfg.PidFilename, serial)
	if err := lock.Lock(ctx); err != nil {
		opts.UserLogger.LogLockOperation(false, cfg.PidFilename, err)
		return err
	}
	opts.UserLogger.LogLockOperation(true, cfg.PidFilename, nil)
	defer func() {
		if uerr := lock.Unlock(ctx); uerr != nil {
			err = errors.Join(err, uerr)
			return
		}
		opts.UserLogger.LogLockOperation(false, cfg.PidFilename, nil)
	}()

	return fn()
}
