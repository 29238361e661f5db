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

package config

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"
)

// EnvPrefix prefixes every environment override, e.g. BUNCHIMPORT_SOURCE_DIR
const EnvPrefix = "BUNCHIMPORT"

// Override keys understood by ApplyOverrides
const (
	KeySerial        = "serial"
	KeySourceDir     = "source_dir"
	KeyArchiveDir    = "archive_dir"
	KeyPidFilename   = "pid_filename"
	KeyWatchInterval = "watch_interval"
	KeyWatchDebounce = "watch_debounce"
	KeyDatabaseDSN   = "database.dsn"
)

// 🏭 NewViper returns a viper instance reading BUNCHIMPORT_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// 🔧 ApplyOverrides copies every key set in v onto cfg and re-validates it.
// Flags bound with v.BindPFlag only count when they were changed.
func ApplyOverrides(ctx context.Context, cfg *Config, v *viper.Viper) error {
	logger := zerolog.Ctx(ctx)

	set := func(key string, dst *string) {
		if !v.IsSet(key) {
			return
		}
		val := v.GetString(key)
		if val == "" {
			return
		}
		logger.Debug().Str("key", key).Str("value", val).Msg("config override")
		*dst = val
	}

	set(KeySerial, &cfg.Serial)
	set(KeySourceDir, &cfg.SourceDir)
	set(KeyArchiveDir, &cfg.ArchiveDir)
	set(KeyPidFilename, &cfg.PidFilename)
	set(KeyWatchInterval, &cfg.WatchInterval)
	set(KeyWatchDebounce, &cfg.WatchDebounce)

	if v.IsSet(KeyDatabaseDSN) && v.GetString(KeyDatabaseDSN) != "" {
		if cfg.Database == nil {
			cfg.Database = &Database{}
		}
		set(KeyDatabaseDSN, &cfg.Database.DSN)
	}

	if err := Validate(ctx, cfg); err != nil {
		return errors.Errorf("validating overridden config: %w", err)
	}

	return nil
}
