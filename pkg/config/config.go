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
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"gitlab.com/tozd/go/errors"
)

// Pattern element names
const (
	ElementPrefix   = "prefix"
	ElementFilename = "filename"
	ElementCounter  = "counter"
)

// Defaults applied by Validate
const (
	DefaultSuffix        = "csv"
	DefaultOkFileSuffix  = "ok"
	DefaultSeparator     = "_"
	DefaultFilename      = ".*"
	DefaultCounter       = `\d+`
	DefaultDelimiter     = ","
	DefaultTable         = "import_rows"
	DefaultBatchSize     = 500
	DefaultPidFilename   = "bunchimport.pid"
	DefaultWatchInterval = 30 * time.Second
	DefaultWatchDebounce = 2 * time.Second
	DefaultSourceDir     = "."
)

// DefaultPatternElements is the element order used when a subject configures none
var DefaultPatternElements = []string{ElementPrefix, ElementFilename, ElementCounter}

// 📚 Config is the complete importer configuration
type Config struct {
	Serial        string    `json:"serial,omitempty" yaml:"serial,omitempty" hcl:"serial,optional"`
	SourceDir     string    `json:"source_dir,omitempty" yaml:"source_dir,omitempty" hcl:"source_dir,optional"`
	ArchiveDir    string    `json:"archive_dir,omitempty" yaml:"archive_dir,omitempty" hcl:"archive_dir,optional"`
	PidFilename   string    `json:"pid_filename,omitempty" yaml:"pid_filename,omitempty" hcl:"pid_filename,optional"`
	WatchInterval string    `json:"watch_interval,omitempty" yaml:"watch_interval,omitempty" hcl:"watch_interval,optional"`
	WatchDebounce string    `json:"watch_debounce,omitempty" yaml:"watch_debounce,omitempty" hcl:"watch_debounce,optional"`
	Database      *Database `json:"database,omitempty" yaml:"database,omitempty" hcl:"database,block"`
	Subjects      []Subject `json:"subjects" yaml:"subjects" hcl:"subject,block"`

	location string
	interval time.Duration
	debounce time.Duration
}

// 🗄️ Database configures the PostgreSQL sink. Without it rows are only counted.
type Database struct {
	DSN       string `json:"dsn" yaml:"dsn" hcl:"dsn"`
	Table     string `json:"table,omitempty" yaml:"table,omitempty" hcl:"table,optional"`
	BatchSize int    `json:"batch_size,omitempty" yaml:"batch_size,omitempty" hcl:"batch_size,optional"`
}

// 📦 Subject is one kind of CSV bunch, e.g. products or categories
type Subject struct {
	Name         string        `json:"name" yaml:"name" hcl:"name,label"`
	OkFileNeeded bool          `json:"ok_file_needed,omitempty" yaml:"ok_file_needed,omitempty" hcl:"ok_file_needed,optional"`
	Delimiter    string        `json:"delimiter,omitempty" yaml:"delimiter,omitempty" hcl:"delimiter,optional"`
	FileResolver *FileResolver `json:"file_resolver,omitempty" yaml:"file_resolver,omitempty" hcl:"file_resolver,block"`
	Columns      []Column      `json:"columns,omitempty" yaml:"columns,omitempty" hcl:"column,block"`
}

// 🔍 FileResolver describes the CSV and OK file naming convention of a subject.
// Prefix, Filename and Counter are regular expressions.
type FileResolver struct {
	Prefix           string   `json:"prefix,omitempty" yaml:"prefix,omitempty" hcl:"prefix,optional"`
	Filename         string   `json:"filename,omitempty" yaml:"filename,omitempty" hcl:"filename,optional"`
	Counter          string   `json:"counter,omitempty" yaml:"counter,omitempty" hcl:"counter,optional"`
	Suffix           string   `json:"suffix,omitempty" yaml:"suffix,omitempty" hcl:"suffix,optional"`
	OkFileSuffix     string   `json:"ok_file_suffix,omitempty" yaml:"ok_file_suffix,omitempty" hcl:"ok_file_suffix,optional"`
	ElementSeparator string   `json:"element_separator,omitempty" yaml:"element_separator,omitempty" hcl:"element_separator,optional"`
	PatternElements  []string `json:"pattern_elements,omitempty" yaml:"pattern_elements,omitempty" hcl:"pattern_elements,optional"`
}

// 🧱 Column attaches a handler chain to one CSV column
type Column struct {
	Name     string   `json:"name" yaml:"name" hcl:"name,label"`
	Handlers []string `json:"handlers,omitempty" yaml:"handlers,omitempty" hcl:"handlers,optional"`
}

// Location returns the path the config was loaded from, if any
func (cfg *Config) Location() string {
	return cfg.location
}

// Interval returns the parsed watch interval
func (cfg *Config) Interval() time.Duration {
	return cfg.interval
}

// Debounce returns the parsed watch debounce
func (cfg *Config) Debounce() time.Duration {
	return cfg.debounce
}

// Subject returns the subject with the given name
func (cfg *Config) Subject(name string) (*Subject, bool) {
	for i := range cfg.Subjects {
		if cfg.Subjects[i].Name == name {
			return &cfg.Subjects[i], true
		}
	}
	return nil, false
}

// 📝 String returns a short summary of the config
func (cfg *Config) String() string {
	names := lo.Map(cfg.Subjects, func(s Subject, _ int) string { return s.Name })
	return fmt.Sprintf("%s -> %v (pid %s)", cfg.SourceDir, names, cfg.PidFilename)
}

// ElementPattern returns the regular expression configured for a pattern element
func (fr *FileResolver) ElementPattern(element string) (string, error) {
	switch element {
	case ElementPrefix:
		return fr.Prefix, nil
	case ElementFilename:
		return fr.Filename, nil
	case ElementCounter:
		return fr.Counter, nil
	default:
		return "", errors.Errorf("unknown pattern element %q", element)
	}
}

// 🔍 Validate checks the configuration and fills in defaults
func Validate(ctx context.Context, cfg *Config) error {
	logger := zerolog.Ctx(ctx)

	if len(cfg.Subjects) == 0 {
		return errors.Errorf("at least one subject is required")
	}

	if cfg.SourceDir == "" {
		cfg.SourceDir = DefaultSourceDir
	}
	cfg.SourceDir = filepath.Clean(cfg.SourceDir)

	if cfg.ArchiveDir != "" {
		cfg.ArchiveDir = filepath.Clean(cfg.ArchiveDir)
	}

	if cfg.PidFilename == "" {
		cfg.PidFilename = filepath.Join(os.TempDir(), DefaultPidFilename)
		logger.Debug().Str("pid_filename", cfg.PidFilename).Msg("using default pid file")
	}
	cfg.PidFilename = filepath.Clean(cfg.PidFilename)

	var err error
	if cfg.interval, err = parseDuration(cfg.WatchInterval, DefaultWatchInterval); err != nil {
		return errors.Errorf("watch_interval: %w", err)
	}
	if cfg.debounce, err = parseDuration(cfg.WatchDebounce, DefaultWatchDebounce); err != nil {
		return errors.Errorf("watch_debounce: %w", err)
	}

	if cfg.Database != nil {
		if cfg.Database.DSN == "" {
			return errors.Errorf("database.dsn is required")
		}
		if cfg.Database.Table == "" {
			cfg.Database.Table = DefaultTable
		}
		if cfg.Database.BatchSize <= 0 {
			cfg.Database.BatchSize = DefaultBatchSize
		}
	}

	seen := map[string]bool{}
	for i := range cfg.Subjects {
		s := &cfg.Subjects[i]
		if s.Name == "" {
			return errors.Errorf("subject %d: name is required", i)
		}
		if seen[s.Name] {
			return errors.Errorf("subject %q: defined more than once", s.Name)
		}
		seen[s.Name] = true

		if err := validateSubject(s); err != nil {
			return errors.Errorf("subject %q: %w", s.Name, err)
		}
	}

	return nil
}

func validateSubject(s *Subject) error {
	if s.Delimiter == "" {
		s.Delimiter = DefaultDelimiter
	}
	if utf8.RuneCountInString(s.Delimiter) != 1 {
		return errors.Errorf("delimiter must be a single character, got %q", s.Delimiter)
	}

	if s.FileResolver == nil {
		s.FileResolver = &FileResolver{}
	}
	fr := s.FileResolver

	if fr.Prefix == "" {
		fr.Prefix = s.Name
	}
	if fr.Filename == "" {
		fr.Filename = DefaultFilename
	}
	if fr.Counter == "" {
		fr.Counter = DefaultCounter
	}
	if fr.Suffix == "" {
		fr.Suffix = DefaultSuffix
	}
	if fr.OkFileSuffix == "" {
		fr.OkFileSuffix = DefaultOkFileSuffix
	}
	if fr.ElementSeparator == "" {
		fr.ElementSeparator = DefaultSeparator
	}
	if len(fr.PatternElements) == 0 {
		fr.PatternElements = append([]string(nil), DefaultPatternElements...)
	}

	if dup := lo.FindDuplicates(fr.PatternElements); len(dup) > 0 {
		return errors.Errorf("file_resolver.pattern_elements: duplicate elements %v", dup)
	}
	for _, el := range fr.PatternElements {
		if _, err := fr.ElementPattern(el); err != nil {
			return errors.Errorf("file_resolver.pattern_elements: %w", err)
		}
	}

	for _, c := range s.Columns {
		if c.Name == "" {
			return errors.Errorf("column name is required")
		}
	}

	return nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Errorf("parsing duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, errors.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
