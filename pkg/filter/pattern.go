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

// Package filter holds the filename predicates used by the loaders: a regular
// expression filter that remembers its matches and the OK file filter built
// on top of it.
package filter

import (
	"context"
	"path/filepath"
	"regexp"

	"gitlab.com/tozd/go/errors"
)

// ErrInvalidArgument is returned when a match is looked up by an unknown
// group name or an out of range index.
var ErrInvalidArgument = errors.Base("invalid argument")

// Match holds the named capture groups of one successful match
type Match map[string]string

// 🔍 Filter decides whether a candidate path is kept
type Filter interface {
	Accept(ctx context.Context, path string) (bool, error)
}

// Resetter is implemented by filters that keep state across one loader pass
type Resetter interface {
	Reset()
}

// 🎯 PatternFilter matches the basename of a path against a regular expression
// and records the named groups of every match in order.
type PatternFilter struct {
	re      *regexp.Regexp
	names   map[string]bool
	matches []Match
}

var _ Filter = (*PatternFilter)(nil)
var _ Resetter = (*PatternFilter)(nil)

// 🏭 NewPatternFilter compiles pattern. Flags go inline, e.g. (?i).
func NewPatternFilter(pattern string) (*PatternFilter, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, errors.Errorf("compiling pattern %q: %w", pattern, err)
	}

	names := map[string]bool{}
	for _, name := range re.SubexpNames() {
		if name != "" {
			names[name] = true
		}
	}

	return &PatternFilter{re: re, names: names}, nil
}

// Pattern returns the source of the regular expression
func (f *PatternFilter) Pattern() string {
	return f.re.String()
}

// Accept reports whether the basename of path matches and records the match
func (f *PatternFilter) Accept(_ context.Context, path string) (bool, error) {
	sub := f.re.FindStringSubmatch(filepath.Base(path))
	if sub == nil {
		return false, nil
	}

	m := Match{}
	for i, name := range f.re.SubexpNames() {
		if name != "" {
			m[name] = sub[i]
		}
	}
	f.matches = append(f.matches, m)

	return true, nil
}

// CountMatches returns the number of recorded matches
func (f *PatternFilter) CountMatches() int {
	return len(f.matches)
}

// Matches returns a copy of the recorded matches, oldest first
func (f *PatternFilter) Matches() []Match {
	out := make([]Match, len(f.matches))
	copy(out, f.matches)
	return out
}

// Match returns the named group of the most recent match
func (f *PatternFilter) Match(name string) (string, error) {
	return f.MatchAt(name, len(f.matches)-1)
}

// MatchAt returns the named group of the match at idx
func (f *PatternFilter) MatchAt(name string, idx int) (string, error) {
	if !f.names[name] {
		return "", errors.Errorf("%w: no group named %q in %s", ErrInvalidArgument, name, f.re)
	}
	if idx < 0 || idx >= len(f.matches) {
		return "", errors.Errorf("%w: match index %d out of range [0, %d)", ErrInvalidArgument, idx, len(f.matches))
	}
	return f.matches[idx][name], nil
}

// Reset clears the match history
func (f *PatternFilter) Reset() {
	f.matches = nil
}
