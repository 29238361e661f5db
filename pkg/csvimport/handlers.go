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

package csvimport

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gitlab.com/tozd/go/errors"
)

// ErrInvalidValue is returned by column handlers rejecting a value
var ErrInvalidValue = errors.Base("invalid value")

// 🔧 ColumnHandler transforms or validates one column value
type ColumnHandler interface {
	Handle(value string) (string, error)
}

// HandlerFunc adapts a function to ColumnHandler
type HandlerFunc func(value string) (string, error)

// Handle calls f(value)
func (f HandlerFunc) Handle(value string) (string, error) {
	return f(value)
}

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// 🗺️ handlers maps the names usable in column configuration to their handler
var handlers = map[string]ColumnHandler{
	"trim": HandlerFunc(func(v string) (string, error) {
		return strings.TrimSpace(v), nil
	}),
	"lower": HandlerFunc(func(v string) (string, error) {
		return strings.ToLower(v), nil
	}),
	"upper": HandlerFunc(func(v string) (string, error) {
		return strings.ToUpper(v), nil
	}),
	"required": HandlerFunc(func(v string) (string, error) {
		if strings.TrimSpace(v) == "" {
			return "", errors.Errorf("%w: value is required", ErrInvalidValue)
		}
		return v, nil
	}),
	"int": HandlerFunc(func(v string) (string, error) {
		if v == "" {
			return v, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", errors.Errorf("%w: %q is not an integer", ErrInvalidValue, v)
		}
		return strconv.FormatInt(n, 10), nil
	}),
	"decimal": HandlerFunc(func(v string) (string, error) {
		if v == "" {
			return v, nil
		}
		normalized := strings.Replace(v, ",", ".", 1)
		if !decimalPattern.MatchString(normalized) {
			return "", errors.Errorf("%w: %q is not a decimal", ErrInvalidValue, v)
		}
		return normalized, nil
	}),
}

// HandlerNames returns the sorted names of the available column handlers
func HandlerNames() []string {
	names := lo.Keys(handlers)
	sort.Strings(names)
	return names
}

// LookupHandler returns the column handler registered under name
func LookupHandler(name string) (ColumnHandler, error) {
	h, ok := handlers[name]
	if !ok {
		return nil, errors.Errorf("unknown column handler %q, expected one of %v", name, HandlerNames())
	}
	return h, nil
}

// 🔗 Chain runs its handlers in order, feeding each the previous output
type Chain []ColumnHandler

// Handle runs the chain
func (c Chain) Handle(value string) (string, error) {
	var err error
	for _, h := range c {
		if value, err = h.Handle(value); err != nil {
			return "", err
		}
	}
	return value, nil
}

// BuildChain resolves handler names into a chain
func BuildChain(names []string) (Chain, error) {
	chain := make(Chain, 0, len(names))
	for _, name := range names {
		h, err := LookupHandler(name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, h)
	}
	return chain, nil
}
