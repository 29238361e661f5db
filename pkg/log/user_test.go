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

package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"gitlab.com/tozd/go/errors"
)

func TestUserLogger(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	tests := []struct {
		name string
		op   func(u *UserLogger)
		want []string
	}{
		{
			name: "state_change",
			op:   func(u *UserLogger) { u.LogStateChange("created 2 ok file(s)") },
			want: []string{"created 2 ok file(s)"},
		},
		{
			name: "validation_ok",
			op:   func(u *UserLogger) { u.LogValidation(true, "config is valid", nil) },
			want: []string{"config is valid"},
		},
		{
			name: "validation_error",
			op:   func(u *UserLogger) { u.LogValidation(false, "command failed", errors.New("boom")) },
			want: []string{"command failed", "boom"},
		},
		{
			name: "validation_warning",
			op:   func(u *UserLogger) { u.LogValidation(false, "nothing to do", nil) },
			want: []string{"nothing to do"},
		},
		{
			name: "lock_acquired",
			op:   func(u *UserLogger) { u.LogLockOperation(true, "/tmp/x.pid", nil) },
			want: []string{"acquired lock on /tmp/x.pid"},
		},
		{
			name: "lock_failed",
			op:   func(u *UserLogger) { u.LogLockOperation(false, "/tmp/x.pid", errors.New("held")) },
			want: []string{"failed to acquire lock on /tmp/x.pid", "held"},
		},
		{
			name: "lock_released",
			op:   func(u *UserLogger) { u.LogLockOperation(false, "/tmp/x.pid", nil) },
			want: []string{"released lock on /tmp/x.pid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			ctx := zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())

			tt.op(NewUserLogger(ctx, buf))

			for _, want := range tt.want {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
