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

package resolver

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/bunchimport/pkg/config"
	"github.com/walteh/bunchimport/pkg/fsys"
)

func testContext(t *testing.T) context.Context {
	return zerolog.New(zerolog.NewTestWriter(t)).WithContext(context.Background())
}

func newResolver(t *testing.T, okNeeded bool, files map[string]string) (*fsys.Adapter, *Resolver) {
	t.Helper()
	ctx := testContext(t)

	cfg := &config.Config{
		SourceDir:   "/in",
		PidFilename: "/tmp/test.pid",
		Subjects: []config.Subject{{
			Name:         "product",
			OkFileNeeded: okNeeded,
			FileResolver: &config.FileResolver{
				Prefix:   "imp",
				Filename: `\d{8}`,
				Counter:  `\d{2}`,
			},
		}},
	}
	require.NoError(t, config.Validate(ctx, cfg))

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/in", 0o755))
	a := fsys.New(fs)
	for path, content := range files {
		require.NoError(t, a.Write(path, []byte(content)))
	}

	r, err := New(a, cfg.SourceDir, &cfg.Subjects[0])
	require.NoError(t, err)
	return a, r
}

func TestResolveEmptyOkFileBunch(t *testing.T) {
	ctx := testContext(t)
	a, r := newResolver(t, true, map[string]string{
		"/in/imp_20240101_01.csv": "sku\n",
		"/in/imp_20240101_02.csv": "sku\n",
		"/in/imp_20240101.ok":     "",
	})

	first, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/imp_20240101_01.csv"}, first.Files, "the empty ok file clears the first csv only")
	assert.Equal(t, 2, first.Matched, "both csv files follow the naming convention")
	assert.Equal(t, 3, first.Listed)
	assert.False(t, a.IsFile("/in/imp_20240101.ok"), "empty ok file is deleted by the first csv")

	second, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Files, "without an ok file the second csv is rejected")
	assert.Equal(t, 2, second.Matched)
	assert.True(t, second.Waiting())
}

func TestResolveListedOkFile(t *testing.T) {
	ctx := testContext(t)
	a, r := newResolver(t, true, map[string]string{
		"/in/imp_20240101_01.csv": "sku\n",
		"/in/imp_20240101_02.csv": "sku\n",
		"/in/imp_20240101_03.csv": "sku\n",
		"/in/imp_20240101.ok":     "imp_20240101_01.csv\nimp_20240101_02.csv\n",
	})

	res, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/imp_20240101_01.csv", "/in/imp_20240101_02.csv"}, res.Files)
	assert.Equal(t, 3, res.Matched)
	assert.False(t, a.IsFile("/in/imp_20240101.ok"), "fully consumed ok file is deleted")
}

func TestResolveWithoutOkFile(t *testing.T) {
	ctx := testContext(t)
	_, r := newResolver(t, false, map[string]string{
		"/in/imp_20240101_02.csv": "sku\n",
		"/in/imp_20240101_01.csv": "sku\n",
		"/in/cat_20240101_01.csv": "sku\n",
	})

	res, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/imp_20240101_01.csv", "/in/imp_20240101_02.csv"}, res.Files)
	assert.False(t, res.Waiting())

	again, err := r.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Files, again.Files, "resolving without ok files is repeatable")
}

func TestResolveNothing(t *testing.T) {
	_, r := newResolver(t, true, nil)

	res, err := r.Resolve(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, res.Files)
	assert.Equal(t, 0, res.Matched)
	assert.False(t, res.Waiting())
	assert.Equal(t, "product", res.Subject)
	assert.Equal(t, "product", r.Subject().Name)
	assert.NotNil(t, r.OkFiles())
}
