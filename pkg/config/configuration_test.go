// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	params, err := LoadJoinParameters(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, uint64(64<<20), params.MaxInitiallyFetchedData)
	require.Equal(t, uint64(100000), params.GraceMinTuples)
	require.Equal(t, uint64(64), params.PayloadIndirectionBytes)
	require.Equal(t, uint64(4), params.PayloadIndirectionMultiplicity)
	require.Equal(t, "info", params.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "join.toml")
	content := `
maxInitiallyFetchedData = 1024
graceMinTuples = 10

[log]
level = "debug"
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	params, err := LoadJoinParameters(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), params.MaxInitiallyFetchedData)
	require.Equal(t, uint64(10), params.GraceMinTuples)
	// untouched values fall back to defaults
	require.Equal(t, uint64(64), params.PayloadIndirectionBytes)
	require.Equal(t, "debug", params.Log.Level)
	require.Equal(t, "json", params.Log.Format)
}

func TestBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("maxInitiallyFetchedData = ["), 0o644))
	_, err := LoadJoinParameters(context.Background(), path)
	require.Error(t, err)
}
