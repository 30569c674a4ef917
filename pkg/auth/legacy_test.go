/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dropsync/pkg/logger"
)

func TestLegacyTablePersistsAtomically(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/etc/dropsync/device_tokens.json"

	table, err := NewLegacyTable(fs, path, logger.NewTestLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())

	require.NoError(t, table.Set("esp001", "tok-1"))
	require.NoError(t, table.Set("esp002", "tok-2"))

	removed, err := table.Remove("esp001")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = table.Remove("esp001")
	require.NoError(t, err)
	assert.False(t, removed)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"esp002":"tok-2"}`, string(data))

	entries, err := afero.ReadDir(fs, filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")

	reopened, err := NewLegacyTable(fs, path, logger.NewTestLogger())
	require.NoError(t, err)
	assert.True(t, reopened.Match("esp002", "tok-2"))
	assert.False(t, reopened.Match("esp002", "tok-22"))
	assert.Equal(t, []string{"esp002"}, reopened.DeviceIDs())
}

func TestLegacyTableSeedMissing(t *testing.T) {
	table, err := NewLegacyTable(afero.NewMemMapFs(), "/tokens.json", logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, table.Set("esp001", "kept"))

	added, err := table.SeedMissing(map[string]string{"esp001": "ignored", "esp002": "seeded", "esp003": ""})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.True(t, table.Match("esp001", "kept"))
	assert.True(t, table.Match("esp002", "seeded"))
	assert.False(t, table.Has("esp003"))
}

func TestLegacyTableRejectsCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tokens.json", []byte("{not json"), 0o600))

	_, err := NewLegacyTable(fs, "/tokens.json", logger.NewTestLogger())
	require.Error(t, err)
}

func TestLegacyTableWatchPicksUpExternalEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "device_tokens.json")

	table, err := NewLegacyTable(afero.NewOsFs(), path, logger.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- table.Watch(ctx) }()

	// Keep editing until the watcher has been registered and sees a change.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"esp042":"edited"}`), 0o600)

		return table.Match("esp042", "edited")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
