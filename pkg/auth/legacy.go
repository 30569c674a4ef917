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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
)

// LegacyTable is the pre-registration token map {deviceId: token}. It is
// consulted only for devices without a persistent record, and an entry is
// retired as soon as the device has been provisioned from it.
type LegacyTable struct {
	mu      sync.RWMutex
	fs      afero.Fs
	path    string
	entries map[string]string
	logger  logger.Logger
}

// NewLegacyTable loads the table at path. A missing file is an empty table;
// an empty path keeps the table in memory only.
func NewLegacyTable(fs afero.Fs, path string, log logger.Logger) (*LegacyTable, error) {
	t := &LegacyTable{
		fs:      fs,
		path:    path,
		entries: make(map[string]string),
		logger:  log,
	}

	if err := t.Reload(); err != nil {
		return nil, err
	}

	return t, nil
}

// Reload replaces the in-memory table with the file contents.
func (t *LegacyTable) Reload() error {
	if t.path == "" {
		return nil
	}

	data, err := afero.ReadFile(t.fs, t.path)
	if errors.Is(err, os.ErrNotExist) {
		t.mu.Lock()
		t.entries = make(map[string]string)
		t.mu.Unlock()

		return nil
	}

	if err != nil {
		return fmt.Errorf("read legacy token table: %w", err)
	}

	entries := make(map[string]string)

	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("parse legacy token table %s: %w", t.path, err)
		}
	}

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()

	return nil
}

// Match reports whether token is the legacy token of deviceID.
func (t *LegacyTable) Match(deviceID, token string) bool {
	t.mu.RLock()
	stored, ok := t.entries[deviceID]
	t.mu.RUnlock()

	return ok && stored != "" && hashutil.EqualStrings(stored, token)
}

// Has reports whether deviceID has an entry.
func (t *LegacyTable) Has(deviceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.entries[deviceID]

	return ok
}

// Len returns the number of entries.
func (t *LegacyTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// DeviceIDs returns the ids with an entry, sorted.
func (t *LegacyTable) DeviceIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// Set stores token for deviceID and persists the table.
func (t *LegacyTable) Set(deviceID, token string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, had := t.entries[deviceID]
	t.entries[deviceID] = token

	if err := t.persistLocked(); err != nil {
		if had {
			t.entries[deviceID] = previous
		} else {
			delete(t.entries, deviceID)
		}

		return err
	}

	return nil
}

// SeedMissing adds entries that are not present yet and persists once.
func (t *LegacyTable) SeedMissing(seeds map[string]string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0

	for id, token := range seeds {
		if _, ok := t.entries[id]; ok || token == "" {
			continue
		}

		t.entries[id] = token
		added++
	}

	if added == 0 {
		return 0, nil
	}

	return added, t.persistLocked()
}

// Remove deletes the entry for deviceID and reports whether one existed.
func (t *LegacyTable) Remove(deviceID string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	previous, ok := t.entries[deviceID]
	if !ok {
		return false, nil
	}

	delete(t.entries, deviceID)

	if err := t.persistLocked(); err != nil {
		t.entries[deviceID] = previous

		return false, err
	}

	return true, nil
}

// persistLocked writes the table to a temp file and renames it over path.
func (t *LegacyTable) persistLocked() error {
	if t.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(t.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode legacy token table: %w", err)
	}

	dir := filepath.Dir(t.path)
	if err := t.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create legacy token dir: %w", err)
	}

	tmp, err := afero.TempFile(t.fs, dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("create legacy token temp file: %w", err)
	}

	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = t.fs.Remove(tmpName)

		return fmt.Errorf("write legacy token table: %w", err)
	}

	if err := t.fs.Chmod(tmpName, 0o600); err != nil {
		_ = t.fs.Remove(tmpName)

		return fmt.Errorf("chmod legacy token table: %w", err)
	}

	if err := t.fs.Rename(tmpName, t.path); err != nil {
		_ = t.fs.Remove(tmpName)

		return fmt.Errorf("replace legacy token table: %w", err)
	}

	return nil
}

// Watch reloads the table whenever the file changes on disk until ctx is
// done. It watches the parent directory so atomic replacements are seen.
// Only OS-backed tables can be watched; others return once ctx is done.
func (t *LegacyTable) Watch(ctx context.Context) error {
	if _, ok := t.fs.(*afero.OsFs); !ok || t.path == "" {
		<-ctx.Done()

		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create legacy token watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create legacy token dir: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(t.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target ||
				event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			if err := t.Reload(); err != nil {
				t.logger.Warn().Err(err).Str("path", t.path).Msg("failed to reload legacy token table")

				continue
			}

			t.logger.Info().Int("entries", t.Len()).Msg("legacy token table reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			t.logger.Warn().Err(err).Msg("legacy token watcher error")
		}
	}
}
