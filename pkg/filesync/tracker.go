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

package filesync

import (
	"context"
	"errors"
	"io/fs"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// Tracker appends FileSyncRecords. Records are never updated.
type Tracker struct {
	store  db.FileSyncStore
	fs     afero.Fs
	clock  clock.Clock
	logger logger.Logger
}

// NewTracker returns a tracker that hashes files through fsys.
func NewTracker(store db.FileSyncStore, fsys afero.Fs, c clock.Clock, log logger.Logger) *Tracker {
	if c == nil {
		c = clock.Real()
	}

	return &Tracker{store: store, fs: fsys, clock: c, logger: log}
}

// TrackFileOp records a completed operation on path. When the file exists it
// is hashed and its size taken from disk.
func (t *Tracker) TrackFileOp(ctx context.Context, deviceID, filename, path string,
	syncType models.SyncType) (*models.FileSyncRecord, error) {
	rec := &models.FileSyncRecord{
		DeviceID: deviceID,
		Filename: filename,
		Filepath: path,
		SyncType: syncType,
	}

	info, err := t.fs.Stat(path)

	switch {
	case err == nil && !info.IsDir():
		sum, size, hashErr := hashutil.SumFile(t.fs, path)
		if hashErr != nil {
			t.logger.Warn().Err(hashErr).Str("path", path).Msg("could not hash tracked file")

			rec.FileSize = info.Size()
		} else {
			rec.FileHash = &sum
			rec.FileSize = size
		}
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		t.logger.Warn().Err(err).Str("path", path).Msg("could not stat tracked file")
	}

	return t.complete(ctx, rec)
}

// TrackFailure records a failed operation with its error message.
func (t *Tracker) TrackFailure(ctx context.Context, deviceID, filename, path string,
	syncType models.SyncType, cause string) (*models.FileSyncRecord, error) {
	now := t.clock.Now()
	rec := &models.FileSyncRecord{
		DeviceID:     deviceID,
		Filename:     filename,
		Filepath:     path,
		SyncType:     syncType,
		Status:       models.FileSyncStatusFailed,
		Timestamp:    now,
		CompletedAt:  &now,
		ErrorMessage: &cause,
	}

	if err := t.store.InsertFileSyncRecord(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// complete stamps rec as completed and stores it.
func (t *Tracker) complete(ctx context.Context, rec *models.FileSyncRecord) (*models.FileSyncRecord, error) {
	now := t.clock.Now()

	rec.Status = models.FileSyncStatusCompleted
	rec.Timestamp = now
	rec.CompletedAt = &now

	if err := t.store.InsertFileSyncRecord(ctx, rec); err != nil {
		return nil, err
	}

	return rec, nil
}

// History lists a device's records, newest first.
func (t *Tracker) History(ctx context.Context, deviceID string, limit int) ([]*models.FileSyncRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	return t.store.ListFileSyncRecords(ctx, deviceID, limit)
}
