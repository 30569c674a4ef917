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
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

// DeviceFiles is the per-device upload area, <upload_dir>/device-<id>/.
type DeviceFiles struct {
	fs      afero.Fs
	cfg     *models.StorageConfig
	tracker *Tracker
	auditor audit.Emitter
	logger  logger.Logger
}

// NewDeviceFiles returns the upload area rooted at cfg.UploadDir.
func NewDeviceFiles(fsys afero.Fs, cfg *models.StorageConfig, tracker *Tracker, auditor audit.Emitter,
	log logger.Logger) *DeviceFiles {
	return &DeviceFiles{fs: fsys, cfg: cfg, tracker: tracker, auditor: auditor, logger: log}
}

// SaveUpload stores a device upload, replacing a file of the same name.
func (d *DeviceFiles) SaveUpload(ctx context.Context, deviceID, filename string, r io.Reader,
	syncType models.SyncType) (*models.FileSyncRecord, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	if !d.cfg.Allowed(filename) {
		return nil, fmt.Errorf("%w: file type %q not allowed", models.ErrValidation,
			strings.ToLower(filepath.Ext(filename)))
	}

	dir := deviceDir(d.cfg.UploadDir, deviceID)
	dst := filepath.Join(dir, filename)

	part, err := writePartial(d.fs, dir, r, d.cfg.MaxFileSize)
	if err == nil {
		err = part.commit(dst)
	}

	if err != nil {
		if errors.Is(err, models.ErrStorage) {
			d.uploadFailed(ctx, deviceID, filename, dst, syncType, err)
		}

		return nil, err
	}

	rec, err := d.tracker.TrackFileOp(ctx, deviceID, filename, dst, syncType)
	if err != nil {
		return nil, err
	}

	if err := d.auditor.Emit(ctx, models.EventFileUploaded, deviceID, models.SeverityInfo,
		fmt.Sprintf("file %q uploaded from device %s", filename, deviceID),
		map[string]any{"filename": filename, "size": rec.FileSize, "sync_id": rec.ID}); err != nil {
		return nil, err
	}

	return rec, nil
}

func (d *DeviceFiles) uploadFailed(ctx context.Context, deviceID, filename, path string, syncType models.SyncType,
	cause error) {
	if _, err := d.tracker.TrackFailure(ctx, deviceID, filename, path, syncType, cause.Error()); err != nil {
		d.logger.Error().Err(err).Str("device_id", deviceID).Msg("could not record failed upload")
	}

	if err := d.auditor.Emit(ctx, models.EventFileUploadError, deviceID, models.SeverityError,
		fmt.Sprintf("failed to upload file %q", filename), nil); err != nil {
		d.logger.Error().Err(err).Str("device_id", deviceID).Msg("could not record upload error event")
	}
}

// ListDeviceFiles returns the regular files in a device's area sorted by
// name. A device that never uploaded has an empty area.
func (d *DeviceFiles) ListDeviceFiles(_ context.Context, deviceID string) ([]models.DeviceFile, error) {
	entries, err := afero.ReadDir(d.fs, deviceDir(d.cfg.UploadDir, deviceID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.DeviceFile{}, nil
		}

		return nil, fmt.Errorf("%w: list device files: %v", models.ErrStorage, err)
	}

	files := make([]models.DeviceFile, 0, len(entries))

	for _, e := range entries {
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		files = append(files, models.DeviceFile{
			Filename: e.Name(),
			Size:     e.Size(),
			Modified: e.ModTime().UTC(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	return files, nil
}

// DeleteDeviceFile removes one file from a device's area.
func (d *DeviceFiles) DeleteDeviceFile(ctx context.Context, deviceID, filename string) (*models.FileSyncRecord, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, err
	}

	path := filepath.Join(deviceDir(d.cfg.UploadDir, deviceID), filename)

	info, err := d.fs.Stat(path)

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, models.ErrFileNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: stat %s: %v", models.ErrStorage, filename, err)
	case !info.Mode().IsRegular():
		return nil, models.ErrFileNotFound
	}

	if err := d.fs.Remove(path); err != nil {
		if _, trackErr := d.tracker.TrackFailure(ctx, deviceID, filename, path, models.SyncTypeDelete,
			err.Error()); trackErr != nil {
			d.logger.Error().Err(trackErr).Str("device_id", deviceID).Msg("could not record failed delete")
		}

		if emitErr := d.auditor.Emit(ctx, models.EventFileDeleteError, deviceID, models.SeverityError,
			fmt.Sprintf("failed to delete file %q", filename), nil); emitErr != nil {
			d.logger.Error().Err(emitErr).Str("device_id", deviceID).Msg("could not record delete error event")
		}

		return nil, fmt.Errorf("%w: delete %s: %v", models.ErrStorage, filename, err)
	}

	// The file is gone, so the record carries no hash or size.
	rec, err := d.tracker.TrackFileOp(ctx, deviceID, filename, path, models.SyncTypeDelete)
	if err != nil {
		return nil, err
	}

	if err := d.auditor.Emit(ctx, models.EventFileDeleted, deviceID, models.SeverityInfo,
		fmt.Sprintf("file %q deleted from device %s", filename, deviceID),
		map[string]any{"filename": filename, "size": info.Size()}); err != nil {
		return nil, err
	}

	return rec, nil
}
