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

package hub

import (
	"context"
	"io"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/models"
)

// ListStagedPackages returns the packages waiting for the caller.
func (h *Hub) ListStagedPackages(ctx context.Context, caller Caller) ([]*models.SyncPackage, error) {
	if _, err := h.authenticate(ctx, "list_staged_packages", caller); err != nil {
		return nil, err
	}

	pkgs, err := h.packages.ListStaged(ctx, caller.DeviceID)
	if err != nil {
		return nil, h.check(ctx, "list_staged_packages", err)
	}

	return pkgs, nil
}

// DownloadPackage confirms delivery of one of the caller's packages.
func (h *Hub) DownloadPackage(ctx context.Context, caller Caller, packageID int64) (*models.SyncPackage, error) {
	if _, err := h.authenticate(ctx, "download_package", caller); err != nil {
		return nil, err
	}

	pkg, err := h.packages.MarkDeployed(ctx, packageID, caller.DeviceID)
	if err != nil {
		return nil, h.check(ctx, "download_package", err)
	}

	return pkg, nil
}

// FetchPackageFile opens a file of one of the caller's packages. The first
// fetch moves the package to deploying. The caller closes the file.
func (h *Hub) FetchPackageFile(ctx context.Context, caller Caller, packageID int64,
	filename string) (afero.File, *models.SyncPackageFile, error) {
	if _, err := h.authenticate(ctx, "fetch_package_file", caller); err != nil {
		return nil, nil, err
	}

	f, entry, err := h.packages.OpenFile(ctx, packageID, caller.DeviceID, filename)
	if err != nil {
		return nil, nil, h.check(ctx, "fetch_package_file", err)
	}

	return f, entry, nil
}

// UploadFile stores a file sent by the caller.
func (h *Hub) UploadFile(ctx context.Context, caller Caller, filename string, r io.Reader,
	syncType models.SyncType) (*models.FileSyncRecord, error) {
	if _, err := h.authenticate(ctx, "upload_file", caller); err != nil {
		return nil, err
	}

	rec, err := h.files.SaveUpload(ctx, caller.DeviceID, filename, r, syncType)
	if err != nil {
		return nil, h.check(ctx, "upload_file", err)
	}

	h.metrics.UploadBytes(ctx, rec.FileSize)

	return rec, nil
}

// ListFiles lists the caller's uploads.
func (h *Hub) ListFiles(ctx context.Context, caller Caller) ([]models.DeviceFile, error) {
	if _, err := h.authenticate(ctx, "list_files", caller); err != nil {
		return nil, err
	}

	files, err := h.files.ListDeviceFiles(ctx, caller.DeviceID)
	if err != nil {
		return nil, h.check(ctx, "list_files", err)
	}

	return files, nil
}

// DeleteFile removes one of the caller's uploads.
func (h *Hub) DeleteFile(ctx context.Context, caller Caller, filename string) (*models.FileSyncRecord, error) {
	if _, err := h.authenticate(ctx, "delete_file", caller); err != nil {
		return nil, err
	}

	rec, err := h.files.DeleteDeviceFile(ctx, caller.DeviceID, filename)
	if err != nil {
		return nil, h.check(ctx, "delete_file", err)
	}

	return rec, nil
}

// SyncHistory lists the caller's file operations, newest first.
func (h *Hub) SyncHistory(ctx context.Context, caller Caller, limit int) ([]*models.FileSyncRecord, error) {
	if _, err := h.authenticate(ctx, "sync_history", caller); err != nil {
		return nil, err
	}

	records, err := h.tracker.History(ctx, caller.DeviceID, limit)
	if err != nil {
		return nil, h.check(ctx, "sync_history", err)
	}

	return records, nil
}
