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

// Package filesync stages sync packages for devices, stores device uploads
// and keeps the append-only file sync history.
package filesync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	maxPackageNameLength = 255
	maxDescriptionLength = 4096
	defaultPackageLimit  = 100
	maxPackageLimit      = 1000
)

var (
	errPackageNameRequired = fmt.Errorf("%w: package name is required", models.ErrValidation)
	errPackageNameTooLong  = fmt.Errorf("%w: package name exceeds %d bytes", models.ErrValidation, maxPackageNameLength)
	errDescriptionTooLong  = fmt.Errorf("%w: description exceeds %d bytes", models.ErrValidation, maxDescriptionLength)
	errReasonRequired      = fmt.Errorf("%w: failure reason is required", models.ErrValidation)
)

// Manager owns the sync package lifecycle:
//
//	staged -> deploying -> deployed
//	   \          \
//	    `----------`-----> failed
//
// Deployed and failed are terminal.
type Manager struct {
	packages db.PackageStore
	devices  db.DeviceStore
	tracker  *Tracker
	fs       afero.Fs
	root     string
	maxSize  int64
	auditor  audit.Emitter
	clock    clock.Clock
	logger   logger.Logger
	deployed func(context.Context, *models.SyncPackage)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDeployHook calls fn once for every package that becomes deployed.
func WithDeployHook(fn func(context.Context, *models.SyncPackage)) ManagerOption {
	return func(m *Manager) { m.deployed = fn }
}

// NewManager stores package files under <storage.upload_dir>/packages.
func NewManager(store db.Service, tracker *Tracker, fsys afero.Fs, cfg *models.StorageConfig,
	auditor audit.Emitter, c clock.Clock, log logger.Logger, opts ...ManagerOption) *Manager {
	if c == nil {
		c = clock.Real()
	}

	m := &Manager{
		packages: store,
		devices:  store,
		tracker:  tracker,
		fs:       fsys,
		root:     cfg.UploadDir,
		maxSize:  cfg.MaxFileSize,
		auditor:  auditor,
		clock:    c,
		logger:   log,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// CreatePackage stages an empty package for an existing device.
func (m *Manager) CreatePackage(ctx context.Context, name, targetDeviceID string, packageType models.SyncPackageType,
	description string) (*models.SyncPackage, error) {
	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return nil, errPackageNameRequired
	case len(name) > maxPackageNameLength:
		return nil, errPackageNameTooLong
	case len(description) > maxDescriptionLength:
		return nil, errDescriptionTooLong
	}

	if _, err := models.ParseSyncPackageType(string(packageType)); err != nil {
		return nil, err
	}

	if _, err := m.devices.GetDevice(ctx, targetDeviceID); err != nil {
		return nil, err
	}

	pkg := &models.SyncPackage{
		PackageName:    name,
		TargetDeviceID: targetDeviceID,
		PackageType:    packageType,
		Status:         models.SyncPackageStatusStaged,
		CreatedAt:      m.clock.Now(),
		Description:    description,
	}

	if err := m.packages.InsertSyncPackage(ctx, pkg); err != nil {
		return nil, err
	}

	if err := m.auditor.Emit(ctx, models.EventPackageCreated, models.SourceAdmin, models.SeverityInfo,
		fmt.Sprintf("sync package %q staged for device %s", name, targetDeviceID),
		map[string]any{"package_id": pkg.ID, "device_id": targetDeviceID, "package_type": packageType}); err != nil {
		return nil, err
	}

	return pkg, nil
}

// Get returns a package by id.
func (m *Manager) Get(ctx context.Context, packageID int64) (*models.SyncPackage, error) {
	return m.packages.GetSyncPackage(ctx, packageID)
}

// ListStaged returns the packages waiting for deviceID.
func (m *Manager) ListStaged(ctx context.Context, deviceID string) ([]*models.SyncPackage, error) {
	return m.packages.ListSyncPackages(ctx, models.SyncPackageFilter{
		DeviceID: deviceID,
		Statuses: []models.SyncPackageStatus{models.SyncPackageStatusStaged},
	})
}

// ListPackages is the admin listing.
func (m *Manager) ListPackages(ctx context.Context, filter models.SyncPackageFilter) ([]*models.SyncPackage, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPackageLimit
	case filter.Limit > maxPackageLimit:
		filter.Limit = maxPackageLimit
	}

	return m.packages.ListSyncPackages(ctx, filter)
}

// Files returns the manifest of a package.
func (m *Manager) Files(ctx context.Context, packageID int64) ([]*models.SyncPackageFile, error) {
	if _, err := m.packages.GetSyncPackage(ctx, packageID); err != nil {
		return nil, err
	}

	return m.packages.ListSyncPackageFiles(ctx, packageID)
}

// targeted loads a package and hides it from every device but its target.
func (m *Manager) targeted(ctx context.Context, packageID int64, deviceID string) (*models.SyncPackage, error) {
	pkg, err := m.packages.GetSyncPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	if pkg.TargetDeviceID != deviceID {
		return nil, models.ErrSyncPackageNotFound
	}

	return pkg, nil
}

// transition moves a package to `to` from any of `from`. When the store
// refuses, the current row decides: already at `to` is a no-op success and
// anything else is ErrInvalidTransition.
func (m *Manager) transition(ctx context.Context, pkg *models.SyncPackage, from []models.SyncPackageStatus,
	to models.SyncPackageStatus) (*models.SyncPackage, bool, error) {
	if pkg.Status == to {
		return pkg, false, nil
	}

	moved, err := m.packages.TransitionSyncPackage(ctx, db.PackageTransition{
		PackageID: pkg.ID,
		From:      from,
		To:        to,
		At:        m.clock.Now(),
	})
	if err != nil {
		return nil, false, err
	}

	current, err := m.packages.GetSyncPackage(ctx, pkg.ID)
	if err != nil {
		return nil, false, err
	}

	if !moved {
		if current.Status == to {
			return current, false, nil
		}

		return nil, false, fmt.Errorf("%w: package %d is %s", models.ErrInvalidTransition, pkg.ID, current.Status)
	}

	return current, true, nil
}

// MarkDeploying records that deviceID started pulling the package.
func (m *Manager) MarkDeploying(ctx context.Context, packageID int64, deviceID string) (*models.SyncPackage, error) {
	pkg, err := m.targeted(ctx, packageID, deviceID)
	if err != nil {
		return nil, err
	}

	pkg, _, err = m.transition(ctx, pkg,
		[]models.SyncPackageStatus{models.SyncPackageStatusStaged}, models.SyncPackageStatusDeploying)

	return pkg, err
}

// MarkDeployed finishes delivery. Repeating it on a deployed package returns
// the package unchanged and records nothing.
func (m *Manager) MarkDeployed(ctx context.Context, packageID int64, deviceID string) (*models.SyncPackage, error) {
	pkg, err := m.targeted(ctx, packageID, deviceID)
	if err != nil {
		return nil, err
	}

	pkg, moved, err := m.transition(ctx, pkg,
		[]models.SyncPackageStatus{models.SyncPackageStatusStaged, models.SyncPackageStatusDeploying},
		models.SyncPackageStatusDeployed)
	if err != nil || !moved {
		return pkg, err
	}

	if err := m.auditor.Emit(ctx, models.EventPackageDeployed, deviceID, models.SeverityInfo,
		fmt.Sprintf("sync package %q deployed to device %s", pkg.PackageName, deviceID),
		map[string]any{"package_id": pkg.ID}); err != nil {
		return nil, err
	}

	if m.deployed != nil {
		m.deployed(ctx, pkg)
	}

	return pkg, nil
}

// MarkFailed abandons a package that has not reached a terminal state.
func (m *Manager) MarkFailed(ctx context.Context, packageID int64, reason string) (*models.SyncPackage, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errReasonRequired
	}

	pkg, err := m.packages.GetSyncPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	pkg, moved, err := m.transition(ctx, pkg,
		[]models.SyncPackageStatus{models.SyncPackageStatusStaged, models.SyncPackageStatusDeploying},
		models.SyncPackageStatusFailed)
	if err != nil || !moved {
		return pkg, err
	}

	if err := m.auditor.Emit(ctx, models.EventPackageFailed, models.SourceAdmin, models.SeverityWarning,
		fmt.Sprintf("sync package %q failed: %s", pkg.PackageName, reason),
		map[string]any{"package_id": pkg.ID, "device_id": pkg.TargetDeviceID, "reason": reason}); err != nil {
		return nil, err
	}

	return pkg, nil
}

// AddFile stages a file into a staged package. The manifest row and the
// aggregate counters are written together; the file only becomes visible
// after the store accepted it.
func (m *Manager) AddFile(ctx context.Context, packageID int64, filename string, r io.Reader,
	expectedSHA256 string) (*models.SyncPackageFile, *models.SyncPackage, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, nil, err
	}

	var want string

	if expectedSHA256 != "" {
		canonical, err := hashutil.CanonicalHexSHA256(expectedSHA256)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: sha256: %w", models.ErrValidation, err)
		}

		want = canonical
	}

	pkg, err := m.packages.GetSyncPackage(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}

	if pkg.Status != models.SyncPackageStatusStaged {
		return nil, nil, fmt.Errorf("%w: package %d is %s", models.ErrInvalidTransition, packageID, pkg.Status)
	}

	dir := packageDir(m.root, packageID)

	part, err := writePartial(m.fs, dir, r, m.maxSize)
	if err != nil {
		return nil, nil, err
	}

	if want != "" && want != part.sum {
		part.discard()

		return nil, nil, fmt.Errorf("%w: %q has sha256 %s, expected %s", models.ErrValidation, filename, part.sum, want)
	}

	file := &models.SyncPackageFile{
		PackageID: packageID,
		Filename:  filename,
		Size:      part.size,
		SHA256:    part.sum,
		AddedAt:   m.clock.Now(),
	}

	updated, err := m.packages.AddSyncPackageFile(ctx, file)
	if err != nil {
		part.discard()
		return nil, nil, err
	}

	if err := part.commit(filepath.Join(dir, filename)); err != nil {
		m.logger.Error().Err(err).Int64("package_id", packageID).Str("filename", filename).
			Msg("package manifest references a file that could not be stored")

		return nil, nil, err
	}

	if err := m.auditor.Emit(ctx, models.EventPackageFileAdded, models.SourceAdmin, models.SeverityInfo,
		fmt.Sprintf("file %q added to sync package %q", filename, updated.PackageName),
		map[string]any{"package_id": packageID, "filename": filename, "size": file.Size, "sha256": file.SHA256}); err != nil {
		return nil, nil, err
	}

	return file, updated, nil
}

// OpenFile opens a manifest file for the target device while the package is
// still being delivered. The first fetch moves the package to deploying; the
// download is recorded from the bytes on storage once that move succeeded.
func (m *Manager) OpenFile(ctx context.Context, packageID int64, deviceID, filename string) (afero.File,
	*models.SyncPackageFile, error) {
	if err := ValidateFilename(filename); err != nil {
		return nil, nil, err
	}

	pkg, err := m.targeted(ctx, packageID, deviceID)
	if err != nil {
		return nil, nil, err
	}

	if pkg.Status.Terminal() {
		return nil, nil, fmt.Errorf("%w: package %d is %s", models.ErrInvalidTransition, packageID, pkg.Status)
	}

	manifest, err := m.packages.ListSyncPackageFiles(ctx, packageID)
	if err != nil {
		return nil, nil, err
	}

	var entry *models.SyncPackageFile

	for _, f := range manifest {
		if f.Filename == filename {
			entry = f
			break
		}
	}

	if entry == nil {
		return nil, nil, models.ErrFileNotFound
	}

	path := filepath.Join(packageDir(m.root, packageID), filename)

	f, err := m.fs.Open(path)
	if err != nil {
		if errors.Is(err, afero.ErrFileNotFound) {
			return nil, nil, models.ErrFileNotFound
		}

		return nil, nil, fmt.Errorf("%w: open %s: %v", models.ErrStorage, path, err)
	}

	if _, err := m.MarkDeploying(ctx, packageID, deviceID); err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	if _, err := m.tracker.TrackFileOp(ctx, deviceID, filename, path, models.SyncTypeDownload); err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	return f, entry, nil
}
