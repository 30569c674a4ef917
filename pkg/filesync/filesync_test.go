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
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const uploadRoot = "/srv/uploads"

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	fs       afero.Fs
	store    *db.MemoryStore
	recorder *audit.Recorder
	clock    *clock.Manual
	tracker  *Tracker
	manager  *Manager
	files    *DeviceFiles
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := db.NewMemoryStore()

	for _, id := range []string{"esp001", "esp002"} {
		require.NoError(t, store.UpsertDevice(ctx, &models.Device{
			DeviceID: id, TokenHash: hashutil.TokenDigest(id), Status: models.DeviceStatusOffline, CreatedAt: start,
		}))
	}

	log := logger.NewTestLogger()
	fsys := afero.NewMemMapFs()
	c := clock.NewManual(start)
	recorder := audit.NewRecorder(store, log, audit.WithClock(c))
	tracker := NewTracker(store, fsys, c, log)
	cfg := &models.StorageConfig{
		UploadDir:         uploadRoot,
		MaxFileSize:       16,
		AllowedExtensions: []string{".txt", ".bin"},
	}

	return &fixture{
		fs:       fsys,
		store:    store,
		recorder: recorder,
		clock:    c,
		tracker:  tracker,
		manager:  NewManager(store, tracker, fsys, cfg, recorder, c, log),
		files:    NewDeviceFiles(fsys, cfg, tracker, recorder, log),
	}
}

func (f *fixture) events(t *testing.T, eventType string) int {
	t.Helper()

	events, err := f.recorder.List(context.Background(), models.AuditFilter{EventType: eventType})
	require.NoError(t, err)

	return len(events)
}

func TestValidateFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ok   bool
	}{
		{name: "firmware.bin", ok: true},
		{name: "log 2025-03-01.txt", ok: true},
		{name: ""},
		{name: "."},
		{name: ".."},
		{name: "../escape.txt"},
		{name: "nested/file.txt"},
		{name: `win\file.txt`},
		{name: ".hidden.txt"},
		{name: "nul\x00.txt"},
		{name: strings.Repeat("a", 252) + ".txt"},
	}

	for _, tt := range tests {
		err := ValidateFilename(tt.name)
		if tt.ok {
			assert.NoError(t, err, tt.name)
		} else {
			assert.ErrorIs(t, err, models.ErrValidation, tt.name)
		}
	}
}

func TestCreatePackageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.manager.CreatePackage(ctx, "fw", "esp404", models.SyncPackageTypeFirmware, "")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.manager.CreatePackage(ctx, "fw", "esp001", "kernel", "")
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = f.manager.CreatePackage(ctx, "   ", "esp001", models.SyncPackageTypeFirmware, "")
	require.ErrorIs(t, err, models.ErrValidation)

	assert.Zero(t, f.events(t, models.EventPackageCreated))
}

func TestPackageLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := f.manager.CreatePackage(ctx, "fw-1.2", "esp001", models.SyncPackageTypeFirmware, "nightly")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusStaged, pkg.Status)
	assert.Equal(t, 1, f.events(t, models.EventPackageCreated))

	staged, err := f.manager.ListStaged(ctx, "esp001")
	require.NoError(t, err)
	require.Len(t, staged, 1)

	staged, err = f.manager.ListStaged(ctx, "esp002")
	require.NoError(t, err)
	assert.Empty(t, staged)

	_, err = f.manager.MarkDeployed(ctx, pkg.ID, "esp002")
	require.ErrorIs(t, err, models.ErrNotFound, "other devices cannot see the package")

	deploying, err := f.manager.MarkDeploying(ctx, pkg.ID, "esp001")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusDeploying, deploying.Status)

	again, err := f.manager.MarkDeploying(ctx, pkg.ID, "esp001")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusDeploying, again.Status)

	staged, err = f.manager.ListStaged(ctx, "esp001")
	require.NoError(t, err)
	assert.Empty(t, staged)

	deployed, err := f.manager.MarkDeployed(ctx, pkg.ID, "esp001")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusDeployed, deployed.Status)
	require.NotNil(t, deployed.DeployedAt)
	assert.Equal(t, start, *deployed.DeployedAt)

	f.clock.Advance(time.Hour)

	repeat, err := f.manager.MarkDeployed(ctx, pkg.ID, "esp001")
	require.NoError(t, err)
	assert.Equal(t, start, *repeat.DeployedAt, "deployed_at is set once")
	assert.Equal(t, 1, f.events(t, models.EventPackageDeployed))

	_, err = f.manager.MarkFailed(ctx, pkg.ID, "too late")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.manager.MarkDeploying(ctx, pkg.ID, "esp001")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestFailedPackageCannotDeploy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := f.manager.CreatePackage(ctx, "cfg", "esp001", models.SyncPackageTypeConfig, "")
	require.NoError(t, err)

	_, err = f.manager.MarkFailed(ctx, pkg.ID, " ")
	require.ErrorIs(t, err, models.ErrValidation)

	failed, err := f.manager.MarkFailed(ctx, pkg.ID, "bad checksum")
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusFailed, failed.Status)

	_, err = f.manager.MarkFailed(ctx, pkg.ID, "bad checksum")
	require.NoError(t, err)
	assert.Equal(t, 1, f.events(t, models.EventPackageFailed))

	_, err = f.manager.MarkDeployed(ctx, pkg.ID, "esp001")
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Nil(t, failed.DeployedAt)
}

func TestAddFileAndOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := f.manager.CreatePackage(ctx, "fw", "esp001", models.SyncPackageTypeFirmware, "")
	require.NoError(t, err)

	file, updated, err := f.manager.AddFile(ctx, pkg.ID, "fw.bin", strings.NewReader("firmware"), "")
	require.NoError(t, err)

	want, _, err := hashutil.SumReader(strings.NewReader("firmware"))
	require.NoError(t, err)

	assert.Equal(t, want, file.SHA256)
	assert.Equal(t, int64(8), file.Size)
	assert.Equal(t, 1, updated.FileCount)
	assert.Equal(t, int64(8), updated.TotalSize)

	onDisk := filepath.Join(uploadRoot, "packages", "1", "fw.bin")
	content, err := afero.ReadFile(f.fs, onDisk)
	require.NoError(t, err)
	assert.Equal(t, "firmware", string(content))

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "fw.bin", strings.NewReader("other"), "")
	require.ErrorIs(t, err, models.ErrDuplicateFile)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "big.bin", bytes.NewReader(make([]byte, 17)), "")
	require.ErrorIs(t, err, models.ErrPayloadTooLarge)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "cfg.bin", strings.NewReader("tampered"), "sha256:"+want)
	require.ErrorIs(t, err, models.ErrValidation)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "cfg.bin", strings.NewReader("x"), "not-a-digest")
	require.ErrorIs(t, err, models.ErrValidation)

	entries, err := afero.ReadDir(f.fs, filepath.Dir(onDisk))
	require.NoError(t, err)
	require.Len(t, entries, 1, "rejected writes leave nothing behind")

	content, err = afero.ReadFile(f.fs, onDisk)
	require.NoError(t, err)
	assert.Equal(t, "firmware", string(content), "duplicates do not overwrite")

	_, _, err = f.manager.OpenFile(ctx, pkg.ID, "esp002", "fw.bin")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, _, err = f.manager.OpenFile(ctx, pkg.ID, "esp001", "missing.bin")
	require.ErrorIs(t, err, models.ErrFileNotFound)

	rc, entry, err := f.manager.OpenFile(ctx, pkg.ID, "esp001", "fw.bin")
	require.NoError(t, err)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "firmware", string(got))
	assert.Equal(t, want, entry.SHA256)

	history, err := f.tracker.History(ctx, "esp001", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.SyncTypeDownload, history[0].SyncType)
	assert.Equal(t, want, *history[0].FileHash)

	_, err = f.manager.MarkDeployed(ctx, pkg.ID, "esp001")
	require.NoError(t, err)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "late.bin", strings.NewReader("x"), "")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	_, _, err = f.manager.OpenFile(ctx, pkg.ID, "esp001", "fw.bin")
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	manifest, err := f.manager.Files(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Len(t, manifest, 1)
}

func TestDownloadRecordsBytesOnStorage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := f.manager.CreatePackage(ctx, "fw", "esp001", models.SyncPackageTypeFirmware, "")
	require.NoError(t, err)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "fw.bin", strings.NewReader("firmware"), "")
	require.NoError(t, err)

	// Replaced behind the manifest's back.
	onDisk := filepath.Join(uploadRoot, "packages", "1", "fw.bin")
	require.NoError(t, afero.WriteFile(f.fs, onDisk, []byte("patched-fw"), 0o644))

	actual, _, err := hashutil.SumReader(strings.NewReader("patched-fw"))
	require.NoError(t, err)

	rc, entry, err := f.manager.OpenFile(ctx, pkg.ID, "esp001", "fw.bin")
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.NotEqual(t, actual, entry.SHA256)

	history, err := f.tracker.History(ctx, "esp001", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].FileHash)
	assert.Equal(t, actual, *history[0].FileHash)
	assert.Equal(t, int64(10), history[0].FileSize)

	current, err := f.manager.Get(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageStatusDeploying, current.Status)
}

// stuckPackages refuses every package transition with a storage error.
type stuckPackages struct {
	*db.MemoryStore
}

func (stuckPackages) TransitionSyncPackage(context.Context, db.PackageTransition) (bool, error) {
	return false, db.ErrDatabaseError
}

func TestRefusedFetchRecordsNoDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pkg, err := f.manager.CreatePackage(ctx, "fw", "esp001", models.SyncPackageTypeFirmware, "")
	require.NoError(t, err)

	_, _, err = f.manager.AddFile(ctx, pkg.ID, "fw.bin", strings.NewReader("firmware"), "")
	require.NoError(t, err)

	log := logger.NewTestLogger()
	cfg := &models.StorageConfig{UploadDir: uploadRoot, MaxFileSize: 16}
	manager := NewManager(stuckPackages{f.store}, f.tracker, f.fs, cfg, f.recorder, f.clock, log)

	_, _, err = manager.OpenFile(ctx, pkg.ID, "esp001", "fw.bin")
	require.ErrorIs(t, err, models.ErrStorage)

	history, err := f.tracker.History(ctx, "esp001", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTrackFileOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	path := filepath.Join(uploadRoot, "device-esp001", "boot.log")
	require.NoError(t, afero.WriteFile(f.fs, path, []byte("hello"), 0o644))

	rec, err := f.tracker.TrackFileOp(ctx, "esp001", "boot.log", path, models.SyncTypeUpload)
	require.NoError(t, err)
	assert.Equal(t, models.FileSyncStatusCompleted, rec.Status)
	assert.Equal(t, int64(5), rec.FileSize)
	require.NotNil(t, rec.FileHash)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", *rec.FileHash)

	missing, err := f.tracker.TrackFileOp(ctx, "esp001", "gone.log", path+".old", models.SyncTypeUpload)
	require.NoError(t, err)
	assert.Nil(t, missing.FileHash)
	assert.Zero(t, missing.FileSize)
	assert.Equal(t, models.FileSyncStatusCompleted, missing.Status)

	failed, err := f.tracker.TrackFailure(ctx, "esp001", "x.log", path, models.SyncTypeUpload, "disk full")
	require.NoError(t, err)
	assert.Equal(t, models.FileSyncStatusFailed, failed.Status)
	assert.Equal(t, "disk full", *failed.ErrorMessage)

	history, err := f.tracker.History(ctx, "esp001", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, failed.ID, history[0].ID)
}

func TestDeviceUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.files.SaveUpload(ctx, "esp001", "run.exe", strings.NewReader("x"), models.SyncTypeUpload)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = f.files.SaveUpload(ctx, "esp001", "../esp002/x.txt", strings.NewReader("x"), models.SyncTypeUpload)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = f.files.SaveUpload(ctx, "esp001", "big.txt", bytes.NewReader(make([]byte, 17)), models.SyncTypeUpload)
	require.ErrorIs(t, err, models.ErrPayloadTooLarge)

	for _, name := range []string{"b.txt", "a.txt"} {
		rec, err := f.files.SaveUpload(ctx, "esp001", name, strings.NewReader("data-"+name), models.SyncTypeUpload)
		require.NoError(t, err)
		assert.Equal(t, int64(10), rec.FileSize)
		assert.NotNil(t, rec.FileHash)
	}

	assert.Equal(t, 2, f.events(t, models.EventFileUploaded))

	files, err := f.files.ListDeviceFiles(ctx, "esp001")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Filename)
	assert.Equal(t, "b.txt", files[1].Filename)

	none, err := f.files.ListDeviceFiles(ctx, "esp002")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.files.DeleteDeviceFile(ctx, "esp001", "c.txt")
	require.ErrorIs(t, err, models.ErrFileNotFound)

	rec, err := f.files.DeleteDeviceFile(ctx, "esp001", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, models.SyncTypeDelete, rec.SyncType)
	assert.Zero(t, rec.FileSize, "a deleted file has no bytes left to measure")
	assert.Nil(t, rec.FileHash)
	assert.Equal(t, 1, f.events(t, models.EventFileDeleted))

	files, err = f.files.ListDeviceFiles(ctx, "esp001")
	require.NoError(t, err)
	require.Len(t, files, 1)
}
