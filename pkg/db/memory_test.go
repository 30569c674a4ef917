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

package db

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dropsync/pkg/models"
)

var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedDevice(t *testing.T, store *MemoryStore, deviceID, tokenHash string) {
	t.Helper()

	require.NoError(t, store.UpsertDevice(context.Background(), &models.Device{
		DeviceID:   deviceID,
		TokenHash:  tokenHash,
		DeviceType: models.DefaultDeviceType,
		Status:     models.DeviceStatusOffline,
		CreatedAt:  testEpoch,
	}))
}

func TestMemoryStoreUpsertDevice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	seedDevice(t, store, "esp001", "hash-a")

	t.Run("token digest is unique", func(t *testing.T) {
		err := store.UpsertDevice(ctx, &models.Device{DeviceID: "esp002", TokenHash: "hash-a"})
		require.ErrorIs(t, err, models.ErrTokenConflict)
	})

	t.Run("re-register rebinds and reactivates", func(t *testing.T) {
		require.NoError(t, store.DisableDevice(ctx, "esp001", testEpoch))

		require.NoError(t, store.UpsertDevice(ctx, &models.Device{
			DeviceID:   "esp001",
			TokenHash:  "hash-b",
			DeviceType: "esp32",
			Name:       "greenhouse",
			Status:     models.DeviceStatusOffline,
		}))

		d, err := store.GetDevice(ctx, "esp001")
		require.NoError(t, err)
		assert.True(t, d.IsActive)
		assert.Equal(t, "hash-b", d.TokenHash)
		assert.Equal(t, "esp32", d.DeviceType)
		assert.Equal(t, testEpoch, d.CreatedAt)
	})
}

func TestMemoryStoreInsertDeviceNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	inserted, err := store.InsertDevice(ctx, &models.Device{DeviceID: "esp010", TokenHash: "hash-a"})
	require.NoError(t, err)
	assert.True(t, inserted)

	d, err := store.GetDevice(ctx, "esp010")
	require.NoError(t, err)
	assert.True(t, d.IsActive)

	inserted, err = store.InsertDevice(ctx, &models.Device{DeviceID: "esp010", TokenHash: "hash-b"})
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, store.DisableDevice(ctx, "esp011", testEpoch))

	inserted, err = store.InsertDevice(ctx, &models.Device{DeviceID: "esp011", TokenHash: "hash-c"})
	require.NoError(t, err)
	assert.False(t, inserted, "tombstones are not replaced")

	d, err = store.GetDevice(ctx, "esp011")
	require.NoError(t, err)
	assert.False(t, d.IsActive)
	assert.Empty(t, d.TokenHash)

	_, err = store.InsertDevice(ctx, &models.Device{DeviceID: "esp012", TokenHash: "hash-a"})
	require.ErrorIs(t, err, models.ErrTokenConflict)
}

func TestMemoryStoreDisableUnknownCreatesTombstone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.DisableDevice(ctx, "ghost", testEpoch))

	d, err := store.GetDevice(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, d.IsActive)
	assert.Equal(t, models.DeviceStatusDisabled, d.Status)
	assert.Empty(t, d.TokenHash)

	active, err := store.ListDevices(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListDevices(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStoreTouchDevice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	ok, err := store.TouchDevice(ctx, "esp001", models.PresenceUpdate{
		Status:    models.DeviceStatusOnline,
		SeenAt:    testEpoch,
		IPAddress: "10.0.0.7",
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TouchDevice(ctx, "esp001", models.PresenceUpdate{SeenAt: testEpoch.Add(time.Minute)})
	require.NoError(t, err)
	assert.True(t, ok)

	d, err := store.GetDevice(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, d.Status)
	assert.Equal(t, "10.0.0.7", d.IPAddress)
	assert.Equal(t, testEpoch.Add(time.Minute), *d.LastSeen)

	require.NoError(t, store.DisableDevice(ctx, "esp001", testEpoch))

	ok, err = store.TouchDevice(ctx, "esp001", models.PresenceUpdate{SeenAt: testEpoch})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.TouchDevice(ctx, "missing", models.PresenceUpdate{SeenAt: testEpoch})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreCommandOrdering(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	insert := func(name string, priority int, offset time.Duration) int64 {
		cmd := &models.Command{
			DeviceID:  "esp001",
			Command:   name,
			Priority:  priority,
			Status:    models.CommandStatusPending,
			Timestamp: testEpoch.Add(offset),
		}
		require.NoError(t, store.InsertCommand(ctx, cmd, 0))

		return cmd.ID
	}

	insert("low-early", models.PriorityLow, 0)
	highLate := insert("high-late", models.PriorityHigh, 2*time.Second)
	highTie := insert("high-tie", models.PriorityHigh, 2*time.Second)
	insert("medium", models.PriorityMedium, time.Second)

	next, err := store.NextPendingCommand(ctx, "esp001")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, highLate, next.ID)

	ok, err := store.TransitionCommand(ctx, CommandTransition{
		CommandID: highLate,
		From:      []models.CommandStatus{models.CommandStatusPending},
		To:        models.CommandStatusSent,
		At:        testEpoch,
	})
	require.NoError(t, err)
	require.True(t, ok)

	next, err = store.NextPendingCommand(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, highTie, next.ID)

	none, err := store.NextPendingCommand(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, none)

	pending, err := store.CountPendingCommands(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestMemoryStoreQueueBound(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	for i := 0; i < 2; i++ {
		require.NoError(t, store.InsertCommand(ctx, &models.Command{
			DeviceID: "esp001", Command: "noop", Priority: 1, Status: models.CommandStatusPending,
		}, 2))
	}

	err := store.InsertCommand(ctx, &models.Command{
		DeviceID: "esp001", Command: "noop", Priority: 1, Status: models.CommandStatusPending,
	}, 2)
	require.ErrorIs(t, err, models.ErrQueueFull)

	err = store.InsertCommand(ctx, &models.Command{DeviceID: "missing", Command: "noop", Priority: 1}, 0)
	require.ErrorIs(t, err, models.ErrDeviceNotFound)
}

func TestMemoryStoreTransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	cmd := &models.Command{DeviceID: "esp001", Command: "reboot", Priority: 3, Status: models.CommandStatusPending}
	require.NoError(t, store.InsertCommand(ctx, cmd, 0))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := store.TransitionCommand(ctx, CommandTransition{
				CommandID: cmd.ID,
				From:      []models.CommandStatus{models.CommandStatusPending},
				To:        models.CommandStatusSent,
				At:        testEpoch,
			})
			assert.NoError(t, err)

			if ok {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	_, err := store.TransitionCommand(ctx, CommandTransition{CommandID: cmd.ID, To: models.CommandStatusSent})
	require.ErrorIs(t, err, ErrTransitionEmpty)
}

func TestMemoryStoreSyncPackages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	pkg := &models.SyncPackage{
		PackageName:    "fw-1.2",
		TargetDeviceID: "esp001",
		PackageType:    models.SyncPackageTypeFirmware,
		Status:         models.SyncPackageStatusStaged,
		CreatedAt:      testEpoch,
	}
	require.NoError(t, store.InsertSyncPackage(ctx, pkg))

	updated, err := store.AddSyncPackageFile(ctx, &models.SyncPackageFile{
		PackageID: pkg.ID, Filename: "fw.bin", Size: 1024, SHA256: "aa", AddedAt: testEpoch,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FileCount)
	assert.Equal(t, int64(1024), updated.TotalSize)

	_, err = store.AddSyncPackageFile(ctx, &models.SyncPackageFile{PackageID: pkg.ID, Filename: "fw.bin", Size: 1})
	require.ErrorIs(t, err, models.ErrDuplicateFile)

	deployFrom := []models.SyncPackageStatus{models.SyncPackageStatusStaged, models.SyncPackageStatusDeploying}

	ok, err := store.TransitionSyncPackage(ctx, PackageTransition{
		PackageID: pkg.ID, From: deployFrom, To: models.SyncPackageStatusDeployed, At: testEpoch.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TransitionSyncPackage(ctx, PackageTransition{
		PackageID: pkg.ID, From: deployFrom, To: models.SyncPackageStatusDeployed, At: testEpoch.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.GetSyncPackage(ctx, pkg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DeployedAt)
	assert.Equal(t, testEpoch.Add(time.Hour), *got.DeployedAt)

	_, err = store.AddSyncPackageFile(ctx, &models.SyncPackageFile{PackageID: pkg.ID, Filename: "late.bin"})
	require.ErrorIs(t, err, models.ErrInvalidTransition)

	staged, err := store.ListSyncPackages(ctx, models.SyncPackageFilter{
		DeviceID: "esp001",
		Statuses: []models.SyncPackageStatus{models.SyncPackageStatusStaged},
	})
	require.NoError(t, err)
	assert.Empty(t, staged)

	files, err := store.ListSyncPackageFiles(ctx, pkg.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "fw.bin", files[0].Filename)
}

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seedDevice(t, store, "esp001", "hash-a")

	for i, sev := range []models.Severity{models.SeverityInfo, models.SeverityError, models.SeverityDebug} {
		require.NoError(t, store.InsertMessage(ctx, &models.Message{
			DeviceID:  "esp001",
			Content:   "m",
			Severity:  sev,
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
		}))

		require.NoError(t, store.InsertAuditEvent(ctx, &models.AuditEvent{
			ID:        string(rune('a' + i)),
			EventType: models.EventCommandQueued,
			Source:    "esp001",
			Severity:  sev,
			Timestamp: testEpoch.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := store.ListMessages(ctx, models.MessageFilter{MinSeverity: models.SeverityInfo})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.SeverityError, msgs[0].Severity)

	events, err := store.ListAuditEvents(ctx, models.AuditFilter{Since: testEpoch.Add(time.Second), Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "c", events[0].ID)

	count, err := store.CountMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	err = store.InsertMessage(ctx, &models.Message{DeviceID: "missing"})
	require.ErrorIs(t, err, models.ErrDeviceNotFound)
}
