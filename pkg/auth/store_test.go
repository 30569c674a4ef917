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
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *Store
	devices  *db.MemoryStore
	legacy   *LegacyTable
	recorder *audit.Recorder
	clock    *clock.Manual
}

func newFixture(t *testing.T, mirror bool, opts ...Option) *fixture {
	t.Helper()

	log := logger.NewTestLogger()
	devices := db.NewMemoryStore()
	c := clock.NewManual(now)

	legacy, err := NewLegacyTable(afero.NewMemMapFs(), "/var/lib/dropsync/device_tokens.json", log)
	require.NoError(t, err)

	recorder := audit.NewRecorder(devices, log, audit.WithClock(c))

	cfg := &models.DevicesConfig{MirrorIssuedTokens: &mirror}
	opts = append([]Option{WithClock(c)}, opts...)

	return &fixture{
		store:    NewStore(devices, legacy, recorder, cfg, log, opts...),
		devices:  devices,
		legacy:   legacy,
		recorder: recorder,
		clock:    c,
	}
}

func (f *fixture) events(t *testing.T, eventType string) []*models.AuditEvent {
	t.Helper()

	events, err := f.recorder.List(context.Background(), models.AuditFilter{EventType: eventType})
	require.NoError(t, err)

	return events
}

func TestRegisterAndVerify(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	device, err := f.store.Register(ctx, "esp001", "secret-token", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDeviceType, device.DeviceType)
	assert.Equal(t, "esp001", device.Name)
	assert.Equal(t, hashutil.TokenDigest("secret-token"), device.TokenHash)
	assert.NotContains(t, device.TokenHash, "secret-token")

	f.clock.Advance(time.Minute)

	ok, err := f.store.Verify(ctx, "esp001", "secret-token")
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := f.devices.GetDevice(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOnline, stored.Status)
	assert.Equal(t, now.Add(time.Minute), *stored.LastSeen)

	for _, tc := range []struct{ id, token string }{
		{"esp001", "wrong"},
		{"esp001", ""},
		{"", "secret-token"},
		{"esp404", "secret-token"},
	} {
		ok, err := f.store.Verify(ctx, tc.id, tc.token)
		require.NoError(t, err)
		assert.False(t, ok, "%s/%s", tc.id, tc.token)
	}

	assert.Len(t, f.events(t, models.EventDeviceRegistered), 1)
}

func TestRegisterRejectsSharedToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.store.Register(ctx, "esp001", "shared", "", "")
	require.NoError(t, err)

	_, err = f.store.Register(ctx, "esp002", "shared", "", "")
	require.ErrorIs(t, err, models.ErrTokenConflict)

	_, err = f.store.Register(ctx, "bad id!", "x", "", "")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestLegacyTokenProvisionsDeviceOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	require.NoError(t, f.legacy.Set("esp009", "legacy-token"))

	device, err := f.store.RequireAuthFrom(ctx, "esp009", "legacy-token", "10.0.0.9")
	require.NoError(t, err)
	assert.True(t, device.IsActive)
	assert.Equal(t, "10.0.0.9", device.IPAddress)

	assert.False(t, f.legacy.Has("esp009"), "migrated entry is retired")
	assert.Len(t, f.events(t, models.EventDeviceMigrated), 1)

	// Subsequent logins use the persistent record and emit nothing.
	ok, err := f.store.Verify(ctx, "esp009", "legacy-token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.events(t, models.EventDeviceMigrated), 1)
}

// racingDevices runs beforeInsert between the legacy match and the insert.
type racingDevices struct {
	*db.MemoryStore
	beforeInsert func(ctx context.Context)
}

func (r *racingDevices) InsertDevice(ctx context.Context, device *models.Device) (bool, error) {
	if r.beforeInsert != nil {
		r.beforeInsert(ctx)
	}

	return r.MemoryStore.InsertDevice(ctx, device)
}

func TestLegacyMigrationLosesToConcurrentWriter(t *testing.T) {
	tests := []struct {
		name     string
		race     func(ctx context.Context, s *Store, devices *db.MemoryStore) error
		verifyOK bool
	}{
		{
			name: "revoke",
			race: func(ctx context.Context, s *Store, _ *db.MemoryStore) error {
				return s.Revoke(ctx, "esp009")
			},
		},
		{
			name: "other migration",
			race: func(ctx context.Context, _ *Store, devices *db.MemoryStore) error {
				_, err := devices.InsertDevice(ctx, &models.Device{
					DeviceID:  "esp009",
					TokenHash: hashutil.TokenDigest("legacy-token"),
				})

				return err
			},
			verifyOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			log := logger.NewTestLogger()
			mem := db.NewMemoryStore()
			devices := &racingDevices{MemoryStore: mem}

			legacy, err := NewLegacyTable(afero.NewMemMapFs(), "/var/lib/dropsync/device_tokens.json", log)
			require.NoError(t, err)
			require.NoError(t, legacy.Set("esp009", "legacy-token"))

			recorder := audit.NewRecorder(mem, log)
			store := NewStore(devices, legacy, recorder, &models.DevicesConfig{}, log)

			devices.beforeInsert = func(ctx context.Context) {
				devices.beforeInsert = nil
				require.NoError(t, tt.race(ctx, store, mem))
			}

			_, err = store.RequireAuthFrom(ctx, "esp009", "legacy-token", "10.0.0.9")
			require.ErrorIs(t, err, models.ErrUnauthorized)

			migrated, err := recorder.List(ctx, models.AuditFilter{EventType: models.EventDeviceMigrated})
			require.NoError(t, err)
			assert.Empty(t, migrated)

			ok, err := store.Verify(ctx, "esp009", "legacy-token")
			require.NoError(t, err)
			assert.Equal(t, tt.verifyOK, ok)
		})
	}
}

func TestLegacyTableIgnoredOncePersistentRecordExists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.store.Register(ctx, "esp001", "current", "", "")
	require.NoError(t, err)
	require.NoError(t, f.legacy.Set("esp001", "stale"))

	ok, err := f.store.Verify(ctx, "esp001", "stale")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeBlocksLegacyResurrection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.store.Register(ctx, "esp001", "tok", "", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Revoke(ctx, "esp001"))

	ok, err := f.store.Verify(ctx, "esp001", "tok")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.legacy.Set("esp001", "tok"))

	ok, err = f.store.Verify(ctx, "esp001", "tok")
	require.NoError(t, err)
	assert.False(t, ok, "a revoked device must not come back through the legacy table")

	revoked := f.events(t, models.EventDeviceRevoked)
	require.Len(t, revoked, 1)
	assert.Equal(t, models.SeverityWarning, revoked[0].Severity)
}

func TestRevokeUnknownDeviceLeavesTombstone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	require.NoError(t, f.legacy.Set("esp777", "legacy"))
	require.NoError(t, f.store.Revoke(ctx, "esp777"))
	assert.False(t, f.legacy.Has("esp777"))

	require.NoError(t, f.legacy.Set("esp777", "legacy"))

	ok, err := f.store.Verify(ctx, "esp777", "legacy")
	require.NoError(t, err)
	assert.False(t, ok)

	device, err := f.devices.GetDevice(ctx, "esp777")
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusDisabled, device.Status)
}

func TestReRegisterReactivates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.store.Register(ctx, "esp001", "first", "", "")
	require.NoError(t, err)
	require.NoError(t, f.store.Revoke(ctx, "esp001"))

	_, err = f.store.Register(ctx, "esp001", "second", "esp32", "porch")
	require.NoError(t, err)

	ok, err := f.store.Verify(ctx, "esp001", "second")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.store.Verify(ctx, "esp001", "first")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIssueTokenNeverReusesCurrentToken(t *testing.T) {
	ctx := context.Background()

	first := bytes.Repeat([]byte{0x01}, tokenBytes)
	second := bytes.Repeat([]byte{0x02}, tokenBytes)

	random := io.MultiReader(
		bytes.NewReader(first),
		bytes.NewReader(first),
		bytes.NewReader(second),
	)

	f := newFixture(t, true, WithRandom(random))

	token1, device, err := f.store.IssueToken(ctx, "esp001", "", "")
	require.NoError(t, err)
	assert.Len(t, token1, 43)
	assert.Equal(t, hashutil.TokenDigest(token1), device.TokenHash)
	assert.True(t, f.legacy.Match("esp001", token1), "issued tokens are mirrored")

	token2, _, err := f.store.IssueToken(ctx, "esp001", "", "")
	require.NoError(t, err)
	assert.NotEqual(t, token1, token2)

	ok, err := f.store.Verify(ctx, "esp001", token2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIssueTokenWithoutMirror(t *testing.T) {
	f := newFixture(t, false)

	_, _, err := f.store.IssueToken(context.Background(), "esp001", "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.legacy.Len())
}

func TestRotateToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.store.Register(ctx, "esp001", "old", "", "")
	require.NoError(t, err)

	fresh, err := f.store.RotateToken(ctx, "esp001")
	require.NoError(t, err)

	ok, err := f.store.Verify(ctx, "esp001", "old")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.store.Verify(ctx, "esp001", fresh)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, f.events(t, models.EventTokenRotated), 1)

	_, err = f.store.RotateToken(ctx, "esp404")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestVerifySurfacesStorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := db.NewMockService(ctrl)
	devices.EXPECT().GetDevice(gomock.Any(), "esp001").Return(nil, db.ErrDatabaseError)

	log := logger.NewTestLogger()
	legacy, err := NewLegacyTable(afero.NewMemMapFs(), "", log)
	require.NoError(t, err)

	store := NewStore(devices, legacy, audit.NewRecorder(db.NewMemoryStore(), log), &models.DevicesConfig{}, log)

	ok, err := store.Verify(context.Background(), "esp001", "tok")
	require.ErrorIs(t, err, models.ErrStorage)
	assert.False(t, ok)
}
