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
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dropsync/pkg/models"
)

var (
	errFakeRowScanMismatch  = errors.New("fake row scan mismatch")
	errFakeRowUnexpectedNil = errors.New("fake row cannot assign nil")
)

// fakeRow assigns values positionally, treating nil as SQL NULL.
type fakeRow struct {
	values []any
}

func (r *fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("%w: dest=%d values=%d", errFakeRowScanMismatch, len(dest), len(r.values))
	}

	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()

		if r.values[i] == nil {
			if target.Kind() != reflect.Pointer && target.Kind() != reflect.Slice {
				return fmt.Errorf("%w: column %d", errFakeRowUnexpectedNil, i)
			}

			target.Set(reflect.Zero(target.Type()))

			continue
		}

		value := reflect.ValueOf(r.values[i])

		if target.Kind() == reflect.Pointer && value.Kind() != reflect.Pointer {
			ptr := reflect.New(target.Type().Elem())
			ptr.Elem().Set(value)
			target.Set(ptr)

			continue
		}

		target.Set(value)
	}

	return nil
}

func TestScanDevice(t *testing.T) {
	seen := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	d, err := scanDevice(&fakeRow{values: []any{
		"esp001", nil, "esp8266", "porch", "online", seen, "10.0.0.7", "1.0.3", true, seen,
	}})
	require.NoError(t, err)

	assert.Equal(t, "esp001", d.DeviceID)
	assert.Empty(t, d.TokenHash)
	assert.Equal(t, models.DeviceStatusOnline, d.Status)
	require.NotNil(t, d.LastSeen)
	assert.Equal(t, seen, *d.LastSeen)
	assert.True(t, d.IsActive)
}

func TestScanCommandWithParameters(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	c, err := scanCommand(&fakeRow{values: []any{
		int64(7), "esp001", "update", models.ContentTypeText, []byte("v2"), int16(3),
		"sent", created, created, nil, nil,
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, models.PriorityHigh, c.Priority)
	assert.Equal(t, models.CommandStatusSent, c.Status)
	require.NotNil(t, c.Parameters)
	assert.Equal(t, models.ContentTypeText, c.Parameters.ContentType)
	assert.Equal(t, []byte("v2"), c.Parameters.Data)
	assert.Nil(t, c.CompletedAt)
	assert.Nil(t, c.Result)

	c, err = scanCommand(&fakeRow{values: []any{
		int64(8), "esp001", "reboot", nil, nil, int16(1), "pending", created, nil, nil, nil,
	}})
	require.NoError(t, err)
	assert.Nil(t, c.Parameters)
}

func TestBuildCommandArgsDefaultsContentType(t *testing.T) {
	args, err := buildCommandArgs(&models.Command{
		DeviceID:   "esp001",
		Command:    "update",
		Parameters: &models.CommandParameters{Data: []byte(`{"v":2}`)},
		Priority:   1,
		Status:     models.CommandStatusPending,
	})
	require.NoError(t, err)
	require.Len(t, args, 7)

	contentType, ok := args[2].(*string)
	require.True(t, ok)
	assert.Equal(t, models.ContentTypeJSON, *contentType)

	_, err = buildCommandArgs(nil)
	require.ErrorIs(t, err, ErrCommandNil)
}

func TestScanSyncPackageAndFile(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	p, err := scanSyncPackage(&fakeRow{values: []any{
		int64(3), "fw", "esp001", "firmware", int32(2), int64(2048), "staged", created, nil, "",
	}})
	require.NoError(t, err)
	assert.Equal(t, models.SyncPackageTypeFirmware, p.PackageType)
	assert.Equal(t, 2, p.FileCount)
	assert.Nil(t, p.DeployedAt)

	f, err := scanSyncPackageFile(&fakeRow{values: []any{int64(3), "fw.bin", int64(1024), "ab", created}})
	require.NoError(t, err)
	assert.Equal(t, "fw.bin", f.Filename)
}

func TestScanAuditEventKeepsPayload(t *testing.T) {
	e, err := scanAuditEvent(&fakeRow{values: []any{
		"0f8fad5b-d9cb-469f-a165-70867728950e", models.EventAuthFailed, "esp001", "bad token",
		"warning", time.Now(), []byte(`{"ip":"10.0.0.9"}`),
	}})
	require.NoError(t, err)
	assert.Equal(t, models.SeverityWarning, e.Severity)
	assert.JSONEq(t, `{"ip":"10.0.0.9"}`, string(e.Payload))
}

func TestMapPGError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "token conflict",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "devices_token_hash_key"},
			want: models.ErrTokenConflict,
		},
		{
			name: "duplicate package file",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "sync_package_files_pkey"},
			want: models.ErrDuplicateFile,
		},
		{
			name: "missing device",
			err:  &pgconn.PgError{Code: pgForeignKeyViolation, ConstraintName: "commands_device_id_fkey"},
			want: models.ErrDeviceNotFound,
		},
		{
			name: "anything else",
			err:  errors.New("connection reset"),
			want: models.ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapPGError("op", tt.err), tt.want)
		})
	}

	assert.NoError(t, mapPGError("op", nil))
}

func TestConnectionURL(t *testing.T) {
	raw := connectionURL(&models.DatabaseConfig{
		Host:            "pg-rw",
		Database:        "dropsync",
		Username:        "hub",
		Password:        "p@ss",
		ApplicationName: "dropsync-hub",
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, "pg-rw:5432", u.Host)
	assert.Equal(t, "/dropsync", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "dropsync-hub", u.Query().Get("application_name"))

	password, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss", password)
}
