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
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/dropsync/pkg/models"
)

const deviceColumns = `device_id, token_hash, device_type, name, status, last_seen,
	ip_address, firmware_version, is_active, created_at`

const upsertDeviceSQL = `
INSERT INTO devices (
	device_id,
	token_hash,
	device_type,
	name,
	status,
	is_active,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,TRUE,$6
)
ON CONFLICT (device_id) DO UPDATE SET
	token_hash = EXCLUDED.token_hash,
	device_type = EXCLUDED.device_type,
	name = EXCLUDED.name,
	status = EXCLUDED.status,
	is_active = TRUE`

const insertDeviceSQL = `
INSERT INTO devices (
	device_id,
	token_hash,
	device_type,
	name,
	status,
	is_active,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,TRUE,$6
)
ON CONFLICT (device_id) DO NOTHING`

const disableDeviceSQL = `
INSERT INTO devices (device_id, token_hash, status, is_active, created_at)
VALUES ($1, NULL, 'disabled', FALSE, $2)
ON CONFLICT (device_id) DO UPDATE SET
	status = 'disabled',
	is_active = FALSE`

const touchDeviceSQL = `
UPDATE devices SET
	last_seen = $2,
	status = COALESCE($3, status),
	ip_address = COALESCE($4, ip_address),
	firmware_version = COALESCE($5, firmware_version)
WHERE device_id = $1 AND is_active`

func buildDeviceArgs(device *models.Device) ([]any, error) {
	if device == nil {
		return nil, ErrDeviceNil
	}

	createdAt := device.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return []any{
		device.DeviceID,
		nullable(device.TokenHash),
		device.DeviceType,
		device.Name,
		string(device.Status),
		createdAt,
	}, nil
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var (
		d         models.Device
		tokenHash *string
		status    string
	)

	if err := row.Scan(
		&d.DeviceID,
		&tokenHash,
		&d.DeviceType,
		&d.Name,
		&status,
		&d.LastSeen,
		&d.IPAddress,
		&d.FirmwareVersion,
		&d.IsActive,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}

	d.TokenHash = deref(tokenHash)
	d.Status = models.DeviceStatus(status)

	return &d, nil
}

func (s *PGStore) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE device_id = $1`, deviceID)

	d, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrDeviceNotFound
	}

	if err != nil {
		return nil, mapPGError("get device", err)
	}

	return d, nil
}

func (s *PGStore) UpsertDevice(ctx context.Context, device *models.Device) error {
	args, err := buildDeviceArgs(device)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, upsertDeviceSQL, args...); err != nil {
		return mapPGError("upsert device", err)
	}

	return nil
}

func (s *PGStore) InsertDevice(ctx context.Context, device *models.Device) (bool, error) {
	args, err := buildDeviceArgs(device)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx, insertDeviceSQL, args...)
	if err != nil {
		return false, mapPGError("insert device", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) UpdateDeviceToken(ctx context.Context, deviceID, tokenHash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE devices SET token_hash = $2 WHERE device_id = $1`,
		deviceID, nullable(tokenHash))
	if err != nil {
		return mapPGError("update device token", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrDeviceNotFound
	}

	return nil
}

func (s *PGStore) DisableDevice(ctx context.Context, deviceID string, at time.Time) error {
	if _, err := s.pool.Exec(ctx, disableDeviceSQL, deviceID, at); err != nil {
		return mapPGError("disable device", err)
	}

	return nil
}

func (s *PGStore) TouchDevice(ctx context.Context, deviceID string, update models.PresenceUpdate) (bool, error) {
	tag, err := s.pool.Exec(ctx, touchDeviceSQL,
		deviceID,
		update.SeenAt,
		nullable(string(update.Status)),
		nullable(update.IPAddress),
		nullable(update.FirmwareVersion),
	)
	if err != nil {
		return false, mapPGError("touch device", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListDevices(ctx context.Context, includeInactive bool) ([]*models.Device, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE is_active OR $1 ORDER BY device_id`, includeInactive)
	if err != nil {
		return nil, mapPGError("list devices", err)
	}

	return collect(rows, scanDevice, "list devices")
}

// collect drains rows through scan, closing them.
func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error), op string) ([]*T, error) {
	defer rows.Close()

	out := make([]*T, 0)

	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, wrapDB(op, errors.Join(ErrFailedToScan, err))
		}

		out = append(out, item)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPGError(op, err)
	}

	return out, nil
}
