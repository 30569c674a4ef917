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

	"github.com/jackc/pgx/v5"

	"github.com/carverauto/dropsync/pkg/models"
)

const commandColumns = `id, device_id, command, params_content_type, params_data, priority,
	status, created_at, sent_at, completed_at, result`

const insertCommandSQL = `
INSERT INTO commands (
	device_id,
	command,
	params_content_type,
	params_data,
	priority,
	status,
	created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
RETURNING id`

const nextPendingCommandSQL = `SELECT ` + commandColumns + `
FROM commands
WHERE device_id = $1 AND status = 'pending'
ORDER BY priority DESC, created_at ASC, id ASC
LIMIT 1`

// Only the columns relevant to the target state are written; the status
// guard in the WHERE clause makes the transition a compare-and-set.
const transitionCommandSQL = `
UPDATE commands SET
	status = $2,
	sent_at = CASE WHEN $2 = 'sent' THEN $4 ELSE sent_at END,
	completed_at = CASE WHEN $2 IN ('completed', 'failed') THEN $4 ELSE completed_at END,
	result = CASE WHEN $2 IN ('completed', 'failed') THEN $5 ELSE result END
WHERE id = $1 AND status = ANY($3)`

func buildCommandArgs(cmd *models.Command) ([]any, error) {
	if cmd == nil {
		return nil, ErrCommandNil
	}

	var (
		contentType *string
		data        []byte
	)

	if cmd.Parameters != nil {
		ct := cmd.Parameters.ContentType
		if ct == "" {
			ct = models.ContentTypeJSON
		}

		contentType = &ct
		data = cmd.Parameters.Data
	}

	return []any{
		cmd.DeviceID,
		cmd.Command,
		contentType,
		data,
		cmd.Priority,
		string(cmd.Status),
		cmd.Timestamp,
	}, nil
}

func scanCommand(row rowScanner) (*models.Command, error) {
	var (
		c           models.Command
		contentType *string
		data        []byte
		status      string
		priority    int16
	)

	if err := row.Scan(
		&c.ID,
		&c.DeviceID,
		&c.Command,
		&contentType,
		&data,
		&priority,
		&status,
		&c.Timestamp,
		&c.SentAt,
		&c.CompletedAt,
		&c.Result,
	); err != nil {
		return nil, err
	}

	c.Priority = int(priority)
	c.Status = models.CommandStatus(status)

	if contentType != nil {
		c.Parameters = &models.CommandParameters{ContentType: *contentType, Data: data}
	}

	return &c, nil
}

func statusStrings[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}

	return out
}

// InsertCommand locks the device row so the pending count and the insert
// are serialized per device.
func (s *PGStore) InsertCommand(ctx context.Context, cmd *models.Command, maxPending int) error {
	args, err := buildCommandArgs(cmd)
	if err != nil {
		return err
	}

	return s.inTx(ctx, func(tx pgx.Tx) error {
		var locked string

		err := tx.QueryRow(ctx, `SELECT device_id FROM devices WHERE device_id = $1 FOR UPDATE`,
			cmd.DeviceID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrDeviceNotFound
		}

		if err != nil {
			return mapPGError("lock device", err)
		}

		if maxPending > 0 {
			var pending int

			if err := tx.QueryRow(ctx,
				`SELECT count(*) FROM commands WHERE device_id = $1 AND status = 'pending'`,
				cmd.DeviceID).Scan(&pending); err != nil {
				return mapPGError("count pending commands", err)
			}

			if pending >= maxPending {
				return models.ErrQueueFull
			}
		}

		if err := tx.QueryRow(ctx, insertCommandSQL, args...).Scan(&cmd.ID); err != nil {
			return mapPGError("insert command", err)
		}

		return nil
	})
}

func (s *PGStore) GetCommand(ctx context.Context, commandID int64) (*models.Command, error) {
	c, err := scanCommand(s.pool.QueryRow(ctx, `SELECT `+commandColumns+` FROM commands WHERE id = $1`, commandID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrCommandNotFound
	}

	if err != nil {
		return nil, mapPGError("get command", err)
	}

	return c, nil
}

func (s *PGStore) NextPendingCommand(ctx context.Context, deviceID string) (*models.Command, error) {
	c, err := scanCommand(s.pool.QueryRow(ctx, nextPendingCommandSQL, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, mapPGError("next pending command", err)
	}

	return c, nil
}

func (s *PGStore) TransitionCommand(ctx context.Context, t CommandTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, ErrTransitionEmpty
	}

	tag, err := s.pool.Exec(ctx, transitionCommandSQL,
		t.CommandID, string(t.To), statusStrings(t.From), t.At, t.Result)
	if err != nil {
		return false, mapPGError("transition command", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ListCommands(ctx context.Context, deviceID string, limit int) ([]*models.Command, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+commandColumns+`
FROM commands
WHERE ($1 = '' OR device_id = $1)
ORDER BY id DESC
LIMIT $2`, deviceID, limitArg(limit))
	if err != nil {
		return nil, mapPGError("list commands", err)
	}

	return collect(rows, scanCommand, "list commands")
}

func (s *PGStore) CountPendingCommands(ctx context.Context, deviceID string) (int, error) {
	var count int

	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM commands WHERE status = 'pending' AND ($1 = '' OR device_id = $1)`,
		deviceID).Scan(&count); err != nil {
		return 0, mapPGError("count pending commands", err)
	}

	return count, nil
}
