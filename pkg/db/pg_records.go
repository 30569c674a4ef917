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

	"github.com/carverauto/dropsync/pkg/models"
)

const fileSyncColumns = `id, device_id, filename, filepath, file_size, file_hash, sync_type,
	status, created_at, completed_at, error_message`

const insertFileSyncSQL = `
INSERT INTO file_sync_records (
	device_id,
	filename,
	filepath,
	file_size,
	file_hash,
	sync_type,
	status,
	created_at,
	completed_at,
	error_message
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
RETURNING id`

const insertMessageSQL = `
INSERT INTO messages (device_id, message_type, content, severity, created_at, acknowledged)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`

const insertAuditEventSQL = `
INSERT INTO audit_events (id, event_type, source, message, severity, created_at, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

// severityRankSQL renders a CASE ranking severities so they compare numerically.
func severityRankSQL(column string) string {
	return `CASE ` + column + `
	WHEN 'debug' THEN 0
	WHEN 'info' THEN 1
	WHEN 'warning' THEN 2
	WHEN 'error' THEN 3
	WHEN 'critical' THEN 4
END`
}

func buildFileSyncArgs(rec *models.FileSyncRecord) ([]any, error) {
	if rec == nil {
		return nil, ErrFileSyncNil
	}

	return []any{
		rec.DeviceID,
		rec.Filename,
		rec.Filepath,
		rec.FileSize,
		rec.FileHash,
		string(rec.SyncType),
		string(rec.Status),
		rec.Timestamp,
		rec.CompletedAt,
		rec.ErrorMessage,
	}, nil
}

func scanFileSyncRecord(row rowScanner) (*models.FileSyncRecord, error) {
	var (
		r        models.FileSyncRecord
		syncType string
		status   string
	)

	if err := row.Scan(
		&r.ID,
		&r.DeviceID,
		&r.Filename,
		&r.Filepath,
		&r.FileSize,
		&r.FileHash,
		&syncType,
		&status,
		&r.Timestamp,
		&r.CompletedAt,
		&r.ErrorMessage,
	); err != nil {
		return nil, err
	}

	r.SyncType = models.SyncType(syncType)
	r.Status = models.FileSyncStatus(status)

	return &r, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m        models.Message
		severity string
	)

	if err := row.Scan(&m.ID, &m.DeviceID, &m.MessageType, &m.Content, &severity, &m.Timestamp, &m.Acknowledged); err != nil {
		return nil, err
	}

	m.Severity = models.Severity(severity)

	return &m, nil
}

func scanAuditEvent(row rowScanner) (*models.AuditEvent, error) {
	var (
		e        models.AuditEvent
		severity string
		payload  []byte
	)

	if err := row.Scan(&e.ID, &e.EventType, &e.Source, &e.Message, &severity, &e.Timestamp, &payload); err != nil {
		return nil, err
	}

	e.Severity = models.Severity(severity)
	if len(payload) > 0 {
		e.Payload = payload
	}

	return &e, nil
}

func (s *PGStore) InsertFileSyncRecord(ctx context.Context, rec *models.FileSyncRecord) error {
	args, err := buildFileSyncArgs(rec)
	if err != nil {
		return err
	}

	if err := s.pool.QueryRow(ctx, insertFileSyncSQL, args...).Scan(&rec.ID); err != nil {
		return mapPGError("insert file sync record", err)
	}

	return nil
}

func (s *PGStore) ListFileSyncRecords(ctx context.Context, deviceID string, limit int) ([]*models.FileSyncRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+fileSyncColumns+`
FROM file_sync_records
WHERE ($1 = '' OR device_id = $1)
ORDER BY id DESC
LIMIT $2`, deviceID, limitArg(limit))
	if err != nil {
		return nil, mapPGError("list file sync records", err)
	}

	return collect(rows, scanFileSyncRecord, "list file sync records")
}

func (s *PGStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrMessageNil
	}

	if err := s.pool.QueryRow(ctx, insertMessageSQL,
		msg.DeviceID, msg.MessageType, msg.Content, string(msg.Severity), msg.Timestamp, msg.Acknowledged,
	).Scan(&msg.ID); err != nil {
		return mapPGError("insert message", err)
	}

	return nil
}

func (s *PGStore) ListMessages(ctx context.Context, filter models.MessageFilter) ([]*models.Message, error) {
	minSeverity := filter.MinSeverity
	if minSeverity == "" {
		minSeverity = models.SeverityDebug
	}

	rows, err := s.pool.Query(ctx, `SELECT id, device_id, message_type, content, severity, created_at, acknowledged
FROM messages
WHERE ($1 = '' OR device_id = $1)
  AND `+severityRankSQL("severity")+` >= `+severityRankSQL("$2::text")+`
ORDER BY id DESC
LIMIT $3`, filter.DeviceID, string(minSeverity), limitArg(filter.Limit))
	if err != nil {
		return nil, mapPGError("list messages", err)
	}

	return collect(rows, scanMessage, "list messages")
}

func (s *PGStore) CountMessages(ctx context.Context) (int, error) {
	var count int

	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM messages`).Scan(&count); err != nil {
		return 0, mapPGError("count messages", err)
	}

	return count, nil
}

func (s *PGStore) InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	if event == nil {
		return ErrAuditEventNil
	}

	var payload any
	if len(event.Payload) > 0 {
		payload = []byte(event.Payload)
	}

	if _, err := s.pool.Exec(ctx, insertAuditEventSQL,
		event.ID, event.EventType, event.Source, event.Message, string(event.Severity), event.Timestamp, payload,
	); err != nil {
		return mapPGError("insert audit event", err)
	}

	return nil
}

func (s *PGStore) ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	minSeverity := filter.MinSeverity
	if minSeverity == "" {
		minSeverity = models.SeverityDebug
	}

	var since any
	if !filter.Since.IsZero() {
		since = filter.Since
	}

	rows, err := s.pool.Query(ctx, `SELECT id::text, event_type, source, message, severity, created_at, payload
FROM audit_events
WHERE ($1 = '' OR source = $1)
  AND ($2 = '' OR event_type = $2)
  AND `+severityRankSQL("severity")+` >= `+severityRankSQL("$3::text")+`
  AND ($4::timestamptz IS NULL OR created_at >= $4)
ORDER BY created_at DESC
LIMIT $5`, filter.Source, filter.EventType, string(minSeverity), since, limitArg(filter.Limit))
	if err != nil {
		return nil, mapPGError("list audit events", err)
	}

	return collect(rows, scanAuditEvent, "list audit events")
}
