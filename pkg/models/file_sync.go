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

package models

import (
	"fmt"
	"time"
)

// SyncType is the kind of file operation being recorded.
type SyncType string

const (
	SyncTypeUpload   SyncType = "upload"
	SyncTypeDownload SyncType = "download"
	SyncTypeDelete   SyncType = "delete"
)

// FileSyncStatus is the outcome of a recorded file operation.
type FileSyncStatus string

const (
	FileSyncStatusPending    FileSyncStatus = "pending"
	FileSyncStatusInProgress FileSyncStatus = "in_progress"
	FileSyncStatusCompleted  FileSyncStatus = "completed"
	FileSyncStatusFailed     FileSyncStatus = "failed"
)

// FileSyncRecord is an append-only entry for a single file operation.
type FileSyncRecord struct {
	ID           int64          `json:"id"`
	DeviceID     string         `json:"device_id"`
	Filename     string         `json:"filename"`
	Filepath     string         `json:"filepath"`
	FileSize     int64          `json:"size"`
	FileHash     *string        `json:"file_hash,omitempty"`
	SyncType     SyncType       `json:"sync_type"`
	Status       FileSyncStatus `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
}

// DeviceFile describes a file in a device's upload area.
type DeviceFile struct {
	Filename string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// ParseSyncType validates a sync type.
func ParseSyncType(raw string) (SyncType, error) {
	switch t := SyncType(raw); t {
	case "":
		return SyncTypeUpload, nil
	case SyncTypeUpload, SyncTypeDownload, SyncTypeDelete:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown sync type %q", ErrValidation, raw)
	}
}
