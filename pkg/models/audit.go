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
	"encoding/json"
	"fmt"
	"time"
)

// Severity is shared by audit events and device messages.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// ParseSeverity validates a severity; an empty value means info.
func ParseSeverity(raw string) (Severity, error) {
	if raw == "" {
		return SeverityInfo, nil
	}

	s := Severity(raw)
	if _, ok := severityRank[s]; !ok {
		return "", fmt.Errorf("%w: unknown severity %q", ErrValidation, raw)
	}

	return s, nil
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank[s] >= severityRank[other]
}

// Audit event types.
const (
	EventDeviceRegistered = "device_registered"
	EventDeviceMigrated   = "device_migrated"
	EventDeviceRevoked    = "device_revoked"
	EventTokenRotated     = "token_rotated"
	EventAuthFailed       = "auth_failed"
	EventCommandQueued    = "command_queued"
	EventCommandSent      = "command_sent"
	EventCommandCompleted = "command_completed"
	EventCommandFailed    = "command_failed"
	EventDeviceAlert      = "device_alert"
	EventPackageCreated   = "package_created"
	EventPackageFileAdded = "package_file_added"
	EventPackageDeployed  = "package_deployed"
	EventPackageFailed    = "package_failed"
	EventFileUploaded     = "file_uploaded"
	EventFileUploadError  = "file_upload_error"
	EventFileDeleted      = "file_deleted"
	EventFileDeleteError  = "file_delete_error"
	EventStorageFailure   = "storage_failure"
)

// Audit sources that are not device ids.
const (
	SourceSystem = "system"
	SourceAdmin  = "admin"
)

// AuditEvent is one append-only entry of the audit trail.
type AuditEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Source    string          `json:"source"`
	Message   string          `json:"message"`
	Severity  Severity        `json:"severity"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Source      string
	EventType   string
	MinSeverity Severity
	Since       time.Time
	Limit       int
}
