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

// Package db persists hub entities. Every state transition is a single
// conditional write so concurrent callers cannot move an entity backwards.
package db

import (
	"context"
	"time"

	"github.com/carverauto/dropsync/pkg/models"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/carverauto/dropsync/pkg/db Service

// DeviceStore persists device identity and presence.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	// UpsertDevice inserts the device or rebinds token, type and name of an
	// existing row and re-activates it. ErrTokenConflict if another device
	// holds the same digest.
	UpsertDevice(ctx context.Context, device *models.Device) error
	// InsertDevice creates an active device only when no row exists for its
	// id, tombstones included. False when a row was already present.
	InsertDevice(ctx context.Context, device *models.Device) (bool, error)
	UpdateDeviceToken(ctx context.Context, deviceID, tokenHash string) error
	// DisableDevice deactivates the device, creating a disabled row when none exists.
	DisableDevice(ctx context.Context, deviceID string, at time.Time) error
	// TouchDevice records presence for an active device; false when the device
	// is missing or inactive.
	TouchDevice(ctx context.Context, deviceID string, update models.PresenceUpdate) (bool, error)
	ListDevices(ctx context.Context, includeInactive bool) ([]*models.Device, error)
}

// CommandTransition describes a guarded status change.
type CommandTransition struct {
	CommandID int64
	From      []models.CommandStatus
	To        models.CommandStatus
	At        time.Time
	Result    *string
}

// CommandStore persists the per-device command queue.
type CommandStore interface {
	// InsertCommand appends a pending command, assigning ID. When maxPending is
	// positive and the device already has that many pending commands the insert
	// is rejected with ErrQueueFull. ErrDeviceNotFound if the device is unknown.
	InsertCommand(ctx context.Context, cmd *models.Command, maxPending int) error
	GetCommand(ctx context.Context, commandID int64) (*models.Command, error)
	// NextPendingCommand returns the highest priority, oldest pending command or nil.
	NextPendingCommand(ctx context.Context, deviceID string) (*models.Command, error)
	// TransitionCommand applies t only if the current status is in t.From.
	TransitionCommand(ctx context.Context, t CommandTransition) (bool, error)
	ListCommands(ctx context.Context, deviceID string, limit int) ([]*models.Command, error)
	// CountPendingCommands counts pending commands; an empty deviceID counts all.
	CountPendingCommands(ctx context.Context, deviceID string) (int, error)
}

// PackageTransition describes a guarded sync package status change.
type PackageTransition struct {
	PackageID int64
	From      []models.SyncPackageStatus
	To        models.SyncPackageStatus
	At        time.Time
}

// PackageStore persists sync packages and their manifests.
type PackageStore interface {
	InsertSyncPackage(ctx context.Context, pkg *models.SyncPackage) error
	GetSyncPackage(ctx context.Context, packageID int64) (*models.SyncPackage, error)
	ListSyncPackages(ctx context.Context, filter models.SyncPackageFilter) ([]*models.SyncPackage, error)
	// TransitionSyncPackage applies t only if the current status is in t.From.
	// deployed_at is written at most once.
	TransitionSyncPackage(ctx context.Context, t PackageTransition) (bool, error)
	// AddSyncPackageFile appends a manifest entry to a staged package and
	// updates its aggregates atomically.
	AddSyncPackageFile(ctx context.Context, file *models.SyncPackageFile) (*models.SyncPackage, error)
	ListSyncPackageFiles(ctx context.Context, packageID int64) ([]*models.SyncPackageFile, error)
}

// FileSyncStore persists the append-only file operation log.
type FileSyncStore interface {
	InsertFileSyncRecord(ctx context.Context, rec *models.FileSyncRecord) error
	ListFileSyncRecords(ctx context.Context, deviceID string, limit int) ([]*models.FileSyncRecord, error)
}

// MessageStore persists device messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, filter models.MessageFilter) ([]*models.Message, error)
	CountMessages(ctx context.Context) (int, error)
}

// AuditStore persists the audit trail.
type AuditStore interface {
	InsertAuditEvent(ctx context.Context, event *models.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error)
}

// Service represents all hub persistence.
type Service interface {
	DeviceStore
	CommandStore
	PackageStore
	FileSyncStore
	MessageStore
	AuditStore

	Close() error
}
