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

// SyncPackageType classifies the bundle contents.
type SyncPackageType string

const (
	SyncPackageTypeFirmware SyncPackageType = "firmware"
	SyncPackageTypeConfig   SyncPackageType = "config"
	SyncPackageTypeData     SyncPackageType = "data"
	SyncPackageTypeScript   SyncPackageType = "script"
)

// SyncPackageStatus is the delivery lifecycle of a package.
type SyncPackageStatus string

const (
	SyncPackageStatusStaged    SyncPackageStatus = "staged"
	SyncPackageStatusDeploying SyncPackageStatus = "deploying"
	SyncPackageStatusDeployed  SyncPackageStatus = "deployed"
	SyncPackageStatusFailed    SyncPackageStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SyncPackageStatus) Terminal() bool {
	return s == SyncPackageStatusDeployed || s == SyncPackageStatusFailed
}

// SyncPackage is a named bundle targeted at exactly one device.
type SyncPackage struct {
	ID             int64             `json:"id"`
	PackageName    string            `json:"package_name"`
	TargetDeviceID string            `json:"target_device_id"`
	PackageType    SyncPackageType   `json:"package_type"`
	FileCount      int               `json:"file_count"`
	TotalSize      int64             `json:"total_size"`
	Status         SyncPackageStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	DeployedAt     *time.Time        `json:"deployed_at,omitempty"`
	Description    string            `json:"description,omitempty"`
}

// SyncPackageFile is one manifest entry of a package.
type SyncPackageFile struct {
	PackageID int64     `json:"package_id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	SHA256    string    `json:"sha256"`
	AddedAt   time.Time `json:"added_at"`
}

// SyncPackageFilter narrows admin package listings.
type SyncPackageFilter struct {
	DeviceID string
	Statuses []SyncPackageStatus
	Limit    int
}

// ParseSyncPackageType validates a package type.
func ParseSyncPackageType(raw string) (SyncPackageType, error) {
	switch t := SyncPackageType(raw); t {
	case SyncPackageTypeFirmware, SyncPackageTypeConfig, SyncPackageTypeData, SyncPackageTypeScript:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unknown package type %q", ErrValidation, raw)
	}
}

// ParseSyncPackageStatus validates a package status.
func ParseSyncPackageStatus(raw string) (SyncPackageStatus, error) {
	switch s := SyncPackageStatus(raw); s {
	case SyncPackageStatusStaged, SyncPackageStatusDeploying, SyncPackageStatusDeployed, SyncPackageStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown package status %q", ErrValidation, raw)
	}
}
