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
	"regexp"
	"time"
)

// DeviceStatus is the status last reported by (or assigned to) a device.
type DeviceStatus string

const (
	DeviceStatusOnline   DeviceStatus = "online"
	DeviceStatusOffline  DeviceStatus = "offline"
	DeviceStatusError    DeviceStatus = "error"
	DeviceStatusDisabled DeviceStatus = "disabled"
)

// DefaultDeviceType is used when registration does not name a type.
const DefaultDeviceType = "esp8266"

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Device is a registered edge node.
type Device struct {
	DeviceID        string       `json:"device_id"`
	TokenHash       string       `json:"-"`
	DeviceType      string       `json:"device_type"`
	Name            string       `json:"name"`
	Status          DeviceStatus `json:"status"`
	LastSeen        *time.Time   `json:"last_seen,omitempty"`
	IPAddress       string       `json:"ip_address,omitempty"`
	FirmwareVersion string       `json:"firmware_version,omitempty"`
	IsActive        bool         `json:"is_active"`
	CreatedAt       time.Time    `json:"created_at"`
}

// IsOnline reports whether the device was seen within timeout of now.
// Presence is derived at read time and never stored.
func (d *Device) IsOnline(now time.Time, timeout time.Duration) bool {
	if d == nil || d.LastSeen == nil {
		return false
	}

	return !d.LastSeen.Before(now.Add(-timeout))
}

// PresenceUpdate carries the fields touched by an authenticated interaction.
// Empty optional fields leave the stored value unchanged.
type PresenceUpdate struct {
	Status          DeviceStatus
	SeenAt          time.Time
	IPAddress       string
	FirmwareVersion string
}

// ValidateDeviceID checks the id shape accepted for registration and routing.
func ValidateDeviceID(deviceID string) error {
	if !deviceIDPattern.MatchString(deviceID) {
		return fmt.Errorf("%w: invalid device id %q", ErrValidation, deviceID)
	}

	return nil
}

// ParseReportedStatus validates a status a device reports about itself.
// Devices cannot report themselves disabled.
func ParseReportedStatus(raw string) (DeviceStatus, error) {
	switch DeviceStatus(raw) {
	case "":
		return DeviceStatusOnline, nil
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusError:
		return DeviceStatus(raw), nil
	case DeviceStatusDisabled:
		return "", fmt.Errorf("%w: devices cannot report status %q", ErrValidation, raw)
	default:
		return "", fmt.Errorf("%w: unknown device status %q", ErrValidation, raw)
	}
}
