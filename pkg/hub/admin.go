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

package hub

import (
	"context"
	"io"

	"github.com/carverauto/dropsync/pkg/metrics"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	defaultAdminLimit = 50
	maxAdminLimit     = 100
)

// Registration carries a newly issued token. The token is shown once.
type Registration struct {
	Device *models.Device `json:"device"`
	Token  string         `json:"token"`
}

// DeviceView is a device with its derived presence.
type DeviceView struct {
	*models.Device
	IsOnline bool `json:"is_online"`
}

// SystemStats summarizes the hub for administrators.
type SystemStats struct {
	Devices struct {
		Total  int `json:"total"`
		Active int `json:"active"`
		Online int `json:"online"`
	} `json:"devices"`
	Commands struct {
		Pending int `json:"pending"`
	} `json:"commands"`
	Messages struct {
		Total int `json:"total"`
	} `json:"messages"`
	RateLimitKeys int                `json:"rate_limit_keys"`
	LegacyTokens  int                `json:"legacy_tokens"`
	Host          *metrics.HostStats `json:"host,omitempty"`
}

func adminLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultAdminLimit
	case limit > maxAdminLimit:
		return maxAdminLimit
	default:
		return limit
	}
}

// RegisterDevice issues a token for deviceID, creating or re-activating it.
func (h *Hub) RegisterDevice(ctx context.Context, deviceID, name, deviceType string) (*Registration, error) {
	token, device, err := h.auth.IssueToken(ctx, deviceID, deviceType, name)
	if err != nil {
		return nil, h.check(ctx, "register_device", err)
	}

	return &Registration{Device: device, Token: token}, nil
}

// RotateToken replaces a device token and returns the new plaintext.
func (h *Hub) RotateToken(ctx context.Context, deviceID string) (string, error) {
	token, err := h.auth.RotateToken(ctx, deviceID)
	if err != nil {
		return "", h.check(ctx, "rotate_token", err)
	}

	return token, nil
}

// RevokeDevice disables a device.
func (h *Hub) RevokeDevice(ctx context.Context, deviceID string) error {
	return h.check(ctx, "revoke_device", h.auth.Revoke(ctx, deviceID))
}

// SendCommand queues a command for deviceID.
func (h *Hub) SendCommand(ctx context.Context, deviceID, command string, params *models.CommandParameters,
	priority int) (*models.Command, error) {
	cmd, err := h.queue.Enqueue(ctx, deviceID, command, params, priority)
	if err != nil {
		return nil, h.check(ctx, "send_command", err)
	}

	h.metrics.CommandEnqueued(ctx, cmd.Priority)

	return cmd, nil
}

// ListDevices lists devices with their derived presence.
func (h *Hub) ListDevices(ctx context.Context, includeInactive bool) ([]DeviceView, error) {
	devices, err := h.store.ListDevices(ctx, includeInactive)
	if err != nil {
		return nil, h.check(ctx, "list_devices", err)
	}

	now := h.clock.Now()
	out := make([]DeviceView, 0, len(devices))

	for _, d := range devices {
		out = append(out, DeviceView{Device: d, IsOnline: d.IsActive && d.IsOnline(now, h.presence)})
	}

	return out, nil
}

// CommandHistory lists a device's commands, newest first.
func (h *Hub) CommandHistory(ctx context.Context, deviceID string, limit int) ([]*models.Command, error) {
	cmds, err := h.queue.History(ctx, deviceID, adminLimit(limit))
	if err != nil {
		return nil, h.check(ctx, "command_history", err)
	}

	return cmds, nil
}

// Messages lists device messages, newest first.
func (h *Hub) Messages(ctx context.Context, filter models.MessageFilter) ([]*models.Message, error) {
	if filter.MinSeverity != "" {
		if _, err := models.ParseSeverity(string(filter.MinSeverity)); err != nil {
			return nil, err
		}
	}

	filter.Limit = adminLimit(filter.Limit)

	msgs, err := h.store.ListMessages(ctx, filter)
	if err != nil {
		return nil, h.check(ctx, "list_messages", err)
	}

	return msgs, nil
}

// AuditEvents lists the audit trail, newest first.
func (h *Hub) AuditEvents(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	events, err := h.recorder.List(ctx, filter)
	if err != nil {
		return nil, h.check(ctx, "list_audit_events", err)
	}

	return events, nil
}

// SystemStats counts devices, pending commands and messages, and samples
// the host when a sampler is configured.
func (h *Hub) SystemStats(ctx context.Context) (*SystemStats, error) {
	devices, err := h.store.ListDevices(ctx, true)
	if err != nil {
		return nil, h.check(ctx, "system_stats", err)
	}

	stats := &SystemStats{}
	now := h.clock.Now()

	for _, d := range devices {
		stats.Devices.Total++

		if !d.IsActive {
			continue
		}

		stats.Devices.Active++

		if d.IsOnline(now, h.presence) {
			stats.Devices.Online++
		}
	}

	if stats.Commands.Pending, err = h.store.CountPendingCommands(ctx, ""); err != nil {
		return nil, h.check(ctx, "system_stats", err)
	}

	if stats.Messages.Total, err = h.store.CountMessages(ctx); err != nil {
		return nil, h.check(ctx, "system_stats", err)
	}

	if h.limiter != nil {
		stats.RateLimitKeys = h.limiter.Keys()
	}

	if legacy := h.auth.Legacy(); legacy != nil {
		stats.LegacyTokens = legacy.Len()
	}

	if h.host != nil {
		host := h.host.Sample(ctx)
		stats.Host = &host
	}

	return stats, nil
}

// CreatePackage stages an empty sync package for a device.
func (h *Hub) CreatePackage(ctx context.Context, name, targetDeviceID string, packageType models.SyncPackageType,
	description string) (*models.SyncPackage, error) {
	pkg, err := h.packages.CreatePackage(ctx, name, targetDeviceID, packageType, description)
	if err != nil {
		return nil, h.check(ctx, "create_package", err)
	}

	return pkg, nil
}

// AddPackageFile stages a file into a package. A non-empty expectedSHA256
// (hex or base64) must match the received content.
func (h *Hub) AddPackageFile(ctx context.Context, packageID int64, filename string, r io.Reader,
	expectedSHA256 string) (*models.SyncPackageFile, *models.SyncPackage, error) {
	file, pkg, err := h.packages.AddFile(ctx, packageID, filename, r, expectedSHA256)
	if err != nil {
		return nil, nil, h.check(ctx, "add_package_file", err)
	}

	return file, pkg, nil
}

// FailPackage abandons a package.
func (h *Hub) FailPackage(ctx context.Context, packageID int64, reason string) (*models.SyncPackage, error) {
	pkg, err := h.packages.MarkFailed(ctx, packageID, reason)
	if err != nil {
		return nil, h.check(ctx, "fail_package", err)
	}

	return pkg, nil
}

// ListPackages lists packages by device and status.
func (h *Hub) ListPackages(ctx context.Context, filter models.SyncPackageFilter) ([]*models.SyncPackage, error) {
	pkgs, err := h.packages.ListPackages(ctx, filter)
	if err != nil {
		return nil, h.check(ctx, "list_packages", err)
	}

	return pkgs, nil
}

// PackageFiles returns a package manifest.
func (h *Hub) PackageFiles(ctx context.Context, packageID int64) ([]*models.SyncPackageFile, error) {
	files, err := h.packages.Files(ctx, packageID)
	if err != nil {
		return nil, h.check(ctx, "package_files", err)
	}

	return files, nil
}
