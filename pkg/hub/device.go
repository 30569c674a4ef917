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
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/carverauto/dropsync/pkg/models"
)

const recentMessageCount = 5

var errContentRequired = fmt.Errorf("%w: message content is required", models.ErrValidation)

// PingResult answers a connectivity check.
type PingResult struct {
	Status          string    `json:"status"`
	DeviceID        string    `json:"device_id"`
	Timestamp       time.Time `json:"timestamp"`
	PendingCommands int       `json:"pending_commands"`
}

// HeartbeatResult acknowledges a heartbeat.
type HeartbeatResult struct {
	Status     string    `json:"status"`
	DeviceID   string    `json:"device_id"`
	ServerTime time.Time `json:"server_time"`
}

// DeviceStatus is what a device may read about itself.
type DeviceStatus struct {
	DeviceID        string              `json:"device_id"`
	Status          models.DeviceStatus `json:"status"`
	IsOnline        bool                `json:"is_online"`
	LastSeen        *time.Time          `json:"last_seen,omitempty"`
	FirmwareVersion string              `json:"firmware_version,omitempty"`
	PendingCommands int                 `json:"pending_commands"`
	RecentMessages  []*models.Message   `json:"recent_messages"`
}

// Ping authenticates the caller and refreshes its presence.
func (h *Hub) Ping(ctx context.Context, caller Caller) (*PingResult, error) {
	if _, err := h.authenticate(ctx, "ping", caller); err != nil {
		return nil, err
	}

	pending, err := h.queue.Pending(ctx, caller.DeviceID)
	if err != nil {
		return nil, h.check(ctx, "ping", err)
	}

	return &PingResult{
		Status:          "ok",
		DeviceID:        caller.DeviceID,
		Timestamp:       h.clock.Now(),
		PendingCommands: pending,
	}, nil
}

// PollCommand claims the next command for the caller, or returns nil.
func (h *Hub) PollCommand(ctx context.Context, caller Caller) (*models.Command, error) {
	if _, err := h.authenticate(ctx, "poll_command", caller); err != nil {
		return nil, err
	}

	cmd, err := h.queue.Claim(ctx, caller.DeviceID)
	if err != nil || cmd == nil {
		return nil, h.check(ctx, "poll_command", err)
	}

	h.metrics.CommandDelivered(ctx)

	if err := h.recorder.Emit(ctx, models.EventCommandSent, caller.DeviceID, models.SeverityInfo,
		fmt.Sprintf("command %q sent to device %s", cmd.Command, caller.DeviceID),
		map[string]any{"command_id": cmd.ID}); err != nil {
		h.logger.Error().Err(err).Int64("command_id", cmd.ID).Msg("could not record command delivery")
	}

	return cmd, nil
}

// ownedCommand loads a command and hides it from other devices.
func (h *Hub) ownedCommand(ctx context.Context, deviceID string, commandID int64) (*models.Command, error) {
	cmd, err := h.queue.Get(ctx, commandID)
	if err != nil {
		return nil, err
	}

	if cmd.DeviceID != deviceID {
		return nil, models.ErrCommandNotFound
	}

	return cmd, nil
}

// finished turns a refused transition into an error the caller can act on.
func (h *Hub) finished(ctx context.Context, op string, commandID int64, ok bool, err error) (*models.Command, error) {
	if err != nil {
		return nil, h.check(ctx, op, err)
	}

	cmd, err := h.queue.Get(ctx, commandID)
	if err != nil {
		return nil, h.check(ctx, op, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: command %d is %s", models.ErrInvalidTransition, commandID, cmd.Status)
	}

	return cmd, nil
}

// CompleteCommand marks one of the caller's commands completed.
func (h *Hub) CompleteCommand(ctx context.Context, caller Caller, commandID int64, result *string) (*models.Command, error) {
	if _, err := h.authenticate(ctx, "complete_command", caller); err != nil {
		return nil, err
	}

	if _, err := h.ownedCommand(ctx, caller.DeviceID, commandID); err != nil {
		return nil, h.check(ctx, "complete_command", err)
	}

	ok, err := h.queue.Complete(ctx, commandID, result)

	return h.finished(ctx, "complete_command", commandID, ok, err)
}

// FailCommand marks one of the caller's commands failed.
func (h *Hub) FailCommand(ctx context.Context, caller Caller, commandID int64, reason string) (*models.Command, error) {
	if _, err := h.authenticate(ctx, "fail_command", caller); err != nil {
		return nil, err
	}

	if _, err := h.ownedCommand(ctx, caller.DeviceID, commandID); err != nil {
		return nil, h.check(ctx, "fail_command", err)
	}

	ok, err := h.queue.Fail(ctx, commandID, reason)

	return h.finished(ctx, "fail_command", commandID, ok, err)
}

// PostMessage stores a device message. Warning and above also raise a
// device_alert audit event.
func (h *Hub) PostMessage(ctx context.Context, caller Caller, msgType, content, severity string) (*models.Message, error) {
	if _, err := h.authenticate(ctx, "post_message", caller); err != nil {
		return nil, err
	}

	sev, err := models.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}

	msgType = strings.TrimSpace(msgType)
	if msgType == "" {
		msgType = models.DefaultMessageType
	}

	switch {
	case strings.TrimSpace(content) == "":
		return nil, errContentRequired
	case len(content) > models.MaxMessageContentLength:
		return nil, fmt.Errorf("%w: message exceeds %d bytes", models.ErrPayloadTooLarge, models.MaxMessageContentLength)
	}

	msg := &models.Message{
		DeviceID:    caller.DeviceID,
		MessageType: msgType,
		Content:     content,
		Severity:    sev,
		Timestamp:   h.clock.Now(),
	}

	if err := h.store.InsertMessage(ctx, msg); err != nil {
		return nil, h.check(ctx, "post_message", err)
	}

	if sev.AtLeast(models.SeverityWarning) {
		if err := h.recorder.Emit(ctx, models.EventDeviceAlert, caller.DeviceID, sev,
			fmt.Sprintf("device %s reported %s: %s", caller.DeviceID, sev, truncate(content, 200)),
			map[string]any{"message_id": msg.ID, "message_type": msgType}); err != nil {
			return nil, h.check(ctx, "post_message", err)
		}
	}

	return msg, nil
}

// Heartbeat records the status a device reports about itself. An explicit
// ipAddress takes precedence over the connection address.
func (h *Hub) Heartbeat(ctx context.Context, caller Caller, status, firmwareVersion, ipAddress string) (*HeartbeatResult, error) {
	if _, err := h.authenticate(ctx, "heartbeat", caller); err != nil {
		return nil, err
	}

	reported, err := models.ParseReportedStatus(status)
	if err != nil {
		return nil, err
	}

	if ipAddress == "" {
		ipAddress = caller.RemoteIP
	}

	now := h.clock.Now()

	ok, err := h.store.TouchDevice(ctx, caller.DeviceID, models.PresenceUpdate{
		Status:          reported,
		SeenAt:          now,
		IPAddress:       ipAddress,
		FirmwareVersion: firmwareVersion,
	})
	if err != nil {
		return nil, h.check(ctx, "heartbeat", err)
	}

	if !ok {
		return nil, models.ErrUnauthorized
	}

	return &HeartbeatResult{Status: "acknowledged", DeviceID: caller.DeviceID, ServerTime: now}, nil
}

// DeviceStatus returns the caller's own record with its pending count and
// most recent messages.
func (h *Hub) DeviceStatus(ctx context.Context, caller Caller) (*DeviceStatus, error) {
	device, err := h.authenticate(ctx, "device_status", caller)
	if err != nil {
		return nil, err
	}

	pending, err := h.queue.Pending(ctx, caller.DeviceID)
	if err != nil {
		return nil, h.check(ctx, "device_status", err)
	}

	recent, err := h.store.ListMessages(ctx, models.MessageFilter{DeviceID: caller.DeviceID, Limit: recentMessageCount})
	if err != nil {
		return nil, h.check(ctx, "device_status", err)
	}

	return &DeviceStatus{
		DeviceID:        device.DeviceID,
		Status:          device.Status,
		IsOnline:        device.IsOnline(h.clock.Now(), h.presence),
		LastSeen:        device.LastSeen,
		FirmwareVersion: device.FirmwareVersion,
		PendingCommands: pending,
		RecentMessages:  recent,
	}, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n] + "..."
}
