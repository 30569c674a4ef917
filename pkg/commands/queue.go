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

// Package commands is the per-device priority command queue.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	maxClaimAttempts   = 8
	maxResultLength    = 64 * 1024
	defaultHistorySize = 50
	maxHistorySize     = 500
)

var (
	errCommandRequired = fmt.Errorf("%w: command is required", models.ErrValidation)
	errCommandTooLong  = fmt.Errorf("%w: command exceeds %d bytes", models.ErrValidation, models.MaxCommandLength)
	errResultTooLarge  = fmt.Errorf("%w: result exceeds %d bytes", models.ErrPayloadTooLarge, maxResultLength)
	errReasonRequired  = fmt.Errorf("%w: failure reason is required", models.ErrValidation)
)

// Queue manages command delivery. All transitions are conditional writes in
// the store, so concurrent pollers and completions cannot regress a command.
type Queue struct {
	store      db.CommandStore
	auditor    audit.Emitter
	clock      clock.Clock
	logger     logger.Logger
	maxPending int
}

// NewQueue returns a queue that rejects enqueues beyond maxPending pending
// commands per device. Zero disables the bound.
func NewQueue(store db.CommandStore, auditor audit.Emitter, maxPending int, log logger.Logger, c clock.Clock) *Queue {
	if c == nil {
		c = clock.Real()
	}

	return &Queue{
		store:      store,
		auditor:    auditor,
		clock:      c,
		logger:     log,
		maxPending: maxPending,
	}
}

// Enqueue validates and appends a pending command for deviceID.
func (q *Queue) Enqueue(ctx context.Context, deviceID, command string, params *models.CommandParameters,
	priority int) (*models.Command, error) {
	command = strings.TrimSpace(command)

	switch {
	case command == "":
		return nil, errCommandRequired
	case len(command) > models.MaxCommandLength:
		return nil, errCommandTooLong
	}

	if priority == 0 {
		priority = models.PriorityLow
	}

	if err := models.ValidatePriority(priority); err != nil {
		return nil, err
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}

	cmd := &models.Command{
		DeviceID:   deviceID,
		Command:    command,
		Parameters: params,
		Priority:   priority,
		Status:     models.CommandStatusPending,
		Timestamp:  q.clock.Now(),
	}

	if err := q.store.InsertCommand(ctx, cmd, q.maxPending); err != nil {
		return nil, err
	}

	if err := q.auditor.Emit(ctx, models.EventCommandQueued, models.SourceAdmin, models.SeverityInfo,
		fmt.Sprintf("command %q queued for device %s", command, deviceID),
		map[string]any{"command_id": cmd.ID, "device_id": deviceID, "priority": priority}); err != nil {
		return nil, err
	}

	return cmd, nil
}

// DequeueNext returns the next deliverable command without claiming it.
func (q *Queue) DequeueNext(ctx context.Context, deviceID string) (*models.Command, error) {
	return q.store.NextPendingCommand(ctx, deviceID)
}

// MarkSent claims a pending command. False means another caller claimed it
// first or it no longer exists.
func (q *Queue) MarkSent(ctx context.Context, commandID int64) (bool, error) {
	return q.store.TransitionCommand(ctx, db.CommandTransition{
		CommandID: commandID,
		From:      []models.CommandStatus{models.CommandStatusPending},
		To:        models.CommandStatusSent,
		At:        q.clock.Now(),
	})
}

// Claim dequeues and marks sent in a loop until a command is won or none
// remain, so concurrent pollers never receive the same command.
func (q *Queue) Claim(ctx context.Context, deviceID string) (*models.Command, error) {
	for range maxClaimAttempts {
		next, err := q.DequeueNext(ctx, deviceID)
		if err != nil || next == nil {
			return nil, err
		}

		won, err := q.MarkSent(ctx, next.ID)
		if err != nil {
			return nil, err
		}

		if !won {
			continue
		}

		claimed, err := q.store.GetCommand(ctx, next.ID)
		if err != nil {
			return nil, err
		}

		return claimed, nil
	}

	q.logger.Warn().Str("device_id", deviceID).Int("attempts", maxClaimAttempts).
		Msg("gave up claiming command under contention")

	return nil, nil
}

// Get returns a command by id.
func (q *Queue) Get(ctx context.Context, commandID int64) (*models.Command, error) {
	return q.store.GetCommand(ctx, commandID)
}

// Complete finishes a pending or sent command. Completing an already
// completed command reports true without rewriting it; a failed command
// cannot be completed.
func (q *Queue) Complete(ctx context.Context, commandID int64, result *string) (bool, error) {
	if result != nil && len(*result) > maxResultLength {
		return false, errResultTooLarge
	}

	return q.finish(ctx, commandID, models.CommandStatusCompleted, result)
}

// Fail finishes a pending or sent command as failed, recording reason.
// Failing an already failed command reports true; a completed command
// cannot be failed.
func (q *Queue) Fail(ctx context.Context, commandID int64, reason string) (bool, error) {
	reason = strings.TrimSpace(reason)

	switch {
	case reason == "":
		return false, errReasonRequired
	case len(reason) > maxResultLength:
		return false, errResultTooLarge
	}

	return q.finish(ctx, commandID, models.CommandStatusFailed, &reason)
}

func (q *Queue) finish(ctx context.Context, commandID int64, to models.CommandStatus, result *string) (bool, error) {
	moved, err := q.store.TransitionCommand(ctx, db.CommandTransition{
		CommandID: commandID,
		From:      []models.CommandStatus{models.CommandStatusPending, models.CommandStatusSent},
		To:        to,
		At:        q.clock.Now(),
		Result:    result,
	})
	if err != nil {
		return false, err
	}

	if !moved {
		current, err := q.store.GetCommand(ctx, commandID)

		switch {
		case errors.Is(err, models.ErrCommandNotFound):
			return false, nil
		case err != nil:
			return false, err
		}

		return current.Status == to, nil
	}

	eventType, severity := models.EventCommandCompleted, models.SeverityInfo
	if to == models.CommandStatusFailed {
		eventType, severity = models.EventCommandFailed, models.SeverityWarning
	}

	cmd, err := q.store.GetCommand(ctx, commandID)
	if err != nil {
		return false, err
	}

	if err := q.auditor.Emit(ctx, eventType, cmd.DeviceID, severity,
		fmt.Sprintf("command %d %s", commandID, to),
		map[string]any{"command_id": commandID, "command": cmd.Command}); err != nil {
		return false, err
	}

	return true, nil
}

// History returns the most recent commands for deviceID, newest first.
// An empty deviceID lists across devices.
func (q *Queue) History(ctx context.Context, deviceID string, limit int) ([]*models.Command, error) {
	switch {
	case limit <= 0:
		limit = defaultHistorySize
	case limit > maxHistorySize:
		limit = maxHistorySize
	}

	return q.store.ListCommands(ctx, deviceID, limit)
}

// Pending counts pending commands; an empty deviceID counts all.
func (q *Queue) Pending(ctx context.Context, deviceID string) (int, error) {
	return q.store.CountPendingCommands(ctx, deviceID)
}
