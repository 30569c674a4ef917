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

// Package hub composes device identity, the command queue, sync packages and
// the audit trail into the operations served to devices and administrators.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/auth"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/commands"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/filesync"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/metrics"
	"github.com/carverauto/dropsync/pkg/models"
	"github.com/carverauto/dropsync/pkg/ratelimit"
)

const unknownSource = "unknown"

// Deps are the long-lived collaborators owned by the process. Store, FS,
// Recorder and Limiter are required.
type Deps struct {
	Store    db.Service
	FS       afero.Fs
	Legacy   *auth.LegacyTable
	Recorder *audit.Recorder
	Limiter  *ratelimit.Limiter
	Metrics  *metrics.Instruments
	Host     *metrics.HostSampler
	Clock    clock.Clock
	Options  []auth.Option
}

// Hub serves device and admin operations. Admin callers are authenticated
// by the transport; device callers carry their token in Caller.
type Hub struct {
	store    db.Service
	auth     *auth.Store
	queue    *commands.Queue
	packages *filesync.Manager
	tracker  *filesync.Tracker
	files    *filesync.DeviceFiles
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
	metrics  *metrics.Instruments
	host     *metrics.HostSampler
	clock    clock.Clock
	presence time.Duration
	logger   logger.Logger
}

// Caller identifies a device request.
type Caller struct {
	DeviceID string
	Token    string
	RemoteIP string
}

// New wires the components for cfg, which must already be validated.
func New(cfg *models.HubConfig, deps Deps, log logger.Logger) *Hub {
	c := deps.Clock
	if c == nil {
		c = clock.Real()
	}

	authOpts := append([]auth.Option{auth.WithClock(c)}, deps.Options...)
	tracker := filesync.NewTracker(deps.Store, deps.FS, c, log)

	h := &Hub{
		store:    deps.Store,
		auth:     auth.NewStore(deps.Store, deps.Legacy, deps.Recorder, &cfg.Devices, log, authOpts...),
		queue:    commands.NewQueue(deps.Store, deps.Recorder, cfg.Devices.QueueLimit(), log, c),
		tracker:  tracker,
		files:    filesync.NewDeviceFiles(deps.FS, &cfg.Storage, tracker, deps.Recorder, log),
		limiter:  deps.Limiter,
		recorder: deps.Recorder,
		metrics:  deps.Metrics,
		host:     deps.Host,
		clock:    c,
		presence: time.Duration(cfg.Devices.PresenceTimeout),
		logger:   log,
	}

	h.packages = filesync.NewManager(deps.Store, tracker, deps.FS, &cfg.Storage, deps.Recorder, c, log,
		filesync.WithDeployHook(func(ctx context.Context, _ *models.SyncPackage) {
			h.metrics.PackageDeployed(ctx)
		}))

	return h
}

// Auth exposes the identity store.
func (h *Hub) Auth() *auth.Store {
	return h.auth
}

// check hides storage failures behind a generic ErrStorage and records one
// critical audit event for each. Other errors pass through.
func (h *Hub) check(ctx context.Context, op string, err error) error {
	if err == nil || !errors.Is(err, models.ErrStorage) {
		return err
	}

	h.logger.Error().Err(err).Str("op", op).Msg("storage failure")

	if emitErr := h.recorder.Emit(ctx, models.EventStorageFailure, models.SourceSystem, models.SeverityCritical,
		fmt.Sprintf("storage failure during %s", op), nil); emitErr != nil {
		h.logger.Error().Err(emitErr).Str("op", op).Msg("could not record storage failure")
	}

	return fmt.Errorf("%s: %w", op, models.ErrStorage)
}

// authenticate rate limits and then authenticates a device caller. Every
// rejected authentication is recorded once.
func (h *Hub) authenticate(ctx context.Context, op string, caller Caller) (*models.Device, error) {
	if h.limiter != nil && !h.limiter.Allow("device:"+caller.DeviceID) {
		h.metrics.RateLimited(ctx)
		h.logger.Debug().Str("device_id", caller.DeviceID).Str("op", op).Msg("rate limited")

		return nil, models.ErrRateLimited
	}

	device, err := h.auth.RequireAuthFrom(ctx, caller.DeviceID, caller.Token, caller.RemoteIP)
	if err == nil {
		return device, nil
	}

	if !errors.Is(err, models.ErrUnauthorized) {
		return nil, h.check(ctx, op, err)
	}

	h.metrics.AuthFailure(ctx, "device")

	source := caller.DeviceID
	if models.ValidateDeviceID(source) != nil {
		source = unknownSource
	}

	if emitErr := h.recorder.Emit(ctx, models.EventAuthFailed, source, models.SeverityWarning,
		fmt.Sprintf("authentication failed for %s during %s", source, op),
		map[string]any{"remote_ip": caller.RemoteIP}); emitErr != nil {
		h.logger.Error().Err(emitErr).Str("device_id", source).Msg("could not record auth failure")
	}

	return nil, models.ErrUnauthorized
}

// AdminAuthFailed records a rejected admin credential.
func (h *Hub) AdminAuthFailed(ctx context.Context, remoteIP string) {
	h.metrics.AuthFailure(ctx, "admin")

	if err := h.recorder.Emit(ctx, models.EventAuthFailed, models.SourceAdmin, models.SeverityWarning,
		"admin authentication failed", map[string]any{"remote_ip": remoteIP}); err != nil {
		h.logger.Error().Err(err).Msg("could not record admin auth failure")
	}
}
