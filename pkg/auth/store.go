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

// Package auth authenticates devices by id and bearer token and manages
// token issuance, rotation and revocation.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	tokenBytes          = 32
	maxTokenGenAttempts = 3
	maxTokenLength      = 512
)

var (
	errTokenRequired   = fmt.Errorf("%w: token is required", models.ErrValidation)
	errTokenTooLong    = fmt.Errorf("%w: token exceeds %d bytes", models.ErrValidation, maxTokenLength)
	errTokenExhausted  = errors.New("could not generate a fresh token")
	errNameTooLong     = fmt.Errorf("%w: name exceeds 128 bytes", models.ErrValidation)
	errDeviceTypeShape = fmt.Errorf("%w: device type must be 1-32 bytes", models.ErrValidation)
)

// Store authenticates devices against persistent records, falling back to
// the legacy table for devices that have never been provisioned.
type Store struct {
	devices     db.DeviceStore
	legacy      *LegacyTable
	auditor     audit.Emitter
	clock       clock.Clock
	logger      logger.Logger
	random      io.Reader
	defaultType string
	mirror      bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithRandom overrides the token entropy source.
func WithRandom(r io.Reader) Option {
	return func(s *Store) { s.random = r }
}

// NewStore wires the auth store. cfg supplies the default device type and
// whether issued tokens are mirrored into the legacy table.
func NewStore(devices db.DeviceStore, legacy *LegacyTable, auditor audit.Emitter, cfg *models.DevicesConfig,
	log logger.Logger, opts ...Option) *Store {
	s := &Store{
		devices:     devices,
		legacy:      legacy,
		auditor:     auditor,
		clock:       clock.Real(),
		logger:      log,
		random:      rand.Reader,
		defaultType: cfg.DefaultDeviceType,
		mirror:      cfg.MirrorTokens(),
	}

	if s.defaultType == "" {
		s.defaultType = models.DefaultDeviceType
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Legacy exposes the legacy table for watching and inspection.
func (s *Store) Legacy() *LegacyTable {
	return s.legacy
}

// Verify reports whether token authenticates deviceID. Only storage
// failures are returned as errors.
func (s *Store) Verify(ctx context.Context, deviceID, token string) (bool, error) {
	_, err := s.RequireAuth(ctx, deviceID, token)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrUnauthorized):
		return false, nil
	default:
		return false, err
	}
}

// RequireAuth authenticates deviceID and records its presence.
func (s *Store) RequireAuth(ctx context.Context, deviceID, token string) (*models.Device, error) {
	return s.RequireAuthFrom(ctx, deviceID, token, "")
}

// RequireAuthFrom is RequireAuth that also records the caller's address.
func (s *Store) RequireAuthFrom(ctx context.Context, deviceID, token, remoteIP string) (*models.Device, error) {
	if deviceID == "" || token == "" || len(token) > maxTokenLength {
		return nil, models.ErrUnauthorized
	}

	device, err := s.devices.GetDevice(ctx, deviceID)

	switch {
	case errors.Is(err, models.ErrDeviceNotFound):
		return s.provisionFromLegacy(ctx, deviceID, token, remoteIP)
	case err != nil:
		return nil, err
	}

	if !device.IsActive || device.TokenHash == "" || !hashutil.TokenMatches(token, device.TokenHash) {
		return nil, models.ErrUnauthorized
	}

	return s.touch(ctx, device, remoteIP)
}

func (s *Store) touch(ctx context.Context, device *models.Device, remoteIP string) (*models.Device, error) {
	update := models.PresenceUpdate{
		Status:    models.DeviceStatusOnline,
		SeenAt:    s.clock.Now(),
		IPAddress: remoteIP,
	}

	ok, err := s.devices.TouchDevice(ctx, device.DeviceID, update)
	if err != nil {
		return nil, err
	}

	// Revoked between the read and the update.
	if !ok {
		return nil, models.ErrUnauthorized
	}

	device.Status = update.Status
	device.LastSeen = &update.SeenAt

	if remoteIP != "" {
		device.IPAddress = remoteIP
	}

	return device, nil
}

func (s *Store) provisionFromLegacy(ctx context.Context, deviceID, token, remoteIP string) (*models.Device, error) {
	if s.legacy == nil || !s.legacy.Match(deviceID, token) {
		return nil, models.ErrUnauthorized
	}

	device := &models.Device{
		DeviceID:   deviceID,
		TokenHash:  hashutil.TokenDigest(token),
		DeviceType: s.defaultType,
		Name:       deviceID,
		Status:     models.DeviceStatusOffline,
		IsActive:   true,
		CreatedAt:  s.clock.Now(),
	}

	// Insert only: a revoke or a concurrent migration that wrote the row
	// first wins, and this attempt is refused.
	inserted, err := s.devices.InsertDevice(ctx, device)
	if err != nil {
		if errors.Is(err, models.ErrTokenConflict) {
			s.logger.Warn().Str("device_id", deviceID).Msg("legacy token already bound to another device")

			return nil, models.ErrUnauthorized
		}

		return nil, err
	}

	if !inserted {
		s.logger.Debug().Str("device_id", deviceID).Msg("legacy migration lost to an existing record")

		return nil, models.ErrUnauthorized
	}

	if _, err := s.legacy.Remove(deviceID); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to retire legacy token entry")
	}

	if err := s.auditor.Emit(ctx, models.EventDeviceMigrated, deviceID, models.SeverityInfo,
		fmt.Sprintf("device %s provisioned from legacy token table", deviceID), nil); err != nil {
		return nil, err
	}

	s.logger.Info().Str("device_id", deviceID).Msg("device migrated from legacy token table")

	return s.touch(ctx, device, remoteIP)
}

// Register binds token to deviceID, creating the device or re-activating
// and rebinding an existing one.
func (s *Store) Register(ctx context.Context, deviceID, token, deviceType, name string) (*models.Device, error) {
	device, _, err := s.register(ctx, deviceID, token, deviceType, name)

	return device, err
}

func validateRegistration(deviceID, token, deviceType, name string) error {
	if err := models.ValidateDeviceID(deviceID); err != nil {
		return err
	}

	if token == "" {
		return errTokenRequired
	}

	if len(token) > maxTokenLength {
		return errTokenTooLong
	}

	if len(deviceType) > 32 {
		return errDeviceTypeShape
	}

	if len(name) > 128 {
		return errNameTooLong
	}

	return nil
}

// register upserts the device and records one audit event. It reports
// whether a record already existed.
func (s *Store) register(ctx context.Context, deviceID, token, deviceType, name string) (*models.Device, bool, error) {
	if err := validateRegistration(deviceID, token, deviceType, name); err != nil {
		return nil, false, err
	}

	if deviceType == "" {
		deviceType = s.defaultType
	}

	if name == "" {
		name = deviceID
	}

	existing, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil && !errors.Is(err, models.ErrDeviceNotFound) {
		return nil, false, err
	}

	device := &models.Device{
		DeviceID:   deviceID,
		TokenHash:  hashutil.TokenDigest(token),
		DeviceType: deviceType,
		Name:       name,
		Status:     models.DeviceStatusOffline,
		IsActive:   true,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.devices.UpsertDevice(ctx, device); err != nil {
		return nil, false, err
	}

	message := fmt.Sprintf("device %s registered", deviceID)
	if existing != nil {
		message = fmt.Sprintf("device %s re-registered", deviceID)
	}

	if err := s.auditor.Emit(ctx, models.EventDeviceRegistered, models.SourceAdmin, models.SeverityInfo, message,
		map[string]string{"device_id": deviceID, "device_type": deviceType}); err != nil {
		return nil, false, err
	}

	stored, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, false, err
	}

	return stored, existing != nil, nil
}

// IssueToken generates a fresh token for deviceID, registers it and returns
// the plaintext. The plaintext is not retrievable afterwards.
func (s *Store) IssueToken(ctx context.Context, deviceID, deviceType, name string) (string, *models.Device, error) {
	if err := models.ValidateDeviceID(deviceID); err != nil {
		return "", nil, err
	}

	current, err := s.currentDigest(ctx, deviceID)
	if err != nil {
		return "", nil, err
	}

	token, err := s.freshToken(current)
	if err != nil {
		return "", nil, err
	}

	device, _, err := s.register(ctx, deviceID, token, deviceType, name)
	if err != nil {
		return "", nil, err
	}

	s.mirrorToken(deviceID, token)

	return token, device, nil
}

// RotateToken replaces the token of an existing device. A revoked device
// stays revoked; re-register it to re-activate.
func (s *Store) RotateToken(ctx context.Context, deviceID string) (string, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return "", err
	}

	token, err := s.freshToken(device.TokenHash)
	if err != nil {
		return "", err
	}

	if err := s.devices.UpdateDeviceToken(ctx, deviceID, hashutil.TokenDigest(token)); err != nil {
		return "", err
	}

	if err := s.auditor.Emit(ctx, models.EventTokenRotated, models.SourceAdmin, models.SeverityInfo,
		fmt.Sprintf("token rotated for device %s", deviceID), map[string]string{"device_id": deviceID}); err != nil {
		return "", err
	}

	if device.IsActive {
		s.mirrorToken(deviceID, token)
	}

	return token, nil
}

// Revoke disables deviceID and removes its legacy entry. Revoking an
// unknown device leaves a disabled record so a later legacy entry cannot
// authenticate it.
func (s *Store) Revoke(ctx context.Context, deviceID string) error {
	if err := models.ValidateDeviceID(deviceID); err != nil {
		return err
	}

	if s.legacy != nil {
		if _, err := s.legacy.Remove(deviceID); err != nil {
			return fmt.Errorf("%w: %w", models.ErrStorage, err)
		}
	}

	if err := s.devices.DisableDevice(ctx, deviceID, s.clock.Now()); err != nil {
		return err
	}

	return s.auditor.Emit(ctx, models.EventDeviceRevoked, models.SourceAdmin, models.SeverityWarning,
		fmt.Sprintf("device %s revoked", deviceID), map[string]string{"device_id": deviceID})
}

func (s *Store) currentDigest(ctx context.Context, deviceID string) (string, error) {
	device, err := s.devices.GetDevice(ctx, deviceID)

	switch {
	case errors.Is(err, models.ErrDeviceNotFound):
		return "", nil
	case err != nil:
		return "", err
	default:
		return device.TokenHash, nil
	}
}

// freshToken returns a random token whose digest differs from current.
func (s *Store) freshToken(current string) (string, error) {
	buf := make([]byte, tokenBytes)

	for range maxTokenGenAttempts {
		if _, err := io.ReadFull(s.random, buf); err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}

		token := base64.RawURLEncoding.EncodeToString(buf)
		if current == "" || !hashutil.TokenMatches(token, current) {
			return token, nil
		}
	}

	return "", errTokenExhausted
}

func (s *Store) mirrorToken(deviceID, token string) {
	if !s.mirror || s.legacy == nil {
		return
	}

	if err := s.legacy.Set(deviceID, token); err != nil {
		s.logger.Warn().Err(err).Str("device_id", deviceID).Msg("failed to mirror token into legacy table")
	}
}
