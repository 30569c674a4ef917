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

package db

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/dropsync/pkg/models"
)

// MemoryStore is a mutex-guarded Service used for development and tests.
// Every transition is a compare-and-set under the single lock.
type MemoryStore struct {
	mu sync.RWMutex

	devices      map[string]*models.Device
	commands     map[int64]*models.Command
	packages     map[int64]*models.SyncPackage
	packageFiles map[int64][]*models.SyncPackageFile
	fileRecords  []*models.FileSyncRecord
	messages     []*models.Message
	audit        []*models.AuditEvent

	nextCommandID int64
	nextPackageID int64
	nextRecordID  int64
	nextMessageID int64
}

var _ Service = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:      make(map[string]*models.Device),
		commands:     make(map[int64]*models.Command),
		packages:     make(map[int64]*models.SyncPackage),
		packageFiles: make(map[int64][]*models.SyncPackageFile),
	}
}

func (*MemoryStore) Close() error { return nil }

func cloneDevice(d *models.Device) *models.Device {
	out := *d
	if d.LastSeen != nil {
		seen := *d.LastSeen
		out.LastSeen = &seen
	}

	return &out
}

func cloneCommand(c *models.Command) *models.Command {
	out := *c
	if c.Parameters != nil {
		params := *c.Parameters
		params.Data = slices.Clone(c.Parameters.Data)
		out.Parameters = &params
	}

	return &out
}

func clonePackage(p *models.SyncPackage) *models.SyncPackage {
	out := *p

	return &out
}

// GetDevice returns a copy of the device or models.ErrDeviceNotFound.
func (m *MemoryStore) GetDevice(_ context.Context, deviceID string) (*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil, models.ErrDeviceNotFound
	}

	return cloneDevice(d), nil
}

func (m *MemoryStore) tokenOwner(tokenHash string) string {
	if tokenHash == "" {
		return ""
	}

	for id, d := range m.devices {
		if d.TokenHash == tokenHash {
			return id
		}
	}

	return ""
}

func (m *MemoryStore) UpsertDevice(_ context.Context, device *models.Device) error {
	if device == nil {
		return ErrDeviceNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if owner := m.tokenOwner(device.TokenHash); owner != "" && owner != device.DeviceID {
		return models.ErrTokenConflict
	}

	existing, ok := m.devices[device.DeviceID]
	if !ok {
		stored := cloneDevice(device)
		stored.IsActive = true
		m.devices[device.DeviceID] = stored

		return nil
	}

	existing.TokenHash = device.TokenHash
	existing.DeviceType = device.DeviceType
	existing.Name = device.Name
	existing.Status = device.Status
	existing.IsActive = true

	return nil
}

func (m *MemoryStore) InsertDevice(_ context.Context, device *models.Device) (bool, error) {
	if device == nil {
		return false, ErrDeviceNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[device.DeviceID]; ok {
		return false, nil
	}

	if owner := m.tokenOwner(device.TokenHash); owner != "" {
		return false, models.ErrTokenConflict
	}

	stored := cloneDevice(device)
	stored.IsActive = true
	m.devices[device.DeviceID] = stored

	return true, nil
}

func (m *MemoryStore) UpdateDeviceToken(_ context.Context, deviceID, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return models.ErrDeviceNotFound
	}

	if owner := m.tokenOwner(tokenHash); owner != "" && owner != deviceID {
		return models.ErrTokenConflict
	}

	d.TokenHash = tokenHash

	return nil
}

func (m *MemoryStore) DisableDevice(_ context.Context, deviceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		d = &models.Device{
			DeviceID:   deviceID,
			DeviceType: models.DefaultDeviceType,
			CreatedAt:  at,
		}
		m.devices[deviceID] = d
	}

	d.IsActive = false
	d.Status = models.DeviceStatusDisabled

	return nil
}

func (m *MemoryStore) TouchDevice(_ context.Context, deviceID string, update models.PresenceUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok || !d.IsActive {
		return false, nil
	}

	seen := update.SeenAt
	d.LastSeen = &seen

	if update.Status != "" {
		d.Status = update.Status
	}

	if update.IPAddress != "" {
		d.IPAddress = update.IPAddress
	}

	if update.FirmwareVersion != "" {
		d.FirmwareVersion = update.FirmwareVersion
	}

	return true, nil
}

func (m *MemoryStore) ListDevices(_ context.Context, includeInactive bool) ([]*models.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Device, 0, len(m.devices))

	for _, d := range m.devices {
		if !includeInactive && !d.IsActive {
			continue
		}

		out = append(out, cloneDevice(d))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })

	return out, nil
}

func (m *MemoryStore) pendingCount(deviceID string) int {
	count := 0

	for _, c := range m.commands {
		if c.Status == models.CommandStatusPending && (deviceID == "" || c.DeviceID == deviceID) {
			count++
		}
	}

	return count
}

func (m *MemoryStore) InsertCommand(_ context.Context, cmd *models.Command, maxPending int) error {
	if cmd == nil {
		return ErrCommandNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[cmd.DeviceID]; !ok {
		return models.ErrDeviceNotFound
	}

	if maxPending > 0 && m.pendingCount(cmd.DeviceID) >= maxPending {
		return models.ErrQueueFull
	}

	m.nextCommandID++
	cmd.ID = m.nextCommandID
	m.commands[cmd.ID] = cloneCommand(cmd)

	return nil
}

func (m *MemoryStore) GetCommand(_ context.Context, commandID int64) (*models.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.commands[commandID]
	if !ok {
		return nil, models.ErrCommandNotFound
	}

	return cloneCommand(c), nil
}

// deliveredBefore orders pending commands for delivery.
func deliveredBefore(a, b *models.Command) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}

	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}

	return a.ID < b.ID
}

func (m *MemoryStore) NextPendingCommand(_ context.Context, deviceID string) (*models.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *models.Command

	for _, c := range m.commands {
		if c.DeviceID != deviceID || c.Status != models.CommandStatusPending {
			continue
		}

		if next == nil || deliveredBefore(c, next) {
			next = c
		}
	}

	if next == nil {
		return nil, nil
	}

	return cloneCommand(next), nil
}

func (m *MemoryStore) TransitionCommand(_ context.Context, t CommandTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, ErrTransitionEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.commands[t.CommandID]
	if !ok || !slices.Contains(t.From, c.Status) {
		return false, nil
	}

	at := t.At
	c.Status = t.To

	switch t.To {
	case models.CommandStatusSent:
		c.SentAt = &at
	case models.CommandStatusCompleted, models.CommandStatusFailed:
		c.CompletedAt = &at
		c.Result = t.Result
	}

	return true, nil
}

func (m *MemoryStore) ListCommands(_ context.Context, deviceID string, limit int) ([]*models.Command, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Command, 0)

	for _, c := range m.commands {
		if deviceID == "" || c.DeviceID == deviceID {
			out = append(out, cloneCommand(c))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	return truncate(out, limit), nil
}

func (m *MemoryStore) CountPendingCommands(_ context.Context, deviceID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.pendingCount(deviceID), nil
}

func (m *MemoryStore) InsertSyncPackage(_ context.Context, pkg *models.SyncPackage) error {
	if pkg == nil {
		return ErrSyncPackageNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[pkg.TargetDeviceID]; !ok {
		return models.ErrDeviceNotFound
	}

	m.nextPackageID++
	pkg.ID = m.nextPackageID
	m.packages[pkg.ID] = clonePackage(pkg)

	return nil
}

func (m *MemoryStore) GetSyncPackage(_ context.Context, packageID int64) (*models.SyncPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.packages[packageID]
	if !ok {
		return nil, models.ErrSyncPackageNotFound
	}

	return clonePackage(p), nil
}

func (m *MemoryStore) ListSyncPackages(_ context.Context, filter models.SyncPackageFilter) ([]*models.SyncPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.SyncPackage, 0)

	for _, p := range m.packages {
		if filter.DeviceID != "" && p.TargetDeviceID != filter.DeviceID {
			continue
		}

		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, p.Status) {
			continue
		}

		out = append(out, clonePackage(p))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return truncate(out, filter.Limit), nil
}

func (m *MemoryStore) TransitionSyncPackage(_ context.Context, t PackageTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, ErrTransitionEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.packages[t.PackageID]
	if !ok || !slices.Contains(t.From, p.Status) {
		return false, nil
	}

	p.Status = t.To

	if t.To == models.SyncPackageStatusDeployed && p.DeployedAt == nil {
		at := t.At
		p.DeployedAt = &at
	}

	return true, nil
}

func (m *MemoryStore) AddSyncPackageFile(_ context.Context, file *models.SyncPackageFile) (*models.SyncPackage, error) {
	if file == nil {
		return nil, ErrPackageFileNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.packages[file.PackageID]
	if !ok {
		return nil, models.ErrSyncPackageNotFound
	}

	if p.Status != models.SyncPackageStatusStaged {
		return nil, models.ErrInvalidTransition
	}

	for _, existing := range m.packageFiles[p.ID] {
		if existing.Filename == file.Filename {
			return nil, models.ErrDuplicateFile
		}
	}

	stored := *file
	m.packageFiles[p.ID] = append(m.packageFiles[p.ID], &stored)
	p.FileCount++
	p.TotalSize += file.Size

	return clonePackage(p), nil
}

func (m *MemoryStore) ListSyncPackageFiles(_ context.Context, packageID int64) ([]*models.SyncPackageFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.packages[packageID]; !ok {
		return nil, models.ErrSyncPackageNotFound
	}

	files := m.packageFiles[packageID]
	out := make([]*models.SyncPackageFile, 0, len(files))

	for _, f := range files {
		copied := *f
		out = append(out, &copied)
	}

	return out, nil
}

func (m *MemoryStore) InsertFileSyncRecord(_ context.Context, rec *models.FileSyncRecord) error {
	if rec == nil {
		return ErrFileSyncNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRecordID++
	rec.ID = m.nextRecordID
	stored := *rec
	m.fileRecords = append(m.fileRecords, &stored)

	return nil
}

func (m *MemoryStore) ListFileSyncRecords(_ context.Context, deviceID string, limit int) ([]*models.FileSyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.FileSyncRecord, 0)

	for i := len(m.fileRecords) - 1; i >= 0; i-- {
		rec := m.fileRecords[i]
		if deviceID != "" && rec.DeviceID != deviceID {
			continue
		}

		copied := *rec
		out = append(out, &copied)
	}

	return truncate(out, limit), nil
}

func (m *MemoryStore) InsertMessage(_ context.Context, msg *models.Message) error {
	if msg == nil {
		return ErrMessageNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.devices[msg.DeviceID]; !ok {
		return models.ErrDeviceNotFound
	}

	m.nextMessageID++
	msg.ID = m.nextMessageID
	stored := *msg
	m.messages = append(m.messages, &stored)

	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, filter models.MessageFilter) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Message, 0)

	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]

		if filter.DeviceID != "" && msg.DeviceID != filter.DeviceID {
			continue
		}

		if filter.MinSeverity != "" && !msg.Severity.AtLeast(filter.MinSeverity) {
			continue
		}

		copied := *msg
		out = append(out, &copied)
	}

	return truncate(out, filter.Limit), nil
}

func (m *MemoryStore) CountMessages(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.messages), nil
}

func (m *MemoryStore) InsertAuditEvent(_ context.Context, event *models.AuditEvent) error {
	if event == nil {
		return ErrAuditEventNil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *event
	stored.Payload = slices.Clone(event.Payload)
	m.audit = append(m.audit, &stored)

	return nil
}

func (m *MemoryStore) ListAuditEvents(_ context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.AuditEvent, 0)

	for i := len(m.audit) - 1; i >= 0; i-- {
		ev := m.audit[i]

		if !auditMatches(ev, &filter) {
			continue
		}

		copied := *ev
		out = append(out, &copied)
	}

	return truncate(out, filter.Limit), nil
}

func auditMatches(ev *models.AuditEvent, filter *models.AuditFilter) bool {
	if filter.Source != "" && ev.Source != filter.Source {
		return false
	}

	if filter.EventType != "" && ev.EventType != filter.EventType {
		return false
	}

	if filter.MinSeverity != "" && !ev.Severity.AtLeast(filter.MinSeverity) {
		return false
	}

	return filter.Since.IsZero() || !ev.Timestamp.Before(filter.Since)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}

	return items
}
