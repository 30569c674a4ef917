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

// Package audit records the append-only audit trail and optionally mirrors
// it onto NATS JetStream.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	defaultMirrorBuffer  = 256
	defaultMirrorTimeout = 5 * time.Second
	defaultListLimit     = 100
	maxListLimit         = 1000
)

var errEventTypeRequired = fmt.Errorf("%w: audit event type is required", models.ErrValidation)

// Recorder appends audit events to the store.
type Recorder struct {
	store     db.AuditStore
	publisher Publisher
	clock     clock.Clock
	logger    logger.Logger
	mirror    chan *models.AuditEvent
	onDrop    func()
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher mirrors each recorded event through p. Mirroring is
// asynchronous and only happens while Run is active.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) {
		r.publisher = p
		r.mirror = make(chan *models.AuditEvent, defaultMirrorBuffer)
	}
}

// WithClock overrides the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

// WithDropHook is called whenever the mirror queue is full and an event is skipped.
func WithDropHook(fn func()) Option {
	return func(r *Recorder) { r.onDrop = fn }
}

// NewRecorder returns a Recorder backed by store.
func NewRecorder(store db.AuditStore, log logger.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		clock:  clock.Real(),
		logger: log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Record validates, stamps and appends event. The stored copy is returned.
func (r *Recorder) Record(ctx context.Context, event models.AuditEvent) (*models.AuditEvent, error) {
	if event.EventType == "" {
		return nil, errEventTypeRequired
	}

	severity, err := models.ParseSeverity(string(event.Severity))
	if err != nil {
		return nil, err
	}

	event.Severity = severity
	event.ID = uuid.NewString()
	event.Timestamp = r.clock.Now()

	if event.Source == "" {
		event.Source = models.SourceSystem
	}

	if err := r.store.InsertAuditEvent(ctx, &event); err != nil {
		return nil, fmt.Errorf("record audit event %s: %w", event.EventType, err)
	}

	r.enqueueMirror(&event)

	return &event, nil
}

// Emit records an event built from its parts. payload is marshalled as JSON
// when non-nil; a payload that cannot be marshalled is dropped with a warning.
func (r *Recorder) Emit(ctx context.Context, eventType, source string, severity models.Severity, message string, payload any) error {
	event := models.AuditEvent{
		EventType: eventType,
		Source:    source,
		Severity:  severity,
		Message:   message,
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn().Err(err).Str("event_type", eventType).Msg("dropping unmarshalable audit payload")
		} else {
			event.Payload = raw
		}
	}

	_, err := r.Record(ctx, event)

	return err
}

// List returns events newest first. The limit defaults to 100 and is capped at 1000.
func (r *Recorder) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditEvent, error) {
	if filter.MinSeverity != "" {
		if _, err := models.ParseSeverity(string(filter.MinSeverity)); err != nil {
			return nil, err
		}
	}

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}

	return r.store.ListAuditEvents(ctx, filter)
}

func (r *Recorder) enqueueMirror(event *models.AuditEvent) {
	if r.mirror == nil {
		return
	}

	select {
	case r.mirror <- event:
	default:
		r.logger.Warn().Str("event_id", event.ID).Msg("audit mirror queue full; event not published")

		if r.onDrop != nil {
			r.onDrop()
		}
	}
}

// Run publishes queued events until ctx is done. It returns immediately
// when no publisher is configured.
func (r *Recorder) Run(ctx context.Context) error {
	if r.mirror == nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-r.mirror:
			r.publish(ctx, event)
		}
	}
}

func (r *Recorder) publish(ctx context.Context, event *models.AuditEvent) {
	pubCtx, cancel := context.WithTimeout(ctx, defaultMirrorTimeout)
	defer cancel()

	seq, err := r.publisher.PublishAuditEvent(pubCtx, event)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}

		r.logger.Warn().Err(err).Str("event_id", event.ID).Str("event_type", event.EventType).
			Msg("failed to mirror audit event")

		return
	}

	r.logger.Debug().Str("event_id", event.ID).Uint64("seq", seq).Msg("audit event mirrored")
}
