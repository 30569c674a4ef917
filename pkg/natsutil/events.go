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

// Package natsutil connects to NATS and mirrors audit events onto JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

const (
	cloudEventsSpecVersion = "1.0"
	auditEventSource       = "dropsync/hub"
	auditEventTypePrefix   = "io.dropsync.audit."
)

// Connect dials NATS with the TLS, credentials and logging handlers from cfg.
func Connect(cfg *models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*nats.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid NATS configuration: %w", err)
	}

	opts := []nats.Option{nats.Name("dropsync-hub")}

	if cfg.TLS != nil {
		tlsConf, err := TLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConf))
	}

	if cfg.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFile))
	}

	opts = append(opts,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)

	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")

	return nc, nil
}

// EventPublisher publishes CloudEvents to a JetStream stream.
type EventPublisher struct {
	js      jetstream.JetStream
	stream  string
	subject string
}

// NewEventPublisher wraps an existing JetStream context. subjectPrefix is
// joined with each event type to form the publish subject.
func NewEventPublisher(js jetstream.JetStream, streamName, subjectPrefix string) *EventPublisher {
	return &EventPublisher{
		js:      js,
		stream:  streamName,
		subject: subjectPrefix,
	}
}

// CreateEventPublisher ensures the stream exists and captures <prefix>.>.
// domain may be empty.
func CreateEventPublisher(ctx context.Context, nc *nats.Conn, domain, streamName, subjectPrefix string) (*EventPublisher, error) {
	var (
		js  jetstream.JetStream
		err error
	)

	if domain != "" {
		js, err = jetstream.NewWithDomain(nc, domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	wildcard := subjectPrefix + ".>"

	stream, err := js.Stream(ctx, streamName)
	if err == nil {
		subjects := stream.CachedInfo().Config.Subjects
		if updated := ensureSubjectList(subjects, wildcard); len(updated) != len(subjects) {
			cfg := stream.CachedInfo().Config
			cfg.Subjects = updated

			if _, err := js.UpdateStream(ctx, cfg); err != nil {
				return nil, fmt.Errorf("failed to extend stream %s subjects: %w", streamName, err)
			}
		}

		return NewEventPublisher(js, streamName, subjectPrefix), nil
	}

	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{wildcard},
	}); err != nil {
		return nil, fmt.Errorf("failed to create or get stream %s: %w", streamName, err)
	}

	return NewEventPublisher(js, streamName, subjectPrefix), nil
}

// SubjectFor returns the subject an audit event of eventType is published on.
func (p *EventPublisher) SubjectFor(eventType string) string {
	return p.subject + "." + eventType
}

// PublishAuditEvent mirrors one audit event and returns its stream sequence.
func (p *EventPublisher) PublishAuditEvent(ctx context.Context, event *models.AuditEvent) (uint64, error) {
	ts := event.Timestamp

	ce := models.CloudEvent{
		SpecVersion:     cloudEventsSpecVersion,
		ID:              event.ID,
		Source:          auditEventSource,
		Type:            auditEventTypePrefix + event.EventType,
		DataContentType: "application/json",
		Subject:         p.SubjectFor(event.EventType),
		Time:            &ts,
		Data:            event,
	}

	payload, err := json.Marshal(ce)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ack, err := p.js.Publish(ctx, ce.Subject, payload, jetstream.WithMsgID(event.ID))
	if err != nil {
		return 0, fmt.Errorf("failed to publish audit event: %w", err)
	}

	return ack.Sequence, nil
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject using NATS token
// wildcards, where * matches one token and > matches the remainder.
// Wildcards in subject are only covered by an equal or wider pattern token.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, token := range pt {
		if token == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if st[i] == ">" || (token != "*" && token != st[i]) {
			return false
		}
	}

	return len(pt) == len(st)
}
