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

package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  "dropsync.audit.>",
			want:     []string{"dropsync.audit.>"},
		},
		{
			name:     "keeps list when greater wildcard covers it",
			subjects: []string{"dropsync.>"},
			subject:  "dropsync.audit.>",
			want:     []string{"dropsync.>"},
		},
		{
			name:     "single wildcard does not cover a greater wildcard",
			subjects: []string{"dropsync.audit.*"},
			subject:  "dropsync.audit.>",
			want:     []string{"dropsync.audit.*", "dropsync.audit.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"events.poller.*"},
			subject:  "dropsync.audit.>",
			want:     []string{"events.poller.*", "dropsync.audit.>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			result := ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject)
			assert.Equal(t, tc.want, result)
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "dropsync.audit.auth_failed", "dropsync.audit.auth_failed", true},
		{"single wildcard", "dropsync.*.auth_failed", "dropsync.audit.auth_failed", true},
		{"greater wildcard", "dropsync.>", "dropsync.audit.auth_failed", true},
		{"greater wildcard needs a token", "dropsync.audit.>", "dropsync.audit", false},
		{"length mismatch", "dropsync.audit", "dropsync.audit.auth_failed", false},
		{"token mismatch", "dropsync.logs.*", "dropsync.audit.auth_failed", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject))
		})
	}
}

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, srv.JetStreamEnabled, 5*time.Second, 50*time.Millisecond,
		"embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

func TestPublishAuditEventRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv := runJetStreamServer(t)

	nc, err := Connect(&models.NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	publisher, err := CreateEventPublisher(ctx, nc, "", "DROPSYNC_AUDIT", "dropsync.audit")
	require.NoError(t, err)

	event := &models.AuditEvent{
		ID:        "5c1f2e8e-2a0c-4b39-9e7c-8c7b4b0e2d11",
		EventType: models.EventCommandQueued,
		Source:    "esp001",
		Message:   "command reboot queued",
		Severity:  models.SeverityInfo,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	seq, err := publisher.PublishAuditEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	// Redelivery of the same id is deduplicated by the stream.
	seq, err = publisher.PublishAuditEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "DROPSYNC_AUDIT")
	require.NoError(t, err)

	msg, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "dropsync.audit.command_queued", msg.Subject)

	var ce struct {
		SpecVersion string            `json:"specversion"`
		Type        string            `json:"type"`
		Data        models.AuditEvent `json:"data"`
	}

	require.NoError(t, json.Unmarshal(msg.Data, &ce))
	assert.Equal(t, "1.0", ce.SpecVersion)
	assert.Equal(t, "io.dropsync.audit.command_queued", ce.Type)
	assert.Equal(t, event.Source, ce.Data.Source)

	// Re-opening an existing stream keeps its subjects.
	_, err = CreateEventPublisher(ctx, nc, "", "DROPSYNC_AUDIT", "dropsync.audit")
	require.NoError(t, err)
}
