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

package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/dropsync/pkg/audit"
	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/db"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	queue    *Queue
	store    *db.MemoryStore
	recorder *audit.Recorder
	clock    *clock.Manual
}

func newFixture(t *testing.T, maxPending int) *fixture {
	t.Helper()

	store := db.NewMemoryStore()
	require.NoError(t, store.UpsertDevice(context.Background(), &models.Device{
		DeviceID: "esp001", TokenHash: "h1", Status: models.DeviceStatusOffline, CreatedAt: start,
	}))

	log := logger.NewTestLogger()
	c := clock.NewManual(start)
	recorder := audit.NewRecorder(store, log, audit.WithClock(c))

	return &fixture{
		queue:    NewQueue(store, recorder, maxPending, log, c),
		store:    store,
		recorder: recorder,
		clock:    c,
	}
}

func (f *fixture) count(t *testing.T, eventType string) int {
	t.Helper()

	events, err := f.recorder.List(context.Background(), models.AuditFilter{EventType: eventType})
	require.NoError(t, err)

	return len(events)
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name     string
		deviceID string
		command  string
		params   *models.CommandParameters
		priority int
		want     error
	}{
		{name: "empty command", deviceID: "esp001", command: "  ", priority: 1, want: models.ErrValidation},
		{name: "priority too high", deviceID: "esp001", command: "reboot", priority: 4, want: models.ErrValidation},
		{name: "negative priority", deviceID: "esp001", command: "reboot", priority: -1, want: models.ErrValidation},
		{
			name: "json params must be an object", deviceID: "esp001", command: "update", priority: 1,
			params: &models.CommandParameters{Data: []byte(`[1,2]`)}, want: models.ErrValidation,
		},
		{
			name: "oversized params", deviceID: "esp001", command: "update", priority: 1,
			params: &models.CommandParameters{
				ContentType: models.ContentTypeBinary,
				Data:        make([]byte, models.MaxCommandParamsLength+1),
			},
			want: models.ErrPayloadTooLarge,
		},
		{name: "unknown device", deviceID: "esp404", command: "reboot", priority: 1, want: models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.queue.Enqueue(ctx, tt.deviceID, tt.command, tt.params, tt.priority)
			require.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, 0, f.count(t, models.EventCommandQueued))
}

func TestEnqueueDefaultsAndAudits(t *testing.T) {
	f := newFixture(t, 0)

	cmd, err := f.queue.Enqueue(context.Background(), "esp001", "reboot", nil, 0)
	require.NoError(t, err)

	assert.Equal(t, models.PriorityLow, cmd.Priority)
	assert.Equal(t, models.CommandStatusPending, cmd.Status)
	assert.Equal(t, start, cmd.Timestamp)
	assert.Equal(t, 1, f.count(t, models.EventCommandQueued))
}

func TestClaimDeliversByPriorityThenAge(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	low, err := f.queue.Enqueue(ctx, "esp001", "blink", nil, models.PriorityLow)
	require.NoError(t, err)

	f.clock.Advance(time.Second)

	high, err := f.queue.Enqueue(ctx, "esp001", "reboot", nil, models.PriorityHigh)
	require.NoError(t, err)

	peek, err := f.queue.DequeueNext(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, high.ID, peek.ID)

	peekAgain, err := f.queue.DequeueNext(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, high.ID, peekAgain.ID, "DequeueNext does not claim")

	claimed, err := f.queue.Claim(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, high.ID, claimed.ID)
	assert.Equal(t, models.CommandStatusSent, claimed.Status)
	require.NotNil(t, claimed.SentAt)

	claimed, err = f.queue.Claim(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, low.ID, claimed.ID)

	claimed, err = f.queue.Claim(ctx, "esp001")
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestConcurrentClaimsNeverShareACommand(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	const total = 20

	for i := 0; i < total; i++ {
		_, err := f.queue.Enqueue(ctx, "esp001", "step", nil, 1+i%3)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]int)
		wg   sync.WaitGroup
	)

	for w := 0; w < 8; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for {
				cmd, err := f.queue.Claim(ctx, "esp001")
				if !assert.NoError(t, err) || cmd == nil {
					return
				}

				mu.Lock()
				seen[cmd.ID]++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Len(t, seen, total)

	for id, n := range seen {
		assert.Equal(t, 1, n, "command %d delivered %d times", id, n)
	}
}

func TestMarkSentIsGuarded(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	cmd, err := f.queue.Enqueue(ctx, "esp001", "reboot", nil, 1)
	require.NoError(t, err)

	ok, err := f.queue.MarkSent(ctx, cmd.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.queue.MarkSent(ctx, cmd.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.queue.MarkSent(ctx, 9999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompleteAndFailSemantics(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	result := "rebooted"

	done, err := f.queue.Enqueue(ctx, "esp001", "reboot", nil, 1)
	require.NoError(t, err)

	ok, err := f.queue.Complete(ctx, done.ID, &result)
	require.NoError(t, err)
	assert.True(t, ok, "pending commands can be completed directly")

	f.clock.Advance(time.Minute)
	other := "again"

	ok, err = f.queue.Complete(ctx, done.ID, &other)
	require.NoError(t, err)
	assert.True(t, ok, "completion is idempotent")

	stored, err := f.queue.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, "rebooted", *stored.Result, "repeat completion does not rewrite")
	assert.Equal(t, start, *stored.CompletedAt)

	ok, err = f.queue.Fail(ctx, done.ID, "too late")
	require.NoError(t, err)
	assert.False(t, ok, "a completed command cannot fail")

	failed, err := f.queue.Enqueue(ctx, "esp001", "update", nil, 2)
	require.NoError(t, err)

	_, err = f.queue.Claim(ctx, "esp001")
	require.NoError(t, err)

	ok, err = f.queue.Fail(ctx, failed.ID, "flash error")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.queue.Fail(ctx, failed.ID, "flash error")
	require.NoError(t, err)
	assert.True(t, ok, "failure is idempotent")

	ok, err = f.queue.Complete(ctx, failed.ID, nil)
	require.NoError(t, err)
	assert.False(t, ok, "a failed command cannot complete")

	ok, err = f.queue.Complete(ctx, 12345, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.queue.Fail(ctx, failed.ID, "")
	require.ErrorIs(t, err, models.ErrValidation)

	assert.Equal(t, 1, f.count(t, models.EventCommandCompleted))
	assert.Equal(t, 1, f.count(t, models.EventCommandFailed))
}

func TestQueueBoundIsEnforced(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.queue.Enqueue(ctx, "esp001", "noop", nil, 1)
		require.NoError(t, err)
	}

	_, err := f.queue.Enqueue(ctx, "esp001", "noop", nil, 1)
	require.ErrorIs(t, err, models.ErrQueueFull)

	_, err = f.queue.Claim(ctx, "esp001")
	require.NoError(t, err)

	_, err = f.queue.Enqueue(ctx, "esp001", "noop", nil, 1)
	require.NoError(t, err, "claimed commands no longer count against the bound")

	pending, err := f.queue.Pending(ctx, "esp001")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := f.queue.Enqueue(ctx, "esp001", name, nil, 1)
		require.NoError(t, err)
	}

	history, err := f.queue.History(ctx, "esp001", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].Command)
	assert.Equal(t, "b", history[1].Command)
}

func TestClaimGivesUpUnderContention(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := db.NewMockService(ctrl)

	pending := &models.Command{ID: 1, DeviceID: "esp001", Status: models.CommandStatusPending}

	store.EXPECT().NextPendingCommand(gomock.Any(), "esp001").Return(pending, nil).Times(maxClaimAttempts)
	store.EXPECT().TransitionCommand(gomock.Any(), gomock.Any()).Return(false, nil).Times(maxClaimAttempts)

	q := NewQueue(store, audit.NewMockEmitter(ctrl), 0, logger.NewTestLogger(), clock.NewManual(start))

	cmd, err := q.Claim(context.Background(), "esp001")
	require.NoError(t, err)
	assert.Nil(t, cmd)
}
