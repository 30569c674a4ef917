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

// Package ratelimit implements a per-key sliding window log.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/carverauto/dropsync/pkg/clock"
	"github.com/carverauto/dropsync/pkg/logger"
	"github.com/carverauto/dropsync/pkg/models"
)

// Limiter admits at most maxRequests per key in any window ending now.
// Rejected requests are not recorded.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	prune       time.Duration
	clock       clock.Clock
	logger      logger.Logger
	hits        map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock.
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// New builds a limiter from cfg. A disabled config yields a limiter that
// admits everything.
func New(cfg *models.RateLimitConfig, log logger.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		maxRequests: cfg.MaxRequests,
		window:      time.Duration(cfg.Window),
		prune:       time.Duration(cfg.PruneInterval),
		clock:       clock.Real(),
		logger:      log,
		hits:        make(map[string][]time.Time),
	}

	if cfg.Disabled {
		l.maxRequests = 0
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// evict drops timestamps at or before now-window. times is ordered.
func (l *Limiter) evict(times []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}

	return times[i:]
}

// Allow records a request for key and reports whether it is admitted.
func (l *Limiter) Allow(key string) bool {
	if l.maxRequests <= 0 {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	times := l.evict(l.hits[key], now)
	if len(times) >= l.maxRequests {
		l.hits[key] = times

		return false
	}

	l.hits[key] = append(times, now)

	return true
}

// Remaining returns how many requests key may still make in the current window.
func (l *Limiter) Remaining(key string) int {
	if l.maxRequests <= 0 {
		return -1
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	return max(0, l.maxRequests-len(l.evict(l.hits[key], now)))
}

// Prune drops keys with no timestamps inside the window and returns how many were removed.
func (l *Limiter) Prune() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0

	for key, times := range l.hits {
		times = l.evict(times, now)
		if len(times) == 0 {
			delete(l.hits, key)
			removed++

			continue
		}

		l.hits[key] = times
	}

	return removed
}

// Keys returns the number of tracked keys.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.hits)
}

// Run prunes on every tick until ctx is done.
func (l *Limiter) Run(ctx context.Context) error {
	if l.prune <= 0 {
		<-ctx.Done()

		return nil
	}

	ticker := l.clock.Ticker(l.prune)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if removed := l.Prune(); removed > 0 {
				l.logger.Debug().Int("removed", removed).Int("tracked", l.Keys()).Msg("pruned rate limit keys")
			}
		}
	}
}
