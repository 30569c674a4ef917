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

// Package metrics holds the hub's OpenTelemetry instruments and host sampling.
package metrics

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "dropsync.hub"

	metricCommandsEnqueued   = "dropsync_commands_enqueued_total"
	metricCommandsDelivered  = "dropsync_commands_delivered_total"
	metricAuthFailures       = "dropsync_auth_failures_total"
	metricRateLimited        = "dropsync_rate_limited_total"
	metricPackagesDeployed   = "dropsync_packages_deployed_total"
	metricUploadBytes        = "dropsync_uploads_bytes_total"
	metricAuditMirrorDropped = "dropsync_audit_mirror_dropped_total"
	metricRateLimitKeys      = "dropsync_rate_limit_keys"
)

// Instruments are the hub counters. A nil *Instruments records nothing.
type Instruments struct {
	enqueued     metric.Int64Counter
	delivered    metric.Int64Counter
	authFailures metric.Int64Counter
	rateLimited  metric.Int64Counter
	deployed     metric.Int64Counter
	uploadBytes  metric.Int64Counter
	mirrorDrops  metric.Int64Counter
	limiterKeys  metric.Int64ObservableGauge
	meter        metric.Meter
	registration metric.Registration
}

// New registers the instruments on mp, or on the global provider when mp is
// nil. Without an installed provider the global one is a no-op.
func New(mp metric.MeterProvider) (*Instruments, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(meterName)
	inst := &Instruments{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&inst.enqueued, metricCommandsEnqueued, "Commands accepted into a device queue", ""},
		{&inst.delivered, metricCommandsDelivered, "Commands handed to a polling device", ""},
		{&inst.authFailures, metricAuthFailures, "Rejected device or admin authentications", ""},
		{&inst.rateLimited, metricRateLimited, "Requests rejected by the rate limiter", ""},
		{&inst.deployed, metricPackagesDeployed, "Sync packages confirmed deployed", ""},
		{&inst.uploadBytes, metricUploadBytes, "Bytes accepted from device uploads", "By"},
		{&inst.mirrorDrops, metricAuditMirrorDropped, "Audit events not mirrored because the queue was full", ""},
	}

	var errs []error

	for _, c := range counters {
		opts := []metric.Int64CounterOption{metric.WithDescription(c.desc)}
		if c.unit != "" {
			opts = append(opts, metric.WithUnit(c.unit))
		}

		counter, err := meter.Int64Counter(c.name, opts...)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		*c.dst = counter
	}

	gauge, err := meter.Int64ObservableGauge(metricRateLimitKeys,
		metric.WithDescription("Keys currently tracked by the rate limiter"))
	if err != nil {
		errs = append(errs, err)
	}

	inst.limiterKeys = gauge

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return inst, nil
}

// ObserveLimiterKeys reports fn() on every collection of the key gauge.
func (i *Instruments) ObserveLimiterKeys(fn func() int) error {
	if i == nil || i.limiterKeys == nil {
		return nil
	}

	reg, err := i.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(i.limiterKeys, int64(fn()))
		return nil
	}, i.limiterKeys)
	if err != nil {
		return err
	}

	i.registration = reg

	return nil
}

// Close unregisters gauge callbacks.
func (i *Instruments) Close() error {
	if i == nil || i.registration == nil {
		return nil
	}

	return i.registration.Unregister()
}

func (i *Instruments) CommandEnqueued(ctx context.Context, priority int) {
	if i == nil {
		return
	}

	i.enqueued.Add(ctx, 1, metric.WithAttributes(attribute.String("priority", strconv.Itoa(priority))))
}

func (i *Instruments) CommandDelivered(ctx context.Context) {
	if i == nil {
		return
	}

	i.delivered.Add(ctx, 1)
}

// AuthFailure counts a rejected authentication; scope is "device" or "admin".
func (i *Instruments) AuthFailure(ctx context.Context, scope string) {
	if i == nil {
		return
	}

	i.authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (i *Instruments) RateLimited(ctx context.Context) {
	if i == nil {
		return
	}

	i.rateLimited.Add(ctx, 1)
}

func (i *Instruments) PackageDeployed(ctx context.Context) {
	if i == nil {
		return
	}

	i.deployed.Add(ctx, 1)
}

func (i *Instruments) UploadBytes(ctx context.Context, n int64) {
	if i == nil || n <= 0 {
		return
	}

	i.uploadBytes.Add(ctx, n)
}

// AuditMirrorDropped is shaped for audit.WithDropHook.
func (i *Instruments) AuditMirrorDropped() {
	if i == nil {
		return
	}

	i.mirrorDrops.Add(context.Background(), 1)
}
