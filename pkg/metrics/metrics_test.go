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

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/carverauto/dropsync/pkg/logger"
)

func collect(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]int64)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] += dp.Value
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}

	return out
}

func TestInstrumentsRecord(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	inst, err := New(provider)
	require.NoError(t, err)

	ctx := context.Background()

	inst.CommandEnqueued(ctx, 3)
	inst.CommandEnqueued(ctx, 1)
	inst.CommandDelivered(ctx)
	inst.AuthFailure(ctx, "device")
	inst.RateLimited(ctx)
	inst.PackageDeployed(ctx)
	inst.UploadBytes(ctx, 512)
	inst.UploadBytes(ctx, 0)
	inst.AuditMirrorDropped()

	keys := 4
	require.NoError(t, inst.ObserveLimiterKeys(func() int { return keys }))

	got := collect(t, reader)

	assert.Equal(t, int64(2), got[metricCommandsEnqueued])
	assert.Equal(t, int64(1), got[metricCommandsDelivered])
	assert.Equal(t, int64(1), got[metricAuthFailures])
	assert.Equal(t, int64(1), got[metricRateLimited])
	assert.Equal(t, int64(1), got[metricPackagesDeployed])
	assert.Equal(t, int64(512), got[metricUploadBytes])
	assert.Equal(t, int64(1), got[metricAuditMirrorDropped])
	assert.Equal(t, int64(4), got[metricRateLimitKeys])

	require.NoError(t, inst.Close())
}

func TestNilInstrumentsAreNoops(t *testing.T) {
	var inst *Instruments

	ctx := context.Background()

	assert.NotPanics(t, func() {
		inst.CommandEnqueued(ctx, 1)
		inst.CommandDelivered(ctx)
		inst.AuthFailure(ctx, "admin")
		inst.RateLimited(ctx)
		inst.PackageDeployed(ctx)
		inst.UploadBytes(ctx, 10)
		inst.AuditMirrorDropped()
	})
	require.NoError(t, inst.ObserveLimiterKeys(func() int { return 0 }))
	require.NoError(t, inst.Close())
}

func TestHostSampler(t *testing.T) {
	sampler := NewHostSampler("/srv/uploads", logger.NewTestLogger())
	sampler.cpuPercent = func(context.Context, time.Duration, bool) ([]float64, error) {
		return []float64{12.5}, nil
	}
	sampler.memory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 1024, Used: 256}, nil
	}
	sampler.diskUsage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		assert.Equal(t, "/srv/uploads", path)
		return &disk.UsageStat{Total: 4096, Free: 1024}, nil
	}
	sampler.uptime = func(context.Context) (uint64, error) { return 0, errors.New("unsupported") }

	stats := sampler.Sample(context.Background())

	assert.InDelta(t, 12.5, stats.CPUPercent, 0.001)
	assert.Equal(t, uint64(1024), stats.MemoryTotalBytes)
	assert.Equal(t, uint64(256), stats.MemoryUsedBytes)
	assert.Equal(t, uint64(4096), stats.DiskTotalBytes)
	assert.Equal(t, uint64(1024), stats.DiskFreeBytes)
	assert.Zero(t, stats.UptimeSeconds)
}
