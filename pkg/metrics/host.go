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
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/dropsync/pkg/logger"
)

const cpuSampleWindow = 200 * time.Millisecond

// HostStats is a point-in-time view of the machine running the hub.
type HostStats struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	DiskPath         string  `json:"disk_path"`
	DiskTotalBytes   uint64  `json:"disk_total_bytes"`
	DiskFreeBytes    uint64  `json:"disk_free_bytes"`
	UptimeSeconds    uint64  `json:"uptime_seconds"`
}

// HostSampler reads host statistics through gopsutil. Individual collectors
// that fail leave their fields zero.
type HostSampler struct {
	log      logger.Logger
	diskPath string

	cpuPercent func(context.Context, time.Duration, bool) ([]float64, error)
	memory     func(context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage  func(context.Context, string) (*disk.UsageStat, error)
	uptime     func(context.Context) (uint64, error)
}

// NewHostSampler reports disk usage for the filesystem holding diskPath.
func NewHostSampler(diskPath string, log logger.Logger) *HostSampler {
	return &HostSampler{
		log:        log,
		diskPath:   diskPath,
		cpuPercent: cpu.PercentWithContext,
		memory:     mem.VirtualMemoryWithContext,
		diskUsage:  disk.UsageWithContext,
		uptime:     host.UptimeWithContext,
	}
}

func (h *HostSampler) Sample(ctx context.Context) HostStats {
	stats := HostStats{DiskPath: h.diskPath}

	if pct, err := h.cpuPercent(ctx, cpuSampleWindow, false); err != nil {
		h.log.Warn().Err(err).Msg("cpu sampling failed; reporting zero")
	} else if len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}

	if vm, err := h.memory(ctx); err != nil {
		h.log.Warn().Err(err).Msg("memory sampling failed; reporting zeroes")
	} else {
		stats.MemoryTotalBytes = vm.Total
		stats.MemoryUsedBytes = vm.Used
	}

	if h.diskPath != "" {
		if usage, err := h.diskUsage(ctx, h.diskPath); err != nil {
			h.log.Warn().Err(err).Str("path", h.diskPath).Msg("disk sampling failed; reporting zeroes")
		} else {
			stats.DiskTotalBytes = usage.Total
			stats.DiskFreeBytes = usage.Free
		}
	}

	if up, err := h.uptime(ctx); err != nil {
		h.log.Warn().Err(err).Msg("uptime sampling failed")
	} else {
		stats.UptimeSeconds = up
	}

	return stats
}
