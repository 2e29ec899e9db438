package metricsfeed

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Metric keys served by the system feed.
const (
	KeyCPUUsagePercent    = "system.cpu_usage_percent"
	KeyMemoryUsagePercent = "system.memory_usage_percent"
	KeyMemoryUsedBytes    = "system.memory_used_bytes"
	KeyDiskUsagePercent   = "system.disk_usage_percent"
	KeyLoadAvg1m          = "system.load_1m"
	KeyLoadAvg5m          = "system.load_5m"
	KeyLoadAvg15m         = "system.load_15m"
)

// SystemFeed reads local host metrics via gopsutil. It only answers for the
// local host; any other host gets ErrUnavailable so a remote feed can take
// over in a composite.
type SystemFeed struct {
	localHost string
	diskPath  string
}

// NewSystemFeed creates a feed that answers for the given local host name.
func NewSystemFeed(localHost string) *SystemFeed {
	return &SystemFeed{
		localHost: localHost,
		diskPath:  "/",
	}
}

func (f *SystemFeed) GetMetric(ctx context.Context, key, host string) (float64, error) {
	if host != f.localHost {
		return 0, ErrUnavailable
	}

	switch key {
	case KeyCPUUsagePercent:
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil || len(percents) == 0 {
			return 0, ErrUnavailable
		}
		return percents[0], nil

	case KeyMemoryUsagePercent, KeyMemoryUsedBytes:
		stats, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, ErrUnavailable
		}
		if key == KeyMemoryUsedBytes {
			return float64(stats.Used), nil
		}
		return stats.UsedPercent, nil

	case KeyDiskUsagePercent:
		usage, err := disk.UsageWithContext(ctx, f.diskPath)
		if err != nil {
			return 0, ErrUnavailable
		}
		return usage.UsedPercent, nil

	case KeyLoadAvg1m, KeyLoadAvg5m, KeyLoadAvg15m:
		stats, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, ErrUnavailable
		}
		switch key {
		case KeyLoadAvg1m:
			return stats.Load1, nil
		case KeyLoadAvg5m:
			return stats.Load5, nil
		default:
			return stats.Load15, nil
		}
	}

	return 0, ErrUnavailable
}
