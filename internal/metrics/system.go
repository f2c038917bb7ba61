package metrics

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

// SampleSystem periodically samples process RSS and CPU percent into the
// registry, the way go-server-2's collectMetrics loop does for the legacy
// websocket server. It runs until ctx is canceled.
func (r *Registry) SampleSystem(ctx context.Context, logger *zap.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("system metrics: failed to open process handle", zap.Error(err))
		proc = nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
				r.ProcessCPUPercent.Set(percents[0])
			}

			if proc != nil {
				if info, err := proc.MemoryInfo(); err == nil {
					r.ProcessRSSBytes.Set(float64(info.RSS))
				}
			}
		}
	}
}
