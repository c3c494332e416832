package monitor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of the host resources, surfaced in the
// status command reply.
type Snapshot struct {
	PID             int       `json:"pid"`
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryPercent   float64   `json:"memory_percent"`
	MemoryUsedBytes uint64    `json:"memory_used_bytes"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Collector samples host CPU and memory usage.
type Collector struct {
	logger *zap.Logger
}

// NewCollector creates a resource collector.
func NewCollector(logger *zap.Logger) *Collector {
	return &Collector{logger: logger.Named("monitor")}
}

// Sample takes one resource snapshot. The CPU reading averages over a short
// interval, so this blocks for about a second.
func (c *Collector) Sample(ctx context.Context) (*Snapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return nil, fmt.Errorf("failed to sample CPU: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sample memory: %w", err)
	}

	snapshot := &Snapshot{
		PID:             os.Getpid(),
		MemoryPercent:   vm.UsedPercent,
		MemoryUsedBytes: vm.Used,
		CollectedAt:     time.Now(),
	}
	if len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	c.logger.Debug("Sampled resources",
		zap.Float64("cpu_percent", snapshot.CPUPercent),
		zap.Float64("memory_percent", snapshot.MemoryPercent))
	return snapshot, nil
}
