// Package diagnostics captures encoder-side resource snapshots (GPU memory via
// nvidia-smi, host memory via gopsutil) to help triage hardware encoder failures.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/maauso/mediacompose/internal/ffmpeg"
)

// GPUMemory is the memory usage of one GPU in MiB.
type GPUMemory struct {
	Index   int
	UsedMB  int
	TotalMB int
}

// Percent returns used memory as a percentage of total.
func (g GPUMemory) Percent() float64 {
	if g.TotalMB <= 0 {
		return 0
	}
	return float64(g.UsedMB) / float64(g.TotalMB) * 100
}

func (g GPUMemory) String() string {
	return fmt.Sprintf("GPU %d: %d/%dMB (%.1f%%)", g.Index, g.UsedMB, g.TotalMB, g.Percent())
}

// Snapshot is a point-in-time view of encoder resources. Collection problems
// are recorded in the *Err fields instead of failing the snapshot.
type Snapshot struct {
	GPUs     []GPUMemory
	GPUErr   string
	HostUsed float64
	HostFree uint64
	HostErr  string
}

// LogValue implements slog.LogValuer.
func (s Snapshot) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(s.GPUs)+3)
	for _, g := range s.GPUs {
		attrs = append(attrs, slog.String(fmt.Sprintf("gpu%d", g.Index), g.String()))
	}
	if s.GPUErr != "" {
		attrs = append(attrs, slog.String("gpu_error", s.GPUErr))
	}
	if s.HostErr != "" {
		attrs = append(attrs, slog.String("host_error", s.HostErr))
	} else {
		attrs = append(attrs,
			slog.String("host_used", fmt.Sprintf("%.1f%%", s.HostUsed)),
			slog.Uint64("host_available_mb", s.HostFree/(1024*1024)),
		)
	}
	return slog.GroupValue(attrs...)
}

// Collector gathers snapshots.
type Collector struct {
	smiPath string
	runner  ffmpeg.CommandRunner
	logger  *slog.Logger
	memory  func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewCollector creates a Collector. If smiPath is empty it defaults to
// "nvidia-smi"; a nil runner uses ffmpeg.ExecRunner.
func NewCollector(smiPath string, runner ffmpeg.CommandRunner, logger *slog.Logger) *Collector {
	if smiPath == "" {
		smiPath = "nvidia-smi"
	}
	if runner == nil {
		runner = ffmpeg.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		smiPath: smiPath,
		runner:  runner,
		logger:  logger,
		memory:  mem.VirtualMemoryWithContext,
	}
}

// Snapshot collects GPU and host memory usage. It never fails.
func (c *Collector) Snapshot(ctx context.Context) Snapshot {
	var s Snapshot

	out, err := c.runner.Output(ctx, c.smiPath,
		"--query-gpu=memory.used,memory.total",
		"--format=csv,noheader,nounits",
	)
	if err != nil {
		s.GPUErr = err.Error()
	} else if s.GPUs, err = ParseNvidiaSMI(out); err != nil {
		s.GPUErr = err.Error()
	}

	vm, err := c.memory(ctx)
	if err != nil {
		s.HostErr = err.Error()
	} else {
		s.HostUsed = vm.UsedPercent
		s.HostFree = vm.Available
	}
	return s
}

// Log collects a snapshot and logs it at level.
func (c *Collector) Log(ctx context.Context, level slog.Level, msg string) {
	if !c.logger.Enabled(ctx, level) {
		return
	}
	c.logger.Log(ctx, level, msg, slog.Any("resources", c.Snapshot(ctx)))
}

// ParseNvidiaSMI parses "used, total" lines, one per GPU.
func ParseNvidiaSMI(out []byte) ([]GPUMemory, error) {
	var gpus []GPUMemory
	for i, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		used, total, ok := strings.Cut(line, ",")
		if !ok {
			return nil, fmt.Errorf("parse nvidia-smi line %q: expected used,total", line)
		}
		u, err := strconv.Atoi(strings.TrimSpace(used))
		if err != nil {
			return nil, fmt.Errorf("parse nvidia-smi used memory %q: %w", used, err)
		}
		t, err := strconv.Atoi(strings.TrimSpace(total))
		if err != nil {
			return nil, fmt.Errorf("parse nvidia-smi total memory %q: %w", total, err)
		}
		gpus = append(gpus, GPUMemory{Index: i, UsedMB: u, TotalMB: t})
	}
	return gpus, nil
}
