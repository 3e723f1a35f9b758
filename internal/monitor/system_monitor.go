package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/t77yq/opskit/internal/model"
)

// cpuSampleInterval is how long the CPU usage sample runs
const cpuSampleInterval = 500 * time.Millisecond

// SystemMonitor reads host resource metrics. All queries are read-only.
type SystemMonitor struct {
	logger *zap.Logger

	// diskPath is the mount point measured for disk usage
	diskPath string
}

// NewSystemMonitor creates a monitor measuring disk usage at the root
// partition
func NewSystemMonitor(logger *zap.Logger) *SystemMonitor {
	return &SystemMonitor{
		logger:   logger.Named("system-monitor"),
		diskPath: "/",
	}
}

// Status collects a point-in-time snapshot of host resources. Load
// averages and temperatures are best-effort: unsupported platforms leave
// them empty instead of failing the whole snapshot.
func (m *SystemMonitor) Status(ctx context.Context) (*model.SystemStatus, error) {
	status := &model.SystemStatus{
		CollectedAt: time.Now(),
	}

	diskUsage, err := disk.UsageWithContext(ctx, m.diskPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk usage: %w", err)
	}
	status.Disk = model.DiskStatus{
		TotalBytes:  diskUsage.Total,
		UsedBytes:   diskUsage.Used,
		FreeBytes:   diskUsage.Free,
		UsedPercent: diskUsage.UsedPercent,
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}
	status.Memory = model.MemoryStatus{
		TotalBytes:     memInfo.Total,
		AvailableBytes: memInfo.Available,
		UsedBytes:      memInfo.Used,
		FreeBytes:      memInfo.Free,
		UsedPercent:    memInfo.UsedPercent,
	}

	swapInfo, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get swap usage: %w", err)
	}
	status.Swap = model.SwapStatus{
		TotalBytes:  swapInfo.Total,
		UsedBytes:   swapInfo.Used,
		FreeBytes:   swapInfo.Free,
		UsedPercent: swapInfo.UsedPercent,
	}

	cpuStatus, err := m.cpuStatus(ctx)
	if err != nil {
		return nil, err
	}
	status.CPU = *cpuStatus

	netCounters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get network counters: %w", err)
	}
	if len(netCounters) > 0 {
		status.Network = model.NetworkStatus{
			BytesSent:   netCounters[0].BytesSent,
			BytesRecv:   netCounters[0].BytesRecv,
			PacketsSent: netCounters[0].PacketsSent,
			PacketsRecv: netCounters[0].PacketsRecv,
		}
	}

	if loadAvg, err := load.AvgWithContext(ctx); err != nil {
		m.logger.Debug("Load averages unavailable", zap.Error(err))
	} else {
		status.Load = model.LoadStatus{
			Load1:  loadAvg.Load1,
			Load5:  loadAvg.Load5,
			Load15: loadAvg.Load15,
		}
	}

	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get uptime: %w", err)
	}
	status.Uptime = time.Duration(uptime) * time.Second

	if temps, err := host.SensorsTemperaturesWithContext(ctx); err != nil {
		m.logger.Debug("Temperature sensors unavailable", zap.Error(err))
	} else {
		for _, t := range temps {
			status.Temperatures = append(status.Temperatures, model.TemperatureReading{
				SensorKey: t.SensorKey,
				Current:   t.Temperature,
				High:      t.High,
				Critical:  t.Critical,
			})
		}
	}

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get process list: %w", err)
	}
	status.ProcessCount = len(pids)

	m.logger.Debug("System status collected",
		zap.Float64("cpu_usage", status.CPU.UsagePercent),
		zap.Float64("memory_usage", status.Memory.UsedPercent),
		zap.Int("process_count", status.ProcessCount))

	return status, nil
}

// cpuStatus collects processor utilization and topology
func (m *SystemMonitor) cpuStatus(ctx context.Context) (*model.CPUStatus, error) {
	percent, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}

	cores, err := cpu.CountsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU core count: %w", err)
	}

	threads, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU thread count: %w", err)
	}

	status := &model.CPUStatus{
		Cores:   cores,
		Threads: threads,
	}
	if len(percent) > 0 {
		status.UsagePercent = percent[0]
	}

	// Frequency is best-effort: some platforms report nothing.
	if info, err := cpu.InfoWithContext(ctx); err == nil && len(info) > 0 {
		status.FrequencyMHz = info[0].Mhz
	}

	return status, nil
}
