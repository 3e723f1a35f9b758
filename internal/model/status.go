package model

import "time"

// DiskStatus reports usage of the root partition
type DiskStatus struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// MemoryStatus reports physical memory utilization
type MemoryStatus struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedBytes      uint64  `json:"used_bytes"`
	FreeBytes      uint64  `json:"free_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// SwapStatus reports swap memory utilization
type SwapStatus struct {
	TotalBytes  uint64  `json:"total_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// CPUStatus reports processor utilization and topology
type CPUStatus struct {
	UsagePercent float64 `json:"usage_percent"`
	Cores        int     `json:"cores"`
	Threads      int     `json:"threads"`
	FrequencyMHz float64 `json:"frequency_mhz,omitempty"`
}

// NetworkStatus reports aggregate network I/O counters
type NetworkStatus struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// LoadStatus reports system load averages. Zero values on platforms
// without load average support.
type LoadStatus struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// TemperatureReading reports one hardware sensor value
type TemperatureReading struct {
	SensorKey string  `json:"sensor_key"`
	Current   float64 `json:"current"`
	High      float64 `json:"high,omitempty"`
	Critical  float64 `json:"critical,omitempty"`
}

// SystemStatus is a point-in-time snapshot of host resources
type SystemStatus struct {
	Disk         DiskStatus           `json:"disk"`
	Memory       MemoryStatus         `json:"memory"`
	Swap         SwapStatus           `json:"swap"`
	CPU          CPUStatus            `json:"cpu"`
	Network      NetworkStatus        `json:"network"`
	Load         LoadStatus           `json:"load"`
	Uptime       time.Duration        `json:"uptime"`
	Temperatures []TemperatureReading `json:"temperatures,omitempty"`
	ProcessCount int                  `json:"process_count"`
	CollectedAt  time.Time            `json:"collected_at"`
}
