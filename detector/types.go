package detector

import "time"

// SystemInfo holds near-static hardware facts. It is refreshed periodically
// rather than on every sample, and mutated only by the Detector.
type SystemInfo struct {
	Hostname      string    `json:"hostname"`
	PID           int       `json:"pid"`
	LogicalCores  int       `json:"logical_cores"`
	PhysicalCores int       `json:"physical_cores"`
	CPUModel      string    `json:"cpu_model"`
	CPUMhz        float64   `json:"cpu_mhz"`
	TotalMemory   uint64    `json:"total_memory"`
	TotalSwap     uint64    `json:"total_swap"`
	TotalDisk     uint64    `json:"total_disk"`
	Interfaces    []string  `json:"interfaces"`
	ProcessStart  time.Time `json:"process_start"`
	RefreshedAt   time.Time `json:"refreshed_at"`
}

// ResourceUsage is one immutable sampling-tick snapshot. Rate fields are
// per-second values computed by differencing successive samples; they are
// zero on the first sample after monitoring starts.
type ResourceUsage struct {
	Timestamp time.Time `json:"timestamp"`

	CPUPercent     float64   `json:"cpu_percent"`
	PerCorePercent []float64 `json:"per_core_percent"`
	Load1          float64   `json:"load_1"`
	Load5          float64   `json:"load_5"`
	Load15         float64   `json:"load_15"`

	MemoryUsed      uint64  `json:"memory_used"`
	MemoryAvailable uint64  `json:"memory_available"`
	MemoryPercent   float64 `json:"memory_percent"`
	SwapUsed        uint64  `json:"swap_used"`
	SwapPercent     float64 `json:"swap_percent"`

	DiskReadBytesPerSec  float64 `json:"disk_read_bytes_per_sec"`
	DiskWriteBytesPerSec float64 `json:"disk_write_bytes_per_sec"`
	NetSentBytesPerSec   float64 `json:"net_sent_bytes_per_sec"`
	NetRecvBytesPerSec   float64 `json:"net_recv_bytes_per_sec"`

	ProcessRSS        uint64  `json:"process_rss"`
	ProcessMemPercent float64 `json:"process_mem_percent"`
	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessThreads    int32   `json:"process_threads"`
	ProcessOpenFDs    int32   `json:"process_open_fds"`

	SystemUptime  time.Duration `json:"system_uptime"`
	ProcessUptime time.Duration `json:"process_uptime"`
}

// NetworkMBps returns the combined send+receive rate in megabytes per second.
func (u ResourceUsage) NetworkMBps() float64 {
	return (u.NetSentBytesPerSec + u.NetRecvBytesPerSec) / (1024 * 1024)
}

// rawCounters holds one read of the OS counters before rate computation.
// Disk and network values are cumulative since boot.
type rawCounters struct {
	at time.Time

	cpuPercent float64
	perCore    []float64
	load1      float64
	load5      float64
	load15     float64

	memUsed     uint64
	memAvail    uint64
	memPercent  float64
	swapUsed    uint64
	swapPercent float64

	diskReadBytes  uint64
	diskWriteBytes uint64
	netSentBytes   uint64
	netRecvBytes   uint64

	procRSS        uint64
	procMemPercent float64
	procCPU        float64
	procThreads    int32
	procFDs        int32

	sysUptime  time.Duration
	procUptime time.Duration
}
