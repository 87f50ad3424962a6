// Package detector samples OS and process counters, maintains static
// hardware facts and a bounded rolling history of usage snapshots, and
// derives per-second rates by differencing successive samples.
package detector

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"resguard/config"
)

var log = logging.Logger("resguard/detector")

// Detector periodically samples resource usage. All query methods are safe
// to call from any goroutine; the background loop is the only writer.
type Detector struct {
	mu sync.Mutex

	monitoring *config.MonitoringConfig
	thresholds *config.ThresholdConfig
	cpuWarning float64
	interval   time.Duration

	info    SystemInfo
	history *UsageHistory
	latest  ResourceUsage
	sampled bool
	prev    *rawCounters
	tick    int

	read      func() (*rawCounters, error)
	readFacts func() (SystemInfo, error)

	isRunning bool
	stopChan  chan struct{}
}

// New creates a Detector from the supplied configuration; nil falls back to
// defaults. Hardware facts are read once at construction.
func New(cfg *config.Config) *Detector {
	cfg = cfg.Normalized()

	d := &Detector{
		monitoring: cfg.Monitoring,
		thresholds: cfg.Thresholds,
		cpuWarning: cfg.Stress.CPUThresholdPercent,
		interval:   time.Duration(cfg.Monitoring.IntervalSeconds) * time.Second,
		history:    NewUsageHistory(cfg.Monitoring.HistorySize),
		stopChan:   make(chan struct{}),
	}

	reader, err := newOSReader()
	if err != nil {
		// Degrade to empty reads; every sample will log and return the
		// last-known snapshot instead of failing the host process.
		log.Errorw("failed to initialize OS reader", "error", err)
		d.read = func() (*rawCounters, error) { return nil, err }
		d.readFacts = func() (SystemInfo, error) { return SystemInfo{}, err }
	} else {
		d.read = reader.read
		d.readFacts = reader.readFacts
	}

	d.RefreshSystemInfo()
	return d
}

// Interval returns the configured sampling interval.
func (d *Detector) Interval() time.Duration {
	return d.interval
}

// RefreshSystemInfo recomputes the hardware facts. It never fails: on a read
// error the previous facts are kept unchanged.
func (d *Detector) RefreshSystemInfo() SystemInfo {
	info, err := d.readFacts()
	if err != nil {
		log.Warnw("hardware facts refresh failed, keeping previous facts", "error", err)
		return d.SystemInfo()
	}

	d.mu.Lock()
	d.info = info
	d.mu.Unlock()
	return info
}

// SystemInfo returns the current hardware facts.
func (d *Detector) SystemInfo() SystemInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info
}

// Sample reads the current counters, computes rates against the previous
// sample, appends the snapshot to the bounded history and returns it. It
// never fails: on a read error it logs and returns the last-known snapshot.
func (d *Detector) Sample() ResourceUsage {
	raw, err := d.read()
	if err != nil {
		log.Warnw("resource sample failed, returning last known snapshot", "error", err)
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.latest
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	usage := buildUsage(raw, d.prev)
	d.prev = raw
	d.latest = usage
	d.sampled = true
	d.history.Add(usage)
	return usage
}

// buildUsage converts raw counters into a snapshot, differencing cumulative
// disk and network counters against the previous read. Rates default to zero
// when there is no previous sample or elapsed time is not positive.
func buildUsage(raw, prev *rawCounters) ResourceUsage {
	usage := ResourceUsage{
		Timestamp:         raw.at,
		CPUPercent:        raw.cpuPercent,
		PerCorePercent:    raw.perCore,
		Load1:             raw.load1,
		Load5:             raw.load5,
		Load15:            raw.load15,
		MemoryUsed:        raw.memUsed,
		MemoryAvailable:   raw.memAvail,
		MemoryPercent:     raw.memPercent,
		SwapUsed:          raw.swapUsed,
		SwapPercent:       raw.swapPercent,
		ProcessRSS:        raw.procRSS,
		ProcessMemPercent: raw.procMemPercent,
		ProcessCPUPercent: raw.procCPU,
		ProcessThreads:    raw.procThreads,
		ProcessOpenFDs:    raw.procFDs,
		SystemUptime:      raw.sysUptime,
		ProcessUptime:     raw.procUptime,
	}

	if prev == nil {
		return usage
	}
	elapsed := raw.at.Sub(prev.at).Seconds()
	if elapsed <= 0 {
		return usage
	}

	usage.DiskReadBytesPerSec = counterRate(raw.diskReadBytes, prev.diskReadBytes, elapsed)
	usage.DiskWriteBytesPerSec = counterRate(raw.diskWriteBytes, prev.diskWriteBytes, elapsed)
	usage.NetSentBytesPerSec = counterRate(raw.netSentBytes, prev.netSentBytes, elapsed)
	usage.NetRecvBytesPerSec = counterRate(raw.netRecvBytes, prev.netRecvBytes, elapsed)
	return usage
}

// counterRate handles counter resets by treating a backwards step as zero.
func counterRate(cur, prev uint64, elapsed float64) float64 {
	if cur < prev {
		return 0.0
	}
	return float64(cur-prev) / elapsed
}

// Start begins periodic sampling. Starting an already-running detector is a
// no-op with a warning.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	if d.isRunning {
		d.mu.Unlock()
		log.Warn("monitoring already running, ignoring start")
		return
	}
	d.isRunning = true
	stop := d.stopChan
	d.mu.Unlock()

	go d.monitorLoop(ctx, stop)
	log.Infow("resource monitoring started", "interval", d.interval)
}

// Stop stops periodic sampling. The loop exits at its next wakeup.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.isRunning {
		return
	}
	d.isRunning = false
	close(d.stopChan)
	d.stopChan = make(chan struct{})
	log.Info("resource monitoring stopped")
}

func (d *Detector) monitorLoop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			d.Sample()

			d.mu.Lock()
			d.tick++
			refresh := d.tick%d.monitoring.FactsRefreshTicks == 0
			d.mu.Unlock()

			// Slow-changing facts do not warrant a read every sample.
			if refresh {
				d.RefreshSystemInfo()
			}
		}
	}
}

// Latest returns the most recent snapshot and whether one exists yet.
func (d *Detector) Latest() (ResourceUsage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, d.sampled
}

// MemoryPressure reports whether system memory usage exceeds the warning
// threshold, along with the observed percentage. Pure read.
func (d *Detector) MemoryPressure() (bool, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest.MemoryPercent >= d.thresholds.WarningPercent, d.latest.MemoryPercent
}

// CPUPressure reports whether CPU usage exceeds the warning threshold, along
// with the observed percentage. Pure read.
func (d *Detector) CPUPressure() (bool, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest.CPUPercent >= d.cpuWarning, d.latest.CPUPercent
}

// History returns the suffix of the bounded history covering the requested
// duration at the configured sampling interval, newest last.
func (d *Detector) History(duration time.Duration) []ResourceUsage {
	n := int(duration / d.interval)
	if n <= 0 {
		n = 1
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.Last(n)
}

// HistoryLen returns the number of retained snapshots.
func (d *Detector) HistoryLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.history.Len()
}

// ProcessMemoryPercent returns the process share of total system memory from
// the latest snapshot.
func (d *Detector) ProcessMemoryPercent() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest.ProcessMemPercent
}

// ProcessRSS returns the process resident set size from the latest snapshot.
func (d *Detector) ProcessRSS() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest.ProcessRSS
}

// TotalMemory returns total system memory from the hardware facts.
func (d *Detector) TotalMemory() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.info.TotalMemory
}

// Summary returns a status-surface view of current usage and trends.
func (d *Detector) Summary() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	cpuDir, cpuSlope := d.history.Trend(func(u ResourceUsage) float64 { return u.CPUPercent })
	memDir, memSlope := d.history.Trend(func(u ResourceUsage) float64 { return u.MemoryPercent })

	return map[string]interface{}{
		"timestamp":           d.latest.Timestamp,
		"cpu_percent":         d.latest.CPUPercent,
		"memory_percent":      d.latest.MemoryPercent,
		"swap_percent":        d.latest.SwapPercent,
		"network_mbps":        d.latest.NetworkMBps(),
		"process_rss_mb":      d.latest.ProcessRSS / (1024 * 1024),
		"process_mem_percent": d.latest.ProcessMemPercent,
		"process_threads":     d.latest.ProcessThreads,
		"process_open_fds":    d.latest.ProcessOpenFDs,
		"history_len":         d.history.Len(),
		"cpu_trend":           map[string]interface{}{"direction": cpuDir, "slope": cpuSlope},
		"memory_trend":        map[string]interface{}{"direction": memDir, "slope": memSlope},
	}
}
