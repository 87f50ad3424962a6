// Package optimizer tunes the Go collector from total system memory, runs
// on-demand or threshold-triggered reclamation passes, sweeps registered
// caches and tracks a memory-growth baseline for leak-trend detection.
package optimizer

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"resguard/config"
)

var log = logging.Logger("resguard/optimizer")

// UsageSource provides the process and system memory readings the optimizer
// decides on. The Detector satisfies it.
type UsageSource interface {
	ProcessMemoryPercent() float64
	ProcessRSS() uint64
	TotalMemory() uint64
}

// Level selects how far an optimization pass goes.
type Level string

const (
	LevelNormal     Level = "normal"
	LevelAggressive Level = "aggressive"
)

// CollectionResult describes one reclamation pass, or why it was skipped.
type CollectionResult struct {
	Ran            bool    `json:"ran"`
	Forced         bool    `json:"forced"`
	Reason         string  `json:"reason,omitempty"`
	DurationMs     float64 `json:"duration_ms"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
	ItemsReclaimed uint64  `json:"items_reclaimed"`
	BytesReclaimed uint64  `json:"bytes_reclaimed"`
	MemoryPercent  float64 `json:"memory_percent"`
}

// OptimizeResult describes one optimization pass. References and
// OSMemoryReturned are populated only by aggressive passes, so an aggressive
// result is a superset of a normal one.
type OptimizeResult struct {
	Level            Level            `json:"level"`
	DurationMs       float64          `json:"duration_ms"`
	BytesSaved       uint64           `json:"bytes_saved"`
	Collection       CollectionResult `json:"collection"`
	CacheSweep       CacheSweepResult `json:"cache_sweep"`
	References       *ReferenceReport `json:"references,omitempty"`
	OSMemoryReturned bool             `json:"os_memory_returned"`
}

// MemoryLimitResult reports the outcome of a best-effort memory cap.
type MemoryLimitResult struct {
	Applied         bool   `json:"applied"`
	LimitMB         int64  `json:"limit_mb"`
	RuntimeLimitSet bool   `json:"runtime_limit_set"`
	Reason          string `json:"reason,omitempty"`
}

// Optimizer owns reclamation and leak detection for one process. Query and
// management methods are safe for concurrent callers; overlapping forced
// passes are tolerated because the runtime serializes collections itself.
type Optimizer struct {
	mu sync.Mutex

	gc         *config.GCConfig
	thresholds *config.ThresholdConfig
	source     UsageSource

	caches []Clearable

	baselineBytes uint64
	baselineAt    time.Time
	growth        []GrowthRecord

	tunedPercent  int
	passDurations []float64 // rolling window, last 10 passes

	// Cumulative counters. Approximate observability metrics; precision
	// under concurrent access is not required.
	passes          uint64
	itemsReclaimed  uint64
	bytesReclaimed  uint64
	emergencyPasses uint64
	cachesSwept     uint64

	isRunning bool
	stopChan  chan struct{}
}

// growthWindowSize bounds the leak-detection record window.
const growthWindowSize = 60

// New creates an Optimizer and tunes the collector threshold from total
// system memory. A nil config falls back to defaults; a nil source degrades
// to runtime-only readings.
func New(cfg *config.Config, source UsageSource) *Optimizer {
	cfg = cfg.Normalized()

	o := &Optimizer{
		gc:         cfg.GC,
		thresholds: cfg.Thresholds,
		source:     source,
		stopChan:   make(chan struct{}),
		baselineAt: time.Now(),
	}
	o.baselineBytes = o.processBytes()

	if cfg.GC.Enabled {
		total := uint64(0)
		if source != nil {
			total = source.TotalMemory()
		}
		o.tunedPercent = TuneGCPercent(cfg.GC, total)
		debug.SetGCPercent(o.tunedPercent)
		log.Infow("collector threshold tuned",
			"gogc", o.tunedPercent, "total_memory_gb", float64(total)/(1<<30))
	}

	return o
}

// TuneGCPercent derives a GOGC value from total system memory: more memory
// yields a larger threshold and less frequent collection. The result is
// clamped to the configured range and floored at the safety minimum. The
// formula is heuristic; the constants are configuration, not semantics.
func TuneGCPercent(cfg *config.GCConfig, totalMemory uint64) int {
	gb := float64(totalMemory) / (1 << 30)
	factor := cfg.TuneFactor * math.Log2(gb+1)
	tuned := int(100.0 * factor)

	if tuned < cfg.TuneMinPercent {
		tuned = cfg.TuneMinPercent
	}
	if tuned > cfg.TuneMaxPercent {
		tuned = cfg.TuneMaxPercent
	}
	if tuned < cfg.MinPercentFloor {
		tuned = cfg.MinPercentFloor
	}
	return tuned
}

// TunedPercent returns the GOGC value applied at construction.
func (o *Optimizer) TunedPercent() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tunedPercent
}

func (o *Optimizer) processBytes() uint64 {
	if o.source != nil {
		if rss := o.source.ProcessRSS(); rss > 0 {
			return rss
		}
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

func (o *Optimizer) processPercent() float64 {
	if o.source != nil {
		return o.source.ProcessMemoryPercent()
	}
	return 0.0
}

// RunCollection triggers a reclamation pass when process memory exceeds the
// configured threshold, or unconditionally when forced. A skipped pass
// returns a structured not-needed result rather than an error.
func (o *Optimizer) RunCollection(force bool) CollectionResult {
	memPercent := o.processPercent()
	if !force && memPercent < o.gc.ThresholdPercent {
		return CollectionResult{
			Ran:           false,
			Reason:        "not needed",
			MemoryPercent: memPercent,
		}
	}

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	start := time.Now()
	runtime.GC()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.ReadMemStats(&after)

	result := CollectionResult{
		Ran:           true,
		Forced:        force,
		DurationMs:    float64(elapsed.Nanoseconds()) / 1e6,
		MemoryPercent: memPercent,
	}
	if before.HeapObjects > after.HeapObjects {
		result.ItemsReclaimed = before.HeapObjects - after.HeapObjects
	}
	if before.HeapAlloc > after.HeapAlloc {
		result.BytesReclaimed = before.HeapAlloc - after.HeapAlloc
	}

	o.mu.Lock()
	o.passes++
	o.itemsReclaimed += result.ItemsReclaimed
	o.bytesReclaimed += result.BytesReclaimed
	o.passDurations = append(o.passDurations, result.DurationMs)
	if len(o.passDurations) > 10 {
		o.passDurations = o.passDurations[1:]
	}
	sum := 0.0
	for _, d := range o.passDurations {
		sum += d
	}
	result.AvgDurationMs = sum / float64(len(o.passDurations))
	o.mu.Unlock()

	log.Debugw("reclamation pass complete",
		"forced", force,
		"duration_ms", result.DurationMs,
		"items", result.ItemsReclaimed,
		"bytes", result.BytesReclaimed)
	return result
}

// Optimize runs a graduated optimization pass. Normal does a forced
// collection and a cache sweep; aggressive adds reference reduction and
// returns free memory to the OS.
func (o *Optimizer) Optimize(level Level) OptimizeResult {
	start := time.Now()

	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	result := OptimizeResult{Level: level}
	result.Collection = o.RunCollection(true)
	result.CacheSweep = o.ClearCaches()

	if level == LevelAggressive {
		refs := o.ReduceReferences()
		result.References = &refs
		debug.FreeOSMemory()
		result.OSMemoryReturned = true

		o.mu.Lock()
		o.emergencyPasses++
		o.mu.Unlock()
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	if before.HeapAlloc > after.HeapAlloc {
		result.BytesSaved = before.HeapAlloc - after.HeapAlloc
	}
	result.DurationMs = float64(time.Since(start).Nanoseconds()) / 1e6

	log.Infow("optimization pass complete",
		"level", string(level),
		"bytes_saved", result.BytesSaved,
		"caches_cleared", result.CacheSweep.CachesCleared,
		"duration_ms", result.DurationMs)
	return result
}

// SetMemoryLimit applies a best-effort memory cap: a Go runtime soft limit
// plus an OS address-space limit where the platform supports one.
func (o *Optimizer) SetMemoryLimit(limitMB int64) MemoryLimitResult {
	result := MemoryLimitResult{LimitMB: limitMB}
	if limitMB <= 0 {
		result.Reason = "limit must be positive"
		return result
	}

	limitBytes := uint64(limitMB) << 20
	debug.SetMemoryLimit(int64(limitBytes))
	result.RuntimeLimitSet = true

	if err := setAddressSpaceLimit(limitBytes); err != nil {
		result.Reason = err.Error()
		log.Warnw("address-space limit not applied", "limit_mb", limitMB, "error", err)
		return result
	}

	result.Applied = true
	log.Infow("memory limit applied", "limit_mb", limitMB)
	return result
}

// Start begins the background reclamation loop: threshold-triggered passes
// plus growth-record accounting. Double start is a warning no-op.
func (o *Optimizer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		log.Warn("optimizer loop already running, ignoring start")
		return
	}
	o.isRunning = true
	stop := o.stopChan
	o.mu.Unlock()

	interval := time.Duration(o.gc.IntervalSeconds) * time.Second
	go o.reclaimLoop(ctx, stop, interval)
	log.Infow("optimizer loop started", "interval", interval)
}

// Stop halts the background loop at its next wakeup.
func (o *Optimizer) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.isRunning {
		return
	}
	o.isRunning = false
	close(o.stopChan)
	o.stopChan = make(chan struct{})
}

func (o *Optimizer) reclaimLoop(ctx context.Context, stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			// Each iteration is isolated; a failure is logged and the
			// loop proceeds after its interval.
			o.RunCollection(false)
			o.appendGrowth(o.processBytes(), time.Now())
		}
	}
}

// Metrics merges live runtime collector counters with the cumulative
// reclamation stats.
func (o *Optimizer) Metrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	o.mu.Lock()
	defer o.mu.Unlock()

	avg := 0.0
	if len(o.passDurations) > 0 {
		sum := 0.0
		for _, d := range o.passDurations {
			sum += d
		}
		avg = sum / float64(len(o.passDurations))
	}

	return map[string]interface{}{
		"passes":            o.passes,
		"items_reclaimed":   o.itemsReclaimed,
		"bytes_reclaimed":   o.bytesReclaimed,
		"emergency_passes":  o.emergencyPasses,
		"caches_swept":      o.cachesSwept,
		"avg_pass_ms":       avg,
		"tuned_gc_percent":  o.tunedPercent,
		"runtime_num_gc":    m.NumGC,
		"runtime_pause_ms":  float64(m.PauseTotalNs) / 1e6,
		"gc_cpu_fraction":   m.GCCPUFraction,
		"next_gc_bytes":     m.NextGC,
		"heap_alloc_bytes":  m.HeapAlloc,
		"heap_objects":      m.HeapObjects,
		"growth_records":    len(o.growth),
		"baseline_mb":       o.baselineBytes / (1024 * 1024),
	}
}
