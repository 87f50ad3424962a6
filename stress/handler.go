// Package stress runs the classification loop: it derives a scalar stress
// score from resource samples, drives a four-state machine and fires
// graduated mitigations, including reclamation passes, background-task
// suspension and request circuit-breaking.
package stress

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"

	"resguard/config"
	"resguard/detector"
	"resguard/optimizer"
)

var log = logging.Logger("resguard/stress")

// logSubsystems are the logger names whose verbosity the ELEVATED action
// reduces and the NORMAL transition restores.
var logSubsystems = []string{"resguard/detector", "resguard/optimizer", "resguard/stress"}

// UsageSource provides the latest resource snapshot. The Detector
// satisfies it.
type UsageSource interface {
	Latest() (detector.ResourceUsage, bool)
}

// MemoryOptimizer is the mitigation surface the handler drives. The
// Optimizer satisfies it.
type MemoryOptimizer interface {
	RunCollection(force bool) optimizer.CollectionResult
	Optimize(level optimizer.Level) optimizer.OptimizeResult
}

// componentWindowSize bounds the rolling windows of score components kept
// for the metrics surface.
const componentWindowSize = 120

// Handler owns the stress state machine. The background loop is the only
// writer of the state; query methods are safe for concurrent callers.
type Handler struct {
	mu sync.Mutex

	cfg         *config.StressConfig
	warnPercent float64
	source      UsageSource
	opt         MemoryOptimizer

	level        Level
	score        float64
	levelSince   time.Time
	episodeStart time.Time // zero while NORMAL

	breaker    breaker
	throttling bool

	tasks        []*BackgroundTask
	extraActions map[string]func() error
	firedActions map[string]bool // reset each episode

	cpuWindow []float64
	memWindow []float64
	netWindow []float64

	// Cumulative counters; approximate observability metrics.
	stressEvents     uint64
	emergencyRuns    uint64
	totalStress      time.Duration
	actionCounts     map[string]uint64
	verbosityReduced bool

	prom *promMetrics

	isRunning bool
	stopChan  chan struct{}
}

// New creates a stress handler. A nil registry disables the exported
// gauges without affecting the in-process counters.
func New(cfg *config.Config, source UsageSource, opt MemoryOptimizer, reg *prometheus.Registry) *Handler {
	cfg = cfg.Normalized()

	h := &Handler{
		cfg:          cfg.Stress,
		warnPercent:  cfg.Thresholds.WarningPercent,
		source:       source,
		opt:          opt,
		level:        LevelNormal,
		levelSince:   time.Now(),
		extraActions: make(map[string]func() error),
		firedActions: make(map[string]bool),
		actionCounts: make(map[string]uint64),
		stopChan:     make(chan struct{}),
	}
	if reg != nil {
		h.prom = newPromMetrics(reg)
	}
	return h
}

// RegisterAction adds a named handler fired on escalation into CRITICAL,
// at most once per stress episode.
func (h *Handler) RegisterAction(name string, fn func() error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.extraActions[name] = fn
}

// Score returns the most recently computed stress score.
func (h *Handler) Score() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.score
}

// Level returns the current stress level.
func (h *Handler) Level() Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// computeScore derives the dimensionless stress score: the maximum ratio of
// observed load to its configured threshold across CPU, memory and network.
func (h *Handler) computeScore(u detector.ResourceUsage) (score, cpuC, memC, netC float64) {
	cpuC = u.CPUPercent / h.cfg.CPUThresholdPercent
	memC = u.MemoryPercent / h.warnPercent
	netC = u.NetworkMBps() / h.cfg.NetworkThresholdMBs

	score = cpuC
	if memC > score {
		score = memC
	}
	if netC > score {
		score = netC
	}
	return score, cpuC, memC, netC
}

// Evaluate runs one classification pass: recompute the score, transition the
// state machine, fire graduated actions and apply the emergency path when an
// episode is stuck. It is invoked by the loop and exported for management
// callers.
func (h *Handler) Evaluate() {
	usage, ok := h.source.Latest()
	if !ok {
		return
	}
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	score, cpuC, memC, netC := h.computeScore(usage)
	h.score = score
	h.cpuWindow = appendBounded(h.cpuWindow, cpuC)
	h.memWindow = appendBounded(h.memWindow, memC)
	h.netWindow = appendBounded(h.netWindow, netC)

	newLevel := LevelForScore(score)
	switch {
	case newLevel > h.level:
		h.escalate(newLevel, now)
	case newLevel == LevelNormal && h.level != LevelNormal:
		h.recoverToNormal(now)
	case newLevel < h.level:
		// De-escalation between stressed levels changes the
		// classification only; actions fire on escalation and on the
		// return to NORMAL.
		log.Infow("stress reduced", "from", h.level.String(), "to", newLevel.String(), "score", score)
		h.level = newLevel
		h.levelSince = now
	}

	// Stuck-in-stress escalation: a persisted episode gets one emergency
	// pass; resetting the episode start keeps it from re-firing every tick
	// while still stuck.
	if h.level != LevelNormal && !h.episodeStart.IsZero() &&
		now.Sub(h.episodeStart) > h.cfg.MaxStressTime {
		h.emergency(now)
		h.episodeStart = now
	}

	if h.prom != nil {
		h.prom.observe(h.score, h.level, h.breaker.active)
	}
}

// escalate transitions upward and fires only the action set of the level
// being entered; lower-level actions are not re-run.
func (h *Handler) escalate(to Level, now time.Time) {
	from := h.level
	if from == LevelNormal {
		h.episodeStart = now
	}
	h.level = to
	h.levelSince = now
	h.stressEvents++
	if h.prom != nil {
		h.prom.stressEvents.Inc()
	}

	log.Warnw("stress level escalated",
		"from", from.String(), "to", to.String(), "score", h.score)

	switch to {
	case LevelElevated:
		h.runAction("reduce_verbosity", h.reduceVerbosity)
		h.runAction("opportunistic_collection", func() error {
			h.opt.RunCollection(false)
			return nil
		})
	case LevelHigh:
		h.runAction("pause_background_tasks", func() error {
			h.pauseTasks()
			return nil
		})
		h.runAction("optimize_normal", func() error {
			h.opt.Optimize(optimizer.LevelNormal)
			return nil
		})
	case LevelCritical:
		h.runAction("circuit_breaker", func() error {
			h.breaker.activate(now)
			if h.prom != nil {
				h.prom.breakerTrips.Inc()
			}
			return nil
		})
		h.runAction("request_throttling", func() error {
			h.throttling = true
			return nil
		})
		for name, fn := range h.extraActions {
			if h.firedActions[name] {
				continue
			}
			h.runAction(name, fn)
		}
	}
}

// recoverToNormal undoes every mitigation and accumulates episode metrics.
func (h *Handler) recoverToNormal(now time.Time) {
	from := h.level
	h.level = LevelNormal
	h.levelSince = now

	h.breaker.deactivate()
	h.throttling = false
	h.resumeTasks()
	h.restoreVerbosity()

	if !h.episodeStart.IsZero() {
		h.totalStress += now.Sub(h.episodeStart)
	}
	h.episodeStart = time.Time{}
	h.firedActions = make(map[string]bool)

	log.Infow("stress recovered", "from", from.String(), "score", h.score)
}

// emergency is the stuck-episode mitigation: an aggressive optimization pass
// plus a force-activated breaker.
func (h *Handler) emergency(now time.Time) {
	h.emergencyRuns++
	h.actionCounts["emergency"]++
	wasActive := h.breaker.active
	h.breaker.activate(now)
	if !wasActive && h.prom != nil {
		h.prom.breakerTrips.Inc()
	}

	log.Errorw("stress persisted beyond maximum, running emergency mitigation",
		"level", h.level.String(),
		"stuck_for", now.Sub(h.episodeStart).String())
	h.opt.Optimize(optimizer.LevelAggressive)
}

// runAction invokes one graduated action, recording it per episode and in
// the cumulative counts. A failing action is logged and does not stop the
// escalation.
func (h *Handler) runAction(name string, fn func() error) {
	h.firedActions[name] = true
	h.actionCounts[name]++
	if h.prom != nil {
		h.prom.actionRuns.WithLabelValues(name).Inc()
	}
	if err := fn(); err != nil {
		log.Warnw("stress action failed", "action", name, "error", err)
	}
}

func (h *Handler) reduceVerbosity() error {
	if h.verbosityReduced {
		return nil
	}
	for _, name := range logSubsystems {
		if err := logging.SetLogLevel(name, "warn"); err != nil {
			return err
		}
	}
	h.verbosityReduced = true
	return nil
}

func (h *Handler) restoreVerbosity() {
	if !h.verbosityReduced {
		return
	}
	for _, name := range logSubsystems {
		if err := logging.SetLogLevel(name, "info"); err != nil {
			log.Warnw("failed to restore log verbosity", "subsystem", name, "error", err)
		}
	}
	h.verbosityReduced = false
}

// Start begins the classification loop. The poll interval is short while
// stressed and long at rest. Double start is a warning no-op.
func (h *Handler) Start(ctx context.Context) {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		log.Warn("stress loop already running, ignoring start")
		return
	}
	h.isRunning = true
	stop := h.stopChan
	h.mu.Unlock()

	go h.loop(ctx, stop)
	log.Infow("stress handler started",
		"normal_interval", h.cfg.NormalCheckInterval,
		"stress_interval", h.cfg.StressCheckInterval)
}

// Stop halts the classification loop at its next wakeup.
func (h *Handler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.isRunning {
		return
	}
	h.isRunning = false
	close(h.stopChan)
	h.stopChan = make(chan struct{})
}

func (h *Handler) loop(ctx context.Context, stop <-chan struct{}) {
	timer := time.NewTimer(h.checkInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-timer.C:
			h.Evaluate()
			timer.Reset(h.checkInterval())
		}
	}
}

// checkInterval returns the adaptive poll interval for the current level.
func (h *Handler) checkInterval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.level != LevelNormal {
		return h.cfg.StressCheckInterval
	}
	return h.cfg.NormalCheckInterval
}

func appendBounded(window []float64, v float64) []float64 {
	window = append(window, v)
	if len(window) > componentWindowSize {
		window = window[1:]
	}
	return window
}
