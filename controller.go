// Package resguard is an in-process adaptive resource-pressure controller
// for a long-running server. It samples OS and process counters, derives a
// scalar stress score, classifies the process into a stress state and fires
// graduated mitigations to keep the process stable under load spikes.
package resguard

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/prometheus/client_golang/prometheus"

	"resguard/config"
	"resguard/detector"
	"resguard/optimizer"
	"resguard/stress"
)

var log = logging.Logger("resguard")

// Controller wires the detector, optimizer and stress handler into one
// control loop and exposes their query and management surface to the host.
type Controller struct {
	mu sync.Mutex

	cfg      *config.Config
	det      *detector.Detector
	opt      *optimizer.Optimizer
	handler  *stress.Handler
	registry *prometheus.Registry

	running bool
	cancel  context.CancelFunc
}

// New builds a controller from the supplied configuration; nil falls back to
// defaults. Construction order follows the dependency order: detector,
// optimizer, stress handler.
func New(cfg *config.Config) (*Controller, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry := prometheus.NewRegistry()
	det := detector.New(cfg)
	opt := optimizer.New(cfg, det)
	handler := stress.New(cfg, det, opt, registry)

	return &Controller{
		cfg:      cfg,
		det:      det,
		opt:      opt,
		handler:  handler,
		registry: registry,
	}, nil
}

// Start launches the periodic loops of each component. Double start is a
// warning no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		log.Warn("controller already running, ignoring start")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.det.Start(loopCtx)
	if c.cfg.GC.Enabled {
		c.opt.Start(loopCtx)
	}
	if c.cfg.Stress.Enabled {
		c.handler.Start(loopCtx)
	}

	log.Info("resource pressure controller started")
	return nil
}

// Stop signals every loop to exit at its next wakeup. Shutdown is
// cooperative, not synchronous.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.running = false

	c.handler.Stop()
	c.opt.Stop()
	c.det.Stop()
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("resource pressure controller stopped")
}

// CurrentStatus returns the live view the status surface exposes.
func (c *Controller) CurrentStatus() map[string]interface{} {
	status := c.det.Summary()
	status["stress_level"] = c.handler.Level().String()
	status["stress_score"] = c.handler.Score()
	status["breaker_active"] = c.handler.BreakerActive()
	return status
}

// SystemFacts returns the near-static hardware facts.
func (c *Controller) SystemFacts() detector.SystemInfo {
	return c.det.SystemInfo()
}

// UsageHistory returns the retained snapshots covering the last N minutes.
func (c *Controller) UsageHistory(minutes int) []detector.ResourceUsage {
	return c.det.History(time.Duration(minutes) * time.Minute)
}

// GrowthReport evaluates the leak heuristic against the startup baseline.
func (c *Controller) GrowthReport() optimizer.GrowthReport {
	return c.opt.CheckGrowthTrend()
}

// Metrics merges the cumulative and live metrics of every component.
func (c *Controller) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"optimizer": c.opt.Metrics(),
		"stress":    c.handler.Metrics(),
		"detector":  c.det.Summary(),
	}
}

// Optimize runs a management-triggered optimization pass. Level is "normal"
// or "aggressive".
func (c *Controller) Optimize(level string) (optimizer.OptimizeResult, error) {
	switch optimizer.Level(level) {
	case optimizer.LevelNormal, optimizer.LevelAggressive:
		return c.opt.Optimize(optimizer.Level(level)), nil
	default:
		return optimizer.OptimizeResult{}, fmt.Errorf("unknown optimization level %q", level)
	}
}

// SetMemoryLimit applies a best-effort memory cap in megabytes.
func (c *Controller) SetMemoryLimit(limitMB int64) optimizer.MemoryLimitResult {
	return c.opt.SetMemoryLimit(limitMB)
}

// RegisterBackgroundTask registers a pausable background task with the
// stress handler.
func (c *Controller) RegisterBackgroundTask(name string, pause, resume func() error, critical bool) error {
	return c.handler.RegisterTask(name, pause, resume, critical)
}

// RegisterCache registers a cache-like structure for pressure-triggered
// sweeping.
func (c *Controller) RegisterCache(cache optimizer.Clearable) error {
	return c.opt.RegisterCache(cache)
}

// RegisterStressAction adds a named handler fired on escalation into
// CRITICAL.
func (c *Controller) RegisterStressAction(name string, fn func() error) {
	c.handler.RegisterAction(name, fn)
}

// RequestGate is the pre-request hook for the host pipeline: nil while
// operation is normal, ErrCircuitOpen for non-critical endpoints while the
// breaker is active.
func (c *Controller) RequestGate(endpoint string) error {
	return c.handler.RequestGate(endpoint)
}

// PrometheusRegistry exposes the controller's metric registry for the host
// to mount.
func (c *Controller) PrometheusRegistry() *prometheus.Registry {
	return c.registry
}
