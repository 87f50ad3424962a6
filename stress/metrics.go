package stress

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// promMetrics exports the handler's live state to a Prometheus registry.
type promMetrics struct {
	score         prometheus.Gauge
	level         prometheus.Gauge
	breakerActive prometheus.Gauge
	stressEvents  prometheus.Counter
	breakerTrips  prometheus.Counter
	actionRuns    *prometheus.CounterVec
}

func newPromMetrics(reg *prometheus.Registry) *promMetrics {
	factory := promauto.With(reg)
	return &promMetrics{
		score: factory.NewGauge(prometheus.GaugeOpts{
			Name: "resguard_stress_score",
			Help: "Current stress score (load/threshold ratio, max across dimensions)",
		}),
		level: factory.NewGauge(prometheus.GaugeOpts{
			Name: "resguard_stress_level",
			Help: "Current stress level (0=NORMAL 1=ELEVATED 2=HIGH 3=CRITICAL)",
		}),
		breakerActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "resguard_circuit_breaker_active",
			Help: "Whether the circuit breaker currently rejects non-critical requests",
		}),
		stressEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "resguard_stress_events_total",
			Help: "Total stress escalations",
		}),
		breakerTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "resguard_circuit_breaker_trips_total",
			Help: "Total circuit breaker activations",
		}),
		actionRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "resguard_stress_action_runs_total",
			Help: "Graduated mitigation invocations by action",
		}, []string{"action"}),
	}
}

func (p *promMetrics) observe(score float64, level Level, breakerActive bool) {
	p.score.Set(score)
	p.level.Set(float64(level))
	if breakerActive {
		p.breakerActive.Set(1)
	} else {
		p.breakerActive.Set(0)
	}
}

// Metrics merges the cumulative counters with live values: current score and
// level, time in the current level, breaker status and rolling averages of
// the score components over the retained window.
func (h *Handler) Metrics() map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	actions := make(map[string]uint64, len(h.actionCounts))
	for name, count := range h.actionCounts {
		actions[name] = count
	}

	return map[string]interface{}{
		"score":                h.score,
		"level":                h.level.String(),
		"time_in_level_sec":    time.Since(h.levelSince).Seconds(),
		"breaker_active":       h.breaker.active,
		"breaker_trips":        h.breaker.trips,
		"throttling":           h.throttling,
		"stress_events":        h.stressEvents,
		"emergency_runs":       h.emergencyRuns,
		"total_stress_sec":     h.totalStress.Seconds(),
		"action_counts":        actions,
		"avg_cpu_component":    average(h.cpuWindow),
		"avg_memory_component": average(h.memWindow),
		"avg_net_component":    average(h.netWindow),
		"registered_tasks":     len(h.tasks),
	}
}

func average(window []float64) float64 {
	if len(window) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(len(window))
}
