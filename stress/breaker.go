package stress

import (
	"errors"
	"time"
)

// ErrCircuitOpen is returned by the request gate while the breaker rejects
// non-critical work.
var ErrCircuitOpen = errors.New("circuit breaker active: request rejected")

// breaker is the load-shedding gate: a boolean flag, an activation
// timestamp and a trip counter.
type breaker struct {
	active      bool
	activatedAt time.Time
	trips       uint64
}

// activate trips the breaker; re-activating while already active does not
// count another trip.
func (b *breaker) activate(now time.Time) {
	if b.active {
		return
	}
	b.active = true
	b.activatedAt = now
	b.trips++
}

func (b *breaker) deactivate() {
	b.active = false
}

// RequestGate is installed into the host request pipeline and invoked before
// each request. It is a no-op while the state is NORMAL; while the breaker
// is active it rejects requests to endpoints outside the critical
// allow-list.
func (h *Handler) RequestGate(endpoint string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.level == LevelNormal || !h.breaker.active {
		return nil
	}
	for _, allowed := range h.cfg.CriticalEndpoints {
		if endpoint == allowed {
			return nil
		}
	}
	return ErrCircuitOpen
}

// BreakerActive reports whether the circuit breaker currently rejects
// non-critical work.
func (h *Handler) BreakerActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.breaker.active
}
