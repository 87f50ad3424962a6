package stress

import (
	"errors"
	"testing"
	"time"
)

func TestRequestGateNoOpWhileNormal(t *testing.T) {
	h, _, _ := newTestHandler()

	if err := h.RequestGate("/api/transfer"); err != nil {
		t.Errorf("gate must be a no-op while NORMAL, got %v", err)
	}
}

func TestRequestGateRejectsWhileBreakerActive(t *testing.T) {
	h, src, _ := newTestHandler()

	src.u = usageWith(130.0, 10.0, 1.0) // CRITICAL
	h.Evaluate()

	err := h.RequestGate("/api/transfer")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen for non-critical endpoint, got %v", err)
	}

	// Allow-listed endpoints bypass rejection.
	if err := h.RequestGate("/health"); err != nil {
		t.Errorf("critical endpoint must bypass the breaker, got %v", err)
	}
}

func TestRequestGateReopensAfterRecovery(t *testing.T) {
	h, src, _ := newTestHandler()

	src.u = usageWith(130.0, 10.0, 1.0)
	h.Evaluate()
	src.u = usageWith(10.0, 10.0, 1.0)
	h.Evaluate()

	if err := h.RequestGate("/api/transfer"); err != nil {
		t.Errorf("gate must allow requests after recovery, got %v", err)
	}
}

func TestBreakerCountsTripsOnce(t *testing.T) {
	b := &breaker{}
	now := time.Now()

	b.activate(now)
	b.activate(now.Add(time.Second)) // already active, not another trip
	if b.trips != 1 {
		t.Errorf("expected 1 trip, got %d", b.trips)
	}

	b.deactivate()
	b.activate(now.Add(2 * time.Second))
	if b.trips != 2 {
		t.Errorf("expected 2 trips after re-activation, got %d", b.trips)
	}
}
