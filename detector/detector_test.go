package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"resguard/config"
)

// newTestDetector returns a detector whose OS reads are replaced by a scripted
// sequence of raw counters.
func newTestDetector(cfg *config.Config, raws []*rawCounters) *Detector {
	d := New(cfg)
	i := 0
	d.read = func() (*rawCounters, error) {
		if i >= len(raws) {
			return nil, errors.New("no more scripted samples")
		}
		raw := raws[i]
		i++
		return raw, nil
	}
	return d
}

func TestFirstSampleHasZeroRates(t *testing.T) {
	now := time.Now()
	d := newTestDetector(nil, []*rawCounters{
		{at: now, diskReadBytes: 1 << 20, diskWriteBytes: 1 << 20, netSentBytes: 1 << 20, netRecvBytes: 1 << 20},
	})

	usage := d.Sample()

	if usage.DiskReadBytesPerSec != 0 || usage.DiskWriteBytesPerSec != 0 {
		t.Errorf("expected zero disk rates on first sample, got %f/%f",
			usage.DiskReadBytesPerSec, usage.DiskWriteBytesPerSec)
	}
	if usage.NetSentBytesPerSec != 0 || usage.NetRecvBytesPerSec != 0 {
		t.Errorf("expected zero network rates on first sample, got %f/%f",
			usage.NetSentBytesPerSec, usage.NetRecvBytesPerSec)
	}
}

func TestRatesComputedByDifferencing(t *testing.T) {
	now := time.Now()
	d := newTestDetector(nil, []*rawCounters{
		{at: now, diskReadBytes: 1000, netRecvBytes: 4000},
		{at: now.Add(2 * time.Second), diskReadBytes: 3000, netRecvBytes: 8000},
	})

	d.Sample()
	usage := d.Sample()

	if usage.DiskReadBytesPerSec != 1000.0 {
		t.Errorf("expected disk read rate 1000 B/s, got %f", usage.DiskReadBytesPerSec)
	}
	if usage.NetRecvBytesPerSec != 2000.0 {
		t.Errorf("expected net recv rate 2000 B/s, got %f", usage.NetRecvBytesPerSec)
	}
}

func TestNonPositiveElapsedYieldsZeroRates(t *testing.T) {
	now := time.Now()
	d := newTestDetector(nil, []*rawCounters{
		{at: now, diskReadBytes: 1000},
		{at: now, diskReadBytes: 5000}, // same timestamp
	})

	d.Sample()
	usage := d.Sample()

	if usage.DiskReadBytesPerSec != 0 {
		t.Errorf("expected zero rate when elapsed <= 0, got %f", usage.DiskReadBytesPerSec)
	}
}

func TestCounterResetYieldsZeroRate(t *testing.T) {
	now := time.Now()
	d := newTestDetector(nil, []*rawCounters{
		{at: now, netSentBytes: 9000},
		{at: now.Add(time.Second), netSentBytes: 100},
	})

	d.Sample()
	usage := d.Sample()

	if usage.NetSentBytesPerSec != 0 {
		t.Errorf("expected zero rate after counter reset, got %f", usage.NetSentBytesPerSec)
	}
}

func TestSampleFailureReturnsLastKnown(t *testing.T) {
	now := time.Now()
	d := newTestDetector(nil, []*rawCounters{
		{at: now, cpuPercent: 42.0},
	})

	first := d.Sample()
	if first.CPUPercent != 42.0 {
		t.Fatalf("expected first sample cpu 42, got %f", first.CPUPercent)
	}

	// Scripted reader is exhausted; the next read fails.
	second := d.Sample()
	if second.CPUPercent != 42.0 {
		t.Errorf("expected stale snapshot on read failure, got cpu %f", second.CPUPercent)
	}
	if d.HistoryLen() != 1 {
		t.Errorf("failed sample must not be appended to history, len=%d", d.HistoryLen())
	}
}

func TestHistoryStaysBoundedUnderSampling(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitoring.HistorySize = 4

	raws := make([]*rawCounters, 20)
	now := time.Now()
	for i := range raws {
		raws[i] = &rawCounters{at: now.Add(time.Duration(i) * time.Second), cpuPercent: float64(i)}
	}

	d := newTestDetector(cfg, raws)
	for i := 0; i < 20; i++ {
		d.Sample()
		if d.HistoryLen() > 4 {
			t.Fatalf("history exceeded capacity: %d", d.HistoryLen())
		}
	}

	window := d.History(time.Hour)
	if len(window) != 4 {
		t.Fatalf("expected 4 retained entries, got %d", len(window))
	}
	if window[0].CPUPercent != 16.0 {
		t.Errorf("expected oldest retained sample 16, got %f", window[0].CPUPercent)
	}
}

func TestHistoryDurationSuffix(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Monitoring.IntervalSeconds = 10

	raws := make([]*rawCounters, 12)
	now := time.Now()
	for i := range raws {
		raws[i] = &rawCounters{at: now.Add(time.Duration(i*10) * time.Second), cpuPercent: float64(i)}
	}

	d := newTestDetector(cfg, raws)
	for range raws {
		d.Sample()
	}

	// One minute at a 10s interval is six samples.
	window := d.History(time.Minute)
	if len(window) != 6 {
		t.Fatalf("expected 6 samples for one minute window, got %d", len(window))
	}
	if window[5].CPUPercent != 11.0 {
		t.Errorf("expected newest sample last, got %f", window[5].CPUPercent)
	}
}

func TestPressureChecks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Thresholds.WarningPercent = 75.0
	cfg.Stress.CPUThresholdPercent = 80.0

	now := time.Now()
	d := newTestDetector(cfg, []*rawCounters{
		{at: now, cpuPercent: 85.0, memPercent: 60.0},
	})
	d.Sample()

	cpuHigh, cpuVal := d.CPUPressure()
	if !cpuHigh || cpuVal != 85.0 {
		t.Errorf("expected cpu pressure at 85%%, got %v/%f", cpuHigh, cpuVal)
	}

	memHigh, memVal := d.MemoryPressure()
	if memHigh || memVal != 60.0 {
		t.Errorf("expected no memory pressure at 60%%, got %v/%f", memHigh, memVal)
	}
}

func TestRefreshSystemInfoKeepsPreviousOnFailure(t *testing.T) {
	d := New(nil)
	d.readFacts = func() (SystemInfo, error) {
		return SystemInfo{}, errors.New("facts unavailable")
	}

	before := d.SystemInfo()
	after := d.RefreshSystemInfo()

	if after.RefreshedAt != before.RefreshedAt {
		t.Error("expected previous facts to be kept on refresh failure")
	}
}

func TestDoubleStartIsNoOp(t *testing.T) {
	d := newTestDetector(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d.Start(ctx)
	d.Start(ctx) // must not panic or spawn a second loop
	d.Stop()
	d.Stop() // idempotent
}
