package optimizer

import "time"

// GrowthRecord is one point in the leak-detection window, kept separately
// from the raw usage history.
type GrowthRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	ProcessBytes  uint64    `json:"process_bytes"`
	GrowthPercent float64   `json:"growth_percent"`
}

// GrowthReport summarizes memory growth relative to the startup baseline.
// Abnormal requires both a per-hour rate above the leak threshold and three
// consecutive strictly increasing records, so a single spike does not flag.
type GrowthReport struct {
	BaselineBytes    uint64  `json:"baseline_bytes"`
	CurrentBytes     uint64  `json:"current_bytes"`
	GrowthPercent    float64 `json:"growth_percent"`
	RatePerHour      float64 `json:"rate_per_hour"`
	ConsistentGrowth bool    `json:"consistent_growth"`
	Abnormal         bool    `json:"abnormal"`
	Records          int     `json:"records"`
}

// appendGrowth records the current process size in the bounded growth window.
func (o *Optimizer) appendGrowth(bytes uint64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	growthPercent := 0.0
	if o.baselineBytes > 0 {
		growthPercent = (float64(bytes) - float64(o.baselineBytes)) / float64(o.baselineBytes) * 100.0
	}

	o.growth = append(o.growth, GrowthRecord{
		Timestamp:     at,
		ProcessBytes:  bytes,
		GrowthPercent: growthPercent,
	})
	if len(o.growth) > growthWindowSize {
		o.growth = o.growth[1:]
	}
}

// CheckGrowthTrend records the current process size and evaluates the leak
// heuristic against the startup baseline.
func (o *Optimizer) CheckGrowthTrend() GrowthReport {
	current := o.processBytes()
	o.appendGrowth(current, time.Now())

	o.mu.Lock()
	defer o.mu.Unlock()

	report := GrowthReport{
		BaselineBytes: o.baselineBytes,
		CurrentBytes:  current,
		Records:       len(o.growth),
	}

	if o.baselineBytes > 0 {
		report.GrowthPercent = (float64(current) - float64(o.baselineBytes)) / float64(o.baselineBytes) * 100.0
	}

	hours := time.Since(o.baselineAt).Hours()
	if hours > 0 {
		report.RatePerHour = report.GrowthPercent / hours
	}

	report.ConsistentGrowth = consistentGrowth(o.growth)
	report.Abnormal = report.RatePerHour > o.thresholds.LeakPercentPerHour && report.ConsistentGrowth

	if report.Abnormal {
		log.Warnw("abnormal memory growth detected",
			"rate_per_hour", report.RatePerHour,
			"growth_percent", report.GrowthPercent,
			"baseline_mb", report.BaselineBytes/(1024*1024))
	}
	return report
}

// consistentGrowth reports whether the three most recent records show
// strictly increasing process memory.
func consistentGrowth(records []GrowthRecord) bool {
	if len(records) < 3 {
		return false
	}
	last := records[len(records)-3:]
	return last[0].ProcessBytes < last[1].ProcessBytes && last[1].ProcessBytes < last[2].ProcessBytes
}

// GrowthRecords returns a copy of the leak-detection window, oldest first.
func (o *Optimizer) GrowthRecords() []GrowthRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]GrowthRecord, len(o.growth))
	copy(out, o.growth)
	return out
}
