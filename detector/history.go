package detector

import "math"

// UsageHistory is a fixed-capacity rolling buffer of usage snapshots. The
// oldest entry is evicted to admit each new one once capacity is reached.
// Not safe for concurrent use; the owning Detector serializes access.
type UsageHistory struct {
	entries  []ResourceUsage
	capacity int
}

// NewUsageHistory creates a history bounded at the given capacity.
func NewUsageHistory(capacity int) *UsageHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &UsageHistory{
		entries:  make([]ResourceUsage, 0, capacity),
		capacity: capacity,
	}
}

// Add appends a snapshot, evicting the oldest entry when at capacity.
func (h *UsageHistory) Add(u ResourceUsage) {
	h.entries = append(h.entries, u)
	if len(h.entries) > h.capacity {
		h.entries = h.entries[1:]
	}
}

// Len returns the number of retained snapshots.
func (h *UsageHistory) Len() int {
	return len(h.entries)
}

// Capacity returns the configured maximum length.
func (h *UsageHistory) Capacity() int {
	return h.capacity
}

// Last returns a copy of the most recent n entries, newest last. It never
// returns more than exists.
func (h *UsageHistory) Last(n int) []ResourceUsage {
	if n <= 0 {
		return nil
	}
	if n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]ResourceUsage, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// All returns a copy of every retained entry, oldest first.
func (h *UsageHistory) All() []ResourceUsage {
	return h.Last(len(h.entries))
}

// Trend computes the direction and slope of a metric over the retained
// window using simple linear regression, the same analysis the status
// surface exposes per metric.
func (h *UsageHistory) Trend(extract func(ResourceUsage) float64) (direction string, slope float64) {
	if len(h.entries) < 2 {
		return "stable", 0.0
	}

	n := float64(len(h.entries))
	sumX, sumY, sumXY, sumX2 := 0.0, 0.0, 0.0, 0.0
	for i, entry := range h.entries {
		x := float64(i)
		y := extract(entry)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	slope = (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)

	if math.Abs(slope) < 0.001 {
		direction = "stable"
	} else if slope > 0 {
		direction = "increasing"
	} else {
		direction = "decreasing"
	}
	return direction, slope
}

// Average computes the mean of a metric over the most recent n entries.
func (h *UsageHistory) Average(n int, extract func(ResourceUsage) float64) float64 {
	window := h.Last(n)
	if len(window) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, entry := range window {
		sum += extract(entry)
	}
	return sum / float64(len(window))
}
