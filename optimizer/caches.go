package optimizer

import "fmt"

// Clearable is the capability contract for cache-like structures the host
// registers for pressure-triggered sweeping. Clear reports how many items
// and approximately how many bytes were released.
type Clearable interface {
	Name() string
	Clear() (items int, bytes int64)
}

// CacheSweepResult summarizes one best-effort sweep over the registry.
type CacheSweepResult struct {
	CachesCleared int   `json:"caches_cleared"`
	ItemsCleared  int   `json:"items_cleared"`
	BytesFreed    int64 `json:"bytes_freed"`
	Failures      int   `json:"failures"`
}

// ReferenceReport is the placeholder result of the reference-reduction hook.
// Deep object-graph introspection is not available in-process, so the hook
// reports unavailability as a structured result instead of failing.
type ReferenceReport struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// RegisterCache adds a cache to the sweep registry. The registry is owned by
// this Optimizer instance; there is no ambient global state.
func (o *Optimizer) RegisterCache(c Clearable) error {
	if c == nil {
		return fmt.Errorf("cannot register nil cache")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.caches = append(o.caches, c)
	log.Debugw("cache registered for sweeping", "name", c.Name())
	return nil
}

// ClearCaches sweeps every registered cache. The sweep is explicitly
// best-effort and non-exhaustive: it reaches only what was registered, one
// cache's failure does not stop the sweep, and byte counts are estimates.
func (o *Optimizer) ClearCaches() CacheSweepResult {
	o.mu.Lock()
	caches := make([]Clearable, len(o.caches))
	copy(caches, o.caches)
	o.mu.Unlock()

	var result CacheSweepResult
	for _, c := range caches {
		items, bytes, err := clearOne(c)
		if err != nil {
			result.Failures++
			log.Warnw("cache sweep failed for one cache", "name", c.Name(), "error", err)
			continue
		}
		result.CachesCleared++
		result.ItemsCleared += items
		result.BytesFreed += bytes
	}

	o.mu.Lock()
	o.cachesSwept += uint64(result.CachesCleared)
	o.mu.Unlock()
	return result
}

// clearOne isolates a single cache clear so a panicking implementation
// cannot abort the sweep over the remaining caches.
func clearOne(c Clearable) (items int, bytes int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("clear panicked: %v", r)
		}
	}()
	items, bytes = c.Clear()
	return items, bytes, nil
}

// ReduceReferences reports whether deep object-graph introspection tooling
// is available in this environment.
func (o *Optimizer) ReduceReferences() ReferenceReport {
	return ReferenceReport{
		Available: false,
		Reason:    "object-graph introspection not available in this runtime",
	}
}
