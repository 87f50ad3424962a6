package stress

import "fmt"

// BackgroundTask describes a host-registered task the handler can suspend
// under pressure. A task is pausable only when both operations are supplied.
type BackgroundTask struct {
	Name     string
	Critical bool
	Paused   bool

	pause  func() error
	resume func() error
}

// Pausable reports whether the task supplied both a pause and a resume
// operation.
func (t *BackgroundTask) Pausable() bool {
	return t.pause != nil && t.resume != nil
}

// RegisterTask adds a background task to the registry. Registering the same
// name twice replaces the earlier descriptor.
func (h *Handler) RegisterTask(name string, pause, resume func() error, critical bool) error {
	if name == "" {
		return fmt.Errorf("background task name cannot be empty")
	}

	task := &BackgroundTask{
		Name:     name,
		Critical: critical,
		pause:    pause,
		resume:   resume,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for i, existing := range h.tasks {
		if existing.Name == name {
			h.tasks[i] = task
			log.Warnw("background task re-registered", "name", name)
			return nil
		}
	}
	h.tasks = append(h.tasks, task)
	log.Debugw("background task registered",
		"name", name, "pausable", task.Pausable(), "critical", critical)
	return nil
}

// Tasks returns a snapshot of the registered task descriptors.
func (h *Handler) Tasks() []BackgroundTask {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]BackgroundTask, len(h.tasks))
	for i, t := range h.tasks {
		out[i] = *t
	}
	return out
}

// pauseTasks suspends every pausable, non-critical, not-yet-paused task.
// A single task's failure is logged and does not abort the sweep. Caller
// holds h.mu.
func (h *Handler) pauseTasks() int {
	paused := 0
	for _, t := range h.tasks {
		if !t.Pausable() || t.Paused || t.Critical {
			continue
		}
		if err := t.pause(); err != nil {
			log.Warnw("background task pause failed", "name", t.Name, "error", err)
			continue
		}
		t.Paused = true
		paused++
	}
	if paused > 0 {
		log.Infow("background tasks paused", "count", paused)
	}
	return paused
}

// resumeTasks resumes every paused task. A failed resume is logged but the
// task is still marked unpaused so a recovered episode leaves no task
// stranded in the paused state. Caller holds h.mu.
func (h *Handler) resumeTasks() int {
	resumed := 0
	for _, t := range h.tasks {
		if !t.Paused {
			continue
		}
		if err := t.resume(); err != nil {
			log.Warnw("background task resume failed", "name", t.Name, "error", err)
		}
		t.Paused = false
		resumed++
	}
	if resumed > 0 {
		log.Infow("background tasks resumed", "count", resumed)
	}
	return resumed
}
