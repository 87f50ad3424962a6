package stress

import (
	"errors"
	"testing"
)

func TestTaskWithoutResumeIsNotPausable(t *testing.T) {
	h, _, _ := newTestHandler()

	err := h.RegisterTask("indexer", func() error { return nil }, nil, false)
	if err != nil {
		t.Fatal(err)
	}

	tasks := h.Tasks()
	if len(tasks) != 1 || tasks[0].Pausable() {
		t.Fatal("task missing a resume operation must not be pausable")
	}

	// The pause sweep skips it without erroring.
	h.mu.Lock()
	paused := h.pauseTasks()
	h.mu.Unlock()
	if paused != 0 {
		t.Errorf("expected no tasks paused, got %d", paused)
	}
	if h.Tasks()[0].Paused {
		t.Error("non-pausable task must not be marked paused")
	}
}

func TestPauseSweepSkipsCriticalAndPausedTasks(t *testing.T) {
	h, _, _ := newTestHandler()

	pauses := map[string]int{}
	register := func(name string, critical bool) {
		h.RegisterTask(name,
			func() error { pauses[name]++; return nil },
			func() error { return nil },
			critical)
	}
	register("reports", false)
	register("billing", true)

	h.mu.Lock()
	h.pauseTasks()
	h.pauseTasks() // second sweep skips already-paused tasks
	h.mu.Unlock()

	if pauses["reports"] != 1 {
		t.Errorf("expected reports paused exactly once, got %d", pauses["reports"])
	}
	if pauses["billing"] != 0 {
		t.Error("critical task must not be paused")
	}
}

func TestPauseSweepContinuesPastFailure(t *testing.T) {
	h, _, _ := newTestHandler()

	secondPaused := false
	h.RegisterTask("flaky",
		func() error { return errors.New("cannot pause") },
		func() error { return nil },
		false)
	h.RegisterTask("steady",
		func() error { secondPaused = true; return nil },
		func() error { return nil },
		false)

	h.mu.Lock()
	paused := h.pauseTasks()
	h.mu.Unlock()

	if !secondPaused {
		t.Error("a single task failure must not abort the sweep")
	}
	if paused != 1 {
		t.Errorf("expected 1 paused task, got %d", paused)
	}
}

func TestResumeFailureStillClearsPausedFlag(t *testing.T) {
	h, _, _ := newTestHandler()

	h.RegisterTask("stubborn",
		func() error { return nil },
		func() error { return errors.New("cannot resume") },
		false)

	h.mu.Lock()
	h.pauseTasks()
	h.resumeTasks()
	h.mu.Unlock()

	if h.Tasks()[0].Paused {
		t.Error("no task may remain marked paused after a resume sweep")
	}
}

func TestReregisteringReplacesTask(t *testing.T) {
	h, _, _ := newTestHandler()

	h.RegisterTask("job", func() error { return nil }, func() error { return nil }, false)
	h.RegisterTask("job", nil, nil, true)

	tasks := h.Tasks()
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task after re-registration, got %d", len(tasks))
	}
	if !tasks[0].Critical || tasks[0].Pausable() {
		t.Error("re-registration must replace the descriptor")
	}

	if err := h.RegisterTask("", nil, nil, false); err == nil {
		t.Error("expected error for empty task name")
	}
}
