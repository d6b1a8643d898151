// Package progress tracks named steps through a pipeline run.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/lei/pipehost/internal/models"
)

// StepStatus represents the state of a single step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step has reached an end state
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}

// Step is a single named unit of work within a run
type Step struct {
	Name        string
	Status      StepStatus
	Message     string
	StartedAt   *time.Time
	CompletedAt *time.Time

	tracker *Tracker
}

// Duration returns the elapsed time for the step. For a running step the
// duration grows with the clock; for a completed step it is fixed. The
// second return is false when the step has not started.
func (s *Step) Duration() (time.Duration, bool) {
	if s.StartedAt == nil {
		return 0, false
	}
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(*s.StartedAt), true
	}
	now := time.Now
	if s.tracker != nil {
		now = s.tracker.now
	}
	return now().Sub(*s.StartedAt), true
}

// DurationHuman returns the duration formatted for display ("1.2s", "3.4m", "5.6h")
func (s *Step) DurationHuman() string {
	d, ok := s.Duration()
	if !ok {
		return ""
	}
	sec := d.Seconds()
	switch {
	case sec < 60:
		return fmt.Sprintf("%.1fs", sec)
	case sec < 3600:
		return fmt.Sprintf("%.1fm", sec/60)
	default:
		return fmt.Sprintf("%.1fh", sec/3600)
	}
}

// SetMessage updates the step message. Safe to call from the pipeline body
// while the step is running.
func (s *Step) SetMessage(msg string) {
	if s.tracker == nil {
		s.Message = msg
		return
	}
	s.tracker.mu.Lock()
	s.Message = msg
	s.tracker.mu.Unlock()
	s.tracker.notify()
}

// Tracker is an ordered set of steps with at most one current step.
// All methods are safe for concurrent use; writes come from the single
// run worker while snapshots may be taken from any goroutine.
type Tracker struct {
	mu       sync.Mutex
	steps    []*Step
	current  *Step
	onUpdate func(*Tracker)
	now      func() time.Time
}

// New creates a tracker, optionally pre-declaring steps in display order
func New(names ...string) *Tracker {
	t := &Tracker{now: time.Now}
	for _, name := range names {
		t.steps = append(t.steps, &Step{Name: name, Status: StepPending, tracker: t})
	}
	return t
}

// SetOnUpdate registers the hook fired after every state change. The hook
// runs outside the tracker lock, so it may call Snapshot.
func (t *Tracker) SetOnUpdate(fn func(*Tracker)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// Declare adds a step if it does not already exist and returns it.
// Re-declaring an existing name returns the existing step unchanged.
func (t *Tracker) Declare(name string) *Step {
	t.mu.Lock()
	if s := t.find(name); s != nil {
		t.mu.Unlock()
		return s
	}
	s := &Step{Name: name, Status: StepPending, tracker: t}
	t.steps = append(t.steps, s)
	t.mu.Unlock()
	t.notify()
	return s
}

// Begin marks the named step as running and makes it the current step,
// declaring it first if needed. A Begin while another step is running
// reassigns current without touching the earlier step.
func (t *Tracker) Begin(name string) *Step {
	t.mu.Lock()
	s := t.find(name)
	if s == nil {
		s = &Step{Name: name, tracker: t}
		t.steps = append(t.steps, s)
	}
	now := t.now()
	s.Status = StepRunning
	s.StartedAt = &now
	s.CompletedAt = nil
	t.current = s
	t.mu.Unlock()
	t.notify()
	return s
}

// Succeed marks the named step completed with an optional message
func (t *Tracker) Succeed(name, message string) *Step {
	return t.finish(name, StepCompleted, message, true, true)
}

// Fail marks the named step failed with an error message
func (t *Tracker) Fail(name, message string) *Step {
	return t.finish(name, StepFailed, message, true, true)
}

// Skip marks the named step skipped. Skipped steps carry no timestamps.
func (t *Tracker) Skip(name, message string) *Step {
	return t.finish(name, StepSkipped, message, false, true)
}

func (t *Tracker) finish(name string, status StepStatus, message string, stamp, setMessage bool) *Step {
	t.mu.Lock()
	s := t.find(name)
	if s == nil {
		t.mu.Unlock()
		return nil
	}
	s.Status = status
	if setMessage {
		s.Message = message
	}
	if stamp {
		now := t.now()
		s.CompletedAt = &now
	}
	if t.current == s {
		t.current = nil
	}
	t.mu.Unlock()
	t.notify()
	return s
}

// Run executes fn inside the named step, declaring it if absent. The step
// fails with the error text if fn returns an error or panics, and completes
// otherwise; the error or panic always propagates after the step is
// finalized. A message set on the step by fn survives a successful exit.
func (t *Tracker) Run(name string, fn func(*Step) error) (err error) {
	s := t.Begin(name)
	defer func() {
		if r := recover(); r != nil {
			t.finish(name, StepFailed, fmt.Sprint(r), true, true)
			panic(r)
		}
		if err != nil {
			t.finish(name, StepFailed, err.Error(), true, true)
		} else {
			// keep whatever message the body set
			t.finish(name, StepCompleted, "", true, false)
		}
	}()
	return fn(s)
}

// Current returns the running step, or nil
func (t *Tracker) Current() *Step {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// CompletedCount returns the number of completed steps
func (t *Tracker) CompletedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// TotalCount returns the total number of declared steps
func (t *Tracker) TotalCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.steps)
}

// Percent returns completion as 0-100, or 0 with no steps
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.steps) == 0 {
		return 0
	}
	n := 0
	for _, s := range t.steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return float64(n) / float64(len(t.steps)) * 100
}

// IsComplete reports whether every step reached a terminal state
func (t *Tracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.steps {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

// HasFailures reports whether any step failed
func (t *Tracker) HasFailures() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Reset returns every step to pending. Called between runs only; the run
// lifecycle guarantees no worker is mutating the tracker at that point.
func (t *Tracker) Reset() {
	t.mu.Lock()
	for _, s := range t.steps {
		s.Status = StepPending
		s.Message = ""
		s.StartedAt = nil
		s.CompletedAt = nil
	}
	t.current = nil
	t.mu.Unlock()
	t.notify()
}

// Snapshot returns the wire representation of the tracker
func (t *Tracker) Snapshot() models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := models.ProgressSnapshot{
		Steps: make([]models.StepSnapshot, 0, len(t.steps)),
		Total: len(t.steps),
	}
	for _, s := range t.steps {
		snap.Steps = append(snap.Steps, models.StepSnapshot{
			Name:     s.Name,
			Status:   string(s.Status),
			Message:  s.Message,
			Duration: s.DurationHuman(),
		})
		if s.Status == StepCompleted {
			snap.Completed++
		}
	}
	if t.current != nil {
		snap.Current = t.current.Name
	}
	if snap.Total > 0 {
		snap.Percent = float64(snap.Completed) / float64(snap.Total) * 100
	}
	return snap
}

func (t *Tracker) find(name string) *Step {
	for _, s := range t.steps {
		if s.Name == name {
			return s
		}
	}
	return nil
}

func (t *Tracker) notify() {
	t.mu.Lock()
	fn := t.onUpdate
	t.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}
