// Package iteration implements IterationTracking (spec §3): a per-session
// monotonic iteration counter with a bounded history of what happened on
// each cycle.
package iteration

import (
	"sync"
	"time"
)

// Record is one entry in a tracker's bounded history (spec §3: last 50
// records of {iteration, trigger, conclusion, action, timestamp}).
type Record struct {
	Iteration  uint64
	Trigger    string
	Conclusion string
	Action     string
	Timestamp  time.Time
}

const maxHistory = 50

// Tracker is the per-session IterationTracking entity.
type Tracker struct {
	mu sync.Mutex

	iterations      uint64
	maxIterations   uint64
	startedAt       time.Time
	lastIterationAt time.Time
	history         []Record
}

// NewTracker starts a tracker with the given maxIterations cap (spec §3:
// default 10, hard cap 100 enforced by callers).
func NewTracker(maxIterations uint64) *Tracker {
	now := time.Now()
	return &Tracker{
		maxIterations: maxIterations,
		startedAt:     now,
	}
}

// Iterations returns the current monotonic counter.
func (t *Tracker) Iterations() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iterations
}

// MaxIterations returns the configured cap.
func (t *Tracker) MaxIterations() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxIterations
}

// SetMaxIterations updates the cap (e.g. from session configuration).
func (t *Tracker) SetMaxIterations(max uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.maxIterations = max
}

// AtCap reports whether the counter has reached maxIterations (spec §3
// "reaching it forces a notify_owner action").
func (t *Tracker) AtCap() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.iterations >= t.maxIterations
}

// Bump increments the counter (capped at maxIterations, spec §3 invariant
// "iteration counter never exceeds maxIterations") and appends a bounded
// history record.
func (t *Tracker) Bump(trigger, conclusion, action string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.iterations < t.maxIterations {
		t.iterations++
	}
	t.lastIterationAt = time.Now()

	rec := Record{
		Iteration:  t.iterations,
		Trigger:    trigger,
		Conclusion: conclusion,
		Action:     action,
		Timestamp:  t.lastIterationAt,
	}
	t.history = append(t.history, rec)
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}
	return rec
}

// Record appends a history entry without bumping the counter, used for
// no_action / analysis-only events (spec §4.6 step 6 "append ... to history").
func (t *Tracker) Record(trigger, conclusion, action string) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := Record{
		Iteration:  t.iterations,
		Trigger:    trigger,
		Conclusion: conclusion,
		Action:     action,
		Timestamp:  time.Now(),
	}
	t.history = append(t.history, rec)
	if len(t.history) > maxHistory {
		t.history = t.history[len(t.history)-maxHistory:]
	}
	return rec
}

// Reset zeroes the iteration counter, used when a new task is assigned
// (spec §4.6 assign_next_task "reset iteration counter").
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iterations = 0
	t.startedAt = time.Now()
}

// History returns a copy of the bounded history (most recent last).
func (t *Tracker) History() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.history))
	copy(out, t.history)
	return out
}

// StartedAt returns when the tracker was created (or last Reset).
func (t *Tracker) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// LastIterationAt returns the timestamp of the most recent Bump, zero if none.
func (t *Tracker) LastIterationAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastIterationAt
}

// Registry is a concurrency-safe map of session name to Tracker, the
// "fetch or create" collaborator the Continuation Engine needs (spec §4.6
// step 2).
type Registry struct {
	mu       sync.Mutex
	trackers map[string]*Tracker
	default_ uint64
}

// NewRegistry creates a Registry whose newly created trackers default to
// defaultMaxIterations.
func NewRegistry(defaultMaxIterations uint64) *Registry {
	return &Registry{
		trackers: make(map[string]*Tracker),
		default_: defaultMaxIterations,
	}
}

// GetOrCreate returns the Tracker for sessionName, creating one with the
// registry default cap if absent.
func (r *Registry) GetOrCreate(sessionName string) *Tracker {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trackers[sessionName]
	if !ok {
		t = NewTracker(r.default_)
		r.trackers[sessionName] = t
	}
	return t
}

// Delete removes the tracker for sessionName (e.g. on session teardown).
func (r *Registry) Delete(sessionName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trackers, sessionName)
}
