// Package budget implements the optional Budget Tracker collaborator named
// in spec §2: per-session token usage accounting that the Continuation
// Engine can consult before dispatching another action. Grounded on the
// teacher's process/state.go counters (bytes-written/bytes-read bookkeeping),
// generalized from raw byte counts to token counts with a per-session cap.
package budget

import "sync"

// Usage is one session's running token consumption.
type Usage struct {
	PromptTokens     uint64
	CompletionTokens uint64
	Cap              uint64
}

// Total returns prompt + completion tokens spent so far.
func (u Usage) Total() uint64 { return u.PromptTokens + u.CompletionTokens }

// OverCap reports whether Total has reached or exceeded Cap. A zero Cap
// means unbounded.
func (u Usage) OverCap() bool {
	return u.Cap > 0 && u.Total() >= u.Cap
}

// Tracker records per-session token usage and answers whether a session
// may still dispatch continuation actions.
type Tracker struct {
	mu    sync.Mutex
	usage map[string]*Usage
}

func NewTracker() *Tracker {
	return &Tracker{usage: make(map[string]*Usage)}
}

// SetCap establishes (or updates) the token cap for sessionName.
func (t *Tracker) SetCap(sessionName string, cap uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.getOrCreate(sessionName)
	u.Cap = cap
}

// Record adds promptTokens/completionTokens to sessionName's running total.
func (t *Tracker) Record(sessionName string, promptTokens, completionTokens uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.getOrCreate(sessionName)
	u.PromptTokens += promptTokens
	u.CompletionTokens += completionTokens
}

// Get returns a copy of sessionName's usage.
func (t *Tracker) Get(sessionName string) Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.getOrCreate(sessionName)
}

// AllowsDispatch reports whether sessionName is still under its cap. A
// session with no recorded usage and no cap is always allowed.
func (t *Tracker) AllowsDispatch(sessionName string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.getOrCreate(sessionName).OverCap()
}

// Reset clears sessionName's counters (cap is preserved).
func (t *Tracker) Reset(sessionName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.getOrCreate(sessionName)
	u.PromptTokens = 0
	u.CompletionTokens = 0
}

// Delete removes all tracking for sessionName, e.g. on session teardown.
func (t *Tracker) Delete(sessionName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.usage, sessionName)
}

func (t *Tracker) getOrCreate(sessionName string) *Usage {
	u, ok := t.usage[sessionName]
	if !ok {
		u = &Usage{}
		t.usage[sessionName] = u
	}
	return u
}
