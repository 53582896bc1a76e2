package activity

import (
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu      sync.Mutex
	names   []string
	outputs map[string]string
}

func (f *fakeBackend) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func (f *fakeBackend) CaptureOutput(name string, lines int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[name]
}

func (f *fakeBackend) setOutput(name, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[name] = output
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SweepInterval = time.Hour // drive sweeps manually
	cfg.IdleThreshold = 2
	cfg.ProbeTimeout = 500 * time.Millisecond
	cfg.SweepBudget = time.Second
	return cfg
}

func TestSweepDetectsIdleAfterUnchangedOutput(t *testing.T) {
	b := &fakeBackend{names: []string{"dev-1"}, outputs: map[string]string{"dev-1": "line1"}}

	var transitions []Status
	var idleFired int
	var mu sync.Mutex
	m := New(b, testConfig(), func(name string, s Status) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, s)
	}, func(name string) {
		mu.Lock()
		defer mu.Unlock()
		idleFired++
	})

	m.sweep() // first sweep establishes baseline, stays "working"
	m.sweep() // unchanged, idleStreak=1
	m.sweep() // unchanged, idleStreak=2 >= threshold -> idle

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != StatusIdle {
		t.Fatalf("expected one transition to idle, got %v", transitions)
	}
	if idleFired != 1 {
		t.Fatalf("expected onIdle fired once, got %d", idleFired)
	}
}

func TestSweepResetsIdleStreakOnOutputChange(t *testing.T) {
	b := &fakeBackend{names: []string{"dev-2"}, outputs: map[string]string{"dev-2": "a"}}
	m := New(b, testConfig(), func(string, Status) {}, func(string) {})

	m.sweep()
	m.sweep()
	b.setOutput("dev-2", "b")
	m.sweep()

	status, ok := m.StatusOf("dev-2")
	if !ok || status != StatusWorking {
		t.Fatalf("expected working after output change, got %v (ok=%v)", status, ok)
	}
}

func TestCleanupDropsSessionsNoLongerListed(t *testing.T) {
	b := &fakeBackend{names: []string{"dev-3"}, outputs: map[string]string{"dev-3": "x"}}
	m := New(b, testConfig(), func(string, Status) {}, func(string) {})
	m.sweep()

	if _, ok := m.StatusOf("dev-3"); !ok {
		t.Fatal("expected dev-3 tracked after sweep")
	}

	b.mu.Lock()
	b.names = nil
	b.mu.Unlock()

	m.cleanup()
	if _, ok := m.StatusOf("dev-3"); ok {
		t.Fatal("expected dev-3 dropped after cleanup once no longer listed")
	}
}

func TestCleanupCapsSnapshotCache(t *testing.T) {
	b := &fakeBackend{outputs: make(map[string]string)}
	for i := 0; i < 15; i++ {
		name := "dev-" + string(rune('a'+i))
		b.names = append(b.names, name)
		b.outputs[name] = "x"
	}

	cfg := testConfig()
	cfg.SnapshotCap = 10
	m := New(b, cfg, func(string, Status) {}, func(string) {})
	m.sweep()
	m.cleanup()

	m.mu.Lock()
	count := len(m.snapshots)
	m.mu.Unlock()
	if count > 10 {
		t.Fatalf("expected snapshot cache capped at 10, got %d", count)
	}
}
