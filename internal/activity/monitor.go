// Package activity implements the Activity Monitor (spec §4.8): a periodic
// sweep that captures a short tail of each session's output, diffs it
// against the previous sweep to infer working/idle status, and broadcasts
// team_member_status transitions plus activity_idle continuation events.
// Grounded on the teacher's terminal/session_manager.go broadcast loop,
// generalized from "relay every byte to websocket subscribers" to "diff
// snapshots on a fixed cadence and report only transitions".
package activity

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is a session's inferred working state.
type Status string

const (
	StatusWorking Status = "working"
	StatusIdle    Status = "idle"
)

// Backend is the subset of sessionbackend.Backend the monitor needs.
type Backend interface {
	List() []string
	CaptureOutput(name string, lines int) string
}

// Config tunes sweep cadence, per-probe timeout, and cache bounds (spec §3:
// 30s sweep, 500-800ms per-probe timeout, 2s sweep budget, idle after 3
// unchanged sweeps, cleanup every 5 minutes capping the snapshot cache at
// 10 entries).
type Config struct {
	SweepInterval  time.Duration
	ProbeTimeout   time.Duration
	SweepBudget    time.Duration
	IdleThreshold  int
	SnapshotCap    int
	CleanupEvery   time.Duration
	CaptureLines   int
	CaptureMaxSize int
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:  30 * time.Second,
		ProbeTimeout:   700 * time.Millisecond,
		SweepBudget:    2 * time.Second,
		IdleThreshold:  3,
		SnapshotCap:    10,
		CleanupEvery:   5 * time.Minute,
		CaptureLines:   10,
		CaptureMaxSize: 1024,
	}
}

type snapshot struct {
	lastOutput    string
	status        Status
	idleStreak    int
	lastChangedAt time.Time
}

// Monitor runs the sweep loop (spec §4.8).
type Monitor struct {
	backend Backend
	cfg     Config

	onStatusChange func(sessionName string, status Status)
	onIdle         func(sessionName string)

	mu        sync.Mutex
	snapshots map[string]*snapshot

	stopCh    chan struct{}
	stopOnce  sync.Once
	startOnce sync.Once
}

// New builds a Monitor. onStatusChange fires on every working<->idle
// transition (spec's "team_member_status" broadcast); onIdle fires each time
// a session crosses into idle (feeds eventbus.EmitActivityIdle).
func New(backend Backend, cfg Config, onStatusChange func(string, Status), onIdle func(string)) *Monitor {
	return &Monitor{
		backend:        backend,
		cfg:            cfg,
		onStatusChange: onStatusChange,
		onIdle:         onIdle,
		snapshots:      make(map[string]*snapshot),
		stopCh:         make(chan struct{}),
	}
}

// Start launches the sweep and cleanup loops. Idempotent.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		go m.sweepLoop()
		go m.cleanupLoop()
	})
}

// Stop halts the monitor. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// sweep captures a bounded tail of every session's output within the sweep
// budget, diffs against the prior snapshot, and reports transitions.
func (m *Monitor) sweep() {
	deadline := time.Now().Add(m.cfg.SweepBudget)
	for _, name := range m.backend.List() {
		if time.Now().After(deadline) {
			logrus.Warn("activity: sweep budget exceeded, deferring remaining sessions to next tick")
			return
		}
		m.probeSession(name)
	}
}

func (m *Monitor) probeSession(name string) {
	type captureResult struct{ output string }
	resultCh := make(chan captureResult, 1)

	go func() {
		out := m.backend.CaptureOutput(name, m.cfg.CaptureLines)
		if len(out) > m.cfg.CaptureMaxSize {
			out = out[len(out)-m.cfg.CaptureMaxSize:]
		}
		resultCh <- captureResult{output: out}
	}()

	var output string
	select {
	case r := <-resultCh:
		output = r.output
	case <-time.After(m.cfg.ProbeTimeout):
		logrus.WithField("session", name).Warn("activity: capture probe timed out")
		return
	}

	m.recordSnapshot(name, output)
}

func (m *Monitor) recordSnapshot(name, output string) {
	m.mu.Lock()
	snap, ok := m.snapshots[name]
	if !ok {
		snap = &snapshot{status: StatusWorking, lastChangedAt: time.Now()}
		m.snapshots[name] = snap
	}

	changed := output != snap.lastOutput
	snap.lastOutput = output
	snap.lastChangedAt = time.Now()

	if changed {
		snap.idleStreak = 0
	} else {
		snap.idleStreak++
	}

	prevStatus := snap.status
	nextStatus := StatusWorking
	if snap.idleStreak >= m.cfg.IdleThreshold {
		nextStatus = StatusIdle
	}
	snap.status = nextStatus
	m.mu.Unlock()

	if nextStatus != prevStatus {
		if m.onStatusChange != nil {
			m.onStatusChange(name, nextStatus)
		}
		if nextStatus == StatusIdle && m.onIdle != nil {
			m.onIdle(name)
		}
	}
}

// cleanup drops snapshots for sessions no longer reported by the backend,
// then evicts the oldest entries until the cache is within SnapshotCap
// (spec §4.8 "cleanup every 5 minutes, cap cache at 10 entries").
func (m *Monitor) cleanup() {
	live := make(map[string]bool)
	for _, name := range m.backend.List() {
		live[name] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range m.snapshots {
		if !live[name] {
			delete(m.snapshots, name)
		}
	}

	for len(m.snapshots) > m.cfg.SnapshotCap {
		var oldestName string
		var oldestAt time.Time
		for name, snap := range m.snapshots {
			if oldestName == "" || snap.lastChangedAt.Before(oldestAt) {
				oldestName = name
				oldestAt = snap.lastChangedAt
			}
		}
		if oldestName == "" {
			break
		}
		delete(m.snapshots, oldestName)
	}
}

// StatusOf returns the last known status for name and whether it is tracked.
func (m *Monitor) StatusOf(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[name]
	if !ok {
		return "", false
	}
	return snap.status, true
}
