// Package eventbus implements the continuation-event subset of the control
// plane's event bus (spec §4.4): debounced/deduplicated, at-most-one
// delivery per window, single logical cooperative loop. All state mutation
// happens on one goroutine via a command channel — the generalization the
// spec's §9 "Event emitters" redesign note asks for in place of a dynamic
// emitter with ad hoc locking.
package eventbus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PTYSession is the subset of ptysession.Session the bus needs to watch for
// exit, kept as an interface so this package has no dependency on the
// concrete session type.
type PTYSession interface {
	Name() string
	Done() <-chan struct{}
}

// Config tunes the debounce/dedup/cleanup windows (spec §3 invariants:
// 5s debounce, 10s dedup, cleanup every 60s purging entries older than 2x
// the dedup window).
type Config struct {
	DebounceWindow time.Duration
	DedupWindow    time.Duration
	CleanupEvery   time.Duration
}

func DefaultConfig() Config {
	return Config{
		DebounceWindow: 5 * time.Second,
		DedupWindow:    10 * time.Second,
		CleanupEvery:   60 * time.Second,
	}
}

type pendingDebounce struct {
	latest Event
	timer  *time.Timer
}

// Bus is the continuation event emitter. Zero value is not usable; use New.
type Bus struct {
	cfg Config

	commands chan func()
	stopOnce sync.Once
	stopCh   chan struct{}

	handlersMu sync.RWMutex
	handlers   []func(Event)

	// Owned exclusively by the command-processing goroutine.
	pending       map[string]*pendingDebounce
	lastDelivered map[string]time.Time
	registered    map[string]chan struct{} // sessionName -> stop signal for its exit watcher
}

// New starts the bus's command loop and cleanup ticker.
func New(cfg Config) *Bus {
	b := &Bus{
		cfg:           cfg,
		commands:      make(chan func(), 256),
		stopCh:        make(chan struct{}),
		pending:       make(map[string]*pendingDebounce),
		lastDelivered: make(map[string]time.Time),
		registered:    make(map[string]chan struct{}),
	}
	go b.loop()
	go b.cleanupLoop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case cmd := <-b.commands:
			cmd()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) cleanupLoop() {
	ticker := time.NewTicker(b.cfg.CleanupEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.submit(b.cleanup)
		case <-b.stopCh:
			return
		}
	}
}

// cleanup purges dedup records older than 2x the dedup window (spec §4.4).
func (b *Bus) cleanup() {
	cutoff := time.Now().Add(-2 * b.cfg.DedupWindow)
	for key, at := range b.lastDelivered {
		if at.Before(cutoff) {
			delete(b.lastDelivered, key)
		}
	}
}

// submit enqueues cmd onto the single command loop; non-blocking for callers
// since the channel is buffered and handlers must not block per spec §5.
func (b *Bus) submit(cmd func()) {
	select {
	case b.commands <- cmd:
	case <-b.stopCh:
	}
}

// Subscribe registers a handler invoked for every delivered event. Handlers
// run on the bus's single command goroutine and must not block.
func (b *Bus) Subscribe(handler func(Event)) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers = append(b.handlers, handler)
}

func (b *Bus) dispatch(e Event) {
	b.handlersMu.RLock()
	handlers := make([]func(Event), len(b.handlers))
	copy(handlers, b.handlers)
	b.handlersMu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("session", e.SessionName).Errorf("eventbus: subscriber panic: %v", r)
				}
			}()
			h(e)
		}()
	}
}

// Trigger bypasses debounce but still honors dedup: an event for the same
// key within the dedup window of the last delivery is dropped.
func (b *Bus) Trigger(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.submit(func() { b.deliverIfNotDuped(e) })
}

func (b *Bus) deliverIfNotDuped(e Event) {
	key := e.key()
	if last, ok := b.lastDelivered[key]; ok {
		if e.Timestamp.Sub(last) < b.cfg.DedupWindow {
			return
		}
	}
	b.lastDelivered[key] = e.Timestamp
	b.dispatch(e)
}

// emitDebounced coalesces repeated calls for the same key: the latest event
// replaces any pending one, and delivery happens only after DebounceWindow
// of silence (spec §4.4, §8 "exactly one event per key per silent gap").
func (b *Bus) emitDebounced(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.submit(func() {
		key := e.key()
		if p, ok := b.pending[key]; ok {
			p.latest = e
			p.timer.Reset(b.cfg.DebounceWindow)
			return
		}

		p := &pendingDebounce{latest: e}
		p.timer = time.AfterFunc(b.cfg.DebounceWindow, func() {
			b.submit(func() {
				cur, ok := b.pending[key]
				if !ok {
					return
				}
				delete(b.pending, key)
				b.deliverIfNotDuped(cur.latest)
			})
		})
		b.pending[key] = p
	})
}

// EmitActivityIdle emits a debounced activity_idle event.
func (b *Bus) EmitActivityIdle(sessionName, agentID, projectPath string, metadata map[string]any) {
	b.emitDebounced(Event{Trigger: TriggerActivityIdle, SessionName: sessionName, AgentID: agentID, ProjectPath: projectPath, Metadata: metadata})
}

// EmitHeartbeatStale emits a debounced heartbeat_stale event.
func (b *Bus) EmitHeartbeatStale(sessionName, agentID, projectPath string, metadata map[string]any) {
	b.emitDebounced(Event{Trigger: TriggerHeartbeatStale, SessionName: sessionName, AgentID: agentID, ProjectPath: projectPath, Metadata: metadata})
}

// EmitExplicitRequest emits a debounced explicit_request event.
func (b *Bus) EmitExplicitRequest(sessionName, agentID, projectPath string, metadata map[string]any) {
	b.emitDebounced(Event{Trigger: TriggerExplicitReq, SessionName: sessionName, AgentID: agentID, ProjectPath: projectPath, Metadata: metadata})
}

// RegisterPtySession subscribes to the session's exit hook, emitting a
// pty_exit event (bypassing debounce, like Trigger) on termination. Repeat
// registration of the same session name is a no-op (spec §4.4).
func (b *Bus) RegisterPtySession(session PTYSession, agentID, projectPath string) {
	name := session.Name()
	b.submit(func() {
		if _, ok := b.registered[name]; ok {
			return
		}
		stop := make(chan struct{})
		b.registered[name] = stop

		go func() {
			select {
			case <-session.Done():
				b.Trigger(Event{
					Trigger:     TriggerPTYExit,
					SessionName: name,
					AgentID:     agentID,
					ProjectPath: projectPath,
				})
			case <-stop:
			}
		}()
	})
}

// UnregisterSession cancels the exit watcher and any pending debounced
// events keyed by sessionName (spec §4.4 cleanup, §5 "kill cancels pending
// scheduler entries" analog for the bus).
func (b *Bus) UnregisterSession(sessionName string) {
	b.submit(func() {
		if stop, ok := b.registered[sessionName]; ok {
			close(stop)
			delete(b.registered, sessionName)
		}
		for _, trig := range []Trigger{TriggerActivityIdle, TriggerHeartbeatStale, TriggerExplicitReq, TriggerPTYExit} {
			key := sessionName + "-" + string(trig)
			if p, ok := b.pending[key]; ok {
				p.timer.Stop()
				delete(b.pending, key)
			}
			delete(b.lastDelivered, key)
		}
	})
}

// Stop terminates the bus's background goroutines. Idempotent.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
}
