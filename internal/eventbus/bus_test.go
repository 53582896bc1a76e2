package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		DebounceWindow: 50 * time.Millisecond,
		DedupWindow:    150 * time.Millisecond,
		CleanupEvery:   time.Hour,
	}
}

func TestDebounceCoalescesToLatest(t *testing.T) {
	bus := New(testConfig())
	defer bus.Stop()

	var mu sync.Mutex
	var received []Event
	bus.Subscribe(func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	bus.EmitActivityIdle("dev-5", "agent-1", "/tmp", map[string]any{"n": 1})
	time.Sleep(10 * time.Millisecond)
	bus.EmitActivityIdle("dev-5", "agent-1", "/tmp", map[string]any{"n": 2})
	time.Sleep(10 * time.Millisecond)
	bus.EmitActivityIdle("dev-5", "agent-1", "/tmp", map[string]any{"n": 3})

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one coalesced delivery, got %d", len(received))
	}
	if received[0].Metadata["n"] != 3 {
		t.Fatalf("expected coalesced event to carry latest metadata, got %v", received[0].Metadata["n"])
	}
}

func TestDedupSuppressesWithinWindow(t *testing.T) {
	bus := New(testConfig())
	defer bus.Stop()

	var count int32
	bus.Subscribe(func(e Event) {
		atomic.AddInt32(&count, 1)
	})

	now := time.Now()
	bus.Trigger(Event{Trigger: TriggerPTYExit, SessionName: "dev-1", Timestamp: now})
	bus.Trigger(Event{Trigger: TriggerPTYExit, SessionName: "dev-1", Timestamp: now.Add(50 * time.Millisecond)})

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("expected dedup to drop the second delivery, got %d deliveries", got)
	}

	bus.Trigger(Event{Trigger: TriggerPTYExit, SessionName: "dev-1", Timestamp: now.Add(200 * time.Millisecond)})
	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 2 {
		t.Fatalf("expected event past the dedup window to be delivered, got %d deliveries", got)
	}
}

type fakeSession struct {
	name string
	done chan struct{}
}

func (f *fakeSession) Name() string          { return f.name }
func (f *fakeSession) Done() <-chan struct{} { return f.done }

func TestRegisterPtySessionIsIdempotentAndEmitsOnExit(t *testing.T) {
	bus := New(testConfig())
	defer bus.Stop()

	var count int32
	bus.Subscribe(func(e Event) {
		if e.Trigger == TriggerPTYExit {
			atomic.AddInt32(&count, 1)
		}
	})

	sess := &fakeSession{name: "dev-2", done: make(chan struct{})}
	bus.RegisterPtySession(sess, "agent", "/tmp")
	bus.RegisterPtySession(sess, "agent", "/tmp") // repeat registration: no-op

	close(sess.done)
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&count); got != 1 {
		t.Fatalf("expected exactly one pty_exit delivery, got %d", got)
	}
}

func TestUnregisterSessionCancelsPending(t *testing.T) {
	bus := New(testConfig())
	defer bus.Stop()

	var count int32
	bus.Subscribe(func(e Event) { atomic.AddInt32(&count, 1) })

	bus.EmitActivityIdle("dev-3", "agent", "/tmp", nil)
	bus.UnregisterSession("dev-3")

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&count); got != 0 {
		t.Fatalf("expected unregister to cancel pending debounce, got %d deliveries", got)
	}
}
