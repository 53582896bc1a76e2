package continuation

import (
	"testing"

	"github.com/agentmux/crewly/internal/eventbus"
)

type fakeBackend struct {
	output  map[string]string
	writes  map[string][]string
	killed  map[string]bool
	present map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		output:  make(map[string]string),
		writes:  make(map[string][]string),
		killed:  make(map[string]bool),
		present: make(map[string]bool),
	}
}

func (f *fakeBackend) CaptureOutput(name string, lines int) string { return f.output[name] }
func (f *fakeBackend) Write(name string, p []byte) bool {
	if !f.present[name] {
		return false
	}
	f.writes[name] = append(f.writes[name], string(p))
	return true
}
func (f *fakeBackend) Kill(name string)         { f.killed[name] = true }
func (f *fakeBackend) Exists(name string) bool  { return f.present[name] }

func TestHandleEventCompleteAssignsNextTask(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-1"] = true
	b.output["dev-1"] = "all tests passed\n"

	e := New(b, Options{DefaultMax: 10})
	e.Config("dev-1").TaskQueue = []string{"do the next thing"}

	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerActivityIdle, SessionName: "dev-1"})

	if len(b.writes["dev-1"]) != 1 || b.writes["dev-1"][0] != "do the next thing\n" {
		t.Fatalf("expected next task written, got %v", b.writes["dev-1"])
	}
}

func TestHandleEventDisabledConfigSkipsDispatch(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-2"] = true
	b.output["dev-2"] = "panic: boom"

	e := New(b, Options{DefaultMax: 10})
	e.Config("dev-2").Enabled = false

	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerPTYExit, SessionName: "dev-2"})

	if len(b.writes["dev-2"]) != 0 {
		t.Fatalf("expected no dispatch while disabled, got %v", b.writes["dev-2"])
	}
}

func TestHandleEventErrorAtCapNotifiesOwnerInsteadOfRetrying(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-3"] = true
	b.output["dev-3"] = "fatal error: disk full"

	e := New(b, Options{DefaultMax: 1})
	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerHeartbeatStale, SessionName: "dev-3"})

	notes := e.Notifications().All()
	if len(notes) != 1 {
		t.Fatalf("expected one notify_owner entry, got %d", len(notes))
	}
}

func TestHandleEventUnknownSessionIsNoop(t *testing.T) {
	b := newFakeBackend()
	e := New(b, Options{DefaultMax: 10})
	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerPTYExit, SessionName: "ghost"})
}

func TestHandleEventAssignNextFallsThroughToNotifyOwnerWhenAutoAssignDisabled(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-4"] = true
	b.output["dev-4"] = "all tests passed\n"

	e := New(b, Options{DefaultMax: 10})
	cfg := e.Config("dev-4")
	cfg.AutoAssignNext = false
	cfg.TaskQueue = []string{"do the next thing"}

	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerActivityIdle, SessionName: "dev-4"})

	if len(b.writes["dev-4"]) != 0 {
		t.Fatalf("expected no task write with autoAssignNext disabled, got %v", b.writes["dev-4"])
	}
	if len(cfg.TaskQueue) != 1 {
		t.Fatalf("expected queued task to remain untouched, got %v", cfg.TaskQueue)
	}
	if len(e.Notifications().All()) != 1 {
		t.Fatalf("expected fallthrough to notify_owner, got %d notifications", len(e.Notifications().All()))
	}
	if cfg.Enabled {
		t.Fatal("expected notify_owner to pause the session until acknowledged")
	}
}

func TestHandleEventAssignNextFallsThroughToNotifyOwnerWhenQueueEmpty(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-5"] = true
	b.output["dev-5"] = "all tests passed\n"

	e := New(b, Options{DefaultMax: 10})
	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerActivityIdle, SessionName: "dev-5"})

	if len(b.writes["dev-5"]) != 0 {
		t.Fatalf("expected no write with an empty task queue, got %v", b.writes["dev-5"])
	}
	if len(e.Notifications().All()) != 1 {
		t.Fatalf("expected fallthrough to notify_owner, got %d notifications", len(e.Notifications().All()))
	}
}

func TestHandleEventNotifyOnErrorDisabledPausesWithoutNotifying(t *testing.T) {
	b := newFakeBackend()
	b.present["dev-6"] = true
	b.output["dev-6"] = "fatal error: disk full"

	e := New(b, Options{DefaultMax: 1})
	cfg := e.Config("dev-6")
	cfg.NotifyOnError = false

	e.HandleEvent(eventbus.Event{Trigger: eventbus.TriggerHeartbeatStale, SessionName: "dev-6"})

	if len(e.Notifications().All()) != 0 {
		t.Fatalf("expected no notification with notifyOnError disabled, got %d", len(e.Notifications().All()))
	}
	if cfg.Enabled {
		t.Fatal("expected the session to still pause even without a visible notification")
	}
}
