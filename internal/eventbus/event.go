package eventbus

import "time"

// Trigger is the sum type over what caused a ContinuationEvent (spec §3).
type Trigger string

const (
	TriggerPTYExit        Trigger = "pty_exit"
	TriggerActivityIdle   Trigger = "activity_idle"
	TriggerHeartbeatStale Trigger = "heartbeat_stale"
	TriggerExplicitReq    Trigger = "explicit_request"
)

// Event is the tagged union the spec calls ContinuationEvent: consumer-owned,
// never persisted. Metadata is trigger-specific and left as a free-form map
// so publishers don't need a bus-owned schema per trigger.
type Event struct {
	Trigger     Trigger
	SessionName string
	AgentID     string
	ProjectPath string
	Timestamp   time.Time
	Metadata    map[string]any
}

// key identifies a debounce/dedup bucket: (session, trigger).
func (e Event) key() string {
	return e.SessionName + "-" + string(e.Trigger)
}
