package scheduler

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmux/crewly/internal/atomicfile"
)

// NewScheduledMessage allocates a ScheduledMessage with a fresh ID and
// CreatedAt timestamp for the given session, body, delivery time, and type.
func NewScheduledMessage(sessionName, message string, scheduledFor time.Time, msgType MessageType) ScheduledMessage {
	return ScheduledMessage{
		ID:           uuid.NewString(),
		SessionName:  sessionName,
		Message:      message,
		ScheduledFor: scheduledFor,
		Type:         msgType,
		CreatedAt:    time.Now(),
	}
}

// MessageType is the kind of scheduled check-in a ScheduledMessage represents
// (spec §3 ScheduledMessage.type).
type MessageType string

const (
	MessageCheckIn        MessageType = "check-in"
	MessageCommitReminder MessageType = "commit-reminder"
	MessageProgressCheck  MessageType = "progress-check"
	MessageContinuation   MessageType = "continuation"
	MessageCustom         MessageType = "custom"
)

// RecurrenceInfo tracks a recurring ScheduledMessage's progress.
type RecurrenceInfo struct {
	Interval        time.Duration `json:"interval"`
	MaxOccurrences  int           `json:"maxOccurrences,omitempty"`
	CurrentOccur    int           `json:"currentOccurrence"`
}

// ScheduledMessage is the persisted record backing a scheduler CheckID
// (spec §3 ScheduledMessage, §6 "scheduled-messages file... schema mirrors
// ScheduledMessage").
type ScheduledMessage struct {
	ID           string         `json:"id"`
	SessionName  string         `json:"sessionName"`
	Message      string         `json:"message"`
	ScheduledFor time.Time      `json:"scheduledFor"`
	Type         MessageType    `json:"type"`
	Recurring    *RecurrenceInfo `json:"recurring,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type messageFile struct {
	Version  int                         `json:"version"`
	Messages map[string]ScheduledMessage `json:"messages"`
}

// MessageStore is the atomically-persisted record of outstanding
// ScheduledMessages, independent of the in-memory timers that drive their
// delivery (spec §6 "Scheduled-messages file").
type MessageStore struct {
	path string

	mu       sync.Mutex
	messages map[string]ScheduledMessage
}

// NewMessageStore returns a MessageStore backed by
// <crewlyHome>/scheduled-messages.json.
func NewMessageStore(crewlyHome string) *MessageStore {
	return &MessageStore{
		path:     filepath.Join(crewlyHome, "scheduled-messages.json"),
		messages: make(map[string]ScheduledMessage),
	}
}

// Restore loads any previously persisted messages.
func (m *MessageStore) Restore() error {
	var saved messageFile
	existed, err := atomicfile.ReadJSON(m.path, &saved)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if saved.Messages == nil {
		saved.Messages = make(map[string]ScheduledMessage)
	}
	m.messages = saved.Messages
	return nil
}

// Put persists msg, adding or replacing the entry keyed by msg.ID.
func (m *MessageStore) Put(msg ScheduledMessage) error {
	m.mu.Lock()
	m.messages[msg.ID] = msg
	m.mu.Unlock()
	return m.save()
}

// Remove deletes the message with id, if present.
func (m *MessageStore) Remove(id string) error {
	m.mu.Lock()
	delete(m.messages, id)
	m.mu.Unlock()
	return m.save()
}

// All returns every persisted message.
func (m *MessageStore) All() []ScheduledMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScheduledMessage, 0, len(m.messages))
	for _, msg := range m.messages {
		out = append(out, msg)
	}
	return out
}

func (m *MessageStore) save() error {
	m.mu.Lock()
	snapshot := messageFile{Version: schemaVersion, Messages: make(map[string]ScheduledMessage, len(m.messages))}
	for k, v := range m.messages {
		snapshot.Messages[k] = v
	}
	m.mu.Unlock()
	return atomicfile.WriteJSON(m.path, snapshot)
}

const schemaVersion = 1
