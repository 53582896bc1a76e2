// Package state implements State Persistence (spec §4.9): a versioned,
// atomically-written record of which sessions exist so a restart can
// rediscover them without re-injecting a "--resume" flag. Grounded on the
// teacher's process/state.go SaveState/LoadState pair, generalized from
// "one global state blob" to "a registry of SessionRecord entries with
// register/unregister/update operations".
package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentmux/crewly/internal/atomicfile"
)

const schemaVersion = 1

// SessionRecord is the on-disk representation of one tracked session
// (spec §3 persisted subset of Session: no buffer, no PTY handle).
type SessionRecord struct {
	Name              string    `json:"name"`
	RuntimeType       string    `json:"runtimeType"`
	Role              string    `json:"role,omitempty"`
	TeamID            string    `json:"teamId,omitempty"`
	MemberID          string    `json:"memberId,omitempty"`
	Cwd               string    `json:"cwd"`
	ExternalSessionID string    `json:"externalSessionId,omitempty"`
	RegisteredAt      time.Time `json:"registeredAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// onDiskState is the versioned file format written to session-state.json.
type onDiskState struct {
	Version  int                      `json:"version"`
	Sessions map[string]SessionRecord `json:"sessions"`
}

// Store is the in-memory registry backed by an atomically-written file.
// Every mutating method auto-saves (spec §4.9 "register/unregister/
// updateSessionId with auto-save").
type Store struct {
	path string

	mu       sync.Mutex
	sessions map[string]SessionRecord
}

// New returns a Store backed by <crewlyHome>/session-state.json. Call
// Restore to load any existing file.
func New(crewlyHome string) *Store {
	return &Store{
		path:     filepath.Join(crewlyHome, "session-state.json"),
		sessions: make(map[string]SessionRecord),
	}
}

// RegisterSession adds or replaces rec and persists the change.
func (s *Store) RegisterSession(rec SessionRecord) error {
	s.mu.Lock()
	now := time.Now()
	if existing, ok := s.sessions[rec.Name]; ok {
		rec.RegisteredAt = existing.RegisteredAt
	} else {
		rec.RegisteredAt = now
	}
	rec.UpdatedAt = now
	s.sessions[rec.Name] = rec
	s.mu.Unlock()

	return s.save()
}

// UnregisterSession removes name and persists the change. Idempotent.
func (s *Store) UnregisterSession(name string) error {
	s.mu.Lock()
	delete(s.sessions, name)
	s.mu.Unlock()

	return s.save()
}

// UpdateSessionID sets the runtime-assigned external session ID for name
// (spec §4.9 "updateSessionId", used once the agent CLI reports its own
// session/conversation identifier).
func (s *Store) UpdateSessionID(name, externalID string) error {
	s.mu.Lock()
	rec, ok := s.sessions[name]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	rec.ExternalSessionID = externalID
	rec.UpdatedAt = time.Now()
	s.sessions[name] = rec
	s.mu.Unlock()

	return s.save()
}

// Get returns the record for name, if tracked.
func (s *Store) Get(name string) (SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[name]
	return rec, ok
}

// All returns every tracked record.
func (s *Store) All() []SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	return out
}

func (s *Store) save() error {
	s.mu.Lock()
	snapshot := onDiskState{Version: schemaVersion, Sessions: make(map[string]SessionRecord, len(s.sessions))}
	for k, v := range s.sessions {
		snapshot.Sessions[k] = v
	}
	s.mu.Unlock()

	if err := atomicfile.WriteJSON(s.path, snapshot); err != nil {
		logrus.WithError(err).WithField("path", s.path).Error("state: failed to persist session state")
		return err
	}
	return nil
}

// Restore loads the on-disk file, if any, into the in-memory registry.
// Sessions are restored as records only; callers are responsible for
// deciding whether/how to reattach or relaunch the underlying process
// without injecting a "--resume" flag (spec §4.9 "restore without
// --resume injection").
func (s *Store) Restore() error {
	var saved onDiskState
	existed, err := atomicfile.ReadJSON(s.path, &saved)
	if err != nil {
		return err
	}
	if !existed {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if saved.Sessions == nil {
		saved.Sessions = make(map[string]SessionRecord)
	}
	s.sessions = saved.Sessions
	return nil
}

// Clear empties the in-memory registry and persists the empty state
// (spec §4.9 "clearState").
func (s *Store) Clear() error {
	s.mu.Lock()
	s.sessions = make(map[string]SessionRecord)
	s.mu.Unlock()
	return s.save()
}

// ClearAndRemoveFile empties the registry and removes the backing file
// entirely, for full teardown (spec §4.9 "clearStateAndMetadata").
func (s *Store) ClearAndRemoveFile() error {
	s.mu.Lock()
	s.sessions = make(map[string]SessionRecord)
	path := s.path
	s.mu.Unlock()

	return atomicfile.RemoveIfExists(path)
}
