// Package sessionbackend implements the Session Backend (spec §4.3): the
// only registry through which Sessions are created and destroyed. Grounded
// on the teacher's terminal/session_manager.go SessionManager, generalized
// from "reattach to a persistent shell" to "supervise one named agent
// session for its lifetime, no reattach".
package sessionbackend

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/agentmux/crewly/internal/ctlerrors"
	"github.com/agentmux/crewly/internal/ptysession"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName enforces the spec §3 session-name constraints.
func ValidateName(name string) error {
	if name == "" || len(name) > 50 || !namePattern.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match [A-Za-z0-9_-]+ and be <=50 chars", name)
	}
	return nil
}

// Backend is the directory of named Sessions (spec §4.3).
type Backend struct {
	mu       sync.RWMutex
	sessions map[string]*ptysession.Session
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{sessions: make(map[string]*ptysession.Session)}
}

// Create spawns a new Session under name. Fails with ctlerrors.ErrAlreadyExists
// if the name is taken (spec §3 invariant, §4.3).
func (b *Backend) Create(name string, opts ptysession.Options) (*ptysession.Session, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if _, exists := b.sessions[name]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ctlerrors.ErrAlreadyExists, name)
	}
	// Reserve the slot before spawning so concurrent Create calls for the
	// same name can't both pass the existence check.
	b.sessions[name] = nil
	b.mu.Unlock()

	sess, err := ptysession.New(name, opts)
	if err != nil {
		b.mu.Lock()
		delete(b.sessions, name)
		b.mu.Unlock()
		return nil, err
	}

	b.mu.Lock()
	b.sessions[name] = sess
	b.mu.Unlock()

	logrus.WithField("session", name).Info("sessionbackend: session created")

	// Deliberately no exit-watcher goroutine here: a session that exits on
	// its own (as opposed to being explicitly Killed) stays registered and
	// its buffer stays readable, so pty_exit subscribers (the Continuation
	// Engine, via eventbus) can still capture real final output whenever
	// their own Done()-watcher happens to run. Only Kill/Destroy remove the
	// entry and dispose the buffer.
	return sess, nil
}

// Get returns the Session for name, if any.
func (b *Backend) Get(name string) (*ptysession.Session, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	sess, ok := b.sessions[name]
	return sess, ok && sess != nil
}

// Exists reports whether name currently has a registered Session, including
// one whose process has exited but that has not been killed.
func (b *Backend) Exists(name string) bool {
	_, ok := b.Get(name)
	return ok
}

// List returns the names of all currently registered sessions.
func (b *Backend) List() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.sessions))
	for name, sess := range b.sessions {
		if sess != nil {
			names = append(names, name)
		}
	}
	return names
}

// Count returns the number of currently registered sessions.
func (b *Backend) Count() int {
	return len(b.List())
}

// Kill terminates and removes the named session. Idempotent: killing an
// unknown or already-dead name is not an error (spec §4.3).
func (b *Backend) Kill(name string) {
	b.mu.Lock()
	sess, ok := b.sessions[name]
	if ok {
		delete(b.sessions, name)
	}
	b.mu.Unlock()

	if ok && sess != nil {
		sess.Kill()
		sess.Dispose()
		logrus.WithField("session", name).Info("sessionbackend: session killed")
	}
}

// CaptureOutput returns the last `lines` rendered lines for name, or "" if
// unknown (spec §4.3).
func (b *Backend) CaptureOutput(name string, lines int) string {
	sess, ok := b.Get(name)
	if !ok {
		return ""
	}
	return sess.Buffer().GetContent(lines)
}

// GetTerminalBuffer returns the full rendered buffer for name.
func (b *Backend) GetTerminalBuffer(name string) string {
	sess, ok := b.Get(name)
	if !ok {
		return ""
	}
	return sess.Buffer().GetAllContent()
}

// GetRawHistory returns the raw scrollback bytes (as a string) for name.
func (b *Backend) GetRawHistory(name string) string {
	sess, ok := b.Get(name)
	if !ok {
		return ""
	}
	return sess.Buffer().GetHistoryAsString()
}

// Resize changes the terminal geometry for name. Returns ctlerrors.ErrNotFound
// if name is unknown (spec §4.3).
func (b *Backend) Resize(name string, cols, rows int) error {
	sess, ok := b.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ctlerrors.ErrNotFound, name)
	}
	return sess.Resize(cols, rows)
}

// Write sends bytes to the named session's child stdin, returning false if
// the session is unknown or has already exited.
func (b *Backend) Write(name string, p []byte) bool {
	sess, ok := b.Get(name)
	if !ok {
		return false
	}
	return sess.Write(p)
}

// Destroy kills every registered session. Idempotent.
func (b *Backend) Destroy() {
	for _, name := range b.List() {
		b.Kill(name)
	}
}

// ForceDestroyAll kills every session and immediately zeroes their buffers,
// for fatal shutdown paths where waiting on graceful cleanup is unsafe
// (spec §4.3).
func (b *Backend) ForceDestroyAll() {
	b.mu.Lock()
	sessions := make([]*ptysession.Session, 0, len(b.sessions))
	for _, sess := range b.sessions {
		if sess != nil {
			sessions = append(sessions, sess)
		}
	}
	b.sessions = make(map[string]*ptysession.Session)
	b.mu.Unlock()

	for _, sess := range sessions {
		sess.Kill()
		sess.Dispose()
	}
}
