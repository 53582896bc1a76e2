// Package ptysession implements the Session component (spec §4.2): one
// child process under a pseudo-terminal, piping all PTY output into a
// termbuf.Buffer and exposing the onData/onExit/write/resize/kill contract.
// Grounded on the teacher's terminal/terminal.go (creack/pty spawn) and
// terminal/session_manager.go (read-loop-to-subscribers wiring), generalized
// from "sandbox shell" to "supervised AI-agent runtime process".
package ptysession

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"

	"github.com/agentmux/crewly/internal/ctlerrors"
	"github.com/agentmux/crewly/internal/termbuf"
)

// State is the Session lifecycle (spec §4.2: Starting -> Running -> Exited,
// terminal, no re-enter).
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// RuntimeType is the AI-agent runtime the session's command is expected to
// launch (spec §3).
type RuntimeType string

const (
	RuntimeClaudeCode RuntimeType = "claude-code"
	RuntimeGeminiCLI  RuntimeType = "gemini-cli"
	RuntimeCodexCLI   RuntimeType = "codex-cli"
)

// Options configures a new Session (spec §3 Session entity fields).
type Options struct {
	Cwd                string
	Command            string
	Args               []string
	Env                map[string]string
	RuntimeType        RuntimeType
	Role               string
	TeamID             string
	MemberID           string
	ExternalSessionID  string
	Cols, Rows         int
}

// Session owns exactly one child process under a PTY and its TerminalBuffer.
type Session struct {
	name string
	pid  int

	opts Options

	mu    sync.Mutex
	state State

	ptmx    *os.File
	cmd     *exec.Cmd
	usePgrp bool

	buffer *termbuf.Buffer

	onDataMu sync.RWMutex
	onData   []func([]byte)

	doneCh    chan struct{}
	closeOnce sync.Once

	externalSessionID string
}

// New spawns a child process under a PTY and starts piping its output into
// a TerminalBuffer. Returns ctlerrors.ErrSpawnFailed (wrapped) if the OS
// fails to start the child (spec §4.2).
func New(name string, opts Options) (*Session, error) {
	shell := opts.Command
	if shell == "" {
		shell = os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
	}

	cmd := exec.Command(shell, opts.Args...)
	if opts.Cwd != "" {
		cmd.Dir = opts.Cwd
	}
	cmd.Env = buildEnv(opts.Env)

	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 120
	}
	if rows <= 0 {
		rows = 40
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ctlerrors.ErrSpawnFailed, err)
	}

	s := &Session{
		name:              name,
		opts:              opts,
		state:             StateRunning,
		ptmx:              ptmx,
		cmd:               cmd,
		usePgrp:           usePgrp,
		buffer:            termbuf.New(cols, rows, 0),
		doneCh:            make(chan struct{}),
		externalSessionID: opts.ExternalSessionID,
	}
	s.pid = cmd.Process.Pid

	go s.readLoop()
	go s.waitLoop()

	return s, nil
}

// buildEnv overlays env on top of the parent process environment and pins
// TERM for proper terminal emulation (spec §6 PTY child contract), mirroring
// terminal/terminal.go's override-by-key merge.
func buildEnv(env map[string]string) []string {
	systemEnv := os.Environ()
	overrides := make(map[string]bool, len(env))
	for k := range env {
		overrides[k] = true
	}

	final := make([]string, 0, len(systemEnv)+len(env)+1)
	for _, kv := range systemEnv {
		idx := -1
		for i, c := range kv {
			if c == '=' {
				idx = i
				break
			}
		}
		if idx > 0 && !overrides[kv[:idx]] {
			final = append(final, kv)
		}
	}
	for k, v := range env {
		final = append(final, k+"="+v)
	}
	final = append(final, "TERM=xterm-256color")
	return final
}

func (s *Session) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("session", s.name).Errorf("ptysession: read loop panic: %v", r)
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.buffer.Write(data)
			s.notifyData(data)
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) waitLoop() {
	_ = s.cmd.Wait()
	s.markExited()
}

func (s *Session) notifyData(data []byte) {
	s.onDataMu.RLock()
	defer s.onDataMu.RUnlock()
	for _, cb := range s.onData {
		cb(data)
	}
}

// OnData registers an observer for child output. Multiple observers supported.
func (s *Session) OnData(cb func([]byte)) {
	s.onDataMu.Lock()
	defer s.onDataMu.Unlock()
	s.onData = append(s.onData, cb)
}

// OnExit registers an observer invoked once the session transitions to
// Exited. If the session has already exited, cb fires immediately.
func (s *Session) OnExit(cb func()) {
	go func() {
		<-s.Done()
		cb()
	}()
}

// Write sends bytes to the child's stdin. Non-blocking from the caller's
// perspective; OS pipe buffering provides backpressure. Returns false
// (rather than an error) once the session has exited, matching spec §4.2
// "after kill, further write is a no-op returning false".
func (s *Session) Write(p []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExited {
		return false
	}
	if _, err := s.ptmx.Write(p); err != nil {
		logrus.WithField("session", s.name).WithError(err).Warn("ptysession: write failed")
		return false
	}
	return true
}

// Resize forwards new geometry to the PTY and the TerminalBuffer.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExited {
		return ctlerrors.ErrNotFound
	}
	if err := pty.Setsize(s.ptmx, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}
	s.buffer.Resize(cols, rows)
	return nil
}

// Kill requests termination. Idempotent.
func (s *Session) Kill() {
	s.mu.Lock()
	alreadyExited := s.state == StateExited
	s.mu.Unlock()
	if alreadyExited {
		return
	}

	if s.ptmx != nil {
		_ = s.ptmx.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		if s.usePgrp {
			_ = syscall.Kill(-s.pid, syscall.SIGKILL)
		} else {
			_ = s.cmd.Process.Kill()
		}
	}
	s.markExited()
}

// markExited flips the lifecycle state and signals Done. It does not touch
// the TerminalBuffer: natural process exit (waitLoop) and explicit Kill both
// call this, and whatever watches Done() (eventbus's pty_exit watcher, the
// Continuation Engine downstream of it) must still be able to read real
// buffer content afterward. Buffer teardown is the caller's job, via
// Dispose, once it has actually decided to destroy the session.
func (s *Session) markExited() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateExited
		s.mu.Unlock()
		close(s.doneCh)
	})
}

// Done returns a channel closed when the session transitions to Exited.
func (s *Session) Done() <-chan struct{} { return s.doneCh }

// Dispose releases the session's TerminalBuffer. Separate from markExited so
// buffer content remains readable for however long it takes event
// subscribers to react to a natural process exit; callers that are
// definitely tearing the session down (sessionbackend.Backend.Kill/Destroy)
// call this explicitly.
func (s *Session) Dispose() { s.buffer.Dispose() }

func (s *Session) Name() string { return s.name }
func (s *Session) Pid() int     { return s.pid }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Options() Options { return s.opts }

func (s *Session) ExternalSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalSessionID
}

func (s *Session) SetExternalSessionID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalSessionID = id
}

// Buffer exposes the underlying TerminalBuffer for capture operations.
func (s *Session) Buffer() *termbuf.Buffer { return s.buffer }
