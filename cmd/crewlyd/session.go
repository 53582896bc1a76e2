package main

import (
	"fmt"

	"github.com/agentmux/crewly/internal/app"
	"github.com/agentmux/crewly/internal/ptysession"
	"github.com/agentmux/crewly/internal/state"
)

// runOneShotSession creates and registers a single session under name,
// wiring it into the event bus and state persistence the same way an
// HTTP/WebSocket layer would (spec §6 "Session backend interface
// consumed by HTTP/WebSocket layer -- out of scope here"); this is the
// minimal CLI-driven equivalent for running the daemon standalone.
func runOneShotSession(a *app.App, name, command string) error {
	opts := ptysession.Options{
		Command:     command,
		RuntimeType: ptysession.RuntimeClaudeCode,
		Cols:        a.Config.DefaultCols,
		Rows:        a.Config.DefaultRows,
	}

	sess, err := a.Backend.Create(name, opts)
	if err != nil {
		return fmt.Errorf("create session %s: %w", name, err)
	}

	a.Bus.RegisterPtySession(sess, "", "")

	if err := a.State.RegisterSession(state.SessionRecord{
		Name:        name,
		RuntimeType: string(opts.RuntimeType),
		Cwd:         opts.Cwd,
	}); err != nil {
		return fmt.Errorf("persist session %s: %w", name, err)
	}

	if err := a.ScheduleSessionCheckins(name); err != nil {
		return fmt.Errorf("schedule check-ins for %s: %w", name, err)
	}

	sess.OnExit(func() {
		a.Bus.UnregisterSession(name)
		a.Sched.CancelAllChecksForSession(name)
		_ = a.State.UnregisterSession(name)
	})

	return nil
}
