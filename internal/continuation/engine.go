// Package continuation implements the Continuation Engine (spec §4.6): the
// subscriber that turns ContinuationEvents into dispatched actions against a
// session, using the Output Analyzer to decide what to do and an
// iteration.Registry to enforce the iteration cap. Grounded on the teacher's
// terminal/session_manager.go event-to-handler wiring, generalized from
// "broadcast PTY bytes to websocket clients" to "react to continuation
// triggers with agent-directed actions".
package continuation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentmux/crewly/internal/analyzer"
	"github.com/agentmux/crewly/internal/ctlerrors"
	"github.com/agentmux/crewly/internal/eventbus"
	"github.com/agentmux/crewly/internal/iteration"
)

// Backend is the subset of sessionbackend.Backend the engine needs, kept as
// an interface so this package has no import cycle risk and is independently
// testable with a fake.
type Backend interface {
	CaptureOutput(name string, lines int) string
	Write(name string, p []byte) bool
	Kill(name string)
	Exists(name string) bool
}

// Engine wires an eventbus.Bus, a Backend, the Output Analyzer, and
// per-session iteration tracking together (spec §4.6).
type Engine struct {
	backend  Backend
	trackers *iteration.Registry
	configs  *ConfigStore
	notifs   *Ring

	recentLines int
	hardMax     uint64

	onDispatch func(sessionName string, result analyzer.AnalysisResult)
}

// Options configures a new Engine.
type Options struct {
	RecentLines   int
	HardMax       uint64
	DefaultMax    uint64
	RingCapacity  int
	OnDispatch    func(sessionName string, result analyzer.AnalysisResult)
}

// New builds an Engine. Call Attach to subscribe it to a bus.
func New(backend Backend, opts Options) *Engine {
	if opts.RecentLines <= 0 {
		opts.RecentLines = 100
	}
	if opts.HardMax <= 0 {
		opts.HardMax = 100
	}
	if opts.DefaultMax <= 0 {
		opts.DefaultMax = 10
	}
	return &Engine{
		backend:     backend,
		trackers:    iteration.NewRegistry(opts.DefaultMax),
		configs:     NewConfigStore(opts.DefaultMax),
		notifs:      NewRing(opts.RingCapacity),
		recentLines: opts.RecentLines,
		hardMax:     opts.HardMax,
		onDispatch:  opts.OnDispatch,
	}
}

// Attach subscribes the engine to bus. Handlers run on the bus's single
// command goroutine (spec §4.4), so HandleEvent must not block.
func (e *Engine) Attach(bus *eventbus.Bus) {
	bus.Subscribe(e.HandleEvent)
}

// Notifications returns the engine's notify_owner ring.
func (e *Engine) Notifications() *Ring { return e.notifs }

// Config returns (creating if absent) the SessionConfig for name, letting
// callers (e.g. an external control surface) toggle continuation or push
// tasks onto the queue.
func (e *Engine) Config(name string) *SessionConfig {
	return e.configs.GetOrCreate(name)
}

// HandleEvent runs the full spec §4.6 decision sequence for one
// ContinuationEvent: load config, fetch tracker, capture output, analyze,
// dispatch, record history.
func (e *Engine) HandleEvent(ev eventbus.Event) {
	name := ev.SessionName

	cfg := e.configs.GetOrCreate(name)
	if !cfg.Enabled {
		return
	}
	if !e.backend.Exists(name) {
		return
	}

	tracker := e.trackers.GetOrCreate(name)
	if cfg.MaxIterations > 0 {
		tracker.SetMaxIterations(min64(cfg.MaxIterations, e.hardMax))
	}

	output := e.backend.CaptureOutput(name, e.recentLines)
	result := analyzer.Analyze(analyzer.Input{
		RecentOutput:  output,
		Iterations:    tracker.Iterations(),
		MaxIterations: tracker.MaxIterations(),
	})

	e.dispatch(name, string(ev.Trigger), cfg, tracker, result)

	if e.onDispatch != nil {
		e.onDispatch(name, result)
	}
}

func (e *Engine) dispatch(name, trigger string, cfg *SessionConfig, tracker *iteration.Tracker, result analyzer.AnalysisResult) {
	action := string(result.Recommendation)

	switch result.Recommendation {
	case analyzer.RecommendInjectPrompt:
		rec := tracker.Bump(trigger, string(result.Conclusion), action)
		prompt := fmt.Sprintf("Continue with your current task (iteration %d of %d). Last output: %q. "+
			"If the task is finished, call complete_task.\n", rec.Iteration, tracker.MaxIterations(), result.Evidence)
		if !e.backend.Write(name, []byte(prompt)) {
			e.logDispatchFailure(name, "inject_prompt")
		}

	case analyzer.RecommendAssignNext:
		// spec §4.6 step 5: only auto-assign when the session opts in and a
		// task is actually queued; otherwise fall through to notify_owner.
		if cfg.AutoAssignNext {
			if task, ok := cfg.PopNextTask(); ok {
				tracker.Reset()
				if !e.backend.Write(name, []byte(task+"\n")) {
					e.logDispatchFailure(name, "assign_next_task")
				}
				tracker.Record(trigger, string(result.Conclusion), action)
				return
			}
		}
		tracker.Record(trigger, string(result.Conclusion), action)
		e.notifyOwner(name, cfg, result)

	case analyzer.RecommendRetryWithHints:
		tracker.Bump(trigger, string(result.Conclusion), action)
		if tracker.AtCap() {
			e.resolveCapNotification(name, cfg, result)
			return
		}
		prompt := fmt.Sprintf("The last attempt hit an error: %q. Re-read the error, check paths, "+
			"permissions and missing dependencies, and try a different approach. "+
			"Call complete_task when the task is done.\n", result.Evidence)
		if !e.backend.Write(name, []byte(prompt)) {
			e.logDispatchFailure(name, "retry_with_hints")
		}

	case analyzer.RecommendNotifyOwner:
		tracker.Record(trigger, string(result.Conclusion), action)
		e.resolveCapNotification(name, cfg, result)

	case analyzer.RecommendPauseAgent:
		tracker.Record(trigger, string(result.Conclusion), action)
		cfg.Enabled = false

	case analyzer.RecommendNoAction:
		tracker.Record(trigger, string(result.Conclusion), action)
	}
}

// resolveCapNotification handles a recommendation of notify_owner, gating it
// on the session's notifyOnError/notifyOnMaxIterations config (spec §4.6
// step 1) depending on what forced it: a STUCK_OR_ERROR conclusion gates on
// notifyOnError, anything else (ambiguous output at the iteration cap) gates
// on notifyOnMaxIterations. When the relevant flag is off the engine still
// stops automatic action (pauses the session) but skips the visible
// notification.
func (e *Engine) resolveCapNotification(name string, cfg *SessionConfig, result analyzer.AnalysisResult) {
	wantsNotify := cfg.NotifyOnMaxIterations
	if result.Conclusion == analyzer.ConclusionStuckOrError {
		wantsNotify = cfg.NotifyOnError
	}
	if wantsNotify {
		e.notifyOwner(name, cfg, result)
		return
	}
	cfg.Enabled = false
}

// notifyOwner appends a notification and stops further automatic action for
// the session until it's acknowledged (spec §4.6 step 5 "notify_owner").
func (e *Engine) notifyOwner(name string, cfg *SessionConfig, result analyzer.AnalysisResult) {
	e.notifs.Push(Notification{
		ID:          newNotificationID(),
		SessionName: name,
		Conclusion:  string(result.Conclusion),
		Evidence:    result.Evidence,
		Timestamp:   time.Now(),
	})
	cfg.Enabled = false
	logrus.WithField("session", name).
		WithField("conclusion", result.Conclusion).
		Warn("continuation: notify_owner")
}

// Acknowledge re-enables automatic continuation for a session previously
// paused by notify_owner (spec §4.6 "stop further automatic action ...
// until acknowledged").
func (e *Engine) Acknowledge(name string) {
	e.configs.GetOrCreate(name).Enabled = true
}

func (e *Engine) logDispatchFailure(name, action string) {
	err := fmt.Errorf("%w: %s on %s", ctlerrors.ErrDispatchError, action, name)
	logrus.WithField("session", name).Warn(err)
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
