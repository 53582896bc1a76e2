// Package app wires the control-plane singletons together (spec §5:
// "Global state. Singletons for: Event Bus, Continuation Engine, Scheduler,
// Activity Monitor, State Persistence. Each exposes getInstance and
// clearInstance/reset for teardown and testing"). Grounded on the teacher's
// single shared *gin.Engine/router construction in src/api, generalized from
// "one HTTP router" to "one process-wide App holding every long-lived
// collaborator".
package app

import (
	"sync"
	"time"

	"github.com/agentmux/crewly/internal/activity"
	"github.com/agentmux/crewly/internal/budget"
	"github.com/agentmux/crewly/internal/config"
	"github.com/agentmux/crewly/internal/continuation"
	"github.com/agentmux/crewly/internal/eventbus"
	"github.com/agentmux/crewly/internal/logging"
	"github.com/agentmux/crewly/internal/scheduler"
	"github.com/agentmux/crewly/internal/sessionbackend"
	"github.com/agentmux/crewly/internal/state"
)

// App bundles every long-lived collaborator the daemon needs for the
// lifetime of the process.
type App struct {
	Config  *config.Config
	Backend *sessionbackend.Backend
	Bus     *eventbus.Bus
	Engine  *continuation.Engine
	Sched   *scheduler.Scheduler
	Monitor *activity.Monitor
	State   *state.Store
	Budget  *budget.Tracker
	Msgs    *scheduler.MessageStore
}

var (
	mu       sync.Mutex
	instance *App
)

// GetInstance returns the process-wide App, constructing it from cfg on
// first call. Subsequent calls ignore cfg and return the existing instance
// (spec §5 getInstance semantics).
func GetInstance(cfg *config.Config) *App {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance
	}
	instance = newApp(cfg)
	return instance
}

func newApp(cfg *config.Config) *App {
	backend := sessionbackend.New()

	bus := eventbus.New(eventbus.Config{
		DebounceWindow: cfg.DebounceWindow,
		DedupWindow:    cfg.DedupWindow,
		CleanupEvery:   cfg.BusCleanupTick,
	})

	engine := continuation.New(backend, continuation.Options{
		RecentLines:  cfg.AnalyzerRecentLines,
		HardMax:      uint64(cfg.HardMaxIterations),
		DefaultMax:   uint64(cfg.DefaultMaxIterations),
		RingCapacity: cfg.NotificationRingSize,
	})
	engine.Attach(bus)

	sched := scheduler.New()
	msgs := scheduler.NewMessageStore(cfg.CrewlyHome)

	activityCfg := activity.Config{
		SweepInterval:  cfg.ActivitySweepInterval,
		ProbeTimeout:   cfg.ActivityProbeTimeout,
		SweepBudget:    cfg.ActivitySweepBudget,
		IdleThreshold:  cfg.ActivityIdleThreshold,
		SnapshotCap:    cfg.ActivitySnapshotCap,
		CleanupEvery:   cfg.ActivityCleanupEvery,
		CaptureLines:   cfg.ActivityCaptureLines,
		CaptureMaxSize: cfg.ActivityCaptureMaxSize,
	}
	monitor := activity.New(backend, activityCfg,
		func(sessionName string, status activity.Status) {
			logging.Component("activity").WithField("session", sessionName).
				WithField("status", status).Info("team_member_status")
		},
		func(sessionName string) {
			bus.EmitActivityIdle(sessionName, "", "", nil)
		},
	)

	return &App{
		Config:  cfg,
		Backend: backend,
		Bus:     bus,
		Engine:  engine,
		Sched:   sched,
		Monitor: monitor,
		State:   state.New(cfg.CrewlyHome),
		Budget:  budget.NewTracker(),
		Msgs:    msgs,
	}
}

// Start restores any on-disk state and launches every background loop
// (Activity Monitor sweep/cleanup; the Event Bus and Scheduler already
// start their own loops in New).
func (a *App) Start() {
	if err := a.State.Restore(); err != nil {
		logging.Component("app").WithError(err).Warn("failed to restore session state")
	}
	if err := a.Msgs.Restore(); err != nil {
		logging.Component("app").WithError(err).Warn("failed to restore scheduled messages")
	}
	a.Monitor.Start()
}

// Shutdown runs the spec §5 teardown sequence: saveState is implicit
// (every Store mutation auto-saves), so Shutdown's job is to stop
// background loops and destroy every session.
func (a *App) Shutdown() {
	a.Monitor.Stop()
	a.Sched.Stop()
	a.Bus.Stop()
	a.Backend.Destroy()
}

// ScheduleSessionCheckins sets up the standing default check-in and
// commit-reminder recurring checks for a newly created session, persisting
// a ScheduledMessage record for each alongside the in-memory timer (spec
// §4.7 scheduleDefaultCheckins, §6 "Scheduled-messages file").
func (a *App) ScheduleSessionCheckins(sessionName string) error {
	_, err := a.Sched.ScheduleDefaultCheckins(
		sessionName, a.Config.DefaultCheckinMinutes, a.Config.CommitReminderMinutes,
		func(label string) {
			a.Bus.EmitHeartbeatStale(sessionName, "", "", map[string]any{"checkin": label})
		},
	)
	if err != nil {
		return err
	}

	now := time.Now()
	checkinMsg := scheduler.NewScheduledMessage(sessionName, "default check-in", now, scheduler.MessageCheckIn)
	reminderMsg := scheduler.NewScheduledMessage(sessionName, "commit reminder", now, scheduler.MessageCommitReminder)
	if err := a.Msgs.Put(checkinMsg); err != nil {
		return err
	}
	return a.Msgs.Put(reminderMsg)
}

// ClearInstance tears down and forgets the singleton, for tests and for a
// supervised-restart path that wants a clean App (spec §5 clearInstance).
func ClearInstance() {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		instance.Shutdown()
	}
	instance = nil
}

// Reset is an alias for ClearInstance kept for readability at call sites
// that are conceptually "resetting for the next test" rather than tearing
// down a live process (spec §5 "clearInstance/reset").
func Reset() { ClearInstance() }
