// Package scheduler implements the Scheduler (spec §4.7): ad hoc one-shot
// check-ins dispatched via stdlib time.AfterFunc (grounded on the teacher's
// own timer-based reconnect/retry idiom in terminal/terminal.go) and named
// recurring check-ins dispatched via robfig/cron's "@every" entries
// (grounded on r3e-network-service_layer's cron-driven polling jobs). Both
// kinds share one registry so a session's checks can be cancelled together.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Kind distinguishes a check's dispatch mechanism.
type Kind string

const (
	KindOneShot   Kind = "one_shot"
	KindRecurring Kind = "recurring"
)

// CheckID identifies a scheduled check for later cancellation.
type CheckID string

// CheckInfo is a read-only snapshot of a scheduled check, for introspection
// (spec §4.7 "getChecksForSession", "getStats").
type CheckInfo struct {
	ID          CheckID
	SessionName string
	Label       string
	Kind        Kind
	CreatedAt   time.Time
	FireAt      time.Time // zero for recurring checks
}

type scheduledCheck struct {
	info    CheckInfo
	timer   *time.Timer // one-shot
	cronID  cron.EntryID
	hasCron bool

	// recurrence is nil for one-shot checks and set for every recurring
	// check; MaxOccurrences <= 0 means it runs until cancelled.
	recurrence *RecurrenceInfo
}

// Scheduler owns every outstanding check-in for every session.
type Scheduler struct {
	mu       sync.Mutex
	checks   map[CheckID]*scheduledCheck
	nextID   uint64
	cron     *cron.Cron
	stopped  bool
}

// New starts the scheduler's internal cron runner. Call Stop on shutdown.
func New() *Scheduler {
	s := &Scheduler{
		checks: make(map[CheckID]*scheduledCheck),
		cron:   cron.New(),
	}
	s.cron.Start()
	return s
}

func (s *Scheduler) allocID() CheckID {
	s.nextID++
	return CheckID(fmt.Sprintf("chk-%d", s.nextID))
}

// ScheduleCheck fires fn once after delay (spec §4.7 one-shot check-in).
func (s *Scheduler) ScheduleCheck(sessionName, label string, delay time.Duration, fn func()) CheckID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocID()
	now := time.Now()
	sc := &scheduledCheck{info: CheckInfo{
		ID: id, SessionName: sessionName, Label: label,
		Kind: KindOneShot, CreatedAt: now, FireAt: now.Add(delay),
	}}
	sc.timer = time.AfterFunc(delay, func() {
		s.fireOneShot(id, fn)
	})
	s.checks[id] = sc
	return id
}

func (s *Scheduler) fireOneShot(id CheckID, fn func()) {
	s.mu.Lock()
	delete(s.checks, id)
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("scheduler: one-shot check panic: %v", r)
		}
	}()
	fn()
}

// ScheduleRecurringCheck registers fn on a cron schedule expression (e.g.
// "@every 30s"). maxOccurrences <= 0 means unlimited (runs until CancelCheck
// or Stop); a positive maxOccurrences self-cancels the check once fn has
// fired that many times (spec §8 scenario 5).
func (s *Scheduler) ScheduleRecurringCheck(sessionName, label, cronExpr string, maxOccurrences int, fn func()) (CheckID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocID()
	rec := &RecurrenceInfo{MaxOccurrences: maxOccurrences}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.Errorf("scheduler: recurring check panic: %v", r)
			}
		}()

		s.mu.Lock()
		sc, ok := s.checks[id]
		if !ok {
			s.mu.Unlock()
			return
		}
		sc.recurrence.CurrentOccur++
		reachedMax := sc.recurrence.MaxOccurrences > 0 && sc.recurrence.CurrentOccur >= sc.recurrence.MaxOccurrences
		s.mu.Unlock()

		fn()

		if reachedMax {
			s.CancelCheck(id)
		}
	})
	if err != nil {
		return "", fmt.Errorf("scheduler: invalid cron expression %q: %w", cronExpr, err)
	}

	s.checks[id] = &scheduledCheck{
		info: CheckInfo{
			ID: id, SessionName: sessionName, Label: label,
			Kind: KindRecurring, CreatedAt: time.Now(),
		},
		cronID:     entryID,
		hasCron:    true,
		recurrence: rec,
	}
	return id, nil
}

// ScheduleRecurringCheckEvery is a duration-based convenience over
// ScheduleRecurringCheck, e.g.
// ScheduleRecurringCheckEvery("dev-4", "progress_check", 25*time.Minute, 3, fn)
// fires at +25m, +50m, +75m and then self-cancels (spec §8 scenario 5).
func (s *Scheduler) ScheduleRecurringCheckEvery(sessionName, label string, interval time.Duration, maxOccurrences int, fn func()) (CheckID, error) {
	return s.ScheduleRecurringCheck(sessionName, label, everyDurationExpr(interval), maxOccurrences, fn)
}

// ScheduleDefaultCheckins sets up the standing recurring check-ins spec §4.7
// names: a default check-in and a commit-reminder, each firing every n
// minutes via "@every".
func (s *Scheduler) ScheduleDefaultCheckins(sessionName string, checkinMinutes, commitReminderMinutes int, fn func(label string)) ([]CheckID, error) {
	var ids []CheckID

	id, err := s.ScheduleRecurringCheck(sessionName, "default_checkin", everyExpr(checkinMinutes), 0, func() { fn("default_checkin") })
	if err != nil {
		return nil, err
	}
	ids = append(ids, id)

	id, err = s.ScheduleRecurringCheck(sessionName, "commit_reminder", everyExpr(commitReminderMinutes), 0, func() { fn("commit_reminder") })
	if err != nil {
		s.CancelCheck(ids[0])
		return nil, err
	}
	ids = append(ids, id)

	return ids, nil
}

// ScheduleContinuationCheck schedules a one-shot check labelled
// "continuation_check" for sessionName that runs fn after delay.
func (s *Scheduler) ScheduleContinuationCheck(sessionName string, delay time.Duration, fn func()) CheckID {
	return s.ScheduleCheck(sessionName, "continuation_check", delay, fn)
}

// ScheduleAdaptiveCheckin schedules the next one-shot check-in using the
// adaptive backoff formula (spec §9), re-arming itself isn't automatic —
// callers re-invoke this after each fire with the updated idle count.
func (s *Scheduler) ScheduleAdaptiveCheckin(sessionName string, cfg AdaptiveConfig, consecutiveIdleChecks int, fn func()) CheckID {
	delay := cfg.NextInterval(consecutiveIdleChecks)
	return s.ScheduleCheck(sessionName, "adaptive_checkin", delay, fn)
}

// CancelCheck stops and removes a check by ID. Returns false if unknown
// (idempotent: cancelling twice is not an error).
func (s *Scheduler) CancelCheck(id CheckID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id CheckID) bool {
	sc, ok := s.checks[id]
	if !ok {
		return false
	}
	delete(s.checks, id)
	if sc.hasCron {
		s.cron.Remove(sc.cronID)
	} else if sc.timer != nil {
		sc.timer.Stop()
	}
	return true
}

// CancelAllChecksForSession cancels every outstanding check for
// sessionName (spec §5 "kill cancels pending scheduler entries").
func (s *Scheduler) CancelAllChecksForSession(sessionName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sc := range s.checks {
		if sc.info.SessionName == sessionName {
			s.cancelLocked(id)
		}
	}
}

// GetChecksForSession lists every outstanding check for sessionName.
func (s *Scheduler) GetChecksForSession(sessionName string) []CheckInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CheckInfo
	for _, sc := range s.checks {
		if sc.info.SessionName == sessionName {
			out = append(out, sc.info)
		}
	}
	return out
}

// Stats summarizes scheduler load (spec §4.7 "getStats").
type Stats struct {
	TotalChecks     int
	OneShotChecks   int
	RecurringChecks int
}

func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{TotalChecks: len(s.checks)}
	for _, sc := range s.checks {
		if sc.info.Kind == KindOneShot {
			st.OneShotChecks++
		} else {
			st.RecurringChecks++
		}
	}
	return st
}

// Cleanup removes one-shot entries whose fire time passed more than a
// minute ago but that somehow never got reaped (defensive sweep; AfterFunc
// normally self-removes via fireOneShot).
func (s *Scheduler) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, sc := range s.checks {
		if sc.info.Kind == KindOneShot && !sc.info.FireAt.IsZero() && now.After(sc.info.FireAt.Add(time.Minute)) {
			s.cancelLocked(id)
		}
	}
}

// Stop halts the cron runner and every outstanding one-shot timer.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, sc := range s.checks {
		if sc.timer != nil {
			sc.timer.Stop()
		}
	}
	s.checks = make(map[CheckID]*scheduledCheck)
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

func everyExpr(minutes int) string {
	if minutes <= 0 {
		minutes = 1
	}
	return fmt.Sprintf("@every %dm", minutes)
}

func everyDurationExpr(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	return fmt.Sprintf("@every %s", d)
}
