package continuation

// SessionConfig holds the per-session tunables the Continuation Engine
// consults before dispatching (spec §4.6 step 1 "load session config").
// The zero value has continuation disabled; DefaultSessionConfig builds the
// default behavior.
type SessionConfig struct {
	Enabled       bool
	MaxIterations uint64

	// AutoAssignNext gates the assign_next_task recommendation (spec §4.6
	// step 5): when false, or when true but the task queue is empty, the
	// engine falls through to notify_owner instead of popping a task.
	AutoAssignNext bool

	// NotifyOnMaxIterations and NotifyOnError gate whether a notify_owner
	// forced by, respectively, hitting the iteration cap or a STUCK_OR_ERROR
	// conclusion actually appends to the notification ring, or whether the
	// engine just pauses the session quietly instead.
	NotifyOnMaxIterations bool
	NotifyOnError         bool

	TaskQueue []string
}

// DefaultSessionConfig returns continuation enabled with defaultMax as the
// cap, an empty task queue, and every notify/auto-assign flag on (matching
// spec §8's "reaching cap forces notify_owner" invariant as the default).
func DefaultSessionConfig(defaultMax uint64) SessionConfig {
	return SessionConfig{
		Enabled:               true,
		MaxIterations:         defaultMax,
		AutoAssignNext:        true,
		NotifyOnMaxIterations: true,
		NotifyOnError:         true,
	}
}

// PopNextTask removes and returns the head of the task queue, or ("", false)
// if empty.
func (c *SessionConfig) PopNextTask() (string, bool) {
	if len(c.TaskQueue) == 0 {
		return "", false
	}
	task := c.TaskQueue[0]
	c.TaskQueue = c.TaskQueue[1:]
	return task, true
}

// ConfigStore is a registry of SessionConfig keyed by session name. It does
// no locking: Engine.HandleEvent reaches it from the event bus's single
// command goroutine, while Engine.Config and Engine.Acknowledge reach it from
// whichever goroutine calls them.
type ConfigStore struct {
	defaultMax uint64
	configs    map[string]*SessionConfig
}

func NewConfigStore(defaultMax uint64) *ConfigStore {
	return &ConfigStore{defaultMax: defaultMax, configs: make(map[string]*SessionConfig)}
}

func (s *ConfigStore) GetOrCreate(sessionName string) *SessionConfig {
	cfg, ok := s.configs[sessionName]
	if !ok {
		c := DefaultSessionConfig(s.defaultMax)
		cfg = &c
		s.configs[sessionName] = cfg
	}
	return cfg
}

func (s *ConfigStore) Set(sessionName string, cfg SessionConfig) {
	s.configs[sessionName] = &cfg
}

func (s *ConfigStore) Delete(sessionName string) {
	delete(s.configs, sessionName)
}
