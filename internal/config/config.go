// Package config centralizes environment-driven configuration for the
// control plane, following the teacher's .env-then-os.Getenv layering
// (main.go's godotenv.Load, process/state.go's getEnvOrDefault).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable named or implied by spec.md sections 2-7.
type Config struct {
	// CrewlyHome is the root directory for on-disk state ($CREWLY_HOME or ~/.crewly).
	CrewlyHome string

	// Terminal Buffer
	MaxRawHistoryBytes int
	DefaultCols        int
	DefaultRows        int

	// Iteration Tracking
	DefaultMaxIterations int
	HardMaxIterations    int

	// Event Bus
	DebounceWindow time.Duration
	DedupWindow    time.Duration
	BusCleanupTick time.Duration

	// Scheduler defaults (spec §4.7, §9 adaptive formula)
	AdaptiveBaseMinutes   float64
	AdaptiveMinMinutes    float64
	AdaptiveMaxMinutes    float64
	AdaptiveFactor        float64
	DefaultCheckinMinutes int
	CommitReminderMinutes int
	ProgressCheckMinutes  int

	// Activity Monitor
	ActivitySweepInterval  time.Duration
	ActivityProbeTimeout   time.Duration
	ActivitySweepBudget    time.Duration
	ActivityIdleThreshold  int
	ActivitySnapshotCap    int
	ActivityCleanupEvery   time.Duration
	ActivityCaptureLines   int
	ActivityCaptureMaxSize int

	// Notifications
	NotificationRingSize int

	// Analyzer
	AnalyzerRecentLines int

	LogLevel string
}

// Load reads configuration from the process environment, loading an .env
// file first if one is present (same precedence the teacher uses in main.go).
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, continuing with process environment")
	}

	home := os.Getenv("CREWLY_HOME")
	if home == "" {
		if userHome, err := os.UserHomeDir(); err == nil {
			home = userHome + "/.crewly"
		} else {
			home = ".crewly"
		}
	}

	return &Config{
		CrewlyHome: home,

		MaxRawHistoryBytes: getEnvInt("CREWLY_MAX_RAW_BYTES", 10*1024*1024),
		DefaultCols:        getEnvInt("CREWLY_DEFAULT_COLS", 120),
		DefaultRows:        getEnvInt("CREWLY_DEFAULT_ROWS", 40),

		DefaultMaxIterations: getEnvInt("CREWLY_DEFAULT_MAX_ITERATIONS", 10),
		HardMaxIterations:    getEnvInt("CREWLY_HARD_MAX_ITERATIONS", 100),

		DebounceWindow: getEnvDuration("CREWLY_DEBOUNCE_WINDOW", 5*time.Second),
		DedupWindow:    getEnvDuration("CREWLY_DEDUP_WINDOW", 10*time.Second),
		BusCleanupTick: getEnvDuration("CREWLY_BUS_CLEANUP_INTERVAL", 60*time.Second),

		AdaptiveBaseMinutes:   getEnvFloat("CREWLY_ADAPTIVE_BASE_MINUTES", 15),
		AdaptiveMinMinutes:    getEnvFloat("CREWLY_ADAPTIVE_MIN_MINUTES", 5),
		AdaptiveMaxMinutes:    getEnvFloat("CREWLY_ADAPTIVE_MAX_MINUTES", 60),
		AdaptiveFactor:        getEnvFloat("CREWLY_ADAPTIVE_FACTOR", 1.5),
		DefaultCheckinMinutes: getEnvInt("CREWLY_DEFAULT_CHECKIN_MINUTES", 5),
		CommitReminderMinutes: getEnvInt("CREWLY_COMMIT_REMINDER_MINUTES", 25),
		ProgressCheckMinutes:  getEnvInt("CREWLY_PROGRESS_CHECK_MINUTES", 30),

		ActivitySweepInterval:  getEnvDuration("CREWLY_ACTIVITY_SWEEP_INTERVAL", 30*time.Second),
		ActivityProbeTimeout:   getEnvDuration("CREWLY_ACTIVITY_PROBE_TIMEOUT", 700*time.Millisecond),
		ActivitySweepBudget:    getEnvDuration("CREWLY_ACTIVITY_SWEEP_BUDGET", 2*time.Second),
		ActivityIdleThreshold:  getEnvInt("CREWLY_ACTIVITY_IDLE_THRESHOLD", 3),
		ActivitySnapshotCap:    getEnvInt("CREWLY_ACTIVITY_SNAPSHOT_CAP", 10),
		ActivityCleanupEvery:   getEnvDuration("CREWLY_ACTIVITY_CLEANUP_INTERVAL", 5*time.Minute),
		ActivityCaptureLines:   getEnvInt("CREWLY_ACTIVITY_CAPTURE_LINES", 10),
		ActivityCaptureMaxSize: getEnvInt("CREWLY_ACTIVITY_CAPTURE_MAX_BYTES", 1024),

		NotificationRingSize: getEnvInt("CREWLY_NOTIFICATION_RING_SIZE", 100),

		AnalyzerRecentLines: getEnvInt("CREWLY_ANALYZER_RECENT_LINES", 100),

		LogLevel: getEnvOrDefault("CREWLY_LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
		logrus.WithField("key", key).Warn("invalid integer env value, using default")
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
		logrus.WithField("key", key).Warn("invalid float env value, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		logrus.WithField("key", key).Warn("invalid duration env value, using default")
	}
	return defaultValue
}
