// Package logging builds the process-wide logrus logger, the teacher's
// structured-logging idiom (logrus.WithFields at every subsystem boundary).
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger from a level string
// ("debug", "info", "warn", "error"); unrecognized levels fall back to info.
func Init(level string) {
	logrus.SetOutput(os.Stdout)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("unrecognized log level, defaulting to info")
		parsed = logrus.InfoLevel
	}
	logrus.SetLevel(parsed)
}

// Component returns a logger scoped to a subsystem name, mirroring the
// teacher's logrus.WithField("component", ...) convention (process/state.go).
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
