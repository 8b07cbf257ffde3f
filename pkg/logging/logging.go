// Package logging provides the leveled logger used across driftdb's
// storage packages, so a frame eviction or a directory split can be
// traced without sprinkling fmt.Println through the hot path.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	log  *logrus.Logger
)

// Component returns a logger tagged with the given subsystem name
// (e.g. "buffer", "replacer", "hashindex"). The underlying logrus
// instance is shared and initialized once, with its level taken from
// the DRIFTDB_LOG_LEVEL environment variable (defaults to "warn").
func Component(name string) *logrus.Entry {
	once.Do(initLogger)
	return log.WithField("component", name)
}

func initLogger() {
	log = logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(parseLevel(os.Getenv("DRIFTDB_LOG_LEVEL")))
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	case "warn", "warning", "":
		return logrus.WarnLevel
	default:
		return logrus.WarnLevel
	}
}
