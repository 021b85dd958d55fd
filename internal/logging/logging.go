// Package logging builds the logrus.Logger every QuickFetch entry point
// shares, level-configured from the environment.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// LevelEnvVar is the environment variable naming a logrus level
// ("debug", "info", "warn", "error", ...).
const LevelEnvVar = "QUICKFETCH_LOG_LEVEL"

// New builds a logrus.Logger with a text formatter and the level named
// by QUICKFETCH_LOG_LEVEL, defaulting to Info when unset or unparseable.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if raw := os.Getenv(LevelEnvVar); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logger
}
