// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup switches the standard logger to JSON output at the given level.
// When filePath is set, output is also appended to that file. An unknown level
// falls back to info.
func Setup(level, filePath string) *logrus.Logger {
	logger := logrus.StandardLogger()
	configure(logger, level, filePath, os.Stderr)
	return logger
}

func configure(logger *logrus.Logger, level, filePath string, stderr io.Writer) {
	logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if filePath == "" {
		logger.SetOutput(stderr)
	} else if file, ferr := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
		logger.SetOutput(io.MultiWriter(stderr, file))
	} else {
		logger.SetOutput(stderr)
		logger.WithError(ferr).Error("could not open log file")
	}

	if err != nil && level != "" {
		logger.WithField("level", level).Warn("unknown log level, using info")
	}
}

// Component returns an entry tagged with the component name.
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithField("component", name)
}
