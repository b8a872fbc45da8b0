package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so every binary shares one JSON layout.
type Logger struct {
	*logrus.Logger
}

// New creates a JSON logger at the given level. Unknown levels fall back to info.
func New(level string) *Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// Default returns an info level logger.
func Default() *Logger {
	return New("info")
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	l := New("error")
	l.SetOutput(io.Discard)
	return l
}

// WithComponent tags entries with the emitting component.
func (l *Logger) WithComponent(name string) *logrus.Entry {
	return l.WithField("component", name)
}
