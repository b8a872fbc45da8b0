package portal

import (
	"github.com/sirupsen/logrus"

	"github.com/hackgods/dental-practice-portal/internal/logging"
)

// Notifier surfaces the outcome of a mutation to the user.
type Notifier interface {
	Success(message string)
	// Error reports a failed request. err may be nil for aggregate failures.
	Error(message string, err error)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	entry *logrus.Entry
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{entry: logger.WithComponent("portal")}
}

func (n *LogNotifier) Success(message string) {
	n.entry.Info(message)
}

func (n *LogNotifier) Error(message string, err error) {
	if err != nil {
		n.entry.WithError(err).Warn(message)
		return
	}
	n.entry.Warn(message)
}

type discardNotifier struct{}

func (discardNotifier) Success(string) {}
func (discardNotifier) Error(string, error) {}
