package alerting

import (
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// Notifier forwards structured error notifications to Sentry. It is safe to
// call on a nil receiver or with Sentry unconfigured, and Notify never
// panics into the caller: alerting is fire-and-forget.
type Notifier struct {
	enabled bool
}

// New returns a Notifier. Pass enabled=false when no Sentry DSN is
// configured; Notify then degrades to a log line.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// Notify reports err under an error class such as "API | schedule_messages".
func (n *Notifier) Notify(errorClass string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("alerting notify panicked", "recover", r)
		}
	}()

	if err == nil {
		return
	}
	if n == nil || !n.enabled {
		slog.Warn("alert (sentry disabled)", "error_class", errorClass, "error", err)
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_class", errorClass)
		sentry.CaptureException(err)
	})
}
