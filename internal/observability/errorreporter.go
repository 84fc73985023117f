package observability

import (
	"github.com/getsentry/sentry-go"
)

// ErrorReporter sends unexpected errors to an external error-tracking
// backend. A no-op implementation is used when SENTRY_URL is unset, so
// every optional subsystem degrades the same way when unconfigured.
type ErrorReporter interface {
	ReportError(err error, tags map[string]string)
	Close()
}

type noopReporter struct{}

func (noopReporter) ReportError(error, map[string]string) {}
func (noopReporter) Close()                                {}

type sentryReporter struct{}

// NewErrorReporter returns a Sentry-backed reporter when dsn is non-empty,
// otherwise a no-op reporter.
func NewErrorReporter(dsn, environment string) (ErrorReporter, error) {
	if dsn == "" {
		return noopReporter{}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	return sentryReporter{}, nil
}

func (sentryReporter) ReportError(err error, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

func (sentryReporter) Close() {
	sentry.Flush(2e9)
}
