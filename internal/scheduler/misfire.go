package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/engine"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/jonboulle/clockwork"
)

// defaultMisfireGrace bounds how late a run may fire and still execute.
const defaultMisfireGrace = 3 * time.Minute

// misfireTask wraps a job function with gocron v2's missing "misfire
// grace" concept: if a run fires more than grace after it was expected to,
// it is skipped and logged instead of executed, matching the
// job_defaults.misfire_grace_time semantics APScheduler-based schedulers
// rely on. gocron has no job-start callback that reports a run's
// originally scheduled time, so expected fire times are tracked here from
// each run's own completion instead.
type misfireTask struct {
	name    string
	grace   time.Duration
	nominal time.Duration // the job's steady-state interval, used to predict the next expected fire
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
	fn      func(context.Context) error

	mu       sync.Mutex
	expected time.Time
}

func newMisfireTask(name string, grace, nominal time.Duration, clk clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics, fn func(context.Context) error) *misfireTask {
	return &misfireTask{name: name, grace: grace, nominal: nominal, clock: clk, logger: logger, metrics: metrics, fn: fn}
}

// run is the func() gocron invokes.
func (m *misfireTask) run() {
	now := m.clock.Now()

	m.mu.Lock()
	expected := m.expected
	m.mu.Unlock()

	if !expected.IsZero() && m.grace > 0 && now.Sub(expected) > m.grace {
		m.logger.Warn("job misfired, skipping run", "job", m.name, "late_by", now.Sub(expected))
		m.metrics.JobsRun.WithLabelValues(m.name, "misfire").Inc()
		m.setExpected(now.Add(m.nominal))
		return
	}

	start := now
	err := m.fn(context.Background())
	duration := m.clock.Now().Sub(start)
	m.metrics.JobDuration.WithLabelValues(m.name).Observe(duration.Seconds())

	result := "success"
	if err != nil {
		result = "fail"
		if errors.Is(err, engine.ErrTransientStorage) {
			result = "misfire"
		}
		m.logger.Error("job run failed", "job", m.name, "error", err)
	}
	m.metrics.JobsRun.WithLabelValues(m.name, result).Inc()

	m.setExpected(m.clock.Now().Add(m.nominal))
}

func (m *misfireTask) setExpected(t time.Time) {
	m.mu.Lock()
	m.expected = t
	m.mu.Unlock()
}
