// Package scheduler wires the periodic execution of provider adapters and
// admin jobs on top of gocron v2, with a two-executor-pool layout
// (admin=1 worker, providers=2 workers), misfire grace, coalescing, and
// per-run start jitter.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// defaultStartDelay gives every adapter job a common starting point before
// per-run jitter spreads them out.
const defaultStartDelay = 10 * time.Second

// defaultJitter is the default per-run randomized delay applied to adapter
// jobs.
const defaultJitter = 5 * time.Minute

// AdapterJob is one provider adapter's scheduling definition.
type AdapterJob struct {
	Name     string
	Interval time.Duration
	Jitter   time.Duration // 0 defaults to defaultJitter
	Run      func(context.Context) error
}

// AdminJob is one admin job's scheduling definition, fired daily at Hour:00.
type AdminJob struct {
	Name string
	Hour uint
	Run  func(context.Context) error
}

// Scheduler owns the admin and providers gocron pools.
type Scheduler struct {
	admin     gocron.Scheduler
	providers gocron.Scheduler

	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	misfireGrace time.Duration
	startDelay   time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Scheduler with the admin pool limited to 1 concurrent
// job and the providers pool limited to 2, both in LimitModeWait.
func New(logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock) (*Scheduler, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	admin, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create admin pool: %w", err)
	}
	providers, err := gocron.NewScheduler(gocron.WithLimitConcurrentJobs(2, gocron.LimitModeWait))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create providers pool: %w", err)
	}

	return &Scheduler{
		admin: admin, providers: providers,
		logger: logger, metrics: metrics, clock: clk,
		misfireGrace: defaultMisfireGrace, startDelay: defaultStartDelay,
		stopCh: make(chan struct{}),
	}, nil
}

// RegisterAdapter schedules job on the providers pool, on a fixed interval
// started defaultStartDelay from now, with up to Jitter of randomized
// per-run delay applied before each invocation. The jitter perturbs when
// each run fires, not the steady-state interval itself, so gocron's
// DurationRandomJob (which randomizes the interval) doesn't fit here.
func (s *Scheduler) RegisterAdapter(job AdapterJob) error {
	jitter := job.Jitter
	if jitter <= 0 {
		jitter = defaultJitter
	}

	// The next expected fire allows for the jitter delay, so a run held back
	// only by its own jitter is not counted as late.
	mt := newMisfireTask(job.Name, s.misfireGrace, job.Interval+jitter, s.clock, s.logger, s.metrics, job.Run)
	task := func() {
		if d := s.jitterDelay(jitter); d > 0 {
			select {
			case <-time.After(d):
			case <-s.stopCh:
				return
			}
		}
		mt.run()
	}

	_, err := s.providers.NewJob(
		gocron.DurationJob(job.Interval),
		gocron.NewTask(task),
		gocron.WithStartAt(gocron.WithStartDateTime(s.clock.Now().Add(s.startDelay))),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register adapter %q: %w", job.Name, err)
	}
	s.metrics.JobsRegistered.Inc()
	return nil
}

// RegisterAdmin schedules job on the admin pool, once daily at job.Hour:00.
func (s *Scheduler) RegisterAdmin(job AdminJob) error {
	mt := newMisfireTask(job.Name, s.misfireGrace, 24*time.Hour, s.clock, s.logger, s.metrics, job.Run)

	_, err := s.admin.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(job.Hour, 0, 0))),
		gocron.NewTask(mt.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register admin job %q: %w", job.Name, err)
	}
	s.metrics.JobsRegistered.Inc()
	return nil
}

// Start starts both pools.
func (s *Scheduler) Start() {
	s.admin.Start()
	s.providers.Start()
}

// Shutdown stops both pools and interrupts any job currently sleeping out
// its jitter delay.
func (s *Scheduler) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if err := s.providers.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown providers pool: %w", err)
	}
	if err := s.admin.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown admin pool: %w", err)
	}
	return nil
}

func (s *Scheduler) jitterDelay(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
