package scheduler

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMisfireTask_FirstRunAlwaysExecutes(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	ran := 0
	mt := newMisfireTask("t", time.Minute, time.Minute, fakeClock, slog.Default(), observability.NewMetricsForTesting(),
		func(context.Context) error { ran++; return nil })

	mt.run()
	assert.Equal(t, 1, ran)
}

func TestMisfireTask_OnTimeRunExecutes(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	ran := 0
	mt := newMisfireTask("t", time.Minute, time.Minute, fakeClock, slog.Default(), observability.NewMetricsForTesting(),
		func(context.Context) error { ran++; return nil })

	mt.run()
	fakeClock.Advance(time.Minute)
	mt.run()
	assert.Equal(t, 2, ran)
}

func TestMisfireTask_LateRunIsSkipped(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	ran := 0
	mt := newMisfireTask("t", time.Minute, time.Minute, fakeClock, slog.Default(), observability.NewMetricsForTesting(),
		func(context.Context) error { ran++; return nil })

	mt.run()
	// Interval is 1 minute, grace is 1 minute: firing 3 minutes after the
	// previous run is 2 minutes past the expected time, which exceeds the
	// grace window and must be skipped.
	fakeClock.Advance(3 * time.Minute)
	mt.run()
	assert.Equal(t, 1, ran, "a run arriving well past its grace window must be skipped")
}

func TestMisfireTask_PropagatesRunError(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	wantErr := assert.AnError
	var gotErr error
	mt := newMisfireTask("t", time.Minute, time.Minute, fakeClock, slog.Default(), observability.NewMetricsForTesting(),
		func(context.Context) error { gotErr = wantErr; return wantErr })

	mt.run()
	require.Equal(t, wantErr, gotErr)
}
