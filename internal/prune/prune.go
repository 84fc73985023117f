// Package prune implements the periodic job that deletes stations no
// adapter has reported seeing for a configurable number of days.
package prune

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/jonboulle/clockwork"
)

// Job runs the periodic station-pruning admin job.
type Job struct {
	Store   store.Store
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Clock   clockwork.Clock
}

// NewJob constructs a Job, defaulting Clock to a real clock when nil.
func NewJob(st store.Store, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock) *Job {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Job{Store: st, Logger: logger, Metrics: metrics, Clock: clk}
}

// DeleteStations deletes every station (and its measurement stream) whose
// last_seen_at is older than days, optionally narrowed to a single
// provider code. An empty provider deletes across all providers.
func (j *Job) DeleteStations(ctx context.Context, days int, provider string) (int, error) {
	start := j.Clock.Now()
	cutoff := start.Add(-time.Duration(days) * 24 * time.Hour)

	stations, err := j.Store.ListStations(ctx, store.StationFilter{
		LastSeenBefore: &cutoff,
		ProviderCode:   provider,
	})
	if err != nil {
		return 0, fmt.Errorf("prune: list stations: %w", err)
	}

	deleted := 0
	for _, s := range stations {
		j.Logger.InfoContext(ctx, "deleting station",
			"station_id", s.ID, "short_name", s.ShortName, "last_seen_at", s.LastSeenAt)
		if err := j.Store.DropStream(ctx, s.ID); err != nil {
			return deleted, fmt.Errorf("prune: drop stream %q: %w", s.ID, err)
		}
		if err := j.Store.DeleteStation(ctx, s.ID); err != nil {
			return deleted, fmt.Errorf("prune: delete station %q: %w", s.ID, err)
		}
		deleted++
	}

	j.Metrics.StationsPruned.Add(float64(deleted))
	j.Metrics.AdminJobDuration.WithLabelValues("prune").Observe(j.Clock.Now().Sub(start).Seconds())
	j.Logger.InfoContext(ctx, "delete_stations done", "deleted", deleted, "provider", provider)
	return deleted, nil
}
