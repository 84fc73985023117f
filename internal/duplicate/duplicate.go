// Package duplicate implements the periodic job that flags stations
// sitting within a configurable distance of each other as duplicates and
// ranks them so downstream consumers can prefer the highest-rated one.
package duplicate

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/cluster"
	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/jonboulle/clockwork"
)

// degreeMetersDivisor converts a distance in meters to a coarse
// degrees-of-arc proxy (`distance / 100_000`), deliberately not a planar
// projection — good enough at clustering distances and cheap to compute.
const degreeMetersDivisor = 100_000.0

// Job runs the periodic duplicate-detection admin job.
type Job struct {
	Store              store.Store
	Logger             *slog.Logger
	Metrics            *observability.Metrics
	Clock              clockwork.Clock
	PreferredProviders []string
}

// NewJob constructs a Job, defaulting Clock to a real clock when nil.
func NewJob(st store.Store, logger *slog.Logger, metrics *observability.Metrics, clk clockwork.Clock, preferredProviders []string) *Job {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Job{Store: st, Logger: logger, Metrics: metrics, Clock: clk, PreferredProviders: preferredProviders}
}

// FindDuplicates clusters every non-hidden station by Ward linkage up to a
// distance threshold and stamps every member of a cluster with more than
// one station with a DuplicateInfo listing every member of the cluster
// (itself included) and its own rating, so the map UI can prefer the
// highest-rated one.
func (j *Job) FindDuplicates(ctx context.Context, distanceMeters int) error {
	start := j.Clock.Now()

	stations, err := j.Store.ListStations(ctx, store.StationFilter{ExcludeHidden: true})
	if err != nil {
		return fmt.Errorf("duplicate: list stations: %w", err)
	}
	if len(stations) == 0 {
		j.Logger.InfoContext(ctx, "no active stations, nothing to deduplicate")
		return nil
	}

	points := make([]cluster.Point, len(stations))
	for i, s := range stations {
		points[i] = cluster.Point{X: s.Location.Lon, Y: s.Location.Lat}
	}
	dendrogram := cluster.Build(points)
	threshold := float64(distanceMeters) / degreeMetersDivisor
	labels := dendrogram.CutDistance(threshold)

	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}

	now := j.Clock.Now()
	updates := make([]store.StationFieldUpdate, 0, len(stations))
	for _, s := range stations {
		updates = append(updates, store.StationFieldUpdate{StationID: s.ID, Duplicates: nil})
	}

	numDuplicateStations := 0
	numGroups := 0
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		numGroups++

		ids := make([]string, len(members))
		ratings := make([]int, len(members))
		highest, highestRating := 0, -1
		for i, idx := range members {
			ids[i] = stations[idx].ID
			ratings[i] = stationRating(stations[idx], now, j.PreferredProviders)
			if ratings[i] > highestRating {
				highest, highestRating = i, ratings[i]
			}
		}
		numDuplicateStations += len(members)

		for i, idx := range members {
			info := &store.DuplicateInfo{
				Stations:        ids,
				Rating:          ratings[i],
				IsHighestRating: i == highest,
			}
			updates = append(updates, store.StationFieldUpdate{StationID: stations[idx].ID, Duplicates: info})
		}
	}

	if err := j.Store.BulkWriteStationFields(ctx, updates); err != nil {
		return fmt.Errorf("duplicate: bulk write: %w", err)
	}

	j.Metrics.DuplicateGroups.Set(float64(numGroups))
	j.Metrics.AdminJobDuration.WithLabelValues("duplicates").Observe(j.Clock.Now().Sub(start).Seconds())
	j.Logger.InfoContext(ctx, "find_duplicates done", "stations", numDuplicateStations, "groups", numGroups)
	return nil
}

// stationRating scores a station for duplicate-preference ranking: higher
// wins. The preferred-provider boost is configurable via preferredProviders
// rather than a hardcoded provider list.
func stationRating(s store.Station, now time.Time, preferredProviders []string) int {
	switch s.Status {
	case store.StatusOrange:
		return 5
	case store.StatusRed:
		return 1
	}

	rating := 0
	if s.Status == store.StatusGreen {
		rating += 20
	}

	if s.Last != nil {
		age := now.Unix() - s.Last.ID
		switch {
		case age < 30*60:
			rating += 25
		case age < 3600:
			rating += 20
		case age < 5*24*3600:
			rating += 5
		}
		rating += 2
	}

	if slices.Contains(preferredProviders, s.ProviderCode) {
		rating++
	}

	if s.Name != s.ShortName {
		rating++
	}

	return rating
}
