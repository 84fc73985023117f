package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/observability"
	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/jonboulle/clockwork"
)

// activeWindow bounds clustering to stations with a measurement in the
// last 30 days.
const activeWindow = 30 * 24 * time.Hour

// Job runs the periodic clustering admin job, assigning each of a range of
// zoom-level cluster counts a representative station per cluster.
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

// SaveClusters reclusters every active station into a geometrically spaced
// range of cluster counts between minCluster and the total number of active
// stations, `numClusters` levels wide, and stamps one representative
// station per (level, cluster) pair.
func (j *Job) SaveClusters(ctx context.Context, minCluster, numClusters int) error {
	start := j.Clock.Now()
	cutoff := start.Add(-activeWindow)

	stations, err := j.Store.ListStations(ctx, store.StationFilter{
		ExcludeHidden: true,
		MeasuredSince: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("cluster: list stations: %w", err)
	}

	if err := j.Store.SetClusterControl(ctx, store.ClusterControl{Min: minCluster, Max: len(stations)}); err != nil {
		return fmt.Errorf("cluster: set control document: %w", err)
	}

	if len(stations) == 0 {
		j.Logger.InfoContext(ctx, "no active stations, nothing to cluster")
		return nil
	}

	points := make([]Point, len(stations))
	for i, s := range stations {
		points[i] = Point{X: s.Location.Lon, Y: s.Location.Lat}
	}
	dendrogram := Build(points)

	levels := geomspaceInts(minCluster, len(stations), numClusters)
	assigned := make(map[string][]int, len(stations))
	levelCounts := make(map[int]int, len(levels))

	// Largest n_clusters (finest granularity) first, matching the
	// original's `reversed(range_clusters)` iteration order.
	for i := len(levels) - 1; i >= 0; i-- {
		n := levels[i]
		labels := dendrogram.CutK(n)
		groups := groupByLabel(labels)
		for _, members := range groups {
			repIdx, ok := pickRepresentative(stations, members)
			if !ok {
				j.Logger.WarnContext(ctx, "ignoring cluster, no member station has a measurement", "n_clusters", n)
				continue
			}
			id := stations[repIdx].ID
			assigned[id] = append(assigned[id], n)
			levelCounts[n]++
		}
	}

	updates := make([]store.StationFieldUpdate, len(stations))
	for i, s := range stations {
		updates[i] = store.StationFieldUpdate{StationID: s.ID, Clusters: assigned[s.ID]}
	}
	if err := j.Store.BulkWriteStationFields(ctx, updates); err != nil {
		return fmt.Errorf("cluster: bulk write: %w", err)
	}

	for level, count := range levelCounts {
		j.Metrics.ClustersAssigned.WithLabelValues(fmt.Sprintf("%d", level)).Set(float64(count))
	}
	j.Metrics.AdminJobDuration.WithLabelValues("clusters").Observe(j.Clock.Now().Sub(start).Seconds())
	j.Logger.InfoContext(ctx, "save_clusters done", "stations", len(stations), "levels", len(levels))
	return nil
}

// pickRepresentative finds, among the station indexes in members, the one
// closest to their centroid. When several stations share that closest
// station's exact coordinate (coincident locations), the one with the freshest
// measurement wins; if none of the tied stations has ever reported a
// measurement, the cluster is skipped entirely rather than picking
// arbitrarily.
func pickRepresentative(stations []store.Station, members []int) (int, bool) {
	if len(members) == 1 {
		return members[0], true
	}

	var sumLon, sumLat float64
	for _, idx := range members {
		sumLon += stations[idx].Location.Lon
		sumLat += stations[idx].Location.Lat
	}
	centroid := Point{X: sumLon / float64(len(members)), Y: sumLat / float64(len(members))}

	closest, bestDist := -1, math.Inf(1)
	for _, idx := range members {
		p := Point{X: stations[idx].Location.Lon, Y: stations[idx].Location.Lat}
		d := (p.X-centroid.X)*(p.X-centroid.X) + (p.Y-centroid.Y)*(p.Y-centroid.Y)
		if d < bestDist {
			closest, bestDist = idx, d
		}
	}
	var tied []int
	for _, idx := range members {
		if stations[idx].Location == stations[closest].Location {
			tied = append(tied, idx)
		}
	}
	if len(tied) == 1 {
		return tied[0], true
	}

	best, bestSeen := -1, int64(0)
	for _, idx := range tied {
		if stations[idx].Last == nil {
			continue
		}
		if best == -1 || stations[idx].Last.ID > bestSeen {
			best, bestSeen = idx, stations[idx].Last.ID
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func groupByLabel(labels []int) map[int][]int {
	groups := make(map[int][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

// geomspaceInts mirrors numpy.geomspace(min, max, num, dtype=int): num
// points spaced geometrically between min and max inclusive, truncated to
// int. When min or max is non-positive (degenerate station count), it
// falls back to a single-point range of max.
func geomspaceInts(min, max, num int) []int {
	if min <= 0 || max <= 0 || num <= 0 {
		return []int{max}
	}
	if num == 1 {
		return []int{max}
	}
	logMin, logMax := math.Log(float64(min)), math.Log(float64(max))
	out := make([]int, num)
	for i := 0; i < num; i++ {
		t := float64(i) / float64(num-1)
		v := math.Exp(logMin + t*(logMax-logMin))
		out[i] = int(v)
	}
	// Force the exact endpoints, the same way numpy.geomspace overwrites
	// out[0]/out[-1] after computing log-space values, to dodge float
	// rounding at the boundary.
	out[0] = min
	out[num-1] = max
	sort.Ints(out)
	return out
}
