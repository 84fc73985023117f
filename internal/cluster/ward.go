// Package cluster implements Ward-linkage agglomerative clustering over
// 2-D points and the periodic job that marks, at each of a range of zoom
// levels, one representative station per cluster.
//
// Ward linkage has no off-the-shelf Go library, so the algorithm below is
// hand-implemented: every round recomputes the Ward distance of each pair
// of clusters from their centroids and sizes and merges the closest pair.
// The full merge history is then cut either to a fixed number of clusters
// (cluster.SaveClusters) or at a distance threshold (duplicate.FindDuplicates
// uses the same Dendrogram type).
package cluster

import "math"

// Point is a 2-D coordinate. Callers of this package pass
// (longitude, latitude) pairs.
type Point struct {
	X float64
	Y float64
}

// node is one cluster in the working set: its centroid, the number of
// original points it contains, and the indexes of the original points
// it was built from.
type node struct {
	centroid Point
	size     int
	members  []int
}

// Dendrogram is the full merge history of a Ward-linkage clustering run
// over a fixed point set, built once and then queried at any fixed-k or
// distance-threshold cutoff without recomputing.
type Dendrogram struct {
	points []Point
	// merges records one row per merge, in the order merges happened:
	// the two node ids merged and the Ward distance at which they merged.
	merges []merge
}

type merge struct {
	a, b     int
	distance float64
}

// Build runs Ward-linkage agglomerative clustering on points to
// completion (until a single cluster remains) and returns the full
// dendrogram. points must be non-empty.
func Build(points []Point) *Dendrogram {
	n := len(points)
	nodes := make(map[int]*node, n)
	for i, p := range points {
		nodes[i] = &node{centroid: p, size: 1, members: []int{i}}
	}

	d := &Dendrogram{points: points}
	nextID := n
	for len(nodes) > 1 {
		bestA, bestB, bestDist := -1, -1, math.Inf(1)
		ids := sortedKeys(nodes)
		for i, a := range ids {
			for _, b := range ids[i+1:] {
				dist := wardDistance(nodes[a], nodes[b])
				if dist < bestDist {
					bestDist = dist
					bestA, bestB = a, b
				}
			}
		}

		na, nb := nodes[bestA], nodes[bestB]
		merged := &node{
			centroid: weightedCentroid(na, nb),
			size:     na.size + nb.size,
			members:  append(append([]int{}, na.members...), nb.members...),
		}
		delete(nodes, bestA)
		delete(nodes, bestB)
		nodes[nextID] = merged
		d.merges = append(d.merges, merge{a: bestA, b: bestB, distance: bestDist})
		nextID++
	}
	return d
}

// wardDistance is the Ward linkage distance between a and b: the
// Euclidean distance between centroids scaled by sqrt(2|a||b|/(|a|+|b|)),
// in the same units as the points. For two single points it is their
// plain Euclidean distance.
func wardDistance(a, b *node) float64 {
	dx := a.centroid.X - b.centroid.X
	dy := a.centroid.Y - b.centroid.Y
	sq := dx*dx + dy*dy
	weight := float64(a.size*b.size) / float64(a.size+b.size)
	return math.Sqrt(2 * weight * sq)
}

func weightedCentroid(a, b *node) Point {
	total := float64(a.size + b.size)
	return Point{
		X: (a.centroid.X*float64(a.size) + b.centroid.X*float64(b.size)) / total,
		Y: (a.centroid.Y*float64(a.size) + b.centroid.Y*float64(b.size)) / total,
	}
}

func sortedKeys(m map[int]*node) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Simple insertion sort: cluster counts per scheduler run are in the
	// hundreds to low thousands, not worth pulling in sort for a tight loop.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// CutK replays the dendrogram's merge history backward from the single
// root cluster until exactly k clusters remain (or fewer points exist
// than k), returning, for each of the n original points, the label of
// the cluster it belongs to at that cut. Labels are 0..k-1 but carry no
// meaning beyond grouping.
func (d *Dendrogram) CutK(k int) []int {
	n := len(d.points)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}
	if k < 1 {
		k = 1
	}
	return d.cutAtMergeCount(n - k)
}

// CutDistance replays the merge history up to (but not including) the
// first merge whose Ward distance exceeds threshold, returning the
// resulting per-point cluster labels. This is the distance_threshold
// stopping rule find_duplicates.py uses instead of a fixed k.
func (d *Dendrogram) CutDistance(threshold float64) []int {
	stop := len(d.merges)
	for i, m := range d.merges {
		if m.distance > threshold {
			stop = i
			break
		}
	}
	return d.cutAtMergeCount(stop)
}

// cutAtMergeCount replays the first mergeCount merges via union-find and
// returns the resulting per-point cluster labels, renumbered densely
// from 0.
func (d *Dendrogram) cutAtMergeCount(mergeCount int) []int {
	n := len(d.points)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	// nodeMembers reconstructs, for each synthetic merge id, the set of
	// original point indexes it covers — needed because later merges
	// reference earlier synthetic ids, not raw point indexes.
	nodeMembers := make(map[int][]int, n+mergeCount)
	for i := 0; i < n; i++ {
		nodeMembers[i] = []int{i}
	}
	nextID := n
	for i := 0; i < mergeCount && i < len(d.merges); i++ {
		m := d.merges[i]
		members := append(append([]int{}, nodeMembers[m.a]...), nodeMembers[m.b]...)
		nodeMembers[nextID] = members
		for _, p := range members[1:] {
			union(members[0], p)
		}
		nextID++
	}

	roots := map[int]int{}
	labels := make([]int, n)
	nextLabel := 0
	for i := 0; i < n; i++ {
		r := find(i)
		label, ok := roots[r]
		if !ok {
			label = nextLabel
			roots[r] = label
			nextLabel++
		}
		labels[i] = label
	}
	return labels
}

// MergeDistances returns the Ward distance of every merge in the order
// it happened.
func (d *Dendrogram) MergeDistances() []float64 {
	out := make([]float64, len(d.merges))
	for i, m := range d.merges {
		out[i] = m.distance
	}
	return out
}
