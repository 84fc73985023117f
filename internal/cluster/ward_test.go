package cluster_test

import (
	"testing"

	"github.com/couchcryptid/windstation-fabric/internal/cluster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_CutK_TwoTightGroupsSeparateAtK2(t *testing.T) {
	points := []cluster.Point{
		{X: 0, Y: 0}, {X: 0.01, Y: 0.01}, {X: -0.01, Y: 0},
		{X: 10, Y: 10}, {X: 10.01, Y: 10.01},
	}
	d := cluster.Build(points)

	labels := d.CutK(2)
	require.Len(t, labels, len(points))
	assert.Equal(t, labels[0], labels[1])
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[4])
	assert.NotEqual(t, labels[0], labels[3])
}

func TestBuild_CutK_KGreaterOrEqualToN_EachPointOwnLabel(t *testing.T) {
	points := []cluster.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}
	d := cluster.Build(points)

	labels := d.CutK(3)
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	assert.Len(t, seen, 3)
}

func TestBuild_CutDistance_ThresholdBelowAllMergesKeepsEverySeparate(t *testing.T) {
	points := []cluster.Point{{X: 0, Y: 0}, {X: 100, Y: 100}, {X: 200, Y: 200}}
	d := cluster.Build(points)

	labels := d.CutDistance(0)
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	assert.Len(t, seen, 3)
}

func TestBuild_CutDistance_ThresholdAboveAllMergesCollapsesToOne(t *testing.T) {
	points := []cluster.Point{{X: 0, Y: 0}, {X: 0.001, Y: 0.001}, {X: 0.002, Y: 0}}
	d := cluster.Build(points)

	labels := d.CutDistance(1e9)
	for _, l := range labels {
		assert.Equal(t, labels[0], l)
	}
}

func TestBuild_MergeDistancesNonDecreasing(t *testing.T) {
	points := []cluster.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 5, Y: 0}, {X: 5.5, Y: 0}}
	d := cluster.Build(points)

	distances := d.MergeDistances()
	require.Len(t, distances, len(points)-1)
	for i := 1; i < len(distances); i++ {
		assert.GreaterOrEqual(t, distances[i], distances[i-1]-1e-9)
	}
}
