package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/windstation-fabric/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref[T any](v T) *T { return &v }

func TestMemoryStore_UpsertAndGetStation(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	st := store.Station{
		ID: "6110-0", ProviderCode: "6110", ShortName: "LEYS",
		Location: store.Point{Lat: 46.713, Lon: 6.503}, Status: store.StatusGreen,
	}
	require.NoError(t, s.UpsertStation(ctx, st))

	got, ok, err := s.GetStation(ctx, "6110-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LEYS", got.ShortName)

	_, ok, err = s.GetStation(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_InsertMeasures_DedupesByTimestamp(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "6110-0"}))

	m1 := store.Measurement{ID: 1000, WindAvg: 10}
	inserted, err := s.InsertMeasures(ctx, "6110-0", []store.Measurement{m1})
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	inserted, err = s.InsertMeasures(ctx, "6110-0", []store.Measurement{m1})
	require.NoError(t, err)
	assert.Equal(t, 0, inserted, "re-inserting the same timestamp must not duplicate")

	has, err := s.HasMeasure(ctx, "6110-0", 1000)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasMeasure(ctx, "6110-0", 9999)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryStore_LatestMeasure_TracksHighestID(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "6110-0"}))

	_, err := s.InsertMeasures(ctx, "6110-0", []store.Measurement{
		{ID: 1000, WindAvg: 5},
		{ID: 2000, WindAvg: 8},
		{ID: 1500, WindAvg: 6},
	})
	require.NoError(t, err)

	latest, ok, err := s.LatestMeasure(ctx, "6110-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2000), latest.ID)

	got, _, err := s.GetStation(ctx, "6110-0")
	require.NoError(t, err)
	require.NotNil(t, got.Last)
	assert.Equal(t, int64(2000), got.Last.ID)
}

func TestMemoryStore_ListStations_FiltersByExcludeHiddenAndProvider(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "a", ProviderCode: "p1", Status: store.StatusGreen}))
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "b", ProviderCode: "p1", Status: store.StatusHidden}))
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "c", ProviderCode: "p2", Status: store.StatusGreen}))

	visible, err := s.ListStations(ctx, store.StationFilter{ExcludeHidden: true})
	require.NoError(t, err)
	require.Len(t, visible, 2)

	onlyP1, err := s.ListStations(ctx, store.StationFilter{ProviderCode: "p1"})
	require.NoError(t, err)
	require.Len(t, onlyP1, 2)

	onlyP1Visible, err := s.ListStations(ctx, store.StationFilter{ProviderCode: "p1", ExcludeHidden: true})
	require.NoError(t, err)
	require.Len(t, onlyP1Visible, 1)
	assert.Equal(t, "a", onlyP1Visible[0].ID)
}

func TestMemoryStore_ListStations_MeasuredSince(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "fresh", Last: &store.Measurement{Time: now}}))
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "stale", Last: &store.Measurement{Time: now.Add(-48 * time.Hour)}}))
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "never-measured"}))

	since := now.Add(-24 * time.Hour)
	got, err := s.ListStations(ctx, store.StationFilter{MeasuredSince: &since})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].ID)
}

func TestMemoryStore_BulkWriteStationFields(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "a"}))

	err := s.BulkWriteStationFields(ctx, []store.StationFieldUpdate{
		{StationID: "a", Clusters: []int{1, 3}, Duplicates: &store.DuplicateInfo{Stations: []string{"a", "b"}, Rating: 2, IsHighestRating: true}},
	})
	require.NoError(t, err)

	got, _, err := s.GetStation(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got.Clusters)
	require.NotNil(t, got.Duplicates)
	assert.True(t, got.Duplicates.IsHighestRating)
}

func TestMemoryStore_DeleteStation_DropsStreamToo(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.UpsertStation(ctx, store.Station{ID: "a"}))
	_, err := s.InsertMeasures(ctx, "a", []store.Measurement{{ID: 1}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteStation(ctx, "a"))

	_, ok, err := s.GetStation(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	has, err := s.HasMeasure(ctx, "a", 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryStore_FixOverride(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.GetFixOverride(ctx, "6110-0")
	require.NoError(t, err)
	assert.False(t, ok)

	s.PutFixOverride(store.FixOverride{StationID: "6110-0", Short: ref("Leysin"), Alt: ref(1260)})

	got, ok, err := s.GetFixOverride(ctx, "6110-0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Leysin", *got.Short)
	assert.Equal(t, 1260, *got.Alt)
}

func TestMemoryStore_UpsertProviderSeen_RepeatedCallsSucceed(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)

	require.NoError(t, s.UpsertProviderSeen(ctx, "meteoswiss", "MeteoSwiss", "https://opendata.swiss", t0))
	require.NoError(t, s.UpsertProviderSeen(ctx, "meteoswiss", "MeteoSwiss", "https://opendata.swiss", t1))
}

func TestMemoryStore_SetClusterControl(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.SetClusterControl(ctx, store.ClusterControl{Min: 5, Max: 50}))
	assert.Equal(t, store.ClusterControl{Min: 5, Max: 50}, s.ClusterControlForTesting())
}
