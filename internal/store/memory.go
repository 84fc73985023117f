package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by package tests that need a
// realistic backend without a database.
type MemoryStore struct {
	mu         sync.Mutex
	stations   map[string]Station
	streams    map[string]map[int64]Measurement
	fixes      map[string]FixOverride
	providers  map[string]ProviderRecord
	clusterCtl ClusterControl
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stations:  make(map[string]Station),
		streams:   make(map[string]map[int64]Measurement),
		fixes:     make(map[string]FixOverride),
		providers: make(map[string]ProviderRecord),
	}
}

// Ping always succeeds; there is no backing connection to check.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (s *MemoryStore) GetStation(_ context.Context, id string) (Station, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	return st, ok, nil
}

func (s *MemoryStore) UpsertStation(_ context.Context, station Station) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stations[station.ID] = station
	if _, ok := s.streams[station.ID]; !ok {
		s.streams[station.ID] = make(map[int64]Measurement)
	}
	return nil
}

func (s *MemoryStore) DeleteStation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stations, id)
	delete(s.streams, id)
	return nil
}

func (s *MemoryStore) ListStations(_ context.Context, filter StationFilter) ([]Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Station
	for _, st := range s.stations {
		if filter.ExcludeHidden && st.Status == StatusHidden {
			continue
		}
		if filter.ProviderCode != "" && st.ProviderCode != filter.ProviderCode {
			continue
		}
		if filter.MeasuredSince != nil {
			if st.Last == nil || st.Last.Time.Before(*filter.MeasuredSince) {
				continue
			}
		}
		if filter.LastSeenBefore != nil && !st.LastSeenAt.Before(*filter.LastSeenBefore) {
			continue
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) BulkWriteStationFields(_ context.Context, updates []StationFieldUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		st, ok := s.stations[u.StationID]
		if !ok {
			continue
		}
		if u.Clusters != nil {
			st.Clusters = u.Clusters
		}
		st.Duplicates = u.Duplicates
		s.stations[u.StationID] = st
	}
	return nil
}

func (s *MemoryStore) HasMeasure(_ context.Context, stationID string, ts int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream, ok := s.streams[stationID]
	if !ok {
		return false, nil
	}
	_, ok = stream[ts]
	return ok, nil
}

func (s *MemoryStore) InsertMeasures(_ context.Context, stationID string, measures []Measurement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, ok := s.streams[stationID]
	if !ok {
		stream = make(map[int64]Measurement)
		s.streams[stationID] = stream
	}

	inserted := 0
	for _, m := range measures {
		if _, exists := stream[m.ID]; exists {
			continue
		}
		stream[m.ID] = m
		inserted++
	}

	if st, ok := s.stations[stationID]; ok {
		if latest, ok := s.latestLocked(stationID); ok {
			st.Last = &latest
			s.stations[stationID] = st
		}
	}
	return inserted, nil
}

func (s *MemoryStore) LatestMeasure(_ context.Context, stationID string) (Measurement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.latestLocked(stationID)
	return m, ok, nil
}

func (s *MemoryStore) latestLocked(stationID string) (Measurement, bool) {
	stream, ok := s.streams[stationID]
	if !ok || len(stream) == 0 {
		return Measurement{}, false
	}
	var latest Measurement
	var found bool
	for _, m := range stream {
		if !found || m.ID > latest.ID {
			latest = m
			found = true
		}
	}
	return latest, found
}

func (s *MemoryStore) DropStream(_ context.Context, stationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, stationID)
	return nil
}

func (s *MemoryStore) GetFixOverride(_ context.Context, stationID string) (FixOverride, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fixes[stationID]
	return f, ok, nil
}

// PutFixOverride is a test-only helper; production fix overrides are seeded
// by hand in MongoDB, not written by the ingestion path.
func (s *MemoryStore) PutFixOverride(fix FixOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixes[fix.StationID] = fix
}

func (s *MemoryStore) UpsertProviderSeen(_ context.Context, code, name, url string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.providers[code]
	if !ok {
		rec = ProviderRecord{Code: code, FirstSeenAt: now}
	}
	rec.Name = name
	rec.URL = url
	rec.LastSeenAt = now
	s.providers[code] = rec
	return nil
}

func (s *MemoryStore) SetClusterControl(_ context.Context, ctrl ClusterControl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusterCtl = ctrl
	return nil
}

// ClusterControlForTesting returns the last-set control document, for test assertions.
func (s *MemoryStore) ClusterControlForTesting() ClusterControl {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusterCtl
}

var _ Store = (*MemoryStore)(nil)
