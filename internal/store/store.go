// Package store defines the document persistence surface the ingestion
// engine and admin jobs use: stations, per-station measurement streams,
// fix overrides, provider records, and the cluster control document.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no document.
var ErrNotFound = errors.New("store: not found")

// Status is the station visibility enum.
type Status string

const (
	StatusHidden  Status = "hidden"
	StatusRed     Status = "red"
	StatusOrange  Status = "orange"
	StatusGreen   Status = "green"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Pressure is the station/QNH/QFF triplet, any subset nullable.
type Pressure struct {
	QFE *float64
	QNH *float64
	QFF *float64
}

// Measurement is one observation instant for one station, keyed by its
// unix-second timestamp.
type Measurement struct {
	ID          int64 // unix seconds, also the stream document _id
	Time        time.Time
	ReceivedAt  time.Time
	WindDir     int
	WindAvg     float64
	WindMax     float64
	Temperature *float64
	Humidity    *float64
	Pressure    *Pressure
	Rain        *float64
}

// Station is one physical or virtual sensor site.
type Station struct {
	ID           string // "<provider_code>-<provider_station_id>"
	ProviderID   string
	ProviderCode string
	ProviderName string
	ShortName    string
	Name         string
	Altitude     int
	IsPeak       bool
	Location     Point
	Status       Status
	CountryCode  string
	Timezone     string
	URLs         map[string]string
	LastSeenAt   time.Time
	Last         *Measurement
	Clusters     []int
	Duplicates   *DuplicateInfo
}

// DuplicateInfo is written by find_duplicates onto every member of a group.
type DuplicateInfo struct {
	Stations        []string
	Rating          int
	IsHighestRating bool
}

// FixOverride is a manual override row shadowing adapter-supplied fields.
type FixOverride struct {
	StationID string
	Short     *string
	Name      *string
	Alt       *int
	Peak      *bool
	Latitude  *float64
	Longitude *float64
	Measures  map[string]float64 // field -> offset; "w-dir" wraps modulo 360
}

// ProviderRecord tracks first/last-seen timestamps per provider code.
type ProviderRecord struct {
	Code        string
	Name        string
	URL         string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// ClusterControl is the stations_clusters control document written by
// save_clusters.
type ClusterControl struct {
	Min int
	Max int
}

// Store is the document persistence contract. One production implementation
// (MongoDB) and one in-memory fake share this interface so every package
// above it (engine, cluster, duplicate, prune) can be tested without a
// database.
type Store interface {
	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error

	// Stations.
	GetStation(ctx context.Context, id string) (Station, bool, error)
	UpsertStation(ctx context.Context, station Station) error
	DeleteStation(ctx context.Context, id string) error
	ListStations(ctx context.Context, filter StationFilter) ([]Station, error)
	BulkWriteStationFields(ctx context.Context, updates []StationFieldUpdate) error

	// Per-station measurement streams.
	HasMeasure(ctx context.Context, stationID string, ts int64) (bool, error)
	InsertMeasures(ctx context.Context, stationID string, measures []Measurement) (inserted int, err error)
	LatestMeasure(ctx context.Context, stationID string) (Measurement, bool, error)
	DropStream(ctx context.Context, stationID string) error

	// Fix overrides.
	GetFixOverride(ctx context.Context, stationID string) (FixOverride, bool, error)

	// Providers.
	UpsertProviderSeen(ctx context.Context, code, name, url string, now time.Time) error

	// Cluster control document.
	SetClusterControl(ctx context.Context, ctrl ClusterControl) error
}

// StationFilter narrows ListStations.
type StationFilter struct {
	ExcludeHidden   bool
	MeasuredSince   *time.Time
	ProviderCode    string
	LastSeenBefore  *time.Time
}

// StationFieldUpdate is one narrow bulk write against a single station,
// used by the admin jobs to rewrite only `clusters` or `duplicates` without
// touching the rest of the document.
type StationFieldUpdate struct {
	StationID  string
	Clusters   []int
	Duplicates *DuplicateInfo
}
