// Package events publishes station/measurement change notifications to an
// optional downstream bus. Nothing in this repository consumes the topic —
// the map UI/API are out-of-scope collaborators — so publication failures
// are logged, not fatal.
package events

import (
	"context"
	"time"
)

// Kind names the event envelope's type, also carried as the "event_type"
// Kafka header.
type Kind string

const (
	KindStationUpserted Kind = "station-upserted"
	KindMeasureInserted Kind = "measure-inserted"
)

// Envelope is one published notification.
type Envelope struct {
	Kind        Kind      `json:"event_type"`
	StationID   string    `json:"station_id"`
	ProcessedAt time.Time `json:"processed_at"`
	Payload     any       `json:"payload,omitempty"`
}

// Publisher publishes envelopes to the downstream bus.
type Publisher interface {
	Publish(ctx context.Context, envelope Envelope) error
	Close() error
}
