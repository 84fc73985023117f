package events

import "context"

// NoopPublisher discards every envelope. Used when KAFKA_BROKERS is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Envelope) error { return nil }

func (NoopPublisher) Close() error { return nil }

var _ Publisher = NoopPublisher{}
