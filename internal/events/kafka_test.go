package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	envelope := Envelope{
		Kind:        KindStationUpserted,
		StationID:   "meteoswiss-6110",
		ProcessedAt: now,
		Payload:     map[string]any{"status": "green"},
	}

	msg, err := serializeToMessage(envelope)
	require.NoError(t, err)

	assert.Equal(t, []byte("meteoswiss-6110"), msg.Key)
	assert.Contains(t, string(msg.Value), `"station_id":"meteoswiss-6110"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("station-upserted"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestNoopPublisher_NeverErrors(t *testing.T) {
	var p NoopPublisher
	require.NoError(t, p.Publish(t.Context(), Envelope{Kind: KindMeasureInserted}))
	require.NoError(t, p.Close())
}
