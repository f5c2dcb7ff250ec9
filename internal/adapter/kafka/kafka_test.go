package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("JST", 9*3600))
	s := domain.StationStatus{
		StationID:         "ofunato",
		Name:              "Ofunato",
		Geo:               domain.Geo{Lat: 39.017, Lon: 141.75},
		EventID:           "tohoku_2011",
		Level:             domain.SeverityHigh,
		IsAlert:           true,
		Height:            4.4,
		Timestamp:         time.Date(2011, 3, 11, 5, 58, 24, 0, time.UTC),
		ConsecutiveAlerts: 2,
		UpdatedAt:         updated,
	}

	msg, err := serializeToMessage(s)
	require.NoError(t, err)

	assert.Equal(t, []byte("ofunato"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "level", msg.Headers[0].Key)
	assert.Equal(t, []byte("high"), msg.Headers[0].Value)
	assert.Equal(t, "event_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("tohoku_2011"), msg.Headers[1].Value)
	assert.Equal(t, "updated_at", msg.Headers[2].Key)
	assert.Equal(t, []byte("2026-03-01T03:30:00Z"), msg.Headers[2].Value)

	var decoded domain.StationStatus
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, domain.SeverityHigh, decoded.Level)
	assert.Equal(t, 2, decoded.ConsecutiveAlerts)
	assert.Contains(t, string(msg.Value), `"level":"high"`)
}
