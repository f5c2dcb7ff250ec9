package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeStations writes a two-station list: ofunato near the Tohoku epicenter
// and hilo across the Pacific.
func writeStations(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stations.json")
	data := `[
  {"id": "ofunato", "name": "Ofunato", "lat": 39.017, "lon": 141.750, "region": "Japan"},
  {"id": "hilo", "name": "Hilo", "lat": 19.730, "lon": -155.060, "region": "Hawaii"}
]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestEvents_Text(t *testing.T) {
	out, err := execute(t, "events")
	require.NoError(t, err)

	assert.Contains(t, out, "ID")
	for _, ev := range domain.DefaultCatalog() {
		assert.Contains(t, out, ev.ID)
	}
	assert.Contains(t, out, "2011-03-11T05:46:24Z")
}

func TestEvents_JSON(t *testing.T) {
	out, err := execute(t, "events", "-o", "json")
	require.NoError(t, err)

	var events []domain.SeismicEvent
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.Equal(t, []domain.SeismicEvent(domain.DefaultCatalog()), events)
}

func TestRoot_InvalidOutput(t *testing.T) {
	_, err := execute(t, "events", "--output", "yaml")
	assert.ErrorContains(t, err, "invalid --output")
}

func TestArrivals_NearestFirst(t *testing.T) {
	out, err := execute(t, "arrivals", "-o", "json")
	require.NoError(t, err)

	var rows []arrival
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 16)

	assert.Equal(t, "ofunato", rows[0].StationID)
	assert.InDelta(t, 96.6, rows[0].DistanceKm, 0.1)
	assert.InDelta(t, 8.05, rows[0].ArrivalMinutes, 0.01)
	assert.Greater(t, rows[0].PeakHeight, 1.0)
	for i := 1; i < len(rows); i++ {
		assert.LessOrEqual(t, rows[i-1].ArrivalMinutes, rows[i].ArrivalMinutes)
	}
}

func TestArrivals_WaveSpeedScales(t *testing.T) {
	out, err := execute(t, "arrivals", "-o", "json", "--stations", writeStations(t), "--wave-speed", "24")
	require.NoError(t, err)

	var rows []arrival
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.InDelta(t, 8.05/2, rows[0].ArrivalMinutes, 0.01)
}

func TestArrivals_Text(t *testing.T) {
	out, err := execute(t, "arrivals", "--stations", writeStations(t))
	require.NoError(t, err)

	assert.Contains(t, out, "2011 Tōhoku earthquake and tsunami")
	assert.Contains(t, out, "0:08")
}

func TestArrivals_UnknownEvent(t *testing.T) {
	_, err := execute(t, "arrivals", "--event", "krakatoa_1883")
	assert.ErrorContains(t, err, `unknown event "krakatoa_1883"`)
}

func TestArrivals_MissingStationsFile(t *testing.T) {
	_, err := execute(t, "arrivals", "--stations", filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read stations file")
}

func TestSeries(t *testing.T) {
	out, err := execute(t, "series", "ofunato", "--hours", "1", "-o", "json")
	require.NoError(t, err)

	var samples []domain.WaveSample
	require.NoError(t, json.Unmarshal([]byte(out), &samples))
	require.Len(t, samples, 11)
	assert.Zero(t, samples[0].Minutes)
	assert.Equal(t, 60.0, samples[10].Minutes)
}

func TestSeries_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown station", []string{"series", "atlantis"}, `unknown station "atlantis"`},
		{"zero hours", []string{"series", "ofunato", "--hours", "0"}, "invalid --hours"},
		{"too many hours", []string{"series", "ofunato", "--hours", "49"}, "invalid --hours"},
		{"missing station arg", []string{"series"}, "accepts 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected domain.SeverityLevel
	}{
		{"single reading", []string{"9"}, domain.SeverityNormal},
		{"calm", []string{"1", "1", "1"}, domain.SeverityNormal},
		{"above high threshold", []string{"1", "1.2", "4.5"}, domain.SeverityHigh},
		{"critical", []string{"0.5", "8"}, domain.SeverityCritical},
		{"newest first", []string{"4.5", "1.2", "1", "--newest-first"}, domain.SeverityHigh},
		{"newest first reversed", []string{"1", "1.2", "4.5", "--newest-first"}, domain.SeverityNormal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"classify", "-o", "json"}, tt.args...)...)
			require.NoError(t, err)

			var res domain.SeverityResult
			require.NoError(t, json.Unmarshal([]byte(out), &res))
			assert.Equal(t, tt.expected, res.Level)
			assert.Equal(t, tt.expected != domain.SeverityNormal, res.IsAlert)
		})
	}
}

func TestClassify_InvalidHeight(t *testing.T) {
	_, err := execute(t, "classify", "1", "tall")
	assert.ErrorContains(t, err, `parse height "tall"`)
}

func TestClassify_Text(t *testing.T) {
	out, err := execute(t, "classify", "1", "1.2", "4.5")
	require.NoError(t, err)
	assert.Contains(t, out, "level")
	assert.Contains(t, out, "high")
}

func TestReplay_RecordsEveryStationThenChanges(t *testing.T) {
	out, err := execute(t, "replay", "-o", "json", "--stations", writeStations(t), "--duration", "30")
	require.NoError(t, err)

	var changes []replayChange
	require.NoError(t, json.Unmarshal([]byte(out), &changes))
	require.GreaterOrEqual(t, len(changes), 3)

	assert.Equal(t, "ofunato", changes[0].StationID)
	assert.Equal(t, "hilo", changes[1].StationID)
	assert.Zero(t, changes[0].Minute)
	assert.Zero(t, changes[1].Minute)

	assert.Equal(t, replayChange{
		Minute:    12,
		StationID: "ofunato",
		Level:     domain.SeverityHigh,
		Height:    changes[2].Height,
		Timestamp: domain.DefaultCatalog()[0].At(12),
	}, changes[2])
}

func TestReplay_AlertsOnly(t *testing.T) {
	out, err := execute(t, "replay", "-o", "json", "--stations", writeStations(t), "--alerts-only")
	require.NoError(t, err)

	var changes []replayChange
	require.NoError(t, json.Unmarshal([]byte(out), &changes))
	require.NotEmpty(t, changes)

	assert.Equal(t, 12.0, changes[0].Minute)
	assert.Equal(t, domain.SeverityHigh, changes[0].Level)
	for _, c := range changes {
		assert.Equal(t, "ofunato", c.StationID, "hilo never leaves normal for tohoku")
	}
	assert.Equal(t, domain.SeverityNormal, changes[len(changes)-1].Level)
}

func TestReplay_InvalidDuration(t *testing.T) {
	_, err := execute(t, "replay", "--duration", "-5")
	assert.ErrorContains(t, err, "invalid --duration")
}

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		minutes  float64
		expected string
	}{
		{0, "0:00"},
		{8.05, "0:08"},
		{59.6, "1:00"},
		{754, "12:34"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatMinutes(tt.minutes))
	}
}
