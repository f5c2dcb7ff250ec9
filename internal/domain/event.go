package domain

import "time"

// Geo represents a WGS-84 latitude/longitude coordinate pair in degrees.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within ±90/±180.
func (g Geo) Valid() bool {
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// SeismicEvent is an immutable historical earthquake that generated a tsunami.
type SeismicEvent struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Epicenter  Geo       `json:"epicenter"`
	Magnitude  float64   `json:"magnitude"`
	DepthKm    float64   `json:"depth_km"`
	OccurredAt time.Time `json:"occurred_at"`
}

// At returns the wall-clock instant simMinutes after the event occurred.
func (e SeismicEvent) At(simMinutes float64) time.Time {
	return e.OccurredAt.Add(MinutesToDuration(simMinutes))
}

// Station is a monitored tide gauge or buoy.
type Station struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Geo    Geo    `json:"geo"`
	Region string `json:"region,omitempty"`
}

// WaveSample is one point of a station's synthetic wave-height series.
type WaveSample struct {
	Timestamp time.Time     `json:"timestamp"`
	Minutes   float64       `json:"minutes"` // since event start
	Height    float64       `json:"height"`  // meters
	Period    time.Duration `json:"period"`
	IsTsunami bool          `json:"is_tsunami"`
}

// StatusUpdate is what the monitor hands the status cache after classifying
// a station for one evaluation period.
type StatusUpdate struct {
	StationID string
	Name      string
	Geo       Geo
	EventID   string
	Result    SeverityResult
	Height    float64
	Timestamp time.Time // simulated instant the reading represents
}

// StationStatus is the cached, cumulative view of a station's alert state.
type StationStatus struct {
	StationID         string        `json:"station_id"`
	Name              string        `json:"name,omitempty"`
	Geo               Geo           `json:"geo"`
	EventID           string        `json:"event_id"`
	Level             SeverityLevel `json:"level"`
	IsAlert           bool          `json:"is_alert"`
	Height            float64       `json:"height"`
	Timestamp         time.Time     `json:"timestamp"`
	ConsecutiveAlerts int           `json:"consecutive_alerts"`
	LastChange        time.Time     `json:"last_change"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// MinutesToDuration converts fractional minutes to a time.Duration.
func MinutesToDuration(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
