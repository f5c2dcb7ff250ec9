package playback

import "slices"

// Status is the clock's transport state.
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is an immutable snapshot of the playback clock. Times are simulated
// minutes since the selected event occurred.
type State struct {
	IsPlaying       bool    `json:"is_playing"`
	IsPaused        bool    `json:"is_paused"`
	CurrentSimTime  float64 `json:"current_sim_time"`
	TotalDuration   float64 `json:"total_duration"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	CurrentEventID  string  `json:"current_event_id"`
	ProgressPercent float64 `json:"progress_percent"`
	Status          Status  `json:"status"`
}

// Speeds are the accepted speed multipliers, slowest first.
var Speeds = []float64{0.5, 1, 2, 5, 10, 20}

// DefaultSpeed is used when a requested multiplier is not in Speeds.
const DefaultSpeed = 1.0

// ValidSpeed reports whether m is one of the enumerated speed multipliers.
func ValidSpeed(m float64) bool {
	return slices.Contains(Speeds, m)
}

// Subscriber receives a snapshot after every state change, in the order the
// changes happened. Calls to one subscriber never overlap. It usually runs on
// the goroutine that caused the change and should not block: while it runs,
// later snapshots queue behind it.
type Subscriber func(State)
