package domain

import (
	"fmt"
	"math"
	"strings"
)

// SeverityLevel is an ordered alert level. Higher values are worse.
type SeverityLevel int

const (
	SeverityNormal SeverityLevel = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// SeverityLevels lists every level from least to most severe.
var SeverityLevels = []SeverityLevel{SeverityNormal, SeverityMedium, SeverityHigh, SeverityCritical}

func (l SeverityLevel) String() string {
	switch l {
	case SeverityNormal:
		return "normal"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(l))
	}
}

// Worse reports whether l is strictly more severe than other.
func (l SeverityLevel) Worse(other SeverityLevel) bool {
	return l > other
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b SeverityLevel) SeverityLevel {
	if a.Worse(b) {
		return a
	}
	return b
}

// ParseSeverityLevel parses a level name, case-insensitively.
func ParseSeverityLevel(s string) (SeverityLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return SeverityNormal, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	case "critical":
		return SeverityCritical, nil
	default:
		return SeverityNormal, fmt.Errorf("unknown severity level %q", s)
	}
}

func (l SeverityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *SeverityLevel) UnmarshalText(b []byte) error {
	v, err := ParseSeverityLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// SeverityResult is the classifier output for one window of readings.
type SeverityResult struct {
	IsAlert bool          `json:"is_alert"`
	Level   SeverityLevel `json:"level"`

	CurrentHeight   float64 `json:"current_height"`
	PercentChange   float64 `json:"percent_change"`
	TrailingAverage float64 `json:"trailing_average"`
	Rising          bool    `json:"rising"`
}

// ReadingOrder tells Classify which end of the slice holds the newest reading.
type ReadingOrder int

const (
	OldestFirst ReadingOrder = iota
	NewestFirst
)

// Classification thresholds, in meters unless noted.
const (
	EmergencyHeight = 10.0
	CriticalHeight  = 7.0
	HighHeight      = 4.0
	ModerateHeight  = 2.5
	TrendHeight     = 2.0

	RapidIncreasePercent = 30.0
	IncreasePercent      = 20.0

	// trendSlack lets a reading drop up to 10% below its predecessor and
	// still count as rising.
	trendSlack  = 0.10
	trendWindow = 4

	// minBaseline floors the percent-change denominator.
	minBaseline = 0.5
)

// Classify derives a severity level from an ordered window of wave heights.
// Fewer than two readings are always Normal.
func Classify(heights []float64, order ReadingOrder) SeverityResult {
	if len(heights) < 2 {
		return SeverityResult{Level: SeverityNormal}
	}

	chrono := heights
	if order == NewestFirst {
		chrono = make([]float64, len(heights))
		for i, h := range heights {
			chrono[len(heights)-1-i] = h
		}
	}

	current := chrono[len(chrono)-1]
	previous := chrono[len(chrono)-2]
	res := SeverityResult{
		CurrentHeight: current,
		PercentChange: (current - previous) / math.Max(previous, minBaseline) * 100,
	}

	if len(chrono) >= 3 {
		tail := chrono[max(0, len(chrono)-trendWindow):]
		res.TrailingAverage = mean(tail)
		res.Rising = nonDecreasing(tail)
	}

	res.Level = classifyLevel(res)
	res.IsAlert = res.Level != SeverityNormal
	return res
}

// ClassifySamples classifies a chronological series of wave samples.
func ClassifySamples(samples []WaveSample) SeverityResult {
	heights := make([]float64, len(samples))
	for i := range samples {
		heights[i] = samples[i].Height
	}
	return Classify(heights, OldestFirst)
}

func classifyLevel(r SeverityResult) SeverityLevel {
	switch {
	case r.CurrentHeight > EmergencyHeight || r.CurrentHeight > CriticalHeight:
		return SeverityCritical
	case r.CurrentHeight > HighHeight,
		r.CurrentHeight > ModerateHeight && r.PercentChange > RapidIncreasePercent:
		return SeverityHigh
	case r.CurrentHeight > ModerateHeight,
		r.PercentChange > IncreasePercent,
		r.TrailingAverage > TrendHeight && r.Rising:
		return SeverityMedium
	default:
		return SeverityNormal
	}
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func nonDecreasing(xs []float64) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] < xs[i-1]*(1-trendSlack) {
			return false
		}
	}
	return true
}
