package domain

import (
	"math"
	"time"
)

const (
	// DefaultWaveSpeedKmPerMin approximates deep-ocean tsunami propagation
	// (about 720 km/h).
	DefaultWaveSpeedKmPerMin = 12.0

	// DefaultSampleInterval is the spacing between series points and the
	// length of one evaluation period.
	DefaultSampleInterval = 6 * time.Minute

	// instantArrivalKm is the distance below which a station is treated as
	// sitting on the epicenter.
	instantArrivalKm = 1e-3

	// periodStretch controls how quickly a pulse's period lengthens as it ages.
	periodStretch = 120.0
)

// pulse describes one component of the synthetic wave train, in minutes
// relative to arrival.
type pulse struct {
	offset float64
	relAmp float64
	period float64
	decay  float64
}

// The principal wave followed by two weaker, slower trailing waves.
var wavePulses = []pulse{
	{offset: 0, relAmp: 1.0, period: 20, decay: 60},
	{offset: 15, relAmp: 0.6, period: 28, decay: 75},
	{offset: 35, relAmp: 0.35, period: 40, decay: 90},
}

// WaveModel derives arrival times and synthetic wave heights from epicenter
// geometry. The zero value is not usable; start from DefaultWaveModel.
type WaveModel struct {
	SpeedKmPerMin  float64
	SampleInterval time.Duration

	BaseHeight          float64 // meters
	BackgroundAmplitude float64 // meters
	BackgroundPeriod    time.Duration

	AmplitudePerMagnitude float64 // meters per magnitude unit above 7
	AttenuationKm         float64
	NoiseFloor            float64 // meters
	ActiveWindow          time.Duration
}

// DefaultWaveModel returns the canonical model parameters.
func DefaultWaveModel() WaveModel {
	return WaveModel{
		SpeedKmPerMin:         DefaultWaveSpeedKmPerMin,
		SampleInterval:        DefaultSampleInterval,
		BaseHeight:            1.0,
		BackgroundAmplitude:   0.1,
		BackgroundPeriod:      60 * time.Minute,
		AmplitudePerMagnitude: 2.5,
		AttenuationKm:         500,
		NoiseFloor:            0.05,
		ActiveWindow:          180 * time.Minute,
	}
}

// WithSpeed returns a copy of m using the given propagation speed. Non-positive
// speeds keep the current value.
func (m WaveModel) WithSpeed(kmPerMin float64) WaveModel {
	if kmPerMin > 0 && !math.IsInf(kmPerMin, 0) {
		m.SpeedKmPerMin = kmPerMin
	}
	return m
}

// ArrivalMinutes returns simulated minutes from the event until the wave
// reaches the station.
func (m WaveModel) ArrivalMinutes(station, epicenter Geo) float64 {
	return m.arrivalForDistance(GreatCircleDistanceKm(station, epicenter))
}

func (m WaveModel) arrivalForDistance(km float64) float64 {
	if km < instantArrivalKm {
		return 0
	}
	speed := m.SpeedKmPerMin
	if speed <= 0 {
		speed = DefaultWaveSpeedKmPerMin
	}
	return km / speed
}

// PeakAmplitude returns the principal pulse amplitude at the given distance.
// Magnitudes at or below 7, and non-finite magnitudes, produce no signal.
func (m WaveModel) PeakAmplitude(distanceKm, magnitude float64) float64 {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) || magnitude <= 7 {
		return 0
	}
	amp := (magnitude - 7) * m.AmplitudePerMagnitude
	if m.AttenuationKm > 0 {
		amp /= 1 + distanceKm/m.AttenuationKm
	}
	if amp < m.NoiseFloor {
		return 0
	}
	return amp
}

// SampleAt computes a single sample for the station at the given simulated
// minute of the event.
func (m WaveModel) SampleAt(station Geo, event SeismicEvent, minutes float64) WaveSample {
	g := m.geometry(station, event.Epicenter, event.Magnitude)
	return m.sample(g, event.OccurredAt, minutes)
}

// Series returns samples every SampleInterval from event start through
// duration, inclusive.
func (m WaveModel) Series(station, epicenter Geo, magnitude float64, eventStart time.Time, duration time.Duration) []WaveSample {
	if duration < 0 {
		return nil
	}
	step := m.interval()
	g := m.geometry(station, epicenter, magnitude)

	n := int(duration / step)
	out := make([]WaveSample, 0, n+1)
	for i := 0; i <= n; i++ {
		out = append(out, m.sample(g, eventStart, minutesOf(time.Duration(i)*step)))
	}
	return out
}

// SeriesForEvent is Series for a catalog event.
func (m WaveModel) SeriesForEvent(station Geo, event SeismicEvent, duration time.Duration) []WaveSample {
	return m.Series(station, event.Epicenter, event.Magnitude, event.OccurredAt, duration)
}

// Window returns the n samples spaced SampleInterval apart that end at
// endMinutes, oldest first. It feeds the severity classifier.
func (m WaveModel) Window(station Geo, event SeismicEvent, endMinutes float64, n int) []WaveSample {
	if n <= 0 {
		return nil
	}
	step := minutesOf(m.interval())
	g := m.geometry(station, event.Epicenter, event.Magnitude)

	out := make([]WaveSample, n)
	for i := 0; i < n; i++ {
		t := endMinutes - float64(n-1-i)*step
		out[i] = m.sample(g, event.OccurredAt, t)
	}
	return out
}

// waveGeometry caches the per-station values shared by every sample.
type waveGeometry struct {
	arrival   float64
	amplitude float64
}

func (m WaveModel) geometry(station, epicenter Geo, magnitude float64) waveGeometry {
	d := GreatCircleDistanceKm(station, epicenter)
	return waveGeometry{
		arrival:   m.arrivalForDistance(d),
		amplitude: m.PeakAmplitude(d, magnitude),
	}
}

func (m WaveModel) sample(g waveGeometry, eventStart time.Time, t float64) WaveSample {
	bgPeriod := minutesOf(m.BackgroundPeriod)
	height := m.BaseHeight
	if bgPeriod > 0 {
		height += m.BackgroundAmplitude * math.Sin(2*math.Pi*t/bgPeriod)
	}

	var signal, dominant, dominantPeriod float64
	active := g.amplitude > 0 && t >= g.arrival && t < g.arrival+minutesOf(m.ActiveWindow)
	if active {
		for _, p := range wavePulses {
			tau := t - g.arrival - p.offset
			if tau < 0 {
				continue
			}
			period := p.period * (1 + tau/periodStretch)
			c := g.amplitude * p.relAmp * math.Exp(-tau/p.decay) * math.Abs(math.Sin(math.Pi*tau/period))
			signal += c
			if c > dominant {
				dominant = c
				dominantPeriod = period
			}
		}
	}
	if signal < m.NoiseFloor {
		signal = 0
	}

	period := m.BackgroundPeriod
	if dominantPeriod > 0 {
		period = MinutesToDuration(dominantPeriod)
	}

	return WaveSample{
		Timestamp: eventStart.Add(MinutesToDuration(t)),
		Minutes:   t,
		Height:    height + signal,
		Period:    period,
		IsTsunami: active,
	}
}

func (m WaveModel) interval() time.Duration {
	if m.SampleInterval <= 0 {
		return DefaultSampleInterval
	}
	return m.SampleInterval
}

func minutesOf(d time.Duration) float64 {
	return d.Minutes()
}
