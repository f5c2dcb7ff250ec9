package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tohoku       = DefaultCatalog()[0]
	fukushimaCst = Geo{Lat: 36.5, Lon: 141.0}
)

func TestArrivalMinutes_Tohoku(t *testing.T) {
	m := DefaultWaveModel()

	arrival := m.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)

	assert.Greater(t, arrival, 0.0)
	assert.InDelta(t, 233.74/DefaultWaveSpeedKmPerMin, arrival, 0.05)
}

func TestArrivalMinutes_Epicenter(t *testing.T) {
	m := DefaultWaveModel()

	arrival := m.ArrivalMinutes(tohoku.Epicenter, tohoku.Epicenter)

	assert.Zero(t, arrival)
	assert.False(t, math.IsNaN(arrival))
}

func TestArrivalMinutes_MonotonicInDistance(t *testing.T) {
	m := DefaultWaveModel()
	epicenter := Geo{Lat: 0, Lon: 160}

	prev := -1.0
	for lat := 0.0; lat <= 80; lat += 2.5 {
		arrival := m.ArrivalMinutes(Geo{Lat: lat, Lon: 160}, epicenter)
		assert.GreaterOrEqual(t, arrival, prev, "lat %.1f", lat)
		prev = arrival
	}
}

func TestArrivalMinutes_WithSpeed(t *testing.T) {
	base := DefaultWaveModel()
	fast := base.WithSpeed(24)

	assert.InDelta(t, base.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)/2,
		fast.ArrivalMinutes(fukushimaCst, tohoku.Epicenter), 1e-9)

	assert.Equal(t, base.SpeedKmPerMin, base.WithSpeed(0).SpeedKmPerMin)
	assert.Equal(t, base.SpeedKmPerMin, base.WithSpeed(-3).SpeedKmPerMin)
}

func TestSampleAt_AfterArrivalExceedsBackground(t *testing.T) {
	m := DefaultWaveModel()
	arrival := m.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)

	s := m.SampleAt(fukushimaCst, tohoku, arrival+10)

	assert.Greater(t, s.Height, m.BaseHeight+m.BackgroundAmplitude)
	assert.True(t, s.IsTsunami)
	assert.Greater(t, s.Period, 20*time.Minute, "dominant pulse period should have stretched")
	assert.Equal(t, tohoku.OccurredAt.Add(MinutesToDuration(arrival+10)), s.Timestamp)
}

func TestSampleAt_BeforeArrivalIsBackground(t *testing.T) {
	m := DefaultWaveModel()
	arrival := m.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)

	s := m.SampleAt(fukushimaCst, tohoku, arrival-1)

	assert.False(t, s.IsTsunami)
	assert.InDelta(t, m.BaseHeight, s.Height, m.BackgroundAmplitude+1e-9)
	assert.Equal(t, m.BackgroundPeriod, s.Period)
}

func TestSampleAt_AfterActiveWindowIsBackground(t *testing.T) {
	m := DefaultWaveModel()
	arrival := m.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)

	s := m.SampleAt(fukushimaCst, tohoku, arrival+m.ActiveWindow.Minutes()+1)

	assert.False(t, s.IsTsunami)
	assert.InDelta(t, m.BaseHeight, s.Height, m.BackgroundAmplitude+1e-9)
}

func TestSampleAt_EpicenterStationNoDivideByZero(t *testing.T) {
	m := DefaultWaveModel()

	s := m.SampleAt(tohoku.Epicenter, tohoku, 10)

	assert.False(t, math.IsNaN(s.Height))
	assert.False(t, math.IsInf(s.Height, 0))
	assert.True(t, s.IsTsunami)
	assert.Greater(t, s.Height, m.BaseHeight+m.BackgroundAmplitude)
}

func TestSeries_DegenerateMagnitudeIsBackgroundOnly(t *testing.T) {
	m := DefaultWaveModel()

	for _, mag := range []float64{0, -2, 6.5, 7, math.NaN(), math.Inf(1)} {
		series := m.Series(fukushimaCst, tohoku.Epicenter, mag, tohoku.OccurredAt, 4*time.Hour)
		require.NotEmpty(t, series)
		for _, s := range series {
			assert.False(t, s.IsTsunami, "magnitude %v at %.0f min", mag, s.Minutes)
			assert.InDelta(t, m.BaseHeight, s.Height, m.BackgroundAmplitude+1e-9)
		}
	}
}

func TestSeries_WeakDistantSignalSuppressed(t *testing.T) {
	m := DefaultWaveModel()
	far := Geo{Lat: -40, Lon: -60}

	series := m.Series(far, tohoku.Epicenter, 7.2, tohoku.OccurredAt, 24*time.Hour)

	for _, s := range series {
		assert.False(t, s.IsTsunami)
	}
	assert.Zero(t, m.PeakAmplitude(GreatCircleDistanceKm(far, tohoku.Epicenter), 7.2))
}

func TestSeries_EvenlySpaced(t *testing.T) {
	m := DefaultWaveModel()

	series := m.SeriesForEvent(fukushimaCst, tohoku, 4*time.Hour)

	require.Len(t, series, 41)
	assert.Equal(t, tohoku.OccurredAt, series[0].Timestamp)
	assert.Equal(t, tohoku.OccurredAt.Add(4*time.Hour), series[40].Timestamp)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, DefaultSampleInterval, series[i].Timestamp.Sub(series[i-1].Timestamp))
		assert.InDelta(t, 6.0, series[i].Minutes-series[i-1].Minutes, 1e-9)
	}
}

func TestSeries_HasActiveWindow(t *testing.T) {
	m := DefaultWaveModel()
	arrival := m.ArrivalMinutes(fukushimaCst, tohoku.Epicenter)

	series := m.SeriesForEvent(fukushimaCst, tohoku, 4*time.Hour)

	var peak float64
	for _, s := range series {
		expected := s.Minutes >= arrival && s.Minutes < arrival+m.ActiveWindow.Minutes()
		assert.Equal(t, expected, s.IsTsunami, "minute %.0f", s.Minutes)
		peak = math.Max(peak, s.Height)
	}
	assert.Greater(t, peak, HighHeight)
}

func TestSeries_NegativeDuration(t *testing.T) {
	assert.Empty(t, DefaultWaveModel().SeriesForEvent(fukushimaCst, tohoku, -time.Minute))
}

func TestWindow(t *testing.T) {
	m := DefaultWaveModel()

	w := m.Window(fukushimaCst, tohoku, 30, 4)

	require.Len(t, w, 4)
	assert.InDelta(t, 12.0, w[0].Minutes, 1e-9)
	assert.InDelta(t, 30.0, w[3].Minutes, 1e-9)
	assert.Empty(t, m.Window(fukushimaCst, tohoku, 30, 0))
}

func TestPeakAmplitude_AttenuatesWithDistance(t *testing.T) {
	m := DefaultWaveModel()

	near := m.PeakAmplitude(100, 9.1)
	far := m.PeakAmplitude(5000, 9.1)

	assert.InDelta(t, 2.1*2.5/1.2, near, 1e-9)
	assert.Less(t, far, near)
}
