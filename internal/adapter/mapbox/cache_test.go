package mapbox

import (
	"context"
	"errors"
	"testing"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingGeocoder struct {
	calls  int
	result domain.GeocodingResult
	err    error
}

func (m *countingGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	m.calls++
	return m.result, m.err
}

// --- CachedGeocoder tests ---

func TestCachedGeocoder_CacheHit(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{PlaceName: "Hilo", FormattedAddress: "Hilo, Hawaii"}}
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(inner, 10, metrics)

	r1, err := cached.ReverseGeocode(context.Background(), 19.73, -155.06)
	require.NoError(t, err)
	r2, err := cached.ReverseGeocode(context.Background(), 19.73, -155.06)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.calls, "should only call inner once")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GeocodeCache.WithLabelValues("miss")))
}

func TestCachedGeocoder_DifferentKeysMiss(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{FormattedAddress: "Somewhere"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 19.73, -155.06)
	_, _ = cached.ReverseGeocode(context.Background(), 20.89, -156.47)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_EmptyAndErrorsNotCached(t *testing.T) {
	inner := &countingGeocoder{}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.ReverseGeocode(context.Background(), 0, -140)
	_, _ = cached.ReverseGeocode(context.Background(), 0, -140)
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("boom")
	_, err := cached.ReverseGeocode(context.Background(), 0, -140)
	require.Error(t, err)
	assert.Zero(t, cached.cache.len())
}

func TestCachedGeocoder_NamesStations(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{PlaceName: "Apia", FormattedAddress: "Apia, Samoa"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	stations := []domain.Station{
		{ID: "a", Geo: domain.Geo{Lat: -13.82, Lon: -171.76}},
		{ID: "b", Name: "Kept", Geo: domain.Geo{Lat: -13.82, Lon: -171.76}},
		{ID: "c", Geo: domain.Geo{Lat: -13.82, Lon: -171.76}},
	}
	named := domain.NameStations(context.Background(), stations, cached, discardLogger())

	assert.Equal(t, "Apia", named[0].Name)
	assert.Equal(t, "Kept", named[1].Name)
	assert.Equal(t, "Apia", named[2].Name)
	assert.Equal(t, 1, inner.calls)
}

// --- LRU cache unit tests ---

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache[string](3)

	c.put("a", "A")
	c.put("b", "B")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.put("c", "C") // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")
	result, ok := c.get("b")
	assert.True(t, ok)
	assert.Equal(t, "B", result)
	assert.Equal(t, 2, c.len())
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A")
	c.put("b", "B")
	c.get("a")
	c.put("c", "C")

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")
	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache[string](2)

	c.put("a", "A1")
	c.put("a", "A2")

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result)
	assert.Equal(t, 1, c.len())
}
