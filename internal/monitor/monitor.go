// Package monitor turns playback snapshots into per-station severity statuses
// and ships level changes to downstream sinks.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	"github.com/couchcryptid/tsunami-playback-service/internal/status"
	"github.com/jonboulle/clockwork"
)

// WindowSize is the number of trailing samples classified per station.
const WindowSize = 4

// StationSource provides the current station list.
type StationSource interface {
	Stations() []domain.Station
}

// Notifier receives the statuses whose level changed during one evaluation.
type Notifier interface {
	BroadcastStations(changes []domain.StationStatus)
}

// Monitor classifies every station once per evaluation period of simulated
// time. Feed it playback snapshots via OnState.
type Monitor struct {
	mu sync.Mutex

	events   domain.Catalog
	stations StationSource
	model    domain.WaveModel
	cache    *status.Cache
	notifier Notifier
	changes  chan<- domain.StationStatus
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	eventID    string
	lastPeriod int
	last       playback.State
	hasLast    bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithNotifier forwards status changes to n, typically the dashboard hub.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithClock sets the time source for KeepAlive.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithChanges forwards status changes to ch without blocking. Changes that do
// not fit are dropped and counted.
func WithChanges(ch chan<- domain.StationStatus) Option {
	return func(m *Monitor) { m.changes = ch }
}

// New creates a monitor over the given events and stations.
func New(events domain.Catalog, stations StationSource, model domain.WaveModel, cache *status.Cache, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Monitor {
	m := &Monitor{
		events:     events,
		stations:   stations,
		model:      model,
		cache:      cache,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		lastPeriod: -1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnState evaluates the snapshot if it enters a new evaluation period. A new
// event or a move backwards in time clears the status cache first. Within a
// period the snapshot is evaluated again only when the cache has lost
// stations, e.g. to expiry while playback sat idle.
func (m *Monitor) OnState(s playback.State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events.Lookup(s.CurrentEventID)
	if !ok {
		m.logger.Warn("snapshot references unknown event", "event_id", s.CurrentEventID)
		return
	}
	m.last = s
	m.hasLast = true

	period, start := m.period(s.CurrentSimTime)
	if s.CurrentEventID != m.eventID || period < m.lastPeriod {
		if m.eventID != "" {
			m.logger.Debug("resetting station statuses", "event_id", s.CurrentEventID, "period", period)
		}
		m.cache.Reset()
		m.eventID = s.CurrentEventID
		m.lastPeriod = -1
	}
	if period == m.lastPeriod {
		if m.cache.Len() >= len(m.stations.Stations()) {
			return
		}
		m.logger.Debug("refilling expired station statuses", "event_id", s.CurrentEventID, "period", period)
		m.cache.Reset()
	}
	m.lastPeriod = period

	m.evaluate(event, start)
}

// Invalidate clears the status cache and re-evaluates the latest snapshot
// right away, e.g. after the station list changes.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Reset()
	m.lastPeriod = -1
	if !m.hasLast {
		return
	}
	event, ok := m.events.Lookup(m.last.CurrentEventID)
	if !ok {
		return
	}
	period, start := m.period(m.last.CurrentSimTime)
	m.lastPeriod = period
	m.evaluate(event, start)
}

// KeepAlive renews the cached statuses every interval until ctx is done.
// Statuses only change when simulated time moves, so without it they would
// expire while playback is paused or stopped.
func (m *Monitor) KeepAlive(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("keepalive interval must be positive, got %s", interval)
	}
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			n := m.cache.Touch()
			m.logger.Debug("renewed station statuses", "count", n)
		}
	}
}

// period returns the evaluation period containing minutes and the simulated
// minute it starts at.
func (m *Monitor) period(minutes float64) (int, float64) {
	step := m.model.SampleInterval.Minutes()
	if step <= 0 {
		step = domain.DefaultSampleInterval.Minutes()
	}
	p := int(math.Floor(minutes / step))
	return p, float64(p) * step
}

func (m *Monitor) evaluate(event domain.SeismicEvent, minutes float64) {
	stations := m.stations.Stations()
	m.metrics.StationsMonitored.Set(float64(len(stations)))

	var changes []domain.StationStatus
	alerting := 0
	for _, st := range stations {
		result := domain.ClassifySamples(m.model.Window(st.Geo, event, minutes, WindowSize))
		m.metrics.Classifications.WithLabelValues(result.Level.String()).Inc()
		if result.IsAlert {
			alerting++
		}

		current, changed := m.cache.Update(domain.StatusUpdate{
			StationID: st.ID,
			Name:      st.Name,
			Geo:       st.Geo,
			EventID:   event.ID,
			Result:    result,
			Height:    result.CurrentHeight,
			Timestamp: event.At(minutes),
		})
		if changed {
			changes = append(changes, current)
		}
	}
	m.metrics.AlertingStations.Set(float64(alerting))

	if len(changes) == 0 {
		return
	}
	m.metrics.StatusChanges.Add(float64(len(changes)))
	m.logger.Debug("station levels changed", "event_id", event.ID, "sim_minutes", minutes, "changes", len(changes), "alerting", alerting)

	if m.notifier != nil {
		m.notifier.BroadcastStations(changes)
	}
	m.enqueue(changes)
}

func (m *Monitor) enqueue(changes []domain.StationStatus) {
	if m.changes == nil {
		return
	}
	for _, c := range changes {
		select {
		case m.changes <- c:
		default:
			m.metrics.StatusDrops.Inc()
		}
	}
}
