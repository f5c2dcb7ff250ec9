// Package status keeps the latest classified state of every monitored station.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultTTL     = 10 * time.Minute
	DefaultMaxSize = 1000
)

// Cache is a thread-safe, size-bounded store of station statuses keyed by
// station ID. Entries not updated or touched within the TTL read as absent;
// when full, the least recently updated entry is evicted.
type Cache struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	ttl        time.Duration
	maxEntries int
	entries    map[string]*entry
	head       *entry // most recently updated
	tail       *entry // least recently updated
}

type entry struct {
	status  domain.StationStatus
	touched time.Time // expiry is measured from here
	prev    *entry
	next   *entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock sets the time source used for UpdatedAt and expiry.
func WithClock(c clockwork.Clock) Option {
	return func(cache *Cache) { cache.clock = c }
}

// New creates a cache. Non-positive ttl or maxEntries use the defaults.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxSize
	}
	c := &Cache{
		clock:      clockwork.NewRealClock(),
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update records a new classification and reports whether the station's
// severity level changed. A station without a live entry counts as changed.
// The consecutive alert count grows while the result is an alert and resets
// to zero otherwise; LastChange moves only when the level changes.
func (c *Cache) Update(u domain.StatusUpdate) (domain.StationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	next := domain.StationStatus{
		StationID:  u.StationID,
		Name:       u.Name,
		Geo:        u.Geo,
		EventID:    u.EventID,
		Level:      u.Result.Level,
		IsAlert:    u.Result.IsAlert,
		Height:     u.Height,
		Timestamp:  u.Timestamp,
		LastChange: u.Timestamp,
		UpdatedAt:  now,
	}

	e, ok := c.entries[u.StationID]
	if ok && c.expired(e, now) {
		c.drop(e)
		ok = false
	}

	changed := true
	if ok {
		prev := e.status
		changed = prev.Level != next.Level
		if !changed {
			next.LastChange = prev.LastChange
		}
		if next.IsAlert {
			next.ConsecutiveAlerts = prev.ConsecutiveAlerts + 1
		}
		e.status = next
		e.touched = now
		c.moveToFront(e)
		return next, changed
	}

	if next.IsAlert {
		next.ConsecutiveAlerts = 1
	}
	e = &entry{status: next, touched: now}
	c.entries[u.StationID] = e
	c.addToFront(e)
	if len(c.entries) > c.maxEntries {
		c.drop(c.tail)
	}
	return next, changed
}

// Get returns the live status for a station.
func (c *Cache) Get(stationID string) (domain.StationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[stationID]
	if !ok {
		return domain.StationStatus{}, false
	}
	if c.expired(e, c.clock.Now()) {
		c.drop(e)
		return domain.StationStatus{}, false
	}
	return e.status, true
}

// All returns every live status, most severe first, then by station ID.
func (c *Cache) All() []domain.StationStatus {
	return c.collect(func(domain.StationStatus) bool { return true })
}

// Alerts returns live statuses above normal, most severe first.
func (c *Cache) Alerts() []domain.StationStatus {
	return c.collect(func(s domain.StationStatus) bool { return s.IsAlert })
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweep(c.clock.Now())
	return len(c.entries)
}

// Touch restarts the TTL of every live entry without changing its status
// and returns how many entries it renewed.
func (c *Cache) Touch() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.sweep(now)
	for e := c.head; e != nil; e = e.next {
		e.touched = now
	}
	return len(c.entries)
}

// Reset removes every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.head = nil
	c.tail = nil
}

func (c *Cache) collect(keep func(domain.StationStatus) bool) []domain.StationStatus {
	c.mu.Lock()
	c.sweep(c.clock.Now())
	out := make([]domain.StationStatus, 0, len(c.entries))
	for _, e := range c.entries {
		if keep(e.status) {
			out = append(out, e.status)
		}
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level.Worse(out[j].Level)
		}
		return out[i].StationID < out[j].StationID
	})
	return out
}

func (c *Cache) expired(e *entry, now time.Time) bool {
	return now.Sub(e.touched) >= c.ttl
}

// sweep drops expired entries. The list is ordered by touch time, so it
// stops at the first live entry from the tail.
func (c *Cache) sweep(now time.Time) {
	for c.tail != nil && c.expired(c.tail, now) {
		c.drop(c.tail)
	}
}

func (c *Cache) drop(e *entry) {
	delete(c.entries, e.status.StationID)
	c.remove(e)
}

func (c *Cache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}
