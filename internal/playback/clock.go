package playback

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTickInterval is how often the clock advances while playing.
	DefaultTickInterval = 100 * time.Millisecond

	// DefaultDuration is the simulation horizon in minutes.
	DefaultDuration = 240.0

	// DefaultMinutesPerSecond is simulated minutes per real second at 1x.
	DefaultMinutesPerSecond = 1.0
)

// Clock advances simulated time against a selected seismic event and
// publishes snapshots to subscribers. Create one per process with New and
// release it with Close.
type Clock struct {
	mu sync.Mutex

	clock            clockwork.Clock
	catalog          domain.Catalog
	logger           *slog.Logger
	metrics          *observability.Metrics
	tickInterval     time.Duration
	minutesPerSecond float64

	eventIdx int
	playing  bool
	paused   bool
	simTime  float64
	duration float64
	speed    float64

	// tick loop; done is nil while the loop is stopped
	ticker   clockwork.Ticker
	done     chan struct{}
	loopGen  uint64
	lastTick time.Time

	subs      map[uint64]Subscriber
	nextSubID uint64
	closed    bool

	// snapshots awaiting delivery, oldest first; one goroutine drains them
	pending    []State
	delivering bool
}

// Option configures a Clock.
type Option func(*Clock)

// WithClock sets the time source. Tests pass a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(pc *Clock) { pc.clock = c }
}

// WithTickInterval sets the wall-clock tick period.
func WithTickInterval(d time.Duration) Option {
	return func(pc *Clock) {
		if d > 0 {
			pc.tickInterval = d
		}
	}
}

// WithDuration sets the simulation horizon in minutes.
func WithDuration(minutes float64) Option {
	return func(pc *Clock) {
		if minutes > 0 && !math.IsInf(minutes, 0) {
			pc.duration = minutes
		}
	}
}

// WithMinutesPerSecond sets simulated minutes per real second at 1x speed.
func WithMinutesPerSecond(v float64) Option {
	return func(pc *Clock) {
		if v > 0 && !math.IsInf(v, 0) {
			pc.minutesPerSecond = v
		}
	}
}

// WithDefaultEvent selects the initial event. Unknown IDs keep the first
// catalog entry.
func WithDefaultEvent(id string) Option {
	return func(pc *Clock) {
		if i := pc.catalog.Index(id); i >= 0 {
			pc.eventIdx = i
		}
	}
}

// New creates a stopped clock positioned at the start of the first catalog
// event. An empty catalog falls back to domain.DefaultCatalog.
func New(catalog domain.Catalog, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Clock {
	if len(catalog) == 0 {
		catalog = domain.DefaultCatalog()
	}
	c := &Clock{
		clock:            clockwork.NewRealClock(),
		catalog:          catalog,
		logger:           logger,
		metrics:          metrics,
		tickInterval:     DefaultTickInterval,
		minutesPerSecond: DefaultMinutesPerSecond,
		duration:         DefaultDuration,
		speed:            DefaultSpeed,
		subs:             make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.SpeedMultiplier.Set(c.speed)
	return c
}

// Play starts or resumes playback. Playing from the end of the horizon
// rewinds to zero first.
func (c *Clock) Play() {
	c.mutate(func() bool {
		if c.simTime >= c.duration {
			c.simTime = 0
		}
		c.playing = true
		c.paused = false
		c.startLoop()
		c.logger.Info("playback started", "event_id", c.event().ID, "sim_minutes", c.simTime, "speed", c.speed)
		return true
	})
}

// Pause halts playback and keeps the current position.
func (c *Clock) Pause() {
	c.mutate(func() bool {
		c.playing = false
		c.paused = true
		c.stopLoop()
		c.logger.Info("playback paused", "event_id", c.event().ID, "sim_minutes", c.simTime)
		return true
	})
}

// Stop halts playback and rewinds to zero.
func (c *Clock) Stop() {
	c.mutate(func() bool {
		c.reset()
		c.logger.Info("playback stopped", "event_id", c.event().ID)
		return true
	})
}

// Restart is Stop followed by Play.
func (c *Clock) Restart() {
	c.Stop()
	c.Play()
}

// SeekTo jumps to the given simulated minute, clamped to the horizon. The
// play/pause state is unchanged.
func (c *Clock) SeekTo(minutes float64) {
	c.mutate(func() bool {
		c.simTime = clamp(minutes, 0, c.duration)
		c.logger.Debug("playback seek", "sim_minutes", c.simTime)
		return true
	})
}

// SeekToProgress jumps to a percentage of the horizon, clamped to [0, 100].
func (c *Clock) SeekToProgress(percent float64) {
	c.mutate(func() bool {
		c.simTime = clamp(clamp(percent, 0, 100)/100*c.duration, 0, c.duration)
		c.logger.Debug("playback seek", "sim_minutes", c.simTime, "percent", percent)
		return true
	})
}

// SetSpeed changes the speed multiplier. Values outside Speeds select
// DefaultSpeed.
func (c *Clock) SetSpeed(multiplier float64) {
	c.mutate(func() bool {
		if ValidSpeed(multiplier) {
			c.speed = multiplier
		} else {
			c.logger.Warn("unsupported speed multiplier, using default", "requested", multiplier, "speed", DefaultSpeed)
			c.speed = DefaultSpeed
		}
		c.metrics.SpeedMultiplier.Set(c.speed)
		return true
	})
}

// SetEvent selects an event by ID, stopping playback and rewinding to zero.
// Unknown IDs are ignored and report false.
func (c *Clock) SetEvent(id string) bool {
	switched := false
	c.mutate(func() bool {
		i := c.catalog.Index(id)
		if i < 0 {
			c.logger.Warn("unknown event id, keeping current event", "requested", id, "event_id", c.event().ID)
			return false
		}
		c.switchEvent(i)
		switched = true
		return true
	})
	return switched
}

// NextEvent selects the following catalog event, wrapping at the end.
func (c *Clock) NextEvent() {
	c.mutate(func() bool {
		c.switchEvent((c.eventIdx + 1) % len(c.catalog))
		return true
	})
}

// PreviousEvent selects the preceding catalog event, wrapping at the start.
func (c *Clock) PreviousEvent() {
	c.mutate(func() bool {
		n := len(c.catalog)
		c.switchEvent((c.eventIdx - 1 + n) % n)
		return true
	})
}

// State returns a snapshot of the current playback state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Event returns the selected seismic event.
func (c *Clock) Event() domain.SeismicEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event()
}

// Catalog returns the events available for playback.
func (c *Clock) Catalog() domain.Catalog {
	out := make(domain.Catalog, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// CurrentTimestamp returns the historical instant the simulation currently
// represents.
func (c *Clock) CurrentTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.event().At(c.simTime)
}

// Subscribe registers fn for state change notifications. The returned func
// detaches it and is safe to call more than once, including from within fn.
func (c *Clock) Subscribe(fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return func() {}
	}
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.metrics.Subscribers.Set(float64(len(c.subs)))

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
		c.metrics.Subscribers.Set(float64(len(c.subs)))
	}
}

// Close stops the tick loop and detaches every subscriber. Control methods
// become no-ops afterwards.
func (c *Clock) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.stopLoop()
	c.playing = false
	c.subs = make(map[uint64]Subscriber)
	c.pending = nil
	c.metrics.Subscribers.Set(0)
	c.metrics.Playing.Set(0)
}

// Closed reports whether Close has been called.
func (c *Clock) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// mutate runs fn under the lock and, when fn reports a change, queues the
// resulting snapshot for delivery.
func (c *Clock) mutate(fn func() bool) {
	c.mu.Lock()
	if c.closed || !fn() {
		c.mu.Unlock()
		return
	}
	c.publishLocked()
	c.mu.Unlock()

	c.deliver()
}

// publishLocked snapshots the state, updates the gauges, and queues the
// snapshot behind any not yet delivered.
func (c *Clock) publishLocked() {
	state := c.snapshot()
	c.metrics.SimMinutes.Set(state.CurrentSimTime)
	if state.IsPlaying {
		c.metrics.Playing.Set(1)
	} else {
		c.metrics.Playing.Set(0)
	}
	c.pending = append(c.pending, state)
}

// deliver hands queued snapshots to subscribers in the order they were
// taken. Only one goroutine delivers at a time; a caller that finds delivery
// in progress returns at once and the active deliverer sends its snapshot
// too. Subscribers are called without the lock held, so they may read the
// clock, unsubscribe, or call control methods.
func (c *Clock) deliver() {
	c.mu.Lock()
	if c.delivering {
		c.mu.Unlock()
		return
	}
	c.delivering = true
	for len(c.pending) > 0 {
		state := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]Subscriber, 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		for _, fn := range subs {
			fn(state)
		}

		c.mu.Lock()
	}
	c.pending = nil
	c.delivering = false
	c.mu.Unlock()
}

func (c *Clock) snapshot() State {
	s := State{
		IsPlaying:       c.playing,
		IsPaused:        c.paused,
		CurrentSimTime:  c.simTime,
		TotalDuration:   c.duration,
		SpeedMultiplier: c.speed,
		CurrentEventID:  c.event().ID,
		ProgressPercent: c.simTime / c.duration * 100,
	}
	switch {
	case c.playing:
		s.Status = StatusPlaying
	case c.paused:
		s.Status = StatusPaused
	default:
		s.Status = StatusStopped
	}
	return s
}

func (c *Clock) event() domain.SeismicEvent {
	return c.catalog[c.eventIdx]
}

func (c *Clock) reset() {
	c.stopLoop()
	c.playing = false
	c.paused = false
	c.simTime = 0
}

func (c *Clock) switchEvent(i int) {
	c.reset()
	c.eventIdx = i
	c.logger.Info("event selected", "event_id", c.event().ID, "magnitude", c.event().Magnitude)
}

// startLoop starts the ticker goroutine unless one is already running.
func (c *Clock) startLoop() {
	if c.done != nil {
		return
	}
	c.loopGen++
	gen := c.loopGen
	ticker := c.clock.NewTicker(c.tickInterval)
	done := make(chan struct{})
	c.ticker = ticker
	c.done = done
	c.lastTick = c.clock.Now()

	go c.run(gen, ticker, done)
}

// stopLoop stops the ticker. A tick already in flight is discarded by the
// generation check in tick.
func (c *Clock) stopLoop() {
	if c.done == nil {
		return
	}
	c.ticker.Stop()
	close(c.done)
	c.ticker = nil
	c.done = nil
	c.loopGen++
}

func (c *Clock) run(gen uint64, ticker clockwork.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			c.tick(gen)
		}
	}
}

// tick advances simulated time by the real time elapsed since the previous
// tick, so throttled or delayed timers still advance proportionally.
func (c *Clock) tick(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.loopGen || !c.playing {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	elapsed := now.Sub(c.lastTick)
	c.lastTick = now
	if elapsed < 0 {
		elapsed = 0
	}

	c.simTime += elapsed.Seconds() * c.minutesPerSecond * c.speed
	if c.simTime >= c.duration {
		c.simTime = c.duration
		c.playing = false
		c.paused = true
		c.stopLoop()
		c.logger.Info("playback reached end of horizon", "event_id", c.event().ID, "sim_minutes", c.simTime)
	}
	c.metrics.Ticks.Inc()

	c.publishLocked()
	c.mu.Unlock()

	c.deliver()
}

// clamp limits v to [lo, hi]; NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
