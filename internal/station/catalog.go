// Package station loads the monitored tide gauge list and keeps it current.
package station

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/fsnotify/fsnotify"
)

//go:embed stations.json
var defaultStations []byte

type record struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Region string  `json:"region"`
}

// Parse decodes and validates a JSON station list.
func Parse(data []byte) ([]domain.Station, error) {
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("station list is empty")
	}

	seen := make(map[string]struct{}, len(records))
	stations := make([]domain.Station, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("station %d: missing id", i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("station %q: duplicate id", r.ID)
		}
		seen[r.ID] = struct{}{}

		geo := domain.Geo{Lat: r.Lat, Lon: r.Lon}
		if math.IsNaN(r.Lat) || math.IsNaN(r.Lon) || !geo.Valid() {
			return nil, fmt.Errorf("station %q: coordinates out of range (%v, %v)", r.ID, r.Lat, r.Lon)
		}
		stations = append(stations, domain.Station{ID: r.ID, Name: r.Name, Geo: geo, Region: r.Region})
	}
	return stations, nil
}

// Load reads a station list from path, or the embedded default list when
// path is empty.
func Load(path string) ([]domain.Station, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	return Parse(data)
}

// Default returns the embedded Pacific and Indian Ocean gauge list.
func Default() []domain.Station {
	stations, err := Parse(defaultStations)
	if err != nil {
		panic("embedded stations.json: " + err.Error())
	}
	return stations
}

// Namer post-processes a freshly loaded station list, e.g. to fill in names.
type Namer func(ctx context.Context, stations []domain.Station) []domain.Station

// Catalog is the live station list. Readers always see a complete list;
// reloads swap it atomically.
type Catalog struct {
	mu       sync.RWMutex
	stations []domain.Station
	index    map[string]int
	onChange []func([]domain.Station)

	path   string
	namer  Namer
	logger *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithNamer runs namer over every list the catalog loads.
func WithNamer(namer Namer) Option {
	return func(c *Catalog) { c.namer = namer }
}

// NewCatalog loads the initial list from path (embedded default when empty).
func NewCatalog(ctx context.Context, path string, logger *slog.Logger, opts ...Option) (*Catalog, error) {
	c := &Catalog{path: path, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	stations, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.set(c.name(ctx, stations))
	return c, nil
}

// Stations returns a copy of the current list.
func (c *Catalog) Stations() []domain.Station {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Lookup finds a station by ID.
func (c *Catalog) Lookup(id string) (domain.Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return domain.Station{}, false
	}
	return c.stations[i], true
}

// Len returns the number of stations.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// OnChange registers fn to run after each successful reload.
func (c *Catalog) OnChange(fn func([]domain.Station)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Reload re-reads the catalog file. On error the previous list is kept.
func (c *Catalog) Reload(ctx context.Context) error {
	stations, err := Load(c.path)
	if err != nil {
		return err
	}
	stations = c.name(ctx, stations)
	c.set(stations)

	c.mu.RLock()
	listeners := append([]func([]domain.Station){}, c.onChange...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(c.Stations())
	}

	c.logger.Info("station catalog reloaded", "path", c.path, "stations", len(stations))
	return nil
}

// Watch reloads the catalog whenever its file is written or replaced, until
// ctx is cancelled. The parent directory is watched so editors that save via
// rename are picked up.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return errors.New("watch stations: no file configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(c.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	c.logger.Info("watching station catalog", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.Reload(ctx); err != nil {
				c.logger.Warn("station catalog reload failed, keeping previous list", "path", target, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("station catalog watcher error", "error", err)
		}
	}
}

func (c *Catalog) name(ctx context.Context, stations []domain.Station) []domain.Station {
	if c.namer == nil {
		return stations
	}
	return c.namer(ctx, stations)
}

func (c *Catalog) set(stations []domain.Station) {
	index := make(map[string]int, len(stations))
	for i, s := range stations {
		index[s.ID] = i
	}
	c.mu.Lock()
	c.stations = stations
	c.index = index
	c.mu.Unlock()
}
