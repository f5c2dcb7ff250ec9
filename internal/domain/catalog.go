package domain

import "time"

// DefaultEventID is the event selected when the playback clock starts.
const DefaultEventID = "tohoku_2011"

// Catalog is the ordered set of historical events available for playback.
// Order matters: next/previous cycle through it.
type Catalog []SeismicEvent

// DefaultCatalog returns the built-in event list.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:         "tohoku_2011",
			Name:       "2011 Tōhoku earthquake and tsunami",
			Epicenter:  Geo{Lat: 38.297, Lon: 142.373},
			Magnitude:  9.1,
			DepthKm:    29,
			OccurredAt: time.Date(2011, time.March, 11, 5, 46, 24, 0, time.UTC),
		},
		{
			ID:         "sumatra_2004",
			Name:       "2004 Indian Ocean earthquake and tsunami",
			Epicenter:  Geo{Lat: 3.316, Lon: 95.854},
			Magnitude:  9.1,
			DepthKm:    30,
			OccurredAt: time.Date(2004, time.December, 26, 0, 58, 53, 0, time.UTC),
		},
		{
			ID:         "chile_2010",
			Name:       "2010 Chile earthquake and tsunami",
			Epicenter:  Geo{Lat: -36.122, Lon: -72.898},
			Magnitude:  8.8,
			DepthKm:    22.9,
			OccurredAt: time.Date(2010, time.February, 27, 6, 34, 11, 0, time.UTC),
		},
	}
}

// Index returns the position of the event with the given ID, or -1.
func (c Catalog) Index(id string) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}

// Lookup returns the event with the given ID.
func (c Catalog) Lookup(id string) (SeismicEvent, bool) {
	i := c.Index(id)
	if i < 0 {
		return SeismicEvent{}, false
	}
	return c[i], true
}
