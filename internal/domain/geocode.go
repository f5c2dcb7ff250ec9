package domain

import (
	"context"
	"log/slog"
)

// NameStations fills in empty station names from a reverse geocoder.
// Stations that already have a name are left alone. If geocoder is nil or a
// lookup fails, the station keeps its empty name (graceful degradation).
func NameStations(ctx context.Context, stations []Station, geocoder ReverseGeocoder, logger *slog.Logger) []Station {
	if geocoder == nil {
		return stations
	}

	out := make([]Station, len(stations))
	copy(out, stations)
	for i := range out {
		if out[i].Name != "" {
			continue
		}
		result, err := geocoder.ReverseGeocode(ctx, out[i].Geo.Lat, out[i].Geo.Lon)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"station_id", out[i].ID,
				"lat", out[i].Geo.Lat,
				"lon", out[i].Geo.Lon,
				"error", err,
			)
			if ctx.Err() != nil {
				return out
			}
			continue
		}
		switch {
		case result.PlaceName != "":
			out[i].Name = result.PlaceName
		case result.FormattedAddress != "":
			out[i].Name = result.FormattedAddress
		}
	}
	return out
}
