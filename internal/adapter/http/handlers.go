package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	"github.com/go-chi/chi/v5"
)

const (
	defaultSeriesHours = 4.0
	maxSeriesHours     = 48.0
	maxBodyBytes       = 1 << 12
)

type playbackResponse struct {
	playback.State
	CurrentTimestamp time.Time           `json:"current_timestamp"`
	Event            domain.SeismicEvent `json:"event"`
}

type eventsResponse struct {
	CurrentEventID string                `json:"current_event_id"`
	Events         []domain.SeismicEvent `json:"events"`
}

type seriesResponse struct {
	Station        domain.Station      `json:"station"`
	EventID        string              `json:"event_id"`
	ArrivalMinutes float64             `json:"arrival_minutes"`
	DistanceKm     float64             `json:"distance_km"`
	Samples        []domain.WaveSample `json:"samples"`
}

type seekRequest struct {
	Minutes *float64 `json:"minutes"`
	Percent *float64 `json:"percent"`
}

type speedRequest struct {
	Multiplier *float64 `json:"multiplier"`
}

type eventRequest struct {
	ID string `json:"id"`
}

// playbackState derives the event and timestamp from a single snapshot so a
// concurrent event switch cannot mix two events in one response.
func (s *Server) playbackState() playbackResponse {
	pb := s.deps.Playback
	st := pb.State()
	event, ok := pb.Catalog().Lookup(st.CurrentEventID)
	if !ok {
		event = pb.Event()
	}
	return playbackResponse{
		State:            st,
		CurrentTimestamp: event.At(st.CurrentSimTime),
		Event:            event,
	}
}

func (s *Server) handlePlayback(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, eventsResponse{
		CurrentEventID: s.deps.Playback.State().CurrentEventID,
		Events:         s.deps.Playback.Catalog(),
	})
}

// control wraps a no-argument transport action.
func (s *Server) control(action func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		action()
		writeJSON(w, http.StatusOK, s.playbackState())
	}
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	switch {
	case req.Minutes != nil:
		s.deps.Playback.SeekTo(*req.Minutes)
	case req.Percent != nil:
		s.deps.Playback.SeekToProgress(*req.Percent)
	default:
		writeError(w, http.StatusBadRequest, errors.New(`one of "minutes" or "percent" is required`))
		return
	}
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Multiplier == nil {
		writeError(w, http.StatusBadRequest, errors.New(`"multiplier" is required`))
		return
	}
	s.deps.Playback.SetSpeed(*req.Multiplier)
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleSetEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, errors.New(`"id" is required`))
		return
	}
	if !s.deps.Playback.SetEvent(req.ID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown event %q", req.ID))
		return
	}
	writeJSON(w, http.StatusOK, s.playbackState())
}

func (s *Server) handleStations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Stations.Stations())
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("alerts") == "true" {
		writeJSON(w, http.StatusOK, nonNil(s.deps.Statuses.Alerts()))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.deps.Statuses.All()))
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	station, ok := s.deps.Stations.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown station %q", id))
		return
	}

	hours := defaultSeriesHours
	if v := r.URL.Query().Get("hours"); v != "" {
		h, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(h) || h <= 0 || h > maxSeriesHours {
			writeError(w, http.StatusBadRequest, fmt.Errorf("hours must be in (0, %g]", maxSeriesHours))
			return
		}
		hours = h
	}

	event := s.deps.Playback.Event()
	duration := time.Duration(hours * float64(time.Hour))
	writeJSON(w, http.StatusOK, seriesResponse{
		Station:        station,
		EventID:        event.ID,
		ArrivalMinutes: s.deps.Model.ArrivalMinutes(station.Geo, event.Epicenter),
		DistanceKm:     domain.GreatCircleDistanceKm(station.Geo, event.Epicenter),
		Samples:        s.deps.Model.SeriesForEvent(station.Geo, event, duration),
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func nonNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
