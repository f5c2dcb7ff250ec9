package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PlaybackController is the subset of *playback.Clock the API drives.
type PlaybackController interface {
	Play()
	Pause()
	Stop()
	Restart()
	NextEvent()
	PreviousEvent()
	SeekTo(minutes float64)
	SeekToProgress(percent float64)
	SetSpeed(multiplier float64)
	SetEvent(id string) bool
	State() playback.State
	Event() domain.SeismicEvent
	Catalog() domain.Catalog
	CurrentTimestamp() time.Time
}

// StationCatalog lists monitored stations.
type StationCatalog interface {
	Stations() []domain.Station
	Lookup(id string) (domain.Station, bool)
}

// StatusReader reads the station status cache.
type StatusReader interface {
	All() []domain.StationStatus
	Alerts() []domain.StationStatus
}

// Deps are the components the API serves.
type Deps struct {
	Playback  PlaybackController
	Stations  StationCatalog
	Statuses  StatusReader
	Model     domain.WaveModel
	Ready     sharedobs.ReadinessChecker
	Dashboard http.Handler // websocket endpoint, optional
}

// Server exposes the playback control API plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the service routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Ready))
	r.Handle("/metrics", promhttp.Handler())
	if deps.Dashboard != nil {
		r.Handle("/ws", deps.Dashboard)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)

		r.Route("/playback", func(r chi.Router) {
			r.Get("/", s.handlePlayback)
			r.Post("/play", s.control(deps.Playback.Play))
			r.Post("/pause", s.control(deps.Playback.Pause))
			r.Post("/stop", s.control(deps.Playback.Stop))
			r.Post("/restart", s.control(deps.Playback.Restart))
			r.Post("/next", s.control(deps.Playback.NextEvent))
			r.Post("/previous", s.control(deps.Playback.PreviousEvent))
			r.Post("/seek", s.handleSeek)
			r.Post("/speed", s.handleSpeed)
			r.Post("/event", s.handleSetEvent)
		})

		r.Route("/stations", func(r chi.Router) {
			r.Get("/", s.handleStations)
			r.Get("/status", s.handleStatuses)
			r.Get("/{id}/series", s.handleSeries)
		})
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
