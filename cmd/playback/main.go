package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpadapter "github.com/couchcryptid/tsunami-playback-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/tsunami-playback-service/internal/adapter/kafka"
	"github.com/couchcryptid/tsunami-playback-service/internal/adapter/mapbox"
	"github.com/couchcryptid/tsunami-playback-service/internal/adapter/ws"
	"github.com/couchcryptid/tsunami-playback-service/internal/config"
	"github.com/couchcryptid/tsunami-playback-service/internal/domain"
	"github.com/couchcryptid/tsunami-playback-service/internal/monitor"
	"github.com/couchcryptid/tsunami-playback-service/internal/observability"
	"github.com/couchcryptid/tsunami-playback-service/internal/playback"
	"github.com/couchcryptid/tsunami-playback-service/internal/station"
	"github.com/couchcryptid/tsunami-playback-service/internal/status"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Station naming is feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	var opts []station.Option
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder := mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		opts = append(opts, station.WithNamer(func(ctx context.Context, stations []domain.Station) []domain.Station {
			return domain.NameStations(ctx, stations, geocoder, logger)
		}))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	stations, err := station.NewCatalog(ctx, cfg.StationsFile, logger, opts...)
	if err != nil {
		logger.Error("failed to load stations", "error", err, "path", cfg.StationsFile)
		os.Exit(1)
	}
	logger.Info("station catalog loaded", "stations", stations.Len(), "path", cfg.StationsFile)

	events := domain.DefaultCatalog()
	model := domain.DefaultWaveModel().WithSpeed(cfg.WaveSpeedKmPerMin)

	clock := playback.New(events, logger, metrics,
		playback.WithTickInterval(cfg.TickInterval),
		playback.WithDuration(cfg.PlaybackDuration),
		playback.WithDefaultEvent(cfg.DefaultEventID),
	)

	cache := status.New(cfg.StatusCacheTTL, cfg.StatusCacheSize)
	hub := ws.NewHub(clock, cache, cfg.BroadcastRate, logger, metrics)

	var wg sync.WaitGroup
	checks := readinessChecks{clock: clock}
	monitorOpts := []monitor.Option{monitor.WithNotifier(hub)}

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		if err := kafkaadapter.EnsureTopic(cfg.KafkaBrokers[0], cfg.KafkaStatusTopic, 1); err != nil {
			logger.Warn("could not ensure status topic", "error", err, "topic", cfg.KafkaStatusTopic)
		}
		writer = kafkaadapter.NewWriter(cfg, logger)
		changes := make(chan domain.StationStatus, cfg.BatchSize*4)
		publisher := monitor.NewPublisher(changes, writer, logger, metrics, cfg.BatchSize, cfg.BatchFlushInterval, nil)
		checks.publisher = publisher
		monitorOpts = append(monitorOpts, monitor.WithChanges(changes))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Run(ctx); err != nil {
				logger.Error("status publisher error", "error", err)
			}
		}()
		logger.Info("kafka status publishing enabled", "topic", cfg.KafkaStatusTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka status publishing disabled")
	}

	mon := monitor.New(events, stations, model, cache, logger, metrics, monitorOpts...)
	stations.OnChange(func([]domain.Station) { mon.Invalidate() })
	clock.Subscribe(mon.OnState)
	clock.Subscribe(hub.OnState)
	mon.OnState(clock.State())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.KeepAlive(ctx, cfg.StatusCacheTTL/2); err != nil {
			logger.Error("status keepalive error", "error", err)
		}
	}()

	if cfg.StationsWatch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := stations.Watch(ctx); err != nil {
				logger.Error("station catalog watch error", "error", err)
			}
		}()
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Playback:  clock,
		Stations:  stations,
		Statuses:  cache,
		Model:     model,
		Ready:     checks,
		Dashboard: hub,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	clock.Close()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// readinessChecks reports ready once every enabled component is.
type readinessChecks struct {
	clock     *playback.Clock
	publisher sharedobs.ReadinessChecker
}

func (r readinessChecks) CheckReadiness(ctx context.Context) error {
	if r.clock.Closed() {
		return errors.New("playback clock is closed")
	}
	if r.publisher != nil {
		return r.publisher.CheckReadiness(ctx)
	}
	return nil
}
