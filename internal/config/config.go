package config

import (
	"errors"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Playback clock configuration.
	TickInterval      time.Duration
	PlaybackDuration  float64 // simulated minutes
	DefaultEventID    string
	WaveSpeedKmPerMin float64

	// Station catalog configuration.
	StationsFile  string
	StationsWatch bool

	// Status cache configuration.
	StatusCacheTTL  time.Duration
	StatusCacheSize int

	// Kafka status publishing configuration.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaStatusTopic   string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int

	// Dashboard websocket configuration.
	BroadcastRate float64 // playing snapshots per second
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	tickInterval, err := parsePositiveDuration("PLAYBACK_TICK_INTERVAL", "100ms")
	if err != nil {
		return nil, err
	}

	playbackDuration, err := parsePositiveFloat("PLAYBACK_DURATION", "240")
	if err != nil {
		return nil, err
	}

	waveSpeed, err := parsePositiveFloat("WAVE_SPEED_KM_PER_MIN", "12")
	if err != nil {
		return nil, err
	}

	statusTTL, err := parsePositiveDuration("STATUS_CACHE_TTL", "10m")
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	broadcastRate, err := parsePositiveFloat("WS_BROADCAST_RATE", "10")
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		TickInterval:      tickInterval,
		PlaybackDuration:  playbackDuration,
		DefaultEventID:    sharedcfg.EnvOrDefault("PLAYBACK_DEFAULT_EVENT", "tohoku_2011"),
		WaveSpeedKmPerMin: waveSpeed,

		StationsFile:  os.Getenv("STATIONS_FILE"),
		StationsWatch: os.Getenv("STATIONS_WATCH") == "true",

		StatusCacheTTL:  statusTTL,
		StatusCacheSize: parsePositiveInt("STATUS_CACHE_SIZE", 1000),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStatusTopic:   sharedcfg.EnvOrDefault("KAFKA_STATUS_TOPIC", "tsunami-station-status"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parsePositiveInt("MAPBOX_CACHE_SIZE", 1000),

		BroadcastRate: broadcastRate,
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaStatusTopic == "" {
		return nil, errors.New("KAFKA_STATUS_TOPIC is required when KAFKA_ENABLED is true")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	if cfg.StationsWatch && cfg.StationsFile == "" {
		return nil, errors.New("STATIONS_WATCH requires STATIONS_FILE")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveFloat(key, def string) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}

func parsePositiveInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
