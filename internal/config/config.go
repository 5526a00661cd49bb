package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Zone source kinds.
const (
	ZoneSourceNone  = "none"
	ZoneSourceHTTP  = "http"
	ZoneSourceRedis = "redis"
)

// Zone radius policies.
const (
	RadiusPolicyFixed = "fixed"
	RadiusPolicyCount = "count"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Danger-zone source configuration.
	ZoneSource       string
	ZoneURL          string
	ZonePollInterval time.Duration
	ZoneFetchTimeout time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	ZoneRedisKey     string

	// Zone circle sizing.
	ZoneRadiusPolicy            string
	ZoneRadiusMeters            float64
	ZoneRadiusPerIncidentMeters float64
	FocusViewportDegrees        float64

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
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

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("ZONE_POLL_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parsePositiveDuration("ZONE_FETCH_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	radiusMeters, err := parsePositiveFloat("ZONE_RADIUS_METERS", 300)
	if err != nil {
		return nil, err
	}
	perIncident, err := parsePositiveFloat("ZONE_RADIUS_PER_INCIDENT_METERS", 120)
	if err != nil {
		return nil, err
	}
	viewport, err := parsePositiveFloat("FOCUS_VIEWPORT_DEGREES", 0.005)
	if err != nil {
		return nil, err
	}

	redisDB, err := strconv.Atoi(sharedcfg.EnvOrDefault("REDIS_DB", "0"))
	if err != nil || redisDB < 0 {
		return nil, errors.New("invalid REDIS_DB")
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		KafkaEnabled:       sharedcfg.EnvOrDefault("KAFKA_ENABLED", "true") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "incident-events"),
		KafkaSinkTopic:     envOrDefaultAllowEmpty("KAFKA_SINK_TOPIC", "hotspot-views"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "incident-hotspot"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		ZoneSource:       strings.ToLower(sharedcfg.EnvOrDefault("ZONE_SOURCE", ZoneSourceNone)),
		ZoneURL:          os.Getenv("ZONE_URL"),
		ZonePollInterval: pollInterval,
		ZoneFetchTimeout: fetchTimeout,
		RedisAddr:        sharedcfg.EnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          redisDB,
		ZoneRedisKey:     sharedcfg.EnvOrDefault("ZONE_REDIS_KEY", "danger-zones"),

		ZoneRadiusPolicy:            strings.ToLower(sharedcfg.EnvOrDefault("ZONE_RADIUS_POLICY", RadiusPolicyFixed)),
		ZoneRadiusMeters:            radiusMeters,
		ZoneRadiusPerIncidentMeters: perIncident,
		FocusViewportDegrees:        viewport,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	}
	switch cfg.ZoneSource {
	case ZoneSourceNone, ZoneSourceRedis:
	case ZoneSourceHTTP:
		if cfg.ZoneURL == "" {
			return errors.New("ZONE_SOURCE is http but ZONE_URL is not set")
		}
	default:
		return fmt.Errorf("invalid ZONE_SOURCE %q", cfg.ZoneSource)
	}
	switch cfg.ZoneRadiusPolicy {
	case RadiusPolicyFixed, RadiusPolicyCount:
	default:
		return fmt.Errorf("invalid ZONE_RADIUS_POLICY %q", cfg.ZoneRadiusPolicy)
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return v, nil
}

// envOrDefaultAllowEmpty returns def only when key is unset, so an explicit
// empty value can switch a feature off.
func envOrDefaultAllowEmpty(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
