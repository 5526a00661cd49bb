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

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/incident-hotspot-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/incident-hotspot-service/internal/adapter/kafka"
	"github.com/couchcryptid/incident-hotspot-service/internal/adapter/mapbox"
	"github.com/couchcryptid/incident-hotspot-service/internal/adapter/zonesource"
	"github.com/couchcryptid/incident-hotspot-service/internal/config"
	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
	"github.com/couchcryptid/incident-hotspot-service/internal/engine"
	"github.com/couchcryptid/incident-hotspot-service/internal/hotspot"
	"github.com/couchcryptid/incident-hotspot-service/internal/observability"
	"github.com/couchcryptid/incident-hotspot-service/internal/pipeline"
	"github.com/couchcryptid/incident-hotspot-service/internal/zone"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store := hotspot.NewStore(hotspot.WithRebuildHook(metrics.SnapshotRebuilds.Inc))

	// Danger-zone source (ZONE_SOURCE=none|http|redis).
	var source zone.Source
	var redisSource *zonesource.RedisSource
	switch cfg.ZoneSource {
	case config.ZoneSourceHTTP:
		source = zonesource.NewHTTPSource(cfg.ZoneURL, cfg.ZoneFetchTimeout, logger)
	case config.ZoneSourceRedis:
		redisSource = zonesource.NewRedisSource(cfg, logger)
		source = redisSource
	}
	logger.Info("danger-zone source", "kind", cfg.ZoneSource, "poll_interval", cfg.ZonePollInterval)
	poller := zone.NewPoller(source, cfg.ZonePollInterval, cfg.ZoneFetchTimeout, logger, metrics)

	opts := []engine.Option{
		engine.WithRadiusPolicy(radiusPolicy(cfg)),
		engine.WithViewportDegrees(cfg.FocusViewportDegrees),
	}

	// Place names are feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN.
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		opts = append(opts, engine.WithGeocoder(mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)))
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	eng := engine.New(store, poller, logger, metrics, opts...)
	logger.Info("engine started", "instance_id", eng.InstanceID())

	var (
		p      *pipeline.Pipeline
		reader *kafkaadapter.Reader
		writer *kafkaadapter.Writer
	)
	ready := anyReady{eng}
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		var popts []pipeline.Option
		if cfg.KafkaSinkTopic != "" {
			writer = kafkaadapter.NewWriter(cfg, logger)
			popts = append(popts, pipeline.WithPublisher(eng, writer))
		}
		p = pipeline.New(reader, pipeline.NewTransformer(), eng, logger, metrics, cfg.BatchSize, popts...)
		ready = append(ready, p)
	} else {
		logger.Info("kafka disabled, incidents accepted over HTTP only")
		ready = append(ready, alwaysReady{})
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, ready, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start zone poller.
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// Start incident pipeline.
	if p != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()

	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisSource != nil {
		if err := redisSource.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func radiusPolicy(cfg *config.Config) domain.RadiusPolicy {
	if cfg.ZoneRadiusPolicy == config.RadiusPolicyCount {
		return domain.CountScaledRadius(cfg.ZoneRadiusPerIncidentMeters)
	}
	return domain.FixedRadius(cfg.ZoneRadiusMeters)
}

type readinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// anyReady reports ready as soon as one of its checkers does.
type anyReady []readinessChecker

func (a anyReady) CheckReadiness(ctx context.Context) error {
	var err error
	for _, c := range a {
		if err = c.CheckReadiness(ctx); err == nil {
			return nil
		}
	}
	return err
}

type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }
