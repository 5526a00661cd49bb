package zonesource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/incident-hotspot-service/internal/config"
	"github.com/couchcryptid/incident-hotspot-service/internal/domain"
)

// stringGetter is the subset of *redis.Client the source uses.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource reads the zone array that the analytics service publishes
// under a single key. It implements zone.Source.
type RedisSource struct {
	client stringGetter
	key    string
	logger *slog.Logger
	closer func() error
}

// NewRedisSource opens a client for the configured Redis instance.
func NewRedisSource(cfg *config.Config, logger *slog.Logger) *RedisSource {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisSource{
		client: client,
		key:    cfg.ZoneRedisKey,
		logger: logger,
		closer: client.Close,
	}
}

// Fetch reads and decodes the zone key. A missing key is an error so the
// previous snapshot stays in use.
func (s *RedisSource) Fetch(ctx context.Context) ([]domain.DangerZone, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("zone key %q not found", s.key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %q: %w", s.key, err)
	}

	zones, err := decodeZones(data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("zones fetched", "source", "redis", "key", s.key, "zones", len(zones))
	return zones, nil
}

// Close releases the Redis connection pool.
func (s *RedisSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
