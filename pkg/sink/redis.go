package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/marketpulse/optionsfeed/pkg/quote"
)

// RedisConfig holds the Redis sink configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password is optional.
	Password string

	// DB is the Redis database number.
	DB int

	// Namespace prefixes every written key. Defaults to "optionsfeed".
	Namespace string

	// TTL is how long written observations live. Defaults to 24h.
	TTL time.Duration
}

// RedisSink writes each observation as a Redis hash under
// "<namespace>:<key>" with a TTL, so downstream consumers can read the
// latest quote per instrument without touching the collector.
type RedisSink struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewRedisSink creates a Redis sink and verifies connectivity.
func NewRedisSink(ctx context.Context, cfg RedisConfig) (*RedisSink, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "optionsfeed"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisSink{
		client:    client,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		logger:    log.With().Str("component", "sink_redis").Logger(),
	}, nil
}

// Write stores the observation hash and refreshes its TTL in one pipeline
// round trip.
func (s *RedisSink) Write(ctx context.Context, key string, q quote.Quote, observedAt time.Time) error {
	redisKey := s.namespace + ":" + key

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, redisKey, map[string]any{
		"symbol":        q.Symbol,
		"last_price":    q.LastPrice,
		"average_price": q.AveragePrice,
		"volume":        q.Volume,
		"oi":            q.OpenInterest,
		"net_change":    q.NetChange,
		"quote_ts":      q.Timestamp.UTC().Format(time.RFC3339Nano),
		"observed_at":   observedAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, redisKey, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		sinkWritesTotal.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("redis write %s: %w", redisKey, err)
	}

	sinkWritesTotal.WithLabelValues("redis", "ok").Inc()
	s.logger.Debug().Str("key", key).Msg("Quote written to redis")
	return nil
}

// Close closes the Redis connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
