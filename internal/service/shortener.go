package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/promostream/promostream/internal/config"
)

const shortCodeKeyPrefix = "short:"

// ErrShortCodeNotFound is returned by Lookup for unknown or expired codes.
var ErrShortCodeNotFound = errors.New("short code not found")

// ShortenerService is the internal URL shortener: a Redis code→URL map
// plus a public redirect route served by the HTTP layer.
type ShortenerService struct {
	cfg    *config.ShortenerConfig
	redis  *redis.Client
	logger *zap.Logger
}

func NewShortenerService(cfg *config.ShortenerConfig, redisClient *redis.Client, logger *zap.Logger) *ShortenerService {
	return &ShortenerService{
		cfg:    cfg,
		redis:  redisClient,
		logger: logger,
	}
}

// Shorten stores longURL under a fresh 8-character code and returns the
// public short URL.
func (s *ShortenerService) Shorten(ctx context.Context, longURL string) (string, error) {
	code := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ttl := time.Duration(s.cfg.TTLDays) * 24 * time.Hour

	if err := s.redis.Set(ctx, shortCodeKeyPrefix+code, longURL, ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store short code: %w", err)
	}

	return fmt.Sprintf("%s/r/%s", strings.TrimRight(s.cfg.BaseURL, "/"), code), nil
}

// Lookup resolves a code back to its long URL.
func (s *ShortenerService) Lookup(ctx context.Context, code string) (string, error) {
	longURL, err := s.redis.Get(ctx, shortCodeKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrShortCodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up short code: %w", err)
	}
	return longURL, nil
}

// NewRedis connects the shared Redis client used by the shortener.
func NewRedis(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
