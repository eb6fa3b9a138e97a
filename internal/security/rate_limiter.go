package security

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/raaihank/pii-sentinel/internal/config"
)

// RateLimiter limits scan requests per client. Every instance keeps a local
// token bucket per client; with a Redis URL configured a fixed one-minute
// window is additionally shared by all replicas.
type RateLimiter struct {
	config  *config.RateLimitConfig
	clients map[string]*clientLimiter
	redis   *redis.Client
	logger  *zap.Logger
	mu      sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter. A configured Redis URL must be
// reachable.
func NewRateLimiter(cfg *config.RateLimitConfig, logger *zap.Logger) (*RateLimiter, error) {
	r := &RateLimiter{
		config:  cfg,
		clients: make(map[string]*clientLimiter),
		logger:  logger,
	}

	if !cfg.Enabled || cfg.RedisURL == "" {
		return r, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	r.redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		r.redis.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Shared rate limit enabled",
		zap.String("redis_url", maskRedisURL(cfg.RedisURL)),
		zap.Int("requests_per_min", cfg.RequestsPerMin))

	return r, nil
}

// Allow reports whether a request from clientID may proceed.
func (r *RateLimiter) Allow(ctx context.Context, clientID string) bool {
	if !r.config.Enabled {
		return true
	}

	if !r.local(clientID).Allow() {
		return false
	}
	if r.redis == nil {
		return true
	}

	allowed, err := r.allowShared(ctx, clientID)
	if err != nil {
		// Redis outages degrade to the local limit only
		r.logger.Warn("Shared rate limit check failed", zap.Error(err))
		return true
	}
	return allowed
}

func (r *RateLimiter) local(clientID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		perMin := r.config.RequestsPerMin
		if perMin <= 0 {
			perMin = 1
		}
		burst := r.config.Burst
		if burst <= 0 {
			burst = 1
		}
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), burst)}
		r.clients[clientID] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// allowShared counts the request in the current minute window.
func (r *RateLimiter) allowShared(ctx context.Context, clientID string) (bool, error) {
	window := time.Now().Unix() / 60
	key := r.config.KeyPrefix + clientID + ":" + strconv.FormatInt(window, 10)

	var incr *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, 2*time.Minute)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(r.config.RequestsPerMin), nil
}

// ClientCount returns the number of clients with a local limiter
func (r *RateLimiter) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// CleanupStale drops local limiters idle for longer than maxIdle.
func (r *RateLimiter) CleanupStale(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, id)
		}
	}
}

// StartCleanupRoutine prunes idle clients until ctx is cancelled.
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupStale(time.Hour)
			}
		}
	}()
}

// Close releases the Redis connection, if any.
func (r *RateLimiter) Close() error {
	if r.redis == nil {
		return nil
	}
	return r.redis.Close()
}

func maskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
