package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/citeflex/citeledger/internal/config"
)

const (
	keyEventSource = "events:ingest:%s"
	keyRollupLock  = "stats:rollup:lock"
)

// EventLimiter throttles the event-write endpoints per caller. A nil
// limiter allows everything, so the server works without redis.
type EventLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	eventRate  float64
	eventBurst int
	lockTTL    time.Duration
}

func NewEventLimiter(cfg config.Config) (*EventLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.EventRate <= 0 || limitCfg.EventBurst <= 0 {
		return nil, errors.New("event rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &EventLimiter{
		enabled:    true,
		bucket:     NewTokenBucket(client),
		locker:     NewLocker(client),
		eventRate:  limitCfg.EventRate,
		eventBurst: limitCfg.EventBurst,
		lockTTL:    limitCfg.RollupLockTTL,
	}, nil
}

func (l *EventLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowSource takes one token for the caller, usually keyed on client IP.
func (l *EventLimiter) AllowSource(ctx context.Context, source string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyEventSource, strings.TrimSpace(source)), l.eventRate, l.eventBurst)
}

// TryLockRollup claims the cluster-wide snapshot rollup lock.
func (l *EventLimiter) TryLockRollup(ctx context.Context) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, keyRollupLock, l.lockTTL)
}

func (l *EventLimiter) ReleaseRollup(ctx context.Context, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.locker.Release(ctx, keyRollupLock, token)
}
