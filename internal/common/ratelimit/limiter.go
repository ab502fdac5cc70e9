package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	pkgerrors "codearena/pkg/errors"

	"github.com/google/uuid"
)

const defaultRedisTimeout = 200 * time.Millisecond

// Limiter decides whether one more request for key is allowed.
// A rejection is returned as a TooManyRequests error.
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// SlidingWindowLimiter keeps one sorted-set member per request, scored by
// its arrival time, and counts what is left after trimming the window.
type SlidingWindowLimiter struct {
	cache        cache.Cache
	max          int
	window       time.Duration
	redisTimeout time.Duration
	now          func() time.Time
}

func NewSlidingWindowLimiter(c cache.Cache, max int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		cache:        c,
		max:          max,
		window:       window,
		redisTimeout: defaultRedisTimeout,
		now:          time.Now,
	}
}

func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) error {
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if l.max <= 0 {
		return nil
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	now := l.now()
	nowMs := float64(now.UnixMilli())
	windowStart := nowMs - float64(l.window.Milliseconds())

	if err := l.cache.ZRemRangeByScore(ctxCache, key, 0, windowStart); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
	}
	count, err := l.cache.ZCard(ctxCache, key)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
	}
	if count >= int64(l.max) {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage("Too many requests")
	}

	member := strconv.FormatInt(now.UnixMilli(), 10) + ":" + uuid.NewString()
	if err := l.cache.ZAdd(ctxCache, key, cache.ZMember{Score: nowMs, Member: member}); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
	}
	if err := l.cache.Expire(ctxCache, key, l.window); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
	}
	return nil
}

// FixedWindowLimiter enforces fixed-window limits using a Redis counter.
type FixedWindowLimiter struct {
	cache        cache.BasicOps
	max          int
	window       time.Duration
	redisTimeout time.Duration
}

func NewFixedWindowLimiter(c cache.BasicOps, max int, window time.Duration) *FixedWindowLimiter {
	return &FixedWindowLimiter{cache: c, max: max, window: window, redisTimeout: defaultRedisTimeout}
}

func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) error {
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if l.max <= 0 {
		return nil
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.redisTimeout)
	defer cancel()

	acquired, err := l.cache.SetNX(ctxCache, key, 1, l.window)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
	}
	var count int64
	if acquired {
		count = 1
	} else {
		count, err = l.cache.Incr(ctxCache, key)
		if err != nil {
			return pkgerrors.Wrapf(err, pkgerrors.ServiceUnavailable, "rate limit check failed")
		}
		ttl, ttlErr := l.cache.TTL(ctxCache, key)
		if ttlErr == nil && ttl <= 0 {
			_ = l.cache.Expire(ctxCache, key, l.window)
		}
	}
	if int(count) > l.max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded, retry in %s", l.window))
	}
	return nil
}

var (
	_ Limiter = (*SlidingWindowLimiter)(nil)
	_ Limiter = (*FixedWindowLimiter)(nil)
)
