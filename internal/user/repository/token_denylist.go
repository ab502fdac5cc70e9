package repository

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/cache"
)

const defaultDenylistRedisTimeout = 200 * time.Millisecond

// TokenDenylistRepository tracks logged-out tokens by hash with Redis and a local cache.
// Entries live until the token would have expired.
type TokenDenylistRepository struct {
	local        *cache.LRUCache[bool]
	redis        cache.BasicOps
	redisTimeout time.Duration
	localTTL     time.Duration
}

func NewTokenDenylistRepository(local *cache.LRUCache[bool], redis cache.BasicOps, redisTimeout, localTTL time.Duration) *TokenDenylistRepository {
	if redisTimeout <= 0 {
		redisTimeout = defaultDenylistRedisTimeout
	}
	return &TokenDenylistRepository{
		local:        local,
		redis:        redis,
		redisTimeout: redisTimeout,
		localTTL:     localTTL,
	}
}

// Deny stores tokenHash for ttl. Non-positive ttl means the token already expired.
func (r *TokenDenylistRepository) Deny(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if tokenHash == "" || ttl <= 0 {
		return nil
	}
	if r.redis == nil {
		return errors.New("redis is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	if err := r.redis.Set(ctxCache, tokenDenyKeyPrefix+tokenHash, "1", ttl); err != nil {
		return err
	}
	if r.local != nil {
		localTTL := r.localTTL
		if localTTL <= 0 || localTTL > ttl {
			localTTL = ttl
		}
		r.local.Set(tokenHash, true, localTTL)
	}
	return nil
}

func (r *TokenDenylistRepository) IsDenied(ctx context.Context, tokenHash string) (bool, error) {
	if tokenHash == "" {
		return false, nil
	}
	if r.local != nil {
		if val, ok := r.local.Get(tokenHash); ok {
			return val, nil
		}
	}
	if r.redis == nil {
		return false, errors.New("redis is nil")
	}
	ctxCache, cancel := context.WithTimeout(ctx, r.redisTimeout)
	defer cancel()
	n, err := r.redis.Exists(ctxCache, tokenDenyKeyPrefix+tokenHash)
	if err != nil {
		return false, err
	}
	denied := n > 0
	if denied && r.local != nil {
		r.local.Set(tokenHash, true, r.localTTL)
	}
	return denied, nil
}
