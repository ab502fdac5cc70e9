package cache

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"math/big"
	"time"
)

// NullCacheValue is a sentinel value to represent null/empty data in cache
// This prevents cache penetration by caching the absence of data
const NullCacheValue = "$NULL$"

// GetWithCached implements cache-aside pattern with null value caching.
// It tries the cache first; on a miss it calls fn and stores the result.
// Empty results are cached for emptyTTL so repeated lookups of missing
// rows do not reach the database.
//
// Example:
//
//	user, err := GetWithCached(ctx, c, "user:info:123", time.Hour, time.Minute,
//		func(u *User) bool { return u == nil },
//		marshalUser,
//		unmarshalUser,
//		func(ctx context.Context) (*User, error) {
//			return repo.fetch(ctx, 123)
//		})
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cache == nil {
		data, err := fn(ctx)
		if err != nil || isEmpty(data) {
			return zero, err
		}
		return data, nil
	}

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}

	if isEmpty(data) {
		if emptyTTL > 0 {
			_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		}
		return zero, nil
	}

	_ = cache.Set(ctx, key, marshal(data), JitterTTL(ttl))
	return data, nil
}

// GetJSONCached is GetWithCached for pointer values encoded as JSON.
// A nil pointer is treated as empty.
func GetJSONCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	fn func(context.Context) (*T, error),
) (*T, error) {
	return GetWithCached(ctx, cache, key, ttl, emptyTTL,
		func(v *T) bool { return v == nil },
		func(v *T) string {
			data, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(data)
		},
		func(raw string) (*T, error) {
			var v T
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, err
			}
			return &v, nil
		},
		fn,
	)
}

// Invalidate deletes keys, ignoring a nil cache
func Invalidate(ctx context.Context, cache Cache, keys ...string) error {
	if cache == nil || len(keys) == 0 {
		return nil
	}
	return cache.Del(ctx, keys...)
}

// JitterTTL shortens ttl by up to 10% so hot keys do not expire together
func JitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	maxJitter := int64(ttl / 10)
	if maxJitter <= 0 {
		return ttl
	}
	n, err := rand.Int(rand.Reader, big.NewInt(maxJitter+1))
	if err != nil {
		return ttl
	}
	return ttl - time.Duration(n.Int64())
}
