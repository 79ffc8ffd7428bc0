package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taskboard/taskboard/internal/model"
)

const (
	authCachePrefix = "auth:ctx:"
	// authKeyIndexPrefix maps an API key id to the cache entries derived from it.
	authKeyIndexPrefix = "auth:key:"
	authCacheTTL       = 5 * time.Minute
)

// CachedAuthContext represents auth context stored in Redis.
type CachedAuthContext struct {
	KeyID         string   `json:"key_id"`
	KeyPrefix     string   `json:"key_prefix"`
	UserID        int64    `json:"user_id"`
	Username      string   `json:"username"`
	Scopes        []string `json:"scopes"`
	RateLimitTier string   `json:"rate_limit_tier"`
	Credential    string   `json:"credential"`
}

func authCacheKey(cacheKey string) string {
	return authCachePrefix + cacheKey
}

func authKeyIndex(keyID string) string {
	return authKeyIndexPrefix + keyID
}

// GetAuthContext retrieves a cached auth context.
// A miss or a corrupted entry returns nil, nil.
func (c *Cache) GetAuthContext(ctx context.Context, cacheKey string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, authCacheKey(cacheKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get auth context: %w", err)
	}

	var cached CachedAuthContext
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, nil //nolint:nilerr
	}

	return &model.AuthContext{
		KeyID:         cached.KeyID,
		KeyPrefix:     cached.KeyPrefix,
		UserID:        cached.UserID,
		Username:      cached.Username,
		Scopes:        cached.Scopes,
		RateLimitTier: cached.RateLimitTier,
		Credential:    cached.Credential,
	}, nil
}

// SetAuthContext caches an auth context and records it under its key id
// so that revoking the key can drop it.
func (c *Cache) SetAuthContext(ctx context.Context, cacheKey string, auth *model.AuthContext) error {
	data, err := json.Marshal(CachedAuthContext{
		KeyID:         auth.KeyID,
		KeyPrefix:     auth.KeyPrefix,
		UserID:        auth.UserID,
		Username:      auth.Username,
		Scopes:        auth.Scopes,
		RateLimitTier: auth.RateLimitTier,
		Credential:    auth.Credential,
	})
	if err != nil {
		return fmt.Errorf("marshal auth context: %w", err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, authCacheKey(cacheKey), data, authCacheTTL)
		if auth.KeyID != "" {
			index := authKeyIndex(auth.KeyID)
			pipe.SAdd(ctx, index, cacheKey)
			pipe.Expire(ctx, index, authCacheTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set auth context: %w", err)
	}
	return nil
}

// InvalidateKey removes every cached auth context derived from an API key.
func (c *Cache) InvalidateKey(ctx context.Context, keyID string) error {
	index := authKeyIndex(keyID)

	members, err := c.client.SMembers(ctx, index).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read auth key index: %w", err)
	}

	keys := make([]string, 0, len(members)+1)
	for _, member := range members {
		keys = append(keys, authCacheKey(member))
	}
	keys = append(keys, index)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate auth key: %w", err)
	}
	return nil
}
