// --- File: internal/storage/cache/userdirectory.go ---
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/tinywideclouds/go-promo-notifier/pkg/dispatch"
)

// DefaultTTL keeps cached promo lookups short-lived; user documents change outside this service.
const DefaultTTL = 60 * time.Second

// ErrMiss is returned by a CacheClient when the key does not exist.
var ErrMiss = errors.New("cache miss")

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get returns ErrMiss (or any error) if the value is unavailable.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedUserDirectory is a Decorator that adds Read-Aside caching to any UserDirectory.
type CachedUserDirectory struct {
	realDirectory dispatch.UserDirectory
	cache         CacheClient
	ttl           time.Duration
	logger        *slog.Logger
}

func NewCachedUserDirectory(realDirectory dispatch.UserDirectory, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedUserDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedUserDirectory{
		realDirectory: realDirectory,
		cache:         cache,
		ttl:           ttl,
		logger:        logger.With("component", "CachedUserDirectory"),
	}
}

// cachedUser is the serialized form; dispatch.UserRecord carries no JSON tags.
type cachedUser struct {
	ID        string `json:"id"`
	PromoCode string `json:"promo_code"`
	FCMToken  string `json:"fcm_token,omitempty"`
}

func (d *CachedUserDirectory) QueryByPromoCode(ctx context.Context, code string) ([]dispatch.UserRecord, error) {
	key := d.cacheKey(code)

	// 1. Try Cache
	var cached []cachedUser
	err := d.cache.Get(ctx, key, &cached)
	if err == nil {
		return fromCached(cached), nil
	}
	if !errors.Is(err, ErrMiss) {
		d.logger.Warn("Cache read failed, falling back to directory", "key", key, "err", err)
	}

	// 2. Fallback to the real directory
	users, err := d.realDirectory.QueryByPromoCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// 3. Populate Cache; a failed write only costs the next lookup a round trip
	if err := d.cache.Set(ctx, key, toCached(users), d.ttl); err != nil {
		d.logger.Warn("Cache write failed", "key", key, "err", err)
	}

	return users, nil
}

// Invalidate drops the cached lookup for code.
func (d *CachedUserDirectory) Invalidate(ctx context.Context, code string) error {
	return d.cache.Del(ctx, d.cacheKey(code))
}

func (d *CachedUserDirectory) cacheKey(code string) string {
	return fmt.Sprintf("promo:tokens:%s", code)
}

func toCached(users []dispatch.UserRecord) []cachedUser {
	out := make([]cachedUser, 0, len(users))
	for _, u := range users {
		out = append(out, cachedUser{ID: u.ID, PromoCode: u.PromoCode, FCMToken: u.FCMToken})
	}
	return out
}

func fromCached(cached []cachedUser) []dispatch.UserRecord {
	out := make([]dispatch.UserRecord, 0, len(cached))
	for _, c := range cached {
		out = append(out, dispatch.UserRecord{ID: c.ID, PromoCode: c.PromoCode, FCMToken: c.FCMToken})
	}
	return out
}
