package cache

import (
	"context"
	"fmt"
	"time"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest, or returns ErrMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// cachedToken distinguishes a cached "no token" from a miss.
type cachedToken struct {
	Token string `json:"token"`
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, installation urn.URN) (string, error) {
	key := s.cacheKey(installation)

	// 1. Try Cache. Any error, miss or not, falls through to the real store.
	var cached cachedToken
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached.Token, nil
	}

	// 2. Fallback to Real Store

	token, err := s.realStore.Fetch(ctx, installation)
	if err != nil {
		return "", err
	}

	// 3. Populate Cache (Fire and Forget)
	_ = s.cache.Set(ctx, key, cachedToken{Token: token}, s.ttl)
	return token, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) Save(ctx context.Context, installation urn.URN, token string) error {
	if err := s.realStore.Save(ctx, installation, token); err != nil {
		return err
	}
	return s.invalidate(ctx, installation)
}

func (s *CachedTokenStore) Clear(ctx context.Context, installation urn.URN) error {
	if err := s.realStore.Clear(ctx, installation); err != nil {
		return err
	}
	return s.invalidate(ctx, installation)
}

// --- Helpers ---

// invalidate must succeed after a write or the next reconciliation would
// compare against a stale token.
func (s *CachedTokenStore) invalidate(ctx context.Context, installation urn.URN) error {
	if err := s.cache.Del(ctx, s.cacheKey(installation)); err != nil {
		return fmt.Errorf("token cache invalidation failed: %w", err)
	}
	return nil
}

func (s *CachedTokenStore) cacheKey(installation urn.URN) string {
	return fmt.Sprintf("push:token:%s", installation.String())
}
