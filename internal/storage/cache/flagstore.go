package cache

import (
	"context"
	"fmt"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

// FlagStore is a write-through Redis layer over a durable pushclient.FlagStore.
// Cached flags never expire; the durable store stays authoritative.
type FlagStore struct {
	durable      pushclient.FlagStore
	cache        CacheClient
	installation urn.URN
}

func NewFlagStore(durable pushclient.FlagStore, cache CacheClient, installation urn.URN) *FlagStore {
	return &FlagStore{durable: durable, cache: cache, installation: installation}
}

func (f *FlagStore) Load(ctx context.Context) (pushclient.Flags, error) {
	// Any cache error, miss or not, falls through to the durable store.
	var flags pushclient.Flags
	if err := f.cache.Get(ctx, f.key(), &flags); err == nil {
		return flags, nil
	}

	flags, err := f.durable.Load(ctx)
	if err != nil {
		return pushclient.Flags{}, err
	}
	_ = f.cache.Set(ctx, f.key(), flags, 0)
	return flags, nil
}

func (f *FlagStore) Save(ctx context.Context, flags pushclient.Flags) error {
	if err := f.durable.Save(ctx, flags); err != nil {
		return err
	}
	if err := f.cache.Set(ctx, f.key(), flags, 0); err != nil {
		// A stale entry would shadow the durable write.
		if delErr := f.cache.Del(ctx, f.key()); delErr != nil {
			return fmt.Errorf("redis flags write-through failed: %w", delErr)
		}
	}
	return nil
}

func (f *FlagStore) key() string {
	return fmt.Sprintf("push:flags:%s", f.installation.String())
}
