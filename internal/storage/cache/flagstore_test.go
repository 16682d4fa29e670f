package cache_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-push-coordinator/internal/storage/cache"
	"github.com/tinywideclouds/go-push-coordinator/pkg/pushclient"
)

func jsonInto(dest interface{}, raw string) error {
	return json.Unmarshal([]byte(raw), dest)
}

type MockFlagStore struct {
	mock.Mock
}

func (m *MockFlagStore) Load(ctx context.Context) (pushclient.Flags, error) {
	args := m.Called(ctx)
	return args.Get(0).(pushclient.Flags), args.Error(1)
}

func (m *MockFlagStore) Save(ctx context.Context, flags pushclient.Flags) error {
	return m.Called(ctx, flags).Error(0)
}

func TestFlagStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	installation, _ := urn.Parse("urn:push:installation:device-1")
	key := "push:flags:urn:push:installation:device-1"

	t.Run("Cache Hit Skips Durable Store", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		mockCache.On("Get", ctx, key, mock.Anything).
			Run(func(args mock.Arguments) {
				require.NoError(t, jsonInto(args.Get(2), `{"prompted":true,"denied":true}`))
			}).
			Return(nil)

		flags, err := cache.NewFlagStore(durable, mockCache, installation).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, pushclient.Flags{Prompted: true, Denied: true}, flags)
		durable.AssertNotCalled(t, "Load", mock.Anything)
	})

	t.Run("Cache Miss Loads Durable And Populates", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		stored := pushclient.Flags{Prompted: true}
		mockCache.On("Get", ctx, key, mock.Anything).Return(cache.ErrMiss)
		durable.On("Load", ctx).Return(stored, nil)
		mockCache.On("Set", ctx, key, stored, time.Duration(0)).Return(nil)

		flags, err := cache.NewFlagStore(durable, mockCache, installation).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, stored, flags)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache Error Falls Back To Durable", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		mockCache.On("Get", ctx, key, mock.Anything).Return(assert.AnError)
		durable.On("Load", ctx).Return(pushclient.Flags{}, nil)
		mockCache.On("Set", ctx, key, pushclient.Flags{}, time.Duration(0)).Return(assert.AnError)

		flags, err := cache.NewFlagStore(durable, mockCache, installation).Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, pushclient.Flags{}, flags)
	})

	t.Run("Durable Load Error Propagates", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		mockCache.On("Get", ctx, key, mock.Anything).Return(cache.ErrMiss)
		durable.On("Load", ctx).Return(pushclient.Flags{}, assert.AnError)

		_, err := cache.NewFlagStore(durable, mockCache, installation).Load(ctx)
		assert.ErrorIs(t, err, assert.AnError)
		mockCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFlagStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	installation, _ := urn.Parse("urn:push:installation:device-1")
	key := "push:flags:urn:push:installation:device-1"
	flags := pushclient.Flags{Prompted: true}

	t.Run("Save Writes Durable Then Cache Without Expiry", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		durable.On("Save", ctx, flags).Return(nil)
		mockCache.On("Set", ctx, key, flags, time.Duration(0)).Return(nil)

		require.NoError(t, cache.NewFlagStore(durable, mockCache, installation).Save(ctx, flags))
		durable.AssertExpectations(t)
		mockCache.AssertExpectations(t)
	})

	t.Run("Durable Failure Leaves Cache Untouched", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		durable.On("Save", ctx, flags).Return(assert.AnError)

		err := cache.NewFlagStore(durable, mockCache, installation).Save(ctx, flags)
		assert.ErrorIs(t, err, assert.AnError)
		mockCache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Cache Set Failure Evicts Stale Entry", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		durable.On("Save", ctx, flags).Return(nil)
		mockCache.On("Set", ctx, key, flags, time.Duration(0)).Return(assert.AnError)
		mockCache.On("Del", ctx, key).Return(nil)

		require.NoError(t, cache.NewFlagStore(durable, mockCache, installation).Save(ctx, flags))
		mockCache.AssertExpectations(t)
	})

	t.Run("Failed Eviction Is Reported", func(t *testing.T) {
		mockCache := new(MockCache)
		durable := new(MockFlagStore)
		durable.On("Save", ctx, flags).Return(nil)
		mockCache.On("Set", ctx, key, flags, time.Duration(0)).Return(assert.AnError)
		mockCache.On("Del", ctx, key).Return(assert.AnError)

		err := cache.NewFlagStore(durable, mockCache, installation).Save(ctx, flags)
		assert.ErrorContains(t, err, "write-through failed")
	})
}
