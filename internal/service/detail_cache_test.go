package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lunatv/internal/model"
)

func TestDetailCacheMemoizesSuccess(t *testing.T) {
	ctx := context.Background()
	var calls int32
	cache := NewDetailCache(func(ctx context.Context, source, id string) (*model.VideoDetail, error) {
		atomic.AddInt32(&calls, 1)
		return &model.VideoDetail{ID: id, Source: source, Episodes: []string{"ep1"}}, nil
	})

	for i := 0; i < 5; i++ {
		detail, err := cache.Get(ctx, "src", "42")
		require.NoError(t, err)
		assert.Equal(t, "42", detail.ID)
	}
	assert.Equal(t, int32(1), calls)

	// 不同资源各抓一次
	_, err := cache.Get(ctx, "src", "43")
	require.NoError(t, err)
	_, err = cache.Get(ctx, "other", "42")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls)
}

func TestDetailCacheConcurrentDedup(t *testing.T) {
	ctx := context.Background()
	var calls int32
	block := make(chan struct{})
	cache := NewDetailCache(func(ctx context.Context, source, id string) (*model.VideoDetail, error) {
		atomic.AddInt32(&calls, 1)
		<-block
		return &model.VideoDetail{ID: id}, nil
	})

	const workers = 20
	var wg sync.WaitGroup
	results := make([]*model.VideoDetail, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			detail, err := cache.Get(ctx, "src", "1")
			assert.NoError(t, err)
			results[i] = detail
		}(i)
	}
	close(block)
	wg.Wait()

	assert.Equal(t, int32(1), calls)
	for _, detail := range results {
		require.NotNil(t, detail)
		assert.Equal(t, "1", detail.ID)
	}
}

func TestDetailCacheFailureNotCached(t *testing.T) {
	ctx := context.Background()
	var calls int32
	failFirst := errors.New("上游超时")
	cache := NewDetailCache(func(ctx context.Context, source, id string) (*model.VideoDetail, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return nil, failFirst
		}
		return &model.VideoDetail{ID: id}, nil
	})

	_, err := cache.Get(ctx, "src", "1")
	assert.ErrorIs(t, err, failFirst)

	// 失败不污染缓存，下次重抓成功
	detail, err := cache.Get(ctx, "src", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", detail.ID)
	assert.Equal(t, int32(2), calls)
}
