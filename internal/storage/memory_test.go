package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryZSetOrdering(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.ZAdd(ctx, "z", 30, "c"))
	require.NoError(t, b.ZAdd(ctx, "z", 10, "a"))
	require.NoError(t, b.ZAdd(ctx, "z", 20, "b"))

	members, err := b.ZRangeByScore(ctx, "z", 10, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	// 重新打分覆盖旧值
	require.NoError(t, b.ZAdd(ctx, "z", 5, "c"))
	members, err = b.ZRangeByScore(ctx, "z", 0, 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, members)

	rev, err := b.ZRevRange(ctx, "z", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, rev)

	count, err := b.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.NoError(t, b.ZRemRangeByScore(ctx, "z", 0, 10))
	count, err = b.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryZRemRangeByRank(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	for i, m := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, b.ZAdd(ctx, "z", int64(i), m))
	}
	// 删掉最旧的两个
	require.NoError(t, b.ZRemRangeByRank(ctx, "z", 0, 1))

	members, err := b.ZRangeByScore(ctx, "z", 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "e"}, members)
}

func TestMemorySet(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.SAdd(ctx, "s", "x"))
	require.NoError(t, b.SAdd(ctx, "s", "y"))
	require.NoError(t, b.SAdd(ctx, "s", "x"))

	members, err := b.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, members)

	require.NoError(t, b.SRem(ctx, "s", "x"))
	members, err = b.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, members)
}

func TestMemoryScanPrefix(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "u:alice:pr:1", []byte("a"), 0))
	require.NoError(t, b.Set(ctx, "u:alice:fav:1", []byte("b"), 0))
	require.NoError(t, b.Set(ctx, "u:alicia:pr:1", []byte("c"), 0))

	keys, err := b.Scan(ctx, "u:alice:")
	require.NoError(t, err)
	assert.Equal(t, []string{"u:alice:fav:1", "u:alice:pr:1"}, keys)
}

func TestMemoryTTL(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), 30*time.Millisecond))
	val, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)

	time.Sleep(60 * time.Millisecond)
	_, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMemoryValueIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	buf := []byte("original")
	require.NoError(t, b.Set(ctx, "k", buf, 0))
	buf[0] = 'X'

	val, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), val)
}
