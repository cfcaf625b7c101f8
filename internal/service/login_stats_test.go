package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lunatv/internal/model"
)

func TestRecordLoginFirstTime(t *testing.T) {
	ctx := context.Background()
	ls := NewLoginStatsService(newTestStorage())
	ls.now = func() int64 { return 1000 }

	stats, err := ls.RecordLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.LoginCount)
	assert.Equal(t, int64(1000), stats.FirstLoginTime)
	assert.Equal(t, int64(1000), stats.LastLoginTime)
	assert.Equal(t, int64(1000), stats.LastLoginDate)
}

func TestRecordLoginMonotonic(t *testing.T) {
	ctx := context.Background()
	ls := NewLoginStatsService(newTestStorage())

	ls.now = func() int64 { return 1000 }
	_, err := ls.RecordLogin(ctx, "alice")
	require.NoError(t, err)

	ls.now = func() int64 { return 2000 }
	stats, err := ls.RecordLogin(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.LoginCount)
	// 首次登录时间只写一次
	assert.Equal(t, int64(1000), stats.FirstLoginTime)
	assert.Equal(t, int64(2000), stats.LastLoginTime)
}

func TestGetStatsZeroState(t *testing.T) {
	ctx := context.Background()
	ls := NewLoginStatsService(newTestStorage())

	// 从未登录的用户返回零值而不是错误
	stats, err := ls.GetStats(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Zero(t, stats.LoginCount)
	assert.Zero(t, stats.FirstLoginTime)
}

func TestRecordLoginBackfillsFirstLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	ls := NewLoginStatsService(svc)

	// 历史数据可能缺少首次登录时间
	require.NoError(t, svc.SetUserLoginStats(ctx, "alice", &model.LoginStats{LoginCount: 5, LastLoginTime: 900}))

	ls.now = func() int64 { return 2000 }
	stats, err := ls.RecordLogin(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 6, stats.LoginCount)
	assert.Equal(t, int64(2000), stats.FirstLoginTime)
}
