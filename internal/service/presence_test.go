package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
)

func newTestStorage() *storage.Service {
	return storage.NewService(storage.NewMemoryBackend())
}

func TestPresenceDedupAcrossDevices(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	p := NewPresenceService(svc)

	now := int64(100 * 60 * 1000)
	p.now = func() int64 { return now }

	// 同一用户两个设备，另一个用户一个设备
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "desktop", "1.1.1.1", "ua"))
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "mobile", "2.2.2.2", "ua"))
	require.NoError(t, p.RecordHeartbeat(ctx, "bob", "laptop", "3.3.3.3", "ua"))

	count, err := p.CountOnlineUsers(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	users, err := p.OnlineUsers(ctx, 30)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}

func TestPresenceWindowExpiry(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	p := NewPresenceService(svc)

	base := int64(1000 * 60 * 1000)
	p.now = func() int64 { return base }
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "s1", "", ""))

	// 31 分钟后 alice 不再计入 30 分钟窗口
	later := base + 31*60*1000
	p.now = func() int64 { return later }
	require.NoError(t, p.RecordHeartbeat(ctx, "bob", "s2", "", ""))

	users, err := p.OnlineUsers(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestPresenceHeartbeatUpdatesMeta(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	p := NewPresenceService(svc)

	require.NoError(t, svc.SetUserMeta(ctx, "alice", &model.UserMeta{CreatedAt: 1, LastActiveAt: 500}))

	now := int64(60 * 60 * 1000)
	p.now = func() int64 { return now }
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "s1", "", ""))

	meta, err := svc.GetUserMeta(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, now, meta.LastActiveAt)

	// 时间回拨时不把最后活跃时间往回写
	p.now = func() int64 { return now - 1000 }
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "s1", "", ""))
	meta, err = svc.GetUserMeta(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, now, meta.LastActiveAt)
}

func TestPresenceLogout(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	p := NewPresenceService(svc)

	now := int64(100 * 60 * 1000)
	p.now = func() int64 { return now }
	require.NoError(t, p.RecordHeartbeat(ctx, "alice", "s1", "", ""))
	require.NoError(t, p.Logout(ctx, "s1"))

	count, err := p.CountOnlineUsers(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, count)
}
