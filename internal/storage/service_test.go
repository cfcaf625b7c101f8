package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lunatv/internal/model"
)

func newTestService(nowMilli int64) *Service {
	svc := NewService(NewMemoryBackend())
	svc.now = func() int64 { return nowMilli }
	return svc
}

func TestRegisterAndVerifyUser(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.RegisterUser(ctx, "alice", "secret"))

	ok, err := svc.VerifyUser(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyUser(ctx, "alice", "wrong")
	require.NoError(t, err)
	assert.False(t, ok)

	// 不存在的用户不报错，只返回 false
	ok, err = svc.VerifyUser(ctx, "nobody", "secret")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterUserConflict(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.RegisterUser(ctx, "alice", "one"))
	err := svc.RegisterUser(ctx, "alice", "two")
	assert.ErrorIs(t, err, ErrUserExists)

	// 原密码不受影响
	ok, err := svc.VerifyUser(ctx, "alice", "one")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUsernameValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	for _, name := range []string{"", "a b", "a:b", "a\tb", "a\nb"} {
		err := svc.RegisterUser(ctx, name, "pw")
		assert.True(t, IsValidation(err), "用户名 %q 应当校验失败", name)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.RegisterUser(ctx, "alice", "old"))
	require.NoError(t, svc.ChangePassword(ctx, "alice", "new"))

	ok, err := svc.VerifyUser(ctx, "alice", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.VerifyUser(ctx, "alice", "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteUserCascade(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.RegisterUser(ctx, "alice", "pw"))
	require.NoError(t, svc.SetPlayRecord(ctx, "alice", "src+1", &model.PlayRecord{Title: "A"}))
	require.NoError(t, svc.SetFavorite(ctx, "alice", "src+1", &model.Favorite{Title: "A"}))
	require.NoError(t, svc.SetSkipConfig(ctx, "alice", "src", "1", &model.SkipConfig{Enable: true}))
	require.NoError(t, svc.AddSearchHistory(ctx, "alice", "movie"))
	require.NoError(t, svc.SetUserMeta(ctx, "alice", &model.UserMeta{CreatedAt: 1}))
	require.NoError(t, svc.SetUserLoginStats(ctx, "alice", &model.LoginStats{LoginCount: 3}))

	// 其他用户的数据不能被连带删除
	require.NoError(t, svc.RegisterUser(ctx, "bob", "pw"))
	require.NoError(t, svc.SetPlayRecord(ctx, "bob", "src+1", &model.PlayRecord{Title: "B"}))

	require.NoError(t, svc.DeleteUser(ctx, "alice"))

	exists, err := svc.CheckUserExist(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	records, err := svc.GetAllPlayRecords(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)

	favs, err := svc.GetAllFavorites(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, favs)

	history, err := svc.GetSearchHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, history)

	meta, err := svc.GetUserMeta(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, meta)

	stats, err := svc.GetUserLoginStats(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, stats)

	record, err := svc.GetPlayRecord(ctx, "bob", "src+1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "B", record.Title)
}

func TestDeleteUserIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	// 从未注册的用户也能删除成功
	assert.NoError(t, svc.DeleteUser(ctx, "ghost"))

	require.NoError(t, svc.RegisterUser(ctx, "alice", "pw"))
	require.NoError(t, svc.DeleteUser(ctx, "alice"))
	assert.NoError(t, svc.DeleteUser(ctx, "alice"))
}

func TestGetAllUsers(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.RegisterUser(ctx, "alice", "pw"))
	require.NoError(t, svc.RegisterUser(ctx, "bob", "pw"))
	// 只有元数据没有凭证的用户不应出现
	require.NoError(t, svc.SetUserMeta(ctx, "carol", &model.UserMeta{CreatedAt: 1}))

	users, err := svc.GetAllUsers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
}

func TestSearchHistoryDedupeAndCap(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.AddSearchHistory(ctx, "alice", "first"))
	require.NoError(t, svc.AddSearchHistory(ctx, "alice", "second"))
	require.NoError(t, svc.AddSearchHistory(ctx, "alice", "first"))

	history, err := svc.GetSearchHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, history)

	for i := 0; i < searchHistoryLimit+5; i++ {
		require.NoError(t, svc.AddSearchHistory(ctx, "alice", fmt.Sprintf("kw%d", i)))
	}
	history, err = svc.GetSearchHistory(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, history, searchHistoryLimit)
	assert.Equal(t, fmt.Sprintf("kw%d", searchHistoryLimit+4), history[0])
}

func TestApiCallLogCap(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	total := apiCallLogCap + 20
	for i := 0; i < total; i++ {
		entry := &model.ApiCallLog{
			Timestamp: int64(i),
			Source:    "src",
			Success:   true,
		}
		require.NoError(t, svc.AddApiCallLog(ctx, entry))
	}

	logs, err := svc.GetApiCallLogs(ctx, total)
	require.NoError(t, err)
	require.Len(t, logs, apiCallLogCap)
	// 最新的在前，最老的 20 条已被裁剪
	assert.Equal(t, int64(total-1), logs[0].Timestamp)
	assert.Equal(t, int64(20), logs[len(logs)-1].Timestamp)
}

func TestActiveSessionsWindow(t *testing.T) {
	ctx := context.Background()
	now := int64(10 * 60 * 1000 * 100) // 任意固定时刻
	svc := newTestService(now)

	window := 30
	cutoff := now - int64(window)*60*1000

	sessions := []model.UserSession{
		{Username: "alice", SessionID: "s1", LastActiveAt: now},
		{Username: "alice", SessionID: "s2", LastActiveAt: cutoff}, // 恰在窗口边界，算在线
		{Username: "bob", SessionID: "s3", LastActiveAt: cutoff - 1},
	}
	for i := range sessions {
		require.NoError(t, svc.SetUserSession(ctx, &sessions[i]))
	}

	active, err := svc.GetActiveSessions(ctx, window)
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, s := range active {
		ids = append(ids, s.SessionID)
	}
	assert.ElementsMatch(t, []string{"s1", "s2"}, ids)

	// 惰性清理不能误删边界上的会话
	active, err = svc.GetActiveSessions(ctx, window)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestDeleteUserSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	session := &model.UserSession{Username: "alice", SessionID: "s1", LastActiveAt: 1000}
	require.NoError(t, svc.SetUserSession(ctx, session))
	require.NoError(t, svc.DeleteUserSession(ctx, "s1"))

	got, err := svc.GetUserSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)

	active, err := svc.GetActiveSessions(ctx, 30)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestAdvertisementLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(5000)

	ad := &model.Advertisement{
		ID:        "ad1",
		Position:  "home_banner",
		Enabled:   true,
		StartDate: 1000,
		EndDate:   9000,
		Priority:  1,
	}
	require.NoError(t, svc.CreateAdvertisement(ctx, ad))
	assert.Equal(t, int64(5000), ad.CreatedAt)

	// 校验失败
	bad := &model.Advertisement{ID: "", StartDate: 1, EndDate: 2}
	assert.True(t, IsValidation(svc.CreateAdvertisement(ctx, bad)))
	bad = &model.Advertisement{ID: "x", StartDate: 2, EndDate: 1}
	assert.True(t, IsValidation(svc.CreateAdvertisement(ctx, bad)))

	// 更新不存在的广告
	missing := &model.Advertisement{ID: "nope", StartDate: 1, EndDate: 2}
	assert.ErrorIs(t, svc.UpdateAdvertisement(ctx, missing), ErrNotFound)

	// 更新保留创建时间
	svc.now = func() int64 { return 6000 }
	ad.Title = "更新后"
	require.NoError(t, svc.UpdateAdvertisement(ctx, ad))
	got, err := svc.GetAdvertisement(ctx, "ad1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5000), got.CreatedAt)
	assert.Equal(t, int64(6000), got.UpdatedAt)

	require.NoError(t, svc.DeleteAdvertisement(ctx, "ad1"))
	got, err = svc.GetAdvertisement(ctx, "ad1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestActiveAdvertisementsFilter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(5000)

	ads := []model.Advertisement{
		{ID: "live", Position: "home", Enabled: true, StartDate: 1000, EndDate: 9000, Priority: 1},
		{ID: "edge", Position: "home", Enabled: true, StartDate: 5000, EndDate: 5000, Priority: 3}, // 边界时刻生效
		{ID: "expired", Position: "home", Enabled: true, StartDate: 1000, EndDate: 4999},
		{ID: "future", Position: "home", Enabled: true, StartDate: 5001, EndDate: 9000},
		{ID: "disabled", Position: "home", Enabled: false, StartDate: 1000, EndDate: 9000},
		{ID: "other", Position: "player", Enabled: true, StartDate: 1000, EndDate: 9000},
	}
	for i := range ads {
		require.NoError(t, svc.CreateAdvertisement(ctx, &ads[i]))
	}

	active, err := svc.GetActiveAdvertisements(ctx, "home")
	require.NoError(t, err)
	ids := make([]string, 0, len(active))
	for _, ad := range active {
		ids = append(ids, ad.ID)
	}
	// 优先级降序
	assert.Equal(t, []string{"edge", "live"}, ids)

	all, err := svc.GetActiveAdvertisements(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSkipConfigs(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	require.NoError(t, svc.SetSkipConfig(ctx, "alice", "src", "1", &model.SkipConfig{Enable: true, IntroTime: 90}))
	require.NoError(t, svc.SetSkipConfig(ctx, "alice", "src", "2", &model.SkipConfig{Enable: false}))

	// 负的片头时间被拒绝
	err := svc.SetSkipConfig(ctx, "alice", "src", "3", &model.SkipConfig{IntroTime: -1})
	assert.True(t, IsValidation(err))

	configs, err := svc.GetAllSkipConfigs(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, 90, configs["src+1"].IntroTime)

	require.NoError(t, svc.DeleteSkipConfig(ctx, "alice", "src", "1"))
	configs, err = svc.GetAllSkipConfigs(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}

func TestAdminConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(1000)

	conf, err := svc.GetAdminConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, conf)

	in := &model.AdminConfig{
		SiteConfig: model.SiteConfig{SiteName: "LunaTV", InactiveUserDays: 7},
		Users:      []model.UserEntry{{Username: "admin", Role: model.RoleOwner}},
	}
	require.NoError(t, svc.SetAdminConfig(ctx, in))

	conf, err = svc.GetAdminConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, conf)
	assert.Equal(t, "LunaTV", conf.SiteConfig.SiteName)
	assert.Equal(t, model.RoleOwner, conf.Users[0].Role)
}
