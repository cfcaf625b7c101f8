package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/lunatv/internal/config"
	"github.com/user/lunatv/internal/model"
)

func TestAdminConfigDefaultSeeding(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	cfg := &config.Config{SiteName: "LunaTV", RootUsername: "root", OpenRegister: true}
	s := NewAdminConfigService(svc, cfg)

	conf, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LunaTV", conf.SiteConfig.SiteName)
	assert.True(t, conf.SiteConfig.OpenRegister)
	assert.Equal(t, 7200, conf.SiteConfig.SiteInterfaceCacheTime)

	// 站长在名册头部
	require.NotEmpty(t, conf.Users)
	assert.Equal(t, "root", conf.Users[0].Username)
	assert.Equal(t, model.RoleOwner, conf.Users[0].Role)

	// 默认配置已落库
	stored, err := svc.GetAdminConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "LunaTV", stored.SiteConfig.SiteName)
}

func TestAdminConfigRosterOps(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	cfg := &config.Config{SiteName: "LunaTV", RootUsername: "root"}
	s := NewAdminConfigService(svc, cfg)

	require.NoError(t, s.AddUser(ctx, "alice", model.RoleUser))
	// 重复添加是幂等的
	require.NoError(t, s.AddUser(ctx, "alice", model.RoleUser))

	conf, err := s.Get(ctx)
	require.NoError(t, err)
	count := 0
	for _, u := range conf.Users {
		if u.Username == "alice" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	require.NoError(t, s.RemoveUser(ctx, "alice"))
	conf, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, conf.FindUser("alice"))
}

func TestAdminConfigGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	cfg := &config.Config{SiteName: "LunaTV", RootUsername: "root"}
	s := NewAdminConfigService(svc, cfg)

	conf, err := s.Get(ctx)
	require.NoError(t, err)

	// 未 Save 的改动不得影响缓存实例
	conf.Users = append(conf.Users, model.UserEntry{Username: "ghost", Role: model.RoleUser})
	conf.SiteConfig.SiteName = "改名"
	if entry := conf.FindUser("root"); entry != nil {
		entry.Banned = true
	}

	again, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, again.FindUser("ghost"))
	assert.Equal(t, "LunaTV", again.SiteConfig.SiteName)
	require.NotNil(t, again.FindUser("root"))
	assert.False(t, again.FindUser("root").Banned)
}

func TestAdminConfigConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	cfg := &config.Config{SiteName: "LunaTV", RootUsername: "root"}
	s := NewAdminConfigService(svc, cfg)

	_, err := s.Get(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("user%d", n)
			assert.NoError(t, s.AddUser(ctx, name, model.RoleUser))
			assert.NoError(t, s.RemoveUser(ctx, name))
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				conf, err := s.Get(ctx)
				if !assert.NoError(t, err) {
					return
				}
				for _, u := range conf.Users {
					_ = u.Username
				}
			}
		}()
	}
	wg.Wait()

	conf, err := s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, conf.FindUser("root"))
}

func TestAdminConfigRootAlwaysPresent(t *testing.T) {
	ctx := context.Background()
	svc := newTestStorage()
	cfg := &config.Config{SiteName: "LunaTV", RootUsername: "root"}
	s := NewAdminConfigService(svc, cfg)

	// 外部写入了一份不含站长的配置
	require.NoError(t, svc.SetAdminConfig(ctx, &model.AdminConfig{
		Users: []model.UserEntry{{Username: "alice", Role: model.RoleUser}},
	}))
	s.Invalidate()

	conf, err := s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, conf.FindUser("root"))
	assert.Equal(t, model.RoleOwner, conf.FindUser("root").Role)
}
