package service

import (
	"context"
	"log"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/user/lunatv/internal/config"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
)

const adminConfigCacheKey = "admin_config"

// AdminConfigService 管理员配置读写，带进程内短缓存。
// 配置整体作为单键存储，站长用户由环境变量注入且始终在名册中
type AdminConfigService struct {
	svc   *storage.Service
	cfg   *config.Config
	cache *cache.Cache
}

// NewAdminConfigService 创建配置服务
func NewAdminConfigService(svc *storage.Service, cfg *config.Config) *AdminConfigService {
	return &AdminConfigService{
		svc:   svc,
		cfg:   cfg,
		cache: cache.New(time.Minute, 5*time.Minute),
	}
}

// Get 获取配置；存储中不存在时返回默认配置并落库
func (s *AdminConfigService) Get(ctx context.Context) (*model.AdminConfig, error) {
	if cached, ok := s.cache.Get(adminConfigCacheKey); ok {
		// 返回副本，调用方先改后 Save，缓存实例本身不被并发写
		return cached.(*model.AdminConfig).Clone(), nil
	}

	conf, err := s.svc.GetAdminConfig(ctx)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		conf = s.defaultConfig()
		if err := s.svc.SetAdminConfig(ctx, conf); err != nil {
			log.Printf("[Config] 写入默认配置失败: %v", err)
		}
	}

	// 保证站长始终在名册中
	if s.cfg.RootUsername != "" && conf.FindUser(s.cfg.RootUsername) == nil {
		conf.Users = append([]model.UserEntry{{
			Username: s.cfg.RootUsername,
			Role:     model.RoleOwner,
		}}, conf.Users...)
	}

	s.cache.Set(adminConfigCacheKey, conf.Clone(), cache.DefaultExpiration)
	return conf, nil
}

// Save 整体写回配置并刷新缓存
func (s *AdminConfigService) Save(ctx context.Context, conf *model.AdminConfig) error {
	if err := s.svc.SetAdminConfig(ctx, conf); err != nil {
		return err
	}
	s.cache.Set(adminConfigCacheKey, conf.Clone(), cache.DefaultExpiration)
	return nil
}

// AddUser 把新注册用户加入名册
func (s *AdminConfigService) AddUser(ctx context.Context, username, role string) error {
	conf, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if conf.FindUser(username) != nil {
		return nil
	}
	conf.Users = append(conf.Users, model.UserEntry{Username: username, Role: role})
	return s.Save(ctx, conf)
}

// RemoveUser 把用户移出名册
func (s *AdminConfigService) RemoveUser(ctx context.Context, username string) error {
	conf, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if !conf.RemoveUser(username) {
		return nil
	}
	return s.Save(ctx, conf)
}

// Invalidate 清掉缓存（测试及外部直写后使用）
func (s *AdminConfigService) Invalidate() {
	s.cache.Delete(adminConfigCacheKey)
}

// defaultConfig 首次启动时的默认配置
func (s *AdminConfigService) defaultConfig() *model.AdminConfig {
	conf := &model.AdminConfig{
		SiteConfig: model.SiteConfig{
			SiteName:               s.cfg.SiteName,
			SiteInterfaceCacheTime: 7200,
			OpenRegister:           s.cfg.OpenRegister,
			AutoCleanInactiveUsers: false,
			InactiveUserDays:       7,
		},
	}
	if s.cfg.RootUsername != "" {
		conf.Users = append(conf.Users, model.UserEntry{
			Username: s.cfg.RootUsername,
			Role:     model.RoleOwner,
		})
	}
	return conf
}
