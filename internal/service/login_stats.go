package service

import (
	"context"
	"time"

	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
)

// LoginStatsService 维护每个用户的登录聚合统计。
// 写入走读改写流程，同一用户并发登录时可能少计一次，
// 统计数据仅用于后台展示，不要求严格计数
type LoginStatsService struct {
	svc *storage.Service
	now func() int64
}

// NewLoginStatsService 创建登录统计服务
func NewLoginStatsService(svc *storage.Service) *LoginStatsService {
	return &LoginStatsService{
		svc: svc,
		now: func() int64 { return time.Now().UnixMilli() },
	}
}

// RecordLogin 记录一次成功登录。
// 首次登录时间只写一次，之后保持不变；最后登录时间总是刷新
func (s *LoginStatsService) RecordLogin(ctx context.Context, username string) (*model.LoginStats, error) {
	stats, err := s.svc.GetUserLoginStats(ctx, username)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if stats == nil {
		stats = &model.LoginStats{FirstLoginTime: now}
	}
	if stats.FirstLoginTime == 0 {
		stats.FirstLoginTime = now
	}
	stats.LoginCount++
	stats.LastLoginTime = now
	stats.LastLoginDate = now
	if err := s.svc.SetUserLoginStats(ctx, username, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetStats 查询用户登录统计，从未登录返回零值统计而非错误
func (s *LoginStatsService) GetStats(ctx context.Context, username string) (*model.LoginStats, error) {
	stats, err := s.svc.GetUserLoginStats(ctx, username)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &model.LoginStats{}
	}
	return stats, nil
}
