package service

import (
	"context"
	"log"
	"time"

	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
)

// 在线窗口默认 30 分钟，客户端心跳周期约 5 分钟
const DefaultOnlineWindowMinutes = 30

// PresenceService 把客户端周期心跳转换成"用户是否在线"信号。
// 不依赖显式登出：没有心跳的会话到 TTL 自动过期，对客户端异常断开天然免疫
type PresenceService struct {
	svc *storage.Service
	now func() int64
}

// NewPresenceService 创建在线统计服务
func NewPresenceService(svc *storage.Service) *PresenceService {
	return &PresenceService{
		svc: svc,
		now: func() int64 { return time.Now().UnixMilli() },
	}
}

// RecordHeartbeat 接收心跳：刷新会话（含 TTL 续期与活跃索引），
// 并顺带刷新用户元数据的最后活跃时间
func (s *PresenceService) RecordHeartbeat(ctx context.Context, username, sessionID, ip, userAgent string) error {
	now := s.now()
	session := &model.UserSession{
		Username:     username,
		SessionID:    sessionID,
		LastActiveAt: now,
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	if err := s.svc.SetUserSession(ctx, session); err != nil {
		return err
	}

	// 元数据刷新失败不影响心跳本身
	meta, err := s.svc.GetUserMeta(ctx, username)
	if err != nil {
		log.Printf("[Presence] 读取用户 %s 元数据失败: %v", username, err)
		return nil
	}
	if meta != nil && now > meta.LastActiveAt {
		meta.LastActiveAt = now
		if err := s.svc.SetUserMeta(ctx, username, meta); err != nil {
			log.Printf("[Presence] 更新用户 %s 最后活跃时间失败: %v", username, err)
		}
	}
	return nil
}

// CountOnlineUsers 统计窗口期内的去重在线用户数。
// 同一用户的多端会话（桌面+手机）只计一次
func (s *PresenceService) CountOnlineUsers(ctx context.Context, windowMinutes int) (int, error) {
	users, err := s.OnlineUsers(ctx, windowMinutes)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// OnlineUsers 返回窗口期内的去重在线用户名列表
func (s *PresenceService) OnlineUsers(ctx context.Context, windowMinutes int) ([]string, error) {
	if windowMinutes <= 0 {
		windowMinutes = DefaultOnlineWindowMinutes
	}
	sessions, err := s.svc.GetActiveSessions(ctx, windowMinutes)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(sessions))
	var users []string
	for _, session := range sessions {
		if _, ok := seen[session.Username]; ok {
			continue
		}
		seen[session.Username] = struct{}{}
		users = append(users, session.Username)
	}
	return users, nil
}

// Logout 删除指定会话（显式登出时调用，非正确性所需）
func (s *PresenceService) Logout(ctx context.Context, sessionID string) error {
	return s.svc.DeleteUserSession(ctx, sessionID)
}
