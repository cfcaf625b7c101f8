package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
)

// ReconcileService 后台对账任务：
// 刷新播放记录与收藏的总集数，并按配置清理长期未登录用户。
// 两个阶段相互独立，一个失败不影响另一个
type ReconcileService struct {
	svc      *storage.Service
	adminCfg *AdminConfigService
	fetch    FetchDetailFunc
	rootUser string
	interval time.Duration
	now      func() int64
}

// NewReconcileService 创建对账服务
func NewReconcileService(svc *storage.Service, adminCfg *AdminConfigService, details *VideoDetailService, rootUser string, interval time.Duration) *ReconcileService {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &ReconcileService{
		svc:      svc,
		adminCfg: adminCfg,
		fetch:    details.GetDetail,
		rootUser: rootUser,
		interval: interval,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Start 启动定时对账任务
func (s *ReconcileService) Start() {
	ticker := time.NewTicker(s.interval)

	// 启动时先运行一次
	go s.RunOnce()

	go func() {
		for range ticker.C {
			s.RunOnce()
		}
	}()
}

// RunOnce 在独立超时上下文里执行一轮对账，供定时器和管理接口共用
func (s *ReconcileService) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	s.Run(ctx)
}

// Run 执行一轮对账，可由定时器或管理接口触发
func (s *ReconcileService) Run(ctx context.Context) {
	log.Println("[Reconcile] 开始对账...")

	if err := s.refreshRecordsAndFavorites(ctx); err != nil {
		log.Printf("[Reconcile] 刷新集数失败: %v", err)
	}

	if err := s.cleanInactiveUsers(ctx); err != nil {
		log.Printf("[Reconcile] 清理非活跃用户失败: %v", err)
	}

	log.Println("[Reconcile] 对账完成")
}

// refreshRecordsAndFavorites 用上游最新详情刷新所有用户的总集数。
// 同一资源本轮只抓一次；抓取失败只记日志，本地数据保持不变
func (s *ReconcileService) refreshRecordsAndFavorites(ctx context.Context) error {
	conf, err := s.adminCfg.Get(ctx)
	if err != nil {
		return err
	}

	// 本轮共享的抓取缓存
	details := NewDetailCache(s.fetch)

	for _, entry := range conf.Users {
		user := entry.Username
		if err := s.refreshUserRecords(ctx, details, user); err != nil {
			log.Printf("[Reconcile] 刷新用户 %s 播放记录失败: %v", user, err)
		}
		if err := s.refreshUserFavorites(ctx, details, user); err != nil {
			log.Printf("[Reconcile] 刷新用户 %s 收藏失败: %v", user, err)
		}
	}
	return nil
}

func (s *ReconcileService) refreshUserRecords(ctx context.Context, details *DetailCache, user string) error {
	records, err := s.svc.GetAllPlayRecords(ctx, user)
	if err != nil {
		return err
	}
	for key, record := range records {
		source, id, ok := splitResourceKey(key)
		if !ok {
			continue
		}
		detail, err := details.Get(ctx, source, id)
		if err != nil {
			log.Printf("[Reconcile] 获取 %s 详情失败: %v", key, err)
			continue
		}
		episodes := len(detail.Episodes)
		if episodes > 0 && episodes != record.TotalEpisodes {
			record.TotalEpisodes = episodes
			if err := s.svc.SetPlayRecord(ctx, user, key, &record); err != nil {
				log.Printf("[Reconcile] 更新用户 %s 播放记录 %s 失败: %v", user, key, err)
			}
		}
	}
	return nil
}

func (s *ReconcileService) refreshUserFavorites(ctx context.Context, details *DetailCache, user string) error {
	favorites, err := s.svc.GetAllFavorites(ctx, user)
	if err != nil {
		return err
	}
	for key, fav := range favorites {
		// 直播收藏没有集数概念
		if fav.Origin == "live" {
			continue
		}
		source, id, ok := splitResourceKey(key)
		if !ok {
			continue
		}
		detail, err := details.Get(ctx, source, id)
		if err != nil {
			log.Printf("[Reconcile] 获取 %s 详情失败: %v", key, err)
			continue
		}
		episodes := len(detail.Episodes)
		if episodes > 0 && episodes != fav.TotalEpisodes {
			fav.TotalEpisodes = episodes
			if err := s.svc.SetFavorite(ctx, user, key, &fav); err != nil {
				log.Printf("[Reconcile] 更新用户 %s 收藏 %s 失败: %v", user, key, err)
			}
		}
	}
	return nil
}

// cleanInactiveUsers 删除超过配置天数未登录的普通用户。
// 站长、管理员和缺少凭证的名册条目一律跳过；
// 名册只在发生删除时回写一次
func (s *ReconcileService) cleanInactiveUsers(ctx context.Context) error {
	conf, err := s.adminCfg.Get(ctx)
	if err != nil {
		return err
	}
	if !conf.SiteConfig.AutoCleanInactiveUsers {
		return nil
	}
	days := conf.SiteConfig.InactiveUserDays
	if days < 1 || days > 365 {
		log.Printf("[Reconcile] 非活跃天数配置无效 (%d)，跳过清理", days)
		return nil
	}
	cutoff := s.now() - int64(days)*24*60*60*1000

	var deleted []string
	for _, entry := range conf.Users {
		if entry.Username == s.rootUser {
			continue
		}
		if entry.Role == model.RoleOwner || entry.Role == model.RoleAdmin {
			continue
		}
		exists, err := s.svc.CheckUserExist(ctx, entry.Username)
		if err != nil {
			log.Printf("[Reconcile] 检查用户 %s 凭证失败: %v", entry.Username, err)
			continue
		}
		if !exists {
			// 名册残留条目，没有凭证无从判断活跃度
			continue
		}

		stats, err := s.svc.GetUserLoginStats(ctx, entry.Username)
		if err != nil {
			log.Printf("[Reconcile] 读取用户 %s 登录统计失败: %v", entry.Username, err)
			continue
		}
		lastLogin := lastLoginTime(stats)
		if lastLogin <= 0 || lastLogin >= cutoff {
			continue
		}

		if err := s.svc.DeleteUser(ctx, entry.Username); err != nil {
			log.Printf("[Reconcile] 删除用户 %s 失败: %v", entry.Username, err)
			continue
		}
		deleted = append(deleted, entry.Username)
		log.Printf("[Reconcile] 已删除非活跃用户 %s (最后登录 %d)", entry.Username, lastLogin)
	}

	if len(deleted) > 0 {
		for _, user := range deleted {
			conf.RemoveUser(user)
		}
		if err := s.adminCfg.Save(ctx, conf); err != nil {
			return err
		}
		log.Printf("[Reconcile] 本轮清理 %d 个非活跃用户", len(deleted))
	}
	return nil
}

// lastLoginTime 取最后登录时间，兼容只有旧字段的历史数据
func lastLoginTime(stats *model.LoginStats) int64 {
	if stats == nil {
		return 0
	}
	if stats.LastLoginTime > 0 {
		return stats.LastLoginTime
	}
	if stats.LastLoginDate > 0 {
		return stats.LastLoginDate
	}
	return stats.FirstLoginTime
}

// splitResourceKey 拆分 source+id 形式的资源键
func splitResourceKey(key string) (source, id string, ok bool) {
	parts := strings.SplitN(key, "+", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
