package handler

import (
	"github.com/user/lunatv/internal/config"
	"github.com/user/lunatv/internal/service"
	"github.com/user/lunatv/internal/storage"
)

// Handler HTTP 处理器
type Handler struct {
	Storage    *storage.Service
	Config     *config.Config
	AdminCfg   *service.AdminConfigService
	Presence   *service.PresenceService
	LoginStats *service.LoginStatsService
	Details    *service.VideoDetailService
	Douban     *service.DoubanService
	Reconcile  *service.ReconcileService
}

// NewHandler 创建处理器
func NewHandler(svc *storage.Service, cfg *config.Config) *Handler {
	adminCfg := service.NewAdminConfigService(svc, cfg)
	details := service.NewVideoDetailService(svc, adminCfg)
	reconcile := service.NewReconcileService(svc, adminCfg, details, cfg.RootUsername, cfg.ReconcileInterval)

	return &Handler{
		Storage:    svc,
		Config:     cfg,
		AdminCfg:   adminCfg,
		Presence:   service.NewPresenceService(svc),
		LoginStats: service.NewLoginStatsService(svc),
		Details:    details,
		Douban:     service.NewDoubanService(),
		Reconcile:  reconcile,
	}
}
