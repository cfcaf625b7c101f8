package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/lunatv/internal/handler"
	"github.com/user/lunatv/internal/middleware"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		if err := h.Storage.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ==================== 认证 ====================
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}

	// ==================== 公开接口 ====================
	public := r.Group("/api")
	{
		public.GET("/ads", h.ActiveAdvertisements)
	}

	// ==================== 用户数据（需要登录）====================
	api := r.Group("/api")
	api.Use(middleware.RequireAuth(h.Config.AppSecret))
	{
		api.POST("/auth/password", h.ChangePassword)
		api.DELETE("/auth/account", h.DeleteAccount)

		api.GET("/playrecords", h.GetPlayRecords)
		api.POST("/playrecords", h.SavePlayRecord)
		api.DELETE("/playrecords", h.DeletePlayRecord)

		api.GET("/favorites", h.GetFavorites)
		api.POST("/favorites", h.SaveFavorite)
		api.DELETE("/favorites", h.DeleteFavorite)

		api.GET("/skipconfigs", h.GetSkipConfigs)
		api.POST("/skipconfigs", h.SaveSkipConfig)
		api.DELETE("/skipconfigs", h.DeleteSkipConfig)

		api.GET("/searchhistory", h.GetSearchHistory)
		api.POST("/searchhistory", h.AddSearchHistory)
		api.DELETE("/searchhistory", h.DeleteSearchHistory)

		api.POST("/heartbeat", h.Heartbeat)

		api.GET("/detail", h.VideoDetail)
		api.GET("/douban/:id", h.DoubanDetail)
	}

	// ==================== 管理后台 ====================
	admin := r.Group("/api/admin")
	admin.Use(middleware.RequireAuth(h.Config.AppSecret))
	admin.Use(middleware.RequireAdmin())
	{
		admin.GET("/config", h.AdminGetConfig)
		admin.POST("/config", h.AdminSaveConfig)

		admin.GET("/users", h.AdminListUsers)
		admin.DELETE("/users/:username", h.AdminDeleteUser)
		admin.POST("/users/:username/ban", h.AdminSetUserBan)

		admin.GET("/online", h.OnlineUsers)

		admin.GET("/ads", h.AdminListAds)
		admin.POST("/ads", h.AdminCreateAd)
		admin.PUT("/ads/:id", h.AdminUpdateAd)
		admin.DELETE("/ads/:id", h.AdminDeleteAd)

		admin.GET("/apilogs", h.AdminApiLogs)
		admin.GET("/apilogs/stats", h.AdminApiStats)

		admin.POST("/reconcile", h.AdminTriggerReconcile)
	}

	// 仅站长
	owner := r.Group("/api/admin")
	owner.Use(middleware.RequireAuth(h.Config.AppSecret))
	owner.Use(middleware.RequireOwner())
	{
		owner.POST("/reset", h.AdminClearData)
	}
}
