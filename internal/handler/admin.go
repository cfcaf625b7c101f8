package handler

import (
	"log"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/user/lunatv/internal/middleware"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/utils"
)

// AdminGetConfig 获取管理员配置
func (h *Handler) AdminGetConfig(c *gin.Context) {
	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, conf)
}

// AdminSaveConfig 整体保存管理员配置
func (h *Handler) AdminSaveConfig(c *gin.Context) {
	var conf model.AdminConfig
	if err := c.ShouldBindJSON(&conf); err != nil {
		utils.BadRequest(c, "配置格式错误")
		return
	}

	// 站长条目不允许被配置提交移除
	if h.Config.RootUsername != "" && conf.FindUser(h.Config.RootUsername) == nil {
		conf.Users = append([]model.UserEntry{{
			Username: h.Config.RootUsername,
			Role:     model.RoleOwner,
		}}, conf.Users...)
	}

	if err := h.AdminCfg.Save(c.Request.Context(), &conf); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "配置已保存", nil)
}

// adminUserView 用户列表条目，聚合名册、元数据与登录统计
type adminUserView struct {
	Username   string            `json:"username"`
	Role       string            `json:"role"`
	Banned     bool              `json:"banned"`
	Meta       *model.UserMeta   `json:"meta,omitempty"`
	LoginStats *model.LoginStats `json:"login_stats,omitempty"`
}

// AdminListUsers 返回名册中所有用户及其统计信息
func (h *Handler) AdminListUsers(c *gin.Context) {
	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}

	views := make([]adminUserView, 0, len(conf.Users))
	for _, entry := range conf.Users {
		view := adminUserView{
			Username: entry.Username,
			Role:     entry.Role,
			Banned:   entry.Banned,
		}
		if meta, err := h.Storage.GetUserMeta(c.Request.Context(), entry.Username); err == nil {
			view.Meta = meta
		}
		if stats, err := h.Storage.GetUserLoginStats(c.Request.Context(), entry.Username); err == nil {
			view.LoginStats = stats
		}
		views = append(views, view)
	}
	utils.Success(c, views)
}

// AdminDeleteUser 删除指定用户及其全部数据
func (h *Handler) AdminDeleteUser(c *gin.Context) {
	username := c.Param("username")
	if username == h.Config.RootUsername {
		utils.Error(c, 403, "站长账号不能删除")
		return
	}

	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	target := conf.FindUser(username)
	if target != nil && target.Role == model.RoleOwner {
		utils.Error(c, 403, "站长账号不能删除")
		return
	}
	// 管理员只能被站长删除
	if target != nil && target.Role == model.RoleAdmin && middleware.GetRole(c) != model.RoleOwner {
		utils.Error(c, 403, "删除管理员需要站长权限")
		return
	}

	if err := h.Storage.DeleteUser(c.Request.Context(), username); err != nil {
		utils.StorageError(c, err)
		return
	}
	if err := h.AdminCfg.RemoveUser(c.Request.Context(), username); err != nil {
		log.Printf("[Admin] 用户 %s 移出名册失败: %v", username, err)
	}
	utils.SuccessWithMessage(c, "用户已删除", nil)
}

// AdminSetUserBan 封禁或解封用户
func (h *Handler) AdminSetUserBan(c *gin.Context) {
	username := c.Param("username")

	var req struct {
		Banned bool `json:"banned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "参数格式错误")
		return
	}

	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	entry := conf.FindUser(username)
	if entry == nil {
		utils.NotFound(c, "用户不在名册中")
		return
	}
	if entry.Role == model.RoleOwner {
		utils.Error(c, 403, "站长账号不能封禁")
		return
	}
	entry.Banned = req.Banned

	if err := h.AdminCfg.Save(c.Request.Context(), conf); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// AdminCreateAd 新建广告
func (h *Handler) AdminCreateAd(c *gin.Context) {
	var ad model.Advertisement
	if err := c.ShouldBindJSON(&ad); err != nil {
		utils.BadRequest(c, "广告格式错误")
		return
	}
	if err := h.Storage.CreateAdvertisement(c.Request.Context(), &ad); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, ad)
}

// AdminUpdateAd 更新广告
func (h *Handler) AdminUpdateAd(c *gin.Context) {
	var ad model.Advertisement
	if err := c.ShouldBindJSON(&ad); err != nil {
		utils.BadRequest(c, "广告格式错误")
		return
	}
	ad.ID = c.Param("id")
	if err := h.Storage.UpdateAdvertisement(c.Request.Context(), &ad); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, ad)
}

// AdminDeleteAd 删除广告
func (h *Handler) AdminDeleteAd(c *gin.Context) {
	if err := h.Storage.DeleteAdvertisement(c.Request.Context(), c.Param("id")); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// AdminListAds 列出全部广告
func (h *Handler) AdminListAds(c *gin.Context) {
	ads, err := h.Storage.GetAllAdvertisements(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, ads)
}

// AdminApiLogs 最近的外部数据源调用日志
func (h *Handler) AdminApiLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.Storage.GetApiCallLogs(c.Request.Context(), limit)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, logs)
}

// sourceStat 单个资源站的调用统计
type sourceStat struct {
	Source     string `json:"source"`
	SourceName string `json:"source_name"`
	Total      int    `json:"total"`
	Failures   int    `json:"failures"`
}

// AdminApiStats 按资源站聚合的调用统计
func (h *Handler) AdminApiStats(c *gin.Context) {
	logs, err := h.Storage.GetApiCallLogs(c.Request.Context(), 1000)
	if err != nil {
		utils.StorageError(c, err)
		return
	}

	var success, failure int
	var totalRespTime int64
	bySource := make(map[string]*sourceStat)
	for _, entry := range logs {
		if entry.Success {
			success++
		} else {
			failure++
		}
		totalRespTime += entry.ResponseTime

		stat, ok := bySource[entry.Source]
		if !ok {
			stat = &sourceStat{Source: entry.Source, SourceName: entry.SourceName}
			bySource[entry.Source] = stat
		}
		stat.Total++
		if !entry.Success {
			stat.Failures++
		}
	}

	var avgRespTime int64
	if len(logs) > 0 {
		avgRespTime = totalRespTime / int64(len(logs))
	}
	sources := make([]sourceStat, 0, len(bySource))
	for _, stat := range bySource {
		sources = append(sources, *stat)
	}

	utils.Success(c, gin.H{
		"total":             len(logs),
		"success":           success,
		"failure":           failure,
		"avg_response_time": avgRespTime,
		"sources":           sources,
	})
}

// AdminTriggerReconcile 立即执行一轮对账（等价于定时任务触发）
func (h *Handler) AdminTriggerReconcile(c *gin.Context) {
	go h.Reconcile.RunOnce()
	utils.SuccessWithMessage(c, "对账任务已触发", nil)
}

// AdminClearData 清空所有用户数据与配置（仅站长）
func (h *Handler) AdminClearData(c *gin.Context) {
	if err := h.Storage.ClearAllData(c.Request.Context()); err != nil {
		utils.StorageError(c, err)
		return
	}
	h.AdminCfg.Invalidate()
	utils.SuccessWithMessage(c, "数据已清空", nil)
}
