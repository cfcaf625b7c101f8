package handler

import (
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/user/lunatv/internal/middleware"
	"github.com/user/lunatv/internal/service"
	"github.com/user/lunatv/internal/utils"
)

// Heartbeat 客户端周期心跳，维持在线状态
func (h *Handler) Heartbeat(c *gin.Context) {
	username := middleware.GetUsername(c)

	// 会话 ID 优先取 Session；Cookie 丢失时补发一个新的
	session := sessions.Default(c)
	sessionID, _ := session.Get("session_id").(string)
	if sessionID == "" {
		sessionID = uuid.NewString()
		session.Set("session_id", sessionID)
		_ = session.Save()
	}

	if err := h.Presence.RecordHeartbeat(c.Request.Context(), username, sessionID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, gin.H{"session_id": sessionID})
}

// OnlineUsers 在线用户统计（管理端）
func (h *Handler) OnlineUsers(c *gin.Context) {
	window, _ := strconv.Atoi(c.DefaultQuery("window", ""))
	if window <= 0 {
		window = service.DefaultOnlineWindowMinutes
	}

	users, err := h.Presence.OnlineUsers(c.Request.Context(), window)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, gin.H{
		"count":          len(users),
		"users":          users,
		"window_minutes": window,
	})
}
