package handler

import (
	"log"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/user/lunatv/internal/middleware"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/utils"
)

// registerRequest 注册请求
type registerRequest struct {
	Username string `json:"username" binding:"required,min=1,max=64"`
	Password string `json:"password" binding:"required,min=1,max=128"`
}

// loginRequest 登录请求
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// changePasswordRequest 修改密码请求
type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=1,max=128"`
}

// Register 用户注册
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "用户名和密码不能为空")
		return
	}

	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	if !conf.SiteConfig.OpenRegister {
		utils.Error(c, 403, "本站未开放注册")
		return
	}

	if err := h.Storage.RegisterUser(c.Request.Context(), req.Username, req.Password); err != nil {
		utils.StorageError(c, err)
		return
	}

	// 写入名册与元数据，失败不回滚注册
	if err := h.AdminCfg.AddUser(c.Request.Context(), req.Username, model.RoleUser); err != nil {
		log.Printf("[Auth] 用户 %s 写入名册失败: %v", req.Username, err)
	}
	meta := &model.UserMeta{CreatedAt: time.Now().UnixMilli()}
	if err := h.Storage.SetUserMeta(c.Request.Context(), req.Username, meta); err != nil {
		log.Printf("[Auth] 用户 %s 写入元数据失败: %v", req.Username, err)
	}

	utils.SuccessWithMessage(c, "注册成功", gin.H{"username": req.Username})
}

// Login 用户登录
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "用户名和密码不能为空")
		return
	}

	ok, err := h.Storage.VerifyUser(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	if !ok {
		utils.Unauthorized(c, "用户名或密码错误")
		return
	}

	conf, err := h.AdminCfg.Get(c.Request.Context())
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	entry := conf.FindUser(req.Username)
	if entry != nil && entry.Banned {
		utils.Error(c, 403, "账号已被封禁")
		return
	}
	role := model.RoleUser
	if entry != nil {
		role = entry.Role
	}

	// 登录统计失败不阻断登录
	if _, err := h.LoginStats.RecordLogin(c.Request.Context(), req.Username); err != nil {
		log.Printf("[Auth] 记录用户 %s 登录统计失败: %v", req.Username, err)
	}
	if meta, err := h.Storage.GetUserMeta(c.Request.Context(), req.Username); err == nil {
		if meta == nil {
			meta = &model.UserMeta{CreatedAt: time.Now().UnixMilli()}
		}
		meta.LoginCount++
		if err := h.Storage.SetUserMeta(c.Request.Context(), req.Username, meta); err != nil {
			log.Printf("[Auth] 更新用户 %s 元数据失败: %v", req.Username, err)
		}
	}

	token, err := middleware.GenerateToken(req.Username, role, h.Config.AppSecret, h.Config.JWTExpiry)
	if err != nil {
		utils.InternalServerError(c, "生成令牌失败")
		return
	}
	c.SetCookie("token", token, int(h.Config.JWTExpiry.Seconds()), "/", "", false, true)

	// 会话 ID 存入 Session，后续心跳携带
	sessionID := uuid.NewString()
	session := sessions.Default(c)
	session.Set("session_id", sessionID)
	if err := session.Save(); err != nil {
		log.Printf("[Auth] 保存会话失败: %v", err)
	}

	// 登录即视为一次心跳
	if err := h.Presence.RecordHeartbeat(c.Request.Context(), req.Username, sessionID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		log.Printf("[Auth] 记录用户 %s 登录心跳失败: %v", req.Username, err)
	}

	utils.Success(c, gin.H{
		"username":   req.Username,
		"role":       role,
		"session_id": sessionID,
	})
}

// Logout 退出登录
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	if sessionID, ok := session.Get("session_id").(string); ok && sessionID != "" {
		if err := h.Presence.Logout(c.Request.Context(), sessionID); err != nil {
			log.Printf("[Auth] 删除会话 %s 失败: %v", sessionID, err)
		}
	}
	session.Clear()
	if err := session.Save(); err != nil {
		log.Printf("[Auth] 清理会话失败: %v", err)
	}

	c.SetCookie("token", "", -1, "/", "", false, true)
	utils.SuccessWithMessage(c, "已退出登录", nil)
}

// ChangePassword 修改自己的密码
func (h *Handler) ChangePassword(c *gin.Context) {
	username := middleware.GetUsername(c)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "参数不完整")
		return
	}

	ok, err := h.Storage.VerifyUser(c.Request.Context(), username, req.OldPassword)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	if !ok {
		utils.Unauthorized(c, "旧密码错误")
		return
	}

	if err := h.Storage.ChangePassword(c.Request.Context(), username, req.NewPassword); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.SuccessWithMessage(c, "密码已修改", nil)
}

// DeleteAccount 注销自己的账号，级联删除全部数据
func (h *Handler) DeleteAccount(c *gin.Context) {
	username := middleware.GetUsername(c)
	if username == h.Config.RootUsername {
		utils.Error(c, 403, "站长账号不能注销")
		return
	}

	if err := h.Storage.DeleteUser(c.Request.Context(), username); err != nil {
		utils.StorageError(c, err)
		return
	}
	if err := h.AdminCfg.RemoveUser(c.Request.Context(), username); err != nil {
		log.Printf("[Auth] 用户 %s 移出名册失败: %v", username, err)
	}

	c.SetCookie("token", "", -1, "/", "", false, true)
	utils.SuccessWithMessage(c, "账号已注销", nil)
}
