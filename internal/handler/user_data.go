package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/user/lunatv/internal/middleware"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/utils"
)

// GetPlayRecords 获取当前用户全部播放记录
func (h *Handler) GetPlayRecords(c *gin.Context) {
	username := middleware.GetUsername(c)
	records, err := h.Storage.GetAllPlayRecords(c.Request.Context(), username)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, records)
}

// SavePlayRecord 保存播放记录（键为 source+id）
func (h *Handler) SavePlayRecord(c *gin.Context) {
	username := middleware.GetUsername(c)
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "缺少 key 参数")
		return
	}

	var record model.PlayRecord
	if err := c.ShouldBindJSON(&record); err != nil {
		utils.BadRequest(c, "播放记录格式错误")
		return
	}
	if err := h.Storage.SetPlayRecord(c.Request.Context(), username, key, &record); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DeletePlayRecord 删除单条播放记录
func (h *Handler) DeletePlayRecord(c *gin.Context) {
	username := middleware.GetUsername(c)
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "缺少 key 参数")
		return
	}
	if err := h.Storage.DeletePlayRecord(c.Request.Context(), username, key); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// GetFavorites 获取收藏；带 key 参数时只查单条
func (h *Handler) GetFavorites(c *gin.Context) {
	username := middleware.GetUsername(c)
	if key := c.Query("key"); key != "" {
		fav, err := h.Storage.GetFavorite(c.Request.Context(), username, key)
		if err != nil {
			utils.StorageError(c, err)
			return
		}
		utils.Success(c, fav)
		return
	}

	favorites, err := h.Storage.GetAllFavorites(c.Request.Context(), username)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, favorites)
}

// SaveFavorite 保存收藏
func (h *Handler) SaveFavorite(c *gin.Context) {
	username := middleware.GetUsername(c)
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "缺少 key 参数")
		return
	}

	var fav model.Favorite
	if err := c.ShouldBindJSON(&fav); err != nil {
		utils.BadRequest(c, "收藏格式错误")
		return
	}
	if err := h.Storage.SetFavorite(c.Request.Context(), username, key, &fav); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DeleteFavorite 删除收藏
func (h *Handler) DeleteFavorite(c *gin.Context) {
	username := middleware.GetUsername(c)
	key := c.Query("key")
	if key == "" {
		utils.BadRequest(c, "缺少 key 参数")
		return
	}
	if err := h.Storage.DeleteFavorite(c.Request.Context(), username, key); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// GetSkipConfigs 获取全部跳过片头片尾配置
func (h *Handler) GetSkipConfigs(c *gin.Context) {
	username := middleware.GetUsername(c)
	configs, err := h.Storage.GetAllSkipConfigs(c.Request.Context(), username)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, configs)
}

// SaveSkipConfig 保存跳过配置，键为 source+id
func (h *Handler) SaveSkipConfig(c *gin.Context) {
	username := middleware.GetUsername(c)
	source, id, ok := splitKey(c.Query("key"))
	if !ok {
		utils.BadRequest(c, "key 参数格式应为 source+id")
		return
	}

	var conf model.SkipConfig
	if err := c.ShouldBindJSON(&conf); err != nil {
		utils.BadRequest(c, "配置格式错误")
		return
	}
	if err := h.Storage.SetSkipConfig(c.Request.Context(), username, source, id, &conf); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DeleteSkipConfig 删除跳过配置
func (h *Handler) DeleteSkipConfig(c *gin.Context) {
	username := middleware.GetUsername(c)
	source, id, ok := splitKey(c.Query("key"))
	if !ok {
		utils.BadRequest(c, "key 参数格式应为 source+id")
		return
	}
	if err := h.Storage.DeleteSkipConfig(c.Request.Context(), username, source, id); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// splitKey 拆分 source+id 形式的资源键
func splitKey(key string) (source, id string, ok bool) {
	parts := strings.SplitN(key, "+", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// GetSearchHistory 获取搜索历史
func (h *Handler) GetSearchHistory(c *gin.Context) {
	username := middleware.GetUsername(c)
	history, err := h.Storage.GetSearchHistory(c.Request.Context(), username)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, history)
}

// AddSearchHistory 追加搜索关键词
func (h *Handler) AddSearchHistory(c *gin.Context) {
	username := middleware.GetUsername(c)

	var req struct {
		Keyword string `json:"keyword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "缺少关键词")
		return
	}
	if err := h.Storage.AddSearchHistory(c.Request.Context(), username, req.Keyword); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}

// DeleteSearchHistory 删除搜索历史；带 keyword 只删除单条，否则清空
func (h *Handler) DeleteSearchHistory(c *gin.Context) {
	username := middleware.GetUsername(c)
	keyword := c.Query("keyword")
	if err := h.Storage.DeleteSearchHistory(c.Request.Context(), username, keyword); err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, nil)
}
