package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/user/lunatv/internal/service"
	"github.com/user/lunatv/internal/utils"
)

// VideoDetail 获取资源站视频详情；直查失败且带 title 时退回标题搜索
func (h *Handler) VideoDetail(c *gin.Context) {
	source := c.Query("source")
	id := c.Query("id")
	if source == "" || id == "" {
		utils.BadRequest(c, "缺少 source 或 id 参数")
		return
	}

	detail, err := h.Details.GetDetail(c.Request.Context(), source, id)
	if err != nil && errors.Is(err, service.ErrUpstreamLookup) {
		if title := c.Query("title"); title != "" {
			detail, err = h.Details.SearchDetail(c.Request.Context(), source, title)
		}
	}
	if err != nil {
		if errors.Is(err, service.ErrUpstreamLookup) {
			utils.Error(c, 502, err.Error())
			return
		}
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, detail)
}

// DoubanDetail 获取豆瓣条目补充信息
func (h *Handler) DoubanDetail(c *gin.Context) {
	id := c.Param("id")
	detail, err := h.Douban.GetDetail(c.Request.Context(), id)
	if err != nil {
		utils.Error(c, 502, err.Error())
		return
	}
	utils.Success(c, detail)
}

// ActiveAdvertisements 公开接口：按广告位返回当前生效广告
func (h *Handler) ActiveAdvertisements(c *gin.Context) {
	position := c.Query("position")
	ads, err := h.Storage.GetActiveAdvertisements(c.Request.Context(), position)
	if err != nil {
		utils.StorageError(c, err)
		return
	}
	utils.Success(c, ads)
}
