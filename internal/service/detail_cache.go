package service

import (
	"context"
	"sync"

	"github.com/user/lunatv/internal/model"
	"golang.org/x/sync/singleflight"
)

// FetchDetailFunc 抓取单个资源详情的回调
type FetchDetailFunc func(ctx context.Context, source, id string) (*model.VideoDetail, error)

// DetailCache 对详情抓取做并发去重与成功结果记忆。
// 同一 source+id 的并发请求只触发一次上游调用；
// 成功结果在缓存生命周期内复用，失败不缓存，下次调用会重试。
// 对账任务每轮新建一个实例，保证每轮都能看到最新数据
type DetailCache struct {
	fetch FetchDetailFunc
	group singleflight.Group
	done  sync.Map // "source+id" -> *model.VideoDetail
}

// NewDetailCache 创建详情抓取缓存
func NewDetailCache(fetch FetchDetailFunc) *DetailCache {
	return &DetailCache{fetch: fetch}
}

// Get 获取资源详情，必要时触发抓取
func (c *DetailCache) Get(ctx context.Context, source, id string) (*model.VideoDetail, error) {
	key := source + "+" + id
	if v, ok := c.done.Load(key); ok {
		return v.(*model.VideoDetail), nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.done.Load(key); ok {
			return v, nil
		}
		detail, err := c.fetch(ctx, source, id)
		if err != nil {
			return nil, err
		}
		c.done.Store(key, detail)
		return detail, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.VideoDetail), nil
}
