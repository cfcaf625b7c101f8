package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/storage"
	"github.com/user/lunatv/internal/utils"
)

// ErrUpstreamLookup 上游资源站查询失败（网络错误或结果为空）
var ErrUpstreamLookup = errors.New("上游资源站查询失败")

// vodListResponse 苹果CMS videolist 接口响应
type vodListResponse struct {
	Code interface{}              `json:"code"`
	Msg  string                   `json:"msg"`
	List []map[string]interface{} `json:"list"`
}

// VideoDetailService 从外部资源站拉取视频详情。
// 按 ID 直查优先，直查无结果时退回标题搜索匹配；
// 每次上游调用都会写入调用日志供后台统计
type VideoDetailService struct {
	svc      *storage.Service
	adminCfg *AdminConfigService
	client   *utils.HTTPClient
	cache    *utils.TTLCache[*model.VideoDetail]
	now      func() int64
}

// NewVideoDetailService 创建视频详情服务
func NewVideoDetailService(svc *storage.Service, adminCfg *AdminConfigService) *VideoDetailService {
	return &VideoDetailService{
		svc:      svc,
		adminCfg: adminCfg,
		client:   utils.NewHTTPClient(20 * time.Second),
		cache:    utils.NewTTLCache[*model.VideoDetail](512, 2*time.Hour),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// GetDetail 获取指定资源站上某个视频的详情
func (s *VideoDetailService) GetDetail(ctx context.Context, sourceKey, id string) (*model.VideoDetail, error) {
	cacheKey := sourceKey + "+" + id
	if detail, ok := s.cache.Get(cacheKey); ok {
		return detail, nil
	}

	conf, err := s.adminCfg.Get(ctx)
	if err != nil {
		return nil, err
	}
	source := conf.FindSource(sourceKey)
	if source == nil || source.Disabled {
		return nil, fmt.Errorf("%w: 资源站 %s 不可用", ErrUpstreamLookup, sourceKey)
	}

	detail, err := s.fetchByID(ctx, source, id)
	if err != nil {
		return nil, err
	}
	if detail != nil {
		s.cacheDetail(ctx, conf, cacheKey, detail)
		return detail, nil
	}
	return nil, fmt.Errorf("%w: %s 上找不到 id=%s", ErrUpstreamLookup, source.Name, id)
}

// SearchDetail 按标题在指定资源站搜索并返回精确匹配的详情。
// ID 直查失效（资源站改版换 ID）时的兜底路径
func (s *VideoDetailService) SearchDetail(ctx context.Context, sourceKey, title string) (*model.VideoDetail, error) {
	conf, err := s.adminCfg.Get(ctx)
	if err != nil {
		return nil, err
	}
	source := conf.FindSource(sourceKey)
	if source == nil || source.Disabled {
		return nil, fmt.Errorf("%w: 资源站 %s 不可用", ErrUpstreamLookup, sourceKey)
	}

	apiUrl := fmt.Sprintf("%s?ac=videolist&wd=%s", source.API, url.QueryEscape(title))
	list, err := s.request(ctx, source, apiUrl)
	if err != nil {
		return nil, err
	}
	for _, item := range list {
		if toString(item["vod_name"]) == title {
			detail := s.mapToDetail(item, source)
			s.cacheDetail(ctx, conf, sourceKey+"+"+detail.ID, detail)
			return detail, nil
		}
	}
	return nil, fmt.Errorf("%w: %s 上未搜到《%s》", ErrUpstreamLookup, source.Name, title)
}

// fetchByID ID 直查，结果为空返回 (nil, nil)
func (s *VideoDetailService) fetchByID(ctx context.Context, source *model.SourceConfig, id string) (*model.VideoDetail, error) {
	apiUrl := fmt.Sprintf("%s?ac=videolist&ids=%s", source.API, url.QueryEscape(id))
	list, err := s.request(ctx, source, apiUrl)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return s.mapToDetail(list[0], source), nil
}

// request 发起上游请求并记录调用日志
func (s *VideoDetailService) request(ctx context.Context, source *model.SourceConfig, apiUrl string) ([]map[string]interface{}, error) {
	start := s.now()
	var apiResp vodListResponse
	err := s.client.GetJSON(ctx, apiUrl, &apiResp)

	entry := &model.ApiCallLog{
		Timestamp:    start,
		Source:       source.Key,
		SourceName:   source.Name,
		Success:      err == nil,
		ResponseTime: s.now() - start,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := s.svc.AddApiCallLog(ctx, entry); logErr != nil {
		log.Printf("[Detail] 写入调用日志失败: %v", logErr)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamLookup, err)
	}
	return apiResp.List, nil
}

// mapToDetail 苹果CMS字段映射，数字字段统一转字符串
func (s *VideoDetailService) mapToDetail(item map[string]interface{}, source *model.SourceConfig) *model.VideoDetail {
	return &model.VideoDetail{
		ID:         toString(item["vod_id"]),
		Title:      toString(item["vod_name"]),
		Poster:     toString(item["vod_pic"]),
		Year:       toString(item["vod_year"]),
		Episodes:   utils.ParseEpisodes(toString(item["vod_play_url"])),
		Source:     source.Key,
		SourceName: source.Name,
		TypeName:   toString(item["type_name"]),
		Desc:       utils.CleanTitle(toString(item["vod_content"])),
	}
}

// cacheDetail 按站点配置的接口缓存时间写入缓存
func (s *VideoDetailService) cacheDetail(ctx context.Context, conf *model.AdminConfig, key string, detail *model.VideoDetail) {
	ttl := time.Duration(conf.SiteConfig.SiteInterfaceCacheTime) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	s.cache.SetWithTTL(key, detail, ttl)
}

// toString 将任意类型转换为string
func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case float64:
		// JSON数字默认解析为float64
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", val)
	}
}
