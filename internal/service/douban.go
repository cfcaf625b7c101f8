package service

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/user/lunatv/internal/model"
	"github.com/user/lunatv/internal/utils"
	"golang.org/x/sync/singleflight"
)

// DoubanService 豆瓣详情抓取服务
type DoubanService struct {
	client *http.Client
	cache  *utils.TTLCache[*model.DoubanDetail]
	sf     singleflight.Group // 防止并发重复抓取同一条目
}

// NewDoubanService 创建豆瓣详情服务
func NewDoubanService() *DoubanService {
	return &DoubanService{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: utils.NewTTLCache[*model.DoubanDetail](256, 4*time.Hour),
	}
}

// generateBid 随机生成 11 位 bid (模拟豆瓣用户ID Cookie)
func (s *DoubanService) generateBid() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	bid := make([]byte, 11)
	for i := range bid {
		bid[i] = chars[rand.Intn(len(chars))]
	}
	return string(bid)
}

func isValidDoubanID(id string) bool {
	// 长度校验：6～9 位
	if len(id) < 6 || len(id) > 9 {
		return false
	}
	// 纯数字校验
	for _, c := range id {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// GetDetail 抓取豆瓣条目详情页并解析评分、年份、简介
func (s *DoubanService) GetDetail(ctx context.Context, doubanID string) (*model.DoubanDetail, error) {
	if !isValidDoubanID(doubanID) {
		return nil, fmt.Errorf("无效的豆瓣ID:%s", doubanID)
	}
	if detail, ok := s.cache.Get(doubanID); ok {
		return detail, nil
	}

	v, err, _ := s.sf.Do(doubanID, func() (interface{}, error) {
		detail, err := s.crawl(ctx, doubanID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(doubanID, detail)
		return detail, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.DoubanDetail), nil
}

// crawl 抓取并解析详情页
func (s *DoubanService) crawl(ctx context.Context, doubanID string) (*model.DoubanDetail, error) {
	url := fmt.Sprintf("https://movie.douban.com/subject/%s/", doubanID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	// 设置请求头，模拟浏览器
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://movie.douban.com/")
	req.Header.Set("Cookie", fmt.Sprintf(`ll="108288"; bid=%s`, s.generateBid()))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("请求返回状态码: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}

	// 检测是否被重定向到验证页面
	pageTitle := doc.Find("title").Text()
	if pageTitle == "豆瓣" || strings.Contains(pageTitle, "验证") {
		return nil, fmt.Errorf("触发豆瓣反爬验证 (豆瓣ID: %s)，请稍后重试", doubanID)
	}

	detail := s.parsePage(doc, doubanID)
	if detail.Title == "" {
		return nil, fmt.Errorf("无法解析出条目标题 (豆瓣ID: %s)，页面可能结构变化或触发反爬", doubanID)
	}
	return detail, nil
}

// parsePage 解析详情页
func (s *DoubanService) parsePage(doc *goquery.Document, doubanID string) *model.DoubanDetail {
	detail := &model.DoubanDetail{ID: doubanID}

	// 标题解析增强策略
	title := doc.Find("h1 span[property='v:itemreviewed']").Text()
	if title == "" {
		title = doc.Find("h1 span:first-child").Text()
	}
	if title == "" {
		titleHeader := doc.Find("h1").Clone()
		titleHeader.Find(".year").Remove()
		title = titleHeader.Text()
	}
	detail.Title = strings.TrimSpace(title)

	// 年份
	yearText := doc.Find("h1 .year").Text()
	detail.Year = strings.Trim(yearText, "()")

	// 评分
	detail.Rate = strings.TrimSpace(doc.Find("strong.rating_num").Text())

	// 海报
	if poster, exists := doc.Find("#mainpic img").Attr("src"); exists {
		detail.Backdrop = poster
	}

	// 剧情简介
	detail.Summary = strings.TrimSpace(doc.Find("span[property='v:summary']").Text())

	return detail
}
