package utils

import (
	"strings"
)

// ParseEpisodes 解析 Apple CMS 播放链接字段，返回各集的播放地址。
// 格式通常为: Ep1$URL1#Ep2$URL2，多个播放源用 $$$ 分割，取第一个含 m3u8 的源
func ParseEpisodes(playUrl string) []string {
	if playUrl == "" {
		return nil
	}

	for _, seg := range strings.Split(playUrl, "$$$") {
		if seg == "" {
			continue
		}

		var episodes []string
		for _, epSeg := range strings.Split(seg, "#") {
			if epSeg == "" {
				continue
			}
			// 格式: 标题$链接，没有标题时整段就是链接
			parts := strings.Split(epSeg, "$")
			url := parts[len(parts)-1]
			if strings.Contains(url, ".m3u8") {
				episodes = append(episodes, url)
			}
		}
		if len(episodes) > 0 {
			return episodes
		}
	}
	return nil
}

// CleanTitle 清理资源网标题中的杂质，用于标题搜索兜底时的匹配
func CleanTitle(title string) string {
	title = strings.ReplaceAll(title, ".", " ")
	title = strings.ReplaceAll(title, "_", " ")
	return strings.Join(strings.Fields(title), " ")
}
