package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEpisodes(t *testing.T) {
	assert.Nil(t, ParseEpisodes(""))

	// 标准格式：集名$链接，# 分集
	got := ParseEpisodes("第01集$https://cdn.example.com/1.m3u8#第02集$https://cdn.example.com/2.m3u8")
	assert.Equal(t, []string{
		"https://cdn.example.com/1.m3u8",
		"https://cdn.example.com/2.m3u8",
	}, got)

	// 多播放源：第一个源没有 m3u8 时取下一个
	got = ParseEpisodes("第01集$https://page.example.com/1.html$$$第01集$https://cdn.example.com/1.m3u8")
	assert.Equal(t, []string{"https://cdn.example.com/1.m3u8"}, got)

	// 无标题时整段即链接
	got = ParseEpisodes("https://cdn.example.com/only.m3u8")
	assert.Equal(t, []string{"https://cdn.example.com/only.m3u8"}, got)

	// 没有任何 m3u8 源
	assert.Nil(t, ParseEpisodes("第01集$https://page.example.com/1.html"))
}

func TestCleanTitle(t *testing.T) {
	assert.Equal(t, "some title 2024", CleanTitle("some.title_2024"))
	assert.Equal(t, "a b", CleanTitle("  a   b  "))
	assert.Equal(t, "", CleanTitle(""))
}
