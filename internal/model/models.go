package model

// 本包内所有时间戳统一使用毫秒（Unix milli），与前端保持一致

// PlayRecord 播放记录
type PlayRecord struct {
	Title         string `json:"title"`
	SourceName    string `json:"source_name"`
	Cover         string `json:"cover"`
	Year          string `json:"year"`
	Index         int    `json:"index"`          // 第几集
	TotalEpisodes int    `json:"total_episodes"` // 总集数
	PlayTime      int    `json:"play_time"`      // 播放进度（秒）
	TotalTime     int    `json:"total_time"`     // 总时长（秒）
	SaveTime      int64  `json:"save_time"`      // 记录保存时间
	SearchTitle   string `json:"search_title"`   // 搜索时使用的标题
}

// Favorite 收藏
type Favorite struct {
	Title         string `json:"title"`
	SourceName    string `json:"source_name"`
	Cover         string `json:"cover"`
	Year          string `json:"year"`
	TotalEpisodes int    `json:"total_episodes"`
	SaveTime      int64  `json:"save_time"`
	SearchTitle   string `json:"search_title"`
	Origin        string `json:"origin,omitempty"` // vod 或 live
}

// SkipConfig 跳过片头片尾配置
type SkipConfig struct {
	Enable    bool `json:"enable"`
	IntroTime int  `json:"intro_time"` // 片头时间（秒）
	OutroTime int  `json:"outro_time"` // 片尾时间（秒）
}

// UserMeta 用户元数据
// LastActiveAt 反映任意已认证请求，区别于 LoginStats 只记录显式登录事件
type UserMeta struct {
	CreatedAt    int64 `json:"created_at"`     // 注册时间
	LastActiveAt int64 `json:"last_active_at"` // 最后活跃时间
	LoginCount   int   `json:"login_count"`    // 登录次数
}

// LoginStats 用户登录统计（独立存储，仅用于非活跃用户清理）
type LoginStats struct {
	LoginCount     int   `json:"loginCount"`
	FirstLoginTime int64 `json:"firstLoginTime"`
	LastLoginTime  int64 `json:"lastLoginTime"`
	LastLoginDate  int64 `json:"lastLoginDate"` // 兼容旧数据保留
}

// UserSession 在线会话
type UserSession struct {
	Username     string `json:"username"`
	SessionID    string `json:"session_id"`
	LastActiveAt int64  `json:"last_active_at"`
	IPAddress    string `json:"ip_address,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
}

// ApiCallLog 外部数据源调用日志
type ApiCallLog struct {
	Timestamp    int64  `json:"timestamp"`
	Source       string `json:"source"`
	SourceName   string `json:"source_name"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	ResponseTime int64  `json:"response_time,omitempty"` // 毫秒
}

// Advertisement 广告
type Advertisement struct {
	ID          string `json:"id"`
	Position    string `json:"position"` // 广告位标识，如 home_banner、player_bottom
	Type        string `json:"type"`     // image / video / js
	Title       string `json:"title"`
	MaterialURL string `json:"material_url"`
	ClickURL    string `json:"click_url,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	StartDate   int64  `json:"start_date"`
	EndDate     int64  `json:"end_date"`
	Enabled     bool   `json:"enabled"`
	Priority    int    `json:"priority"` // 数字越大优先级越高
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// ActiveAt 判断广告在指定时间是否生效
func (a *Advertisement) ActiveAt(now int64) bool {
	return a.Enabled && a.StartDate <= now && now <= a.EndDate
}

// VideoDetail 外部资源站返回的视频详情（用于刷新集数）
type VideoDetail struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Poster       string   `json:"poster"`
	Year         string   `json:"year"`
	Episodes     []string `json:"episodes"` // 各集播放地址
	Source       string   `json:"source"`
	SourceName   string   `json:"source_name"`
	TypeName     string   `json:"type_name,omitempty"`
	Desc         string   `json:"desc,omitempty"`
}

// DoubanDetail 豆瓣详情补充信息
type DoubanDetail struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Rate     string `json:"rate"`
	Year     string `json:"year"`
	Summary  string `json:"plot_summary,omitempty"`
	Backdrop string `json:"backdrop,omitempty"`
}
