package model

// 用户角色
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "owner"
)

// SiteConfig 站点级配置
type SiteConfig struct {
	SiteName               string `json:"site_name"`
	Announcement           string `json:"announcement,omitempty"`
	SiteInterfaceCacheTime int    `json:"site_interface_cache_time"` // 资源站接口缓存秒数
	OpenRegister           bool   `json:"open_register"`
	AutoCleanInactiveUsers bool   `json:"auto_clean_inactive_users"`
	InactiveUserDays       int    `json:"inactive_user_days"` // 1..365
}

// UserEntry 用户名册条目
type UserEntry struct {
	Username string `json:"username"`
	Role     string `json:"role"` // user / admin / owner
	Banned   bool   `json:"banned,omitempty"`
}

// SourceConfig 资源站配置（Apple CMS V10 JSON 接口）
type SourceConfig struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	API      string `json:"api"`
	Disabled bool   `json:"disabled,omitempty"`
}

// AdminConfig 管理员配置（整体作为单个键存储）
type AdminConfig struct {
	SiteConfig   SiteConfig     `json:"site_config"`
	Users        []UserEntry    `json:"users"`
	SourceConfig []SourceConfig `json:"source_config"`
}

// Clone 深拷贝；缓存里的实例不直接交给调用方改
func (c *AdminConfig) Clone() *AdminConfig {
	out := &AdminConfig{SiteConfig: c.SiteConfig}
	out.Users = append([]UserEntry(nil), c.Users...)
	out.SourceConfig = append([]SourceConfig(nil), c.SourceConfig...)
	return out
}

// FindUser 在名册中查找用户，不存在返回 nil
func (c *AdminConfig) FindUser(username string) *UserEntry {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}

// RemoveUser 从名册中移除用户，返回是否发生了删除
func (c *AdminConfig) RemoveUser(username string) bool {
	for i := range c.Users {
		if c.Users[i].Username == username {
			c.Users = append(c.Users[:i], c.Users[i+1:]...)
			return true
		}
	}
	return false
}

// FindSource 根据 key 查找资源站配置
func (c *AdminConfig) FindSource(key string) *SourceConfig {
	for i := range c.SourceConfig {
		if c.SourceConfig[i].Key == key {
			return &c.SourceConfig[i]
		}
	}
	return nil
}
