package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/user/lunatv/internal/model"
	"golang.org/x/crypto/bcrypt"
)

const (
	// 搜索历史最大条数
	searchHistoryLimit = 20
	// API 调用日志最多保留条数，写入时触发裁剪
	apiCallLogCap = 1000
	// 会话无心跳续期时的自动过期时长
	sessionTTL = time.Hour
)

// Service 所有持久化实体的唯一入口。
// 其余组件（在线统计、登录统计、清理任务）只通过这里访问数据，不直接碰后端键
type Service struct {
	backend Backend
	now     func() int64 // 毫秒时间戳，测试时替换
}

// NewService 创建存储服务，后端调用统一套上重试包装
func NewService(backend Backend) *Service {
	return &Service{
		backend: NewRetryingBackend(backend),
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// ---------- 键命名 ----------
// 布局沿用 u:{user}:{类别}:{source}+{id}，保证按用户前缀扫描的代价只与该用户数据量相关

func prKey(user, key string) string       { return "u:" + user + ":pr:" + key }
func favKey(user, key string) string      { return "u:" + user + ":fav:" + key }
func pwdKey(user string) string           { return "u:" + user + ":pwd" }
func metaKey(user string) string          { return "u:" + user + ":meta" }
func shKey(user string) string            { return "u:" + user + ":sh" }
func skipKey(user, src, id string) string { return "u:" + user + ":skip:" + src + "+" + id }
func loginStatsKey(user string) string    { return "user_login_stats:" + user }
func sessionKey(id string) string         { return "session:" + id }
func adKey(id string) string              { return "advertisement:" + id }

const (
	activeSessionsKey = "sessions:active"
	adminConfigKey    = "admin:config"
	apiCallLogsKey    = "api:call:logs"
	adIndexKey        = "advertisements:index"
)

func validUsername(name string) error {
	if name == "" {
		return &ValidationError{Field: "username", Reason: "不能为空"}
	}
	if strings.ContainsAny(name, ": \t\n") {
		return &ValidationError{Field: "username", Reason: "包含非法字符"}
	}
	return nil
}

// ---------- JSON 辅助 ----------

// getJSON 读取并反序列化；键不存在返回 (nil, nil)
func getJSON[T any](ctx context.Context, b Backend, key string) (*T, error) {
	raw, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return &v, nil
}

func setJSON(ctx context.Context, b Backend, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", key, err)
	}
	return b.Set(ctx, key, raw, ttl)
}

// ---------- 播放记录 ----------

// GetPlayRecord 获取单条播放记录，key 形如 source+id，不存在返回 nil
func (s *Service) GetPlayRecord(ctx context.Context, user, key string) (*model.PlayRecord, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return getJSON[model.PlayRecord](ctx, s.backend, prKey(user, key))
}

// SetPlayRecord 无条件覆盖写入（最后写入者胜出）
func (s *Service) SetPlayRecord(ctx context.Context, user, key string, record *model.PlayRecord) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return setJSON(ctx, s.backend, prKey(user, key), record, 0)
}

// GetAllPlayRecords 按用户前缀扫描，返回 source+id 到记录的映射
func (s *Service) GetAllPlayRecords(ctx context.Context, user string) (map[string]model.PlayRecord, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return collectByPrefix[model.PlayRecord](ctx, s.backend, "u:"+user+":pr:")
}

// DeletePlayRecord 删除单条播放记录
func (s *Service) DeletePlayRecord(ctx context.Context, user, key string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return s.backend.Delete(ctx, prKey(user, key))
}

// collectByPrefix 扫描前缀下的所有值，键名去掉前缀作为映射键
func collectByPrefix[T any](ctx context.Context, b Backend, prefix string) (map[string]T, error) {
	keys, err := b.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	result := make(map[string]T, len(keys))
	for _, fullKey := range keys {
		val, err := getJSON[T](ctx, b, fullKey)
		if err != nil {
			return nil, err
		}
		if val != nil {
			result[strings.TrimPrefix(fullKey, prefix)] = *val
		}
	}
	return result, nil
}

// ---------- 收藏 ----------

// GetFavorite 获取收藏，不存在返回 nil
func (s *Service) GetFavorite(ctx context.Context, user, key string) (*model.Favorite, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return getJSON[model.Favorite](ctx, s.backend, favKey(user, key))
}

// SetFavorite 写入收藏
func (s *Service) SetFavorite(ctx context.Context, user, key string, fav *model.Favorite) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return setJSON(ctx, s.backend, favKey(user, key), fav, 0)
}

// GetAllFavorites 获取用户全部收藏
func (s *Service) GetAllFavorites(ctx context.Context, user string) (map[string]model.Favorite, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return collectByPrefix[model.Favorite](ctx, s.backend, "u:"+user+":fav:")
}

// DeleteFavorite 删除收藏
func (s *Service) DeleteFavorite(ctx context.Context, user, key string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return s.backend.Delete(ctx, favKey(user, key))
}

// ---------- 用户 ----------

// RegisterUser 注册用户。凭证已存在时返回 ErrUserExists。
// 不会隐式创建用户元数据，由调用方自行写入
func (s *Service) RegisterUser(ctx context.Context, user, password string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "不能为空"}
	}
	exists, err := s.backend.Exists(ctx, pwdKey(user))
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, pwdKey(user), hash, 0)
}

// VerifyUser 校验密码
func (s *Service) VerifyUser(ctx context.Context, user, password string) (bool, error) {
	if err := validUsername(user); err != nil {
		return false, err
	}
	hash, err := s.backend.Get(ctx, pwdKey(user))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil, nil
}

// CheckUserExist 只判断凭证键是否存在，不读取、不比较凭证内容
func (s *Service) CheckUserExist(ctx context.Context, user string) (bool, error) {
	if err := validUsername(user); err != nil {
		return false, err
	}
	return s.backend.Exists(ctx, pwdKey(user))
}

// ChangePassword 修改密码（覆盖写入）
func (s *Service) ChangePassword(ctx context.Context, user, newPassword string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	if newPassword == "" {
		return &ValidationError{Field: "password", Reason: "不能为空"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.backend.Set(ctx, pwdKey(user), hash, 0)
}

// DeleteUser 级联删除用户全部数据。
// 各类数据独立删除、尽力而为：某一类失败不阻止其余类别继续；
// 对已删除用户重复调用是无害空操作
func (s *Service) DeleteUser(ctx context.Context, user string) error {
	if err := validUsername(user); err != nil {
		return err
	}

	var errs []error
	del := func(what string, fn func() error) {
		if err := fn(); err != nil {
			log.Printf("[Storage] 删除用户 %s 的%s失败: %v", user, what, err)
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	del("凭证", func() error { return s.backend.Delete(ctx, pwdKey(user)) })
	del("搜索历史", func() error { return s.backend.Delete(ctx, shKey(user)) })
	del("播放记录", func() error { return s.deletePrefix(ctx, "u:"+user+":pr:") })
	del("收藏", func() error { return s.deletePrefix(ctx, "u:"+user+":fav:") })
	del("跳过配置", func() error { return s.deletePrefix(ctx, "u:"+user+":skip:") })
	del("登录统计", func() error { return s.backend.Delete(ctx, loginStatsKey(user)) })
	del("元数据", func() error { return s.backend.Delete(ctx, metaKey(user)) })

	return errors.Join(errs...)
}

func (s *Service) deletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.backend.Scan(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.backend.Delete(ctx, keys...)
}

// GetAllUsers 从凭证键空间推导用户列表；只有持有凭证的用户才算存在
func (s *Service) GetAllUsers(ctx context.Context) ([]string, error) {
	keys, err := s.backend.Scan(ctx, "u:")
	if err != nil {
		return nil, err
	}
	var users []string
	for _, key := range keys {
		if strings.HasSuffix(key, ":pwd") {
			users = append(users, strings.TrimSuffix(strings.TrimPrefix(key, "u:"), ":pwd"))
		}
	}
	return users, nil
}

// ---------- 搜索历史 ----------

// GetSearchHistory 返回最近优先的搜索词列表
func (s *Service) GetSearchHistory(ctx context.Context, user string) ([]string, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	history, err := getJSON[[]string](ctx, s.backend, shKey(user))
	if err != nil || history == nil {
		return nil, err
	}
	return *history, nil
}

// AddSearchHistory 去重后插到最前，超出上限截断
func (s *Service) AddSearchHistory(ctx context.Context, user, keyword string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	history, err := s.GetSearchHistory(ctx, user)
	if err != nil {
		return err
	}
	updated := []string{keyword}
	for _, kw := range history {
		if kw != keyword {
			updated = append(updated, kw)
		}
	}
	if len(updated) > searchHistoryLimit {
		updated = updated[:searchHistoryLimit]
	}
	return setJSON(ctx, s.backend, shKey(user), updated, 0)
}

// DeleteSearchHistory 删除单个搜索词；keyword 为空时清空整个历史
func (s *Service) DeleteSearchHistory(ctx context.Context, user, keyword string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	if keyword == "" {
		return s.backend.Delete(ctx, shKey(user))
	}
	history, err := s.GetSearchHistory(ctx, user)
	if err != nil {
		return err
	}
	updated := make([]string, 0, len(history))
	for _, kw := range history {
		if kw != keyword {
			updated = append(updated, kw)
		}
	}
	return setJSON(ctx, s.backend, shKey(user), updated, 0)
}

// ---------- 用户元数据 ----------

// GetUserMeta 不存在返回 nil
func (s *Service) GetUserMeta(ctx context.Context, user string) (*model.UserMeta, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return getJSON[model.UserMeta](ctx, s.backend, metaKey(user))
}

// SetUserMeta 写入元数据
func (s *Service) SetUserMeta(ctx context.Context, user string, meta *model.UserMeta) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return setJSON(ctx, s.backend, metaKey(user), meta, 0)
}

// ---------- 登录统计 ----------

// GetUserLoginStats 不存在返回 nil；读写路径与元数据完全独立
func (s *Service) GetUserLoginStats(ctx context.Context, user string) (*model.LoginStats, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return getJSON[model.LoginStats](ctx, s.backend, loginStatsKey(user))
}

// SetUserLoginStats 覆盖写入登录统计
func (s *Service) SetUserLoginStats(ctx context.Context, user string, stats *model.LoginStats) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return setJSON(ctx, s.backend, loginStatsKey(user), stats, 0)
}

// ---------- 管理员配置 ----------

// GetAdminConfig 不存在返回 nil
func (s *Service) GetAdminConfig(ctx context.Context) (*model.AdminConfig, error) {
	return getJSON[model.AdminConfig](ctx, s.backend, adminConfigKey)
}

// SetAdminConfig 整体覆盖写入
func (s *Service) SetAdminConfig(ctx context.Context, cfg *model.AdminConfig) error {
	return setJSON(ctx, s.backend, adminConfigKey, cfg, 0)
}

// ---------- 跳过片头片尾 ----------

// GetSkipConfig 不存在返回 nil
func (s *Service) GetSkipConfig(ctx context.Context, user, source, id string) (*model.SkipConfig, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return getJSON[model.SkipConfig](ctx, s.backend, skipKey(user, source, id))
}

// SetSkipConfig 片头片尾秒数为负视为非法输入
func (s *Service) SetSkipConfig(ctx context.Context, user, source, id string, cfg *model.SkipConfig) error {
	if err := validUsername(user); err != nil {
		return err
	}
	if cfg.IntroTime < 0 || cfg.OutroTime < 0 {
		return &ValidationError{Field: "skip_config", Reason: "时间不能为负"}
	}
	return setJSON(ctx, s.backend, skipKey(user, source, id), cfg, 0)
}

// DeleteSkipConfig 删除配置
func (s *Service) DeleteSkipConfig(ctx context.Context, user, source, id string) error {
	if err := validUsername(user); err != nil {
		return err
	}
	return s.backend.Delete(ctx, skipKey(user, source, id))
}

// GetAllSkipConfigs 返回 source+id 到配置的映射
func (s *Service) GetAllSkipConfigs(ctx context.Context, user string) (map[string]model.SkipConfig, error) {
	if err := validUsername(user); err != nil {
		return nil, err
	}
	return collectByPrefix[model.SkipConfig](ctx, s.backend, "u:"+user+":skip:")
}

// ---------- API 调用日志 ----------

// AddApiCallLog 追加日志到按时间排序的结构；超出上限时同一操作内裁掉最旧的
func (s *Service) AddApiCallLog(ctx context.Context, entry *model.ApiCallLog) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.backend.ZAdd(ctx, apiCallLogsKey, entry.Timestamp, string(raw)); err != nil {
		return err
	}
	count, err := s.backend.ZCard(ctx, apiCallLogsKey)
	if err != nil {
		return err
	}
	if count > apiCallLogCap {
		return s.backend.ZRemRangeByRank(ctx, apiCallLogsKey, 0, count-apiCallLogCap-1)
	}
	return nil
}

// GetApiCallLogs 返回最近 limit 条日志，新的在前
func (s *Service) GetApiCallLogs(ctx context.Context, limit int) ([]model.ApiCallLog, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.backend.ZRevRange(ctx, apiCallLogsKey, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	logs := make([]model.ApiCallLog, 0, len(raws))
	for _, raw := range raws {
		var entry model.ApiCallLog
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			log.Printf("[Storage] 跳过无法解析的日志条目: %v", err)
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

// ---------- 在线会话 ----------

// SetUserSession 写入会话（1 小时 TTL）并同步更新按活跃时间排序的索引
func (s *Service) SetUserSession(ctx context.Context, session *model.UserSession) error {
	if session.SessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "不能为空"}
	}
	if err := validUsername(session.Username); err != nil {
		return err
	}
	if err := setJSON(ctx, s.backend, sessionKey(session.SessionID), session, sessionTTL); err != nil {
		return err
	}
	return s.backend.ZAdd(ctx, activeSessionsKey, session.LastActiveAt, session.SessionID)
}

// GetUserSession 不存在（或已过期）返回 nil
func (s *Service) GetUserSession(ctx context.Context, sessionID string) (*model.UserSession, error) {
	return getJSON[model.UserSession](ctx, s.backend, sessionKey(sessionID))
}

// DeleteUserSession 删除会话及其索引条目
func (s *Service) DeleteUserSession(ctx context.Context, sessionID string) error {
	if err := s.backend.Delete(ctx, sessionKey(sessionID)); err != nil {
		return err
	}
	return s.backend.ZRem(ctx, activeSessionsKey, sessionID)
}

// GetActiveSessions 返回窗口期内有心跳的会话。
// 查询顺带把窗口外的索引条目惰性清掉（只清索引，会话本体靠 TTL 自行过期）；
// 清理边界取 cutoff-1，保证恰好落在窗口边上的心跳不会被同一次查询移除
func (s *Service) GetActiveSessions(ctx context.Context, windowMinutes int) ([]model.UserSession, error) {
	if windowMinutes <= 0 {
		windowMinutes = 30
	}
	now := s.now()
	cutoff := now - int64(windowMinutes)*60*1000

	ids, err := s.backend.ZRangeByScore(ctx, activeSessionsKey, cutoff, int64(1)<<62)
	if err != nil {
		return nil, err
	}

	sessions := make([]model.UserSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetUserSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if session != nil {
			sessions = append(sessions, *session)
		}
	}

	if err := s.backend.ZRemRangeByScore(ctx, activeSessionsKey, -(int64(1) << 62), cutoff-1); err != nil {
		log.Printf("[Storage] 清理过期会话索引失败: %v", err)
	}

	return sessions, nil
}

// ---------- 广告 ----------

func validateAd(ad *model.Advertisement) error {
	if ad.ID == "" {
		return &ValidationError{Field: "id", Reason: "不能为空"}
	}
	if ad.StartDate > ad.EndDate {
		return &ValidationError{Field: "start_date", Reason: "生效时间不能晚于失效时间"}
	}
	return nil
}

// CreateAdvertisement 写入广告并加入索引集合
func (s *Service) CreateAdvertisement(ctx context.Context, ad *model.Advertisement) error {
	if err := validateAd(ad); err != nil {
		return err
	}
	ad.CreatedAt = s.now()
	ad.UpdatedAt = ad.CreatedAt
	if err := setJSON(ctx, s.backend, adKey(ad.ID), ad, 0); err != nil {
		return err
	}
	return s.backend.SAdd(ctx, adIndexKey, ad.ID)
}

// UpdateAdvertisement 更新已存在的广告；不存在时返回 ErrNotFound
func (s *Service) UpdateAdvertisement(ctx context.Context, ad *model.Advertisement) error {
	if err := validateAd(ad); err != nil {
		return err
	}
	existing, err := s.GetAdvertisement(ctx, ad.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: 广告 %s", ErrNotFound, ad.ID)
	}
	ad.CreatedAt = existing.CreatedAt
	ad.UpdatedAt = s.now()
	return setJSON(ctx, s.backend, adKey(ad.ID), ad, 0)
}

// DeleteAdvertisement 删除广告及索引
func (s *Service) DeleteAdvertisement(ctx context.Context, id string) error {
	if err := s.backend.Delete(ctx, adKey(id)); err != nil {
		return err
	}
	return s.backend.SRem(ctx, adIndexKey, id)
}

// GetAdvertisement 不存在返回 nil
func (s *Service) GetAdvertisement(ctx context.Context, id string) (*model.Advertisement, error) {
	return getJSON[model.Advertisement](ctx, s.backend, adKey(id))
}

// GetAllAdvertisements 按优先级降序返回全部广告
func (s *Service) GetAllAdvertisements(ctx context.Context) ([]model.Advertisement, error) {
	ids, err := s.backend.SMembers(ctx, adIndexKey)
	if err != nil {
		return nil, err
	}
	ads := make([]model.Advertisement, 0, len(ids))
	for _, id := range ids {
		ad, err := s.GetAdvertisement(ctx, id)
		if err != nil {
			return nil, err
		}
		if ad != nil {
			ads = append(ads, *ad)
		}
	}
	sort.Slice(ads, func(i, j int) bool { return ads[i].Priority > ads[j].Priority })
	return ads, nil
}

// GetActiveAdvertisements 过滤出启用且处于投放窗口内的广告，可按广告位筛选
func (s *Service) GetActiveAdvertisements(ctx context.Context, position string) ([]model.Advertisement, error) {
	all, err := s.GetAllAdvertisements(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]model.Advertisement, 0, len(all))
	for _, ad := range all {
		if !ad.ActiveAt(now) {
			continue
		}
		if position != "" && ad.Position != position {
			continue
		}
		active = append(active, ad)
	}
	return active, nil
}

// ---------- 全量清理 ----------

// ClearAllData 删除所有用户及其数据和管理员配置
func (s *Service) ClearAllData(ctx context.Context) error {
	users, err := s.GetAllUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := s.DeleteUser(ctx, user); err != nil {
			return err
		}
	}
	return s.backend.Delete(ctx, adminConfigKey)
}

// Ping 透传后端连通性检查
func (s *Service) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
