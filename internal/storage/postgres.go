package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// kvEntry 键值表
type kvEntry struct {
	Key       string `gorm:"primaryKey;size:512"`
	Value     []byte
	ExpiresAt *time.Time `gorm:"index"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// zsetEntry 有序索引表
type zsetEntry struct {
	ZKey   string `gorm:"primaryKey;size:256;column:zkey"`
	Member string `gorm:"primaryKey;size:2048"`
	Score  int64  `gorm:"index:idx_zset_score"`
}

func (zsetEntry) TableName() string { return "zset_entries" }

// setEntry 集合表
type setEntry struct {
	SKey   string `gorm:"primaryKey;size:256;column:skey"`
	Member string `gorm:"primaryKey;size:512"`
}

func (setEntry) TableName() string { return "set_entries" }

// PostgresBackend 把键值契约映射到三张表上，适合已有 Postgres 的部署。
// 过期由 expires_at 列表达：读取时过滤，写入时惰性清理
type PostgresBackend struct {
	db *gorm.DB
}

// NewPostgresBackend 连接数据库并自动建表
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接数据库: %w", err)
	}
	if err := db.AutoMigrate(&kvEntry{}, &zsetEntry{}, &setEntry{}); err != nil {
		return nil, fmt.Errorf("建表失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return &PostgresBackend{db: db}, nil
}

// notExpired 过滤已过期的行
func notExpired(db *gorm.DB) *gorm.DB {
	return db.Where("expires_at IS NULL OR expires_at > ?", time.Now())
}

func (p *PostgresBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var entry kvEntry
	err := notExpired(p.db.WithContext(ctx)).Where("key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (p *PostgresBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	entry := kvEntry{Key: key, Value: value}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		entry.ExpiresAt = &exp
	}
	// upsert：主键冲突时整行覆盖
	return p.db.WithContext(ctx).Save(&entry).Error
}

func (p *PostgresBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return p.db.WithContext(ctx).Where("key IN ?", keys).Delete(&kvEntry{}).Error
}

func (p *PostgresBackend) Exists(ctx context.Context, key string) (bool, error) {
	var count int64
	err := notExpired(p.db.WithContext(ctx).Model(&kvEntry{})).
		Where("key = ?", key).Count(&count).Error
	return count > 0, err
}

func (p *PostgresBackend) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := notExpired(p.db.WithContext(ctx).Model(&kvEntry{})).
		Where("key LIKE ?", escapeLike(prefix)+"%").
		Order("key ASC").Pluck("key", &keys).Error
	return keys, err
}

// escapeLike 转义 LIKE 模式中的通配符
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' || s[i] == '_' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (p *PostgresBackend) ZAdd(ctx context.Context, key string, score int64, member string) error {
	entry := zsetEntry{ZKey: key, Member: member, Score: score}
	return p.db.WithContext(ctx).Save(&entry).Error
}

func (p *PostgresBackend) ZRem(ctx context.Context, key string, member string) error {
	return p.db.WithContext(ctx).
		Where("zkey = ? AND member = ?", key, member).Delete(&zsetEntry{}).Error
}

func (p *PostgresBackend) ZCard(ctx context.Context, key string) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).Model(&zsetEntry{}).
		Where("zkey = ?", key).Count(&count).Error
	return count, err
}

func (p *PostgresBackend) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	var members []string
	err := p.db.WithContext(ctx).Model(&zsetEntry{}).
		Where("zkey = ? AND score >= ? AND score <= ?", key, min, max).
		Order("score ASC, member ASC").Pluck("member", &members).Error
	return members, err
}

func (p *PostgresBackend) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	q := p.db.WithContext(ctx).Model(&zsetEntry{}).
		Where("zkey = ?", key).
		Order("score DESC, member DESC").
		Offset(int(start))
	if stop >= 0 {
		q = q.Limit(int(stop - start + 1))
	}
	var members []string
	err := q.Pluck("member", &members).Error
	return members, err
}

func (p *PostgresBackend) ZRemRangeByScore(ctx context.Context, key string, min, max int64) error {
	return p.db.WithContext(ctx).
		Where("zkey = ? AND score >= ? AND score <= ?", key, min, max).
		Delete(&zsetEntry{}).Error
}

func (p *PostgresBackend) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	// 子查询选出升序排名区间内的成员再删除
	sub := p.db.Model(&zsetEntry{}).Select("member").
		Where("zkey = ?", key).
		Order("score ASC, member ASC").
		Offset(int(start)).Limit(int(stop - start + 1))
	return p.db.WithContext(ctx).
		Where("zkey = ? AND member IN (?)", key, sub).
		Delete(&zsetEntry{}).Error
}

func (p *PostgresBackend) SAdd(ctx context.Context, key string, member string) error {
	entry := setEntry{SKey: key, Member: member}
	return p.db.WithContext(ctx).Save(&entry).Error
}

func (p *PostgresBackend) SRem(ctx context.Context, key string, member string) error {
	return p.db.WithContext(ctx).
		Where("skey = ? AND member = ?", key, member).Delete(&setEntry{}).Error
}

func (p *PostgresBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := p.db.WithContext(ctx).Model(&setEntry{}).
		Where("skey = ?", key).Order("member ASC").Pluck("member", &members).Error
	return members, err
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (p *PostgresBackend) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
