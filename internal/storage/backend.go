package storage

import (
	"context"
	"time"
)

// Backend 键值后端抽象。所有实现必须满足：
//   - Get 对不存在的键返回 ErrNotFound
//   - Set 的 ttl 为 0 表示永不过期
//   - Scan 只遍历指定前缀，代价与匹配键数量成正比
//   - 有序索引（Z 系列）按 score 升序，成员唯一
//
// 实现需要支持并发调用，进程内共享同一个句柄
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, prefix string) ([]string, error)

	// 有序索引（按时间戳排序的会话索引、封顶日志等）
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRem(ctx context.Context, key string, member string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max int64) error
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	// 集合（广告索引）
	SAdd(ctx context.Context, key string, member string) error
	SRem(ctx context.Context, key string, member string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
