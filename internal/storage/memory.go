package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryBackend 纯内存实现，用于单机部署与测试。
// 键值部分交给 go-cache（自带 TTL 与定期清理），索引结构由互斥锁保护
type MemoryBackend struct {
	kv   *cache.Cache
	mu   sync.RWMutex
	zset map[string]map[string]int64    // key -> member -> score
	set  map[string]map[string]struct{} // key -> members
}

// NewMemoryBackend 创建内存后端
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		kv:   cache.New(cache.NoExpiration, 10*time.Minute),
		zset: make(map[string]map[string]int64),
		set:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, ok := m.kv.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return val.([]byte), nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// 调用方可能复用 buffer，存入前拷贝一份
	buf := make([]byte, len(value))
	copy(buf, value)
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.kv.Set(key, buf, ttl)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.kv.Delete(key)
	}
	return nil
}

func (m *MemoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.kv.Get(key)
	return ok, nil
}

func (m *MemoryBackend) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for key := range m.kv.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) ZAdd(ctx context.Context, key string, score int64, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	zs, ok := m.zset[key]
	if !ok {
		zs = make(map[string]int64)
		m.zset[key] = zs
	}
	zs[member] = score
	return nil
}

func (m *MemoryBackend) ZRem(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.zset[key], member)
	return nil
}

func (m *MemoryBackend) ZCard(ctx context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.zset[key])), nil
}

// zsorted 返回按 score 升序排列的成员（score 相同按成员字典序，保证稳定）
func (m *MemoryBackend) zsorted(key string) []struct {
	member string
	score  int64
} {
	zs := m.zset[key]
	out := make([]struct {
		member string
		score  int64
	}, 0, len(zs))
	for member, score := range zs {
		out = append(out, struct {
			member string
			score  int64
		}{member, score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score < out[j].score
		}
		return out[i].member < out[j].member
	})
	return out
}

func (m *MemoryBackend) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var members []string
	for _, e := range m.zsorted(key) {
		if e.score >= min && e.score <= max {
			members = append(members, e.member)
		}
	}
	return members, nil
}

func (m *MemoryBackend) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sorted := m.zsorted(key)
	n := int64(len(sorted))
	if stop < 0 || stop > n-1 {
		stop = n - 1
	}
	var members []string
	// 倒序：rank 0 为最大 score
	for rank := start; rank <= stop && rank < n; rank++ {
		members = append(members, sorted[n-1-rank].member)
	}
	return members, nil
}

func (m *MemoryBackend) ZRemRangeByScore(ctx context.Context, key string, min, max int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for member, score := range m.zset[key] {
		if score >= min && score <= max {
			delete(m.zset[key], member)
		}
	}
	return nil
}

func (m *MemoryBackend) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.zsorted(key)
	n := int64(len(sorted))
	if stop < 0 || stop > n-1 {
		stop = n - 1
	}
	for rank := start; rank <= stop && rank < n; rank++ {
		delete(m.zset[key], sorted[rank].member)
	}
	return nil
}

func (m *MemoryBackend) SAdd(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.set[key]
	if !ok {
		s = make(map[string]struct{})
		m.set[key] = s
	}
	s[member] = struct{}{}
	return nil
}

func (m *MemoryBackend) SRem(ctx context.Context, key string, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set[key], member)
	return nil
}

func (m *MemoryBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := make([]string, 0, len(m.set[key]))
	for member := range m.set[key] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (m *MemoryBackend) Close() error {
	m.kv.Flush()
	return nil
}
