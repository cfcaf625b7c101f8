package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerBackend 内嵌持久化后端，适合不想部署外部存储的自托管场景。
// 内部键空间划分：
//
//	k!{key}                     普通键值（TTL 由 badger 原生支持）
//	zs!{key}!{score16}!{member} 有序索引的按分排序视图（利用 badger 键序遍历）
//	zm!{key}!{member}           有序索引的成员反查（值为分值，便于改分时清理旧条目）
//	s!{key}!{member}            集合成员
type BadgerBackend struct {
	db *badger.DB
}

// NewBadgerBackend 打开（或创建）指定目录的 badger 库
func NewBadgerBackend(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("打开 badger 失败: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func kvKey(key string) []byte { return []byte("k!" + key) }

// encodeScore 把分值编成可按字典序比较的 16 进制串（偏移避免负数问题）
func encodeScore(score int64) string {
	return fmt.Sprintf("%016x", uint64(score)+1<<63)
}

func zScoreKey(key string, score int64, member string) []byte {
	return []byte("zs!" + key + "!" + encodeScore(score) + "!" + member)
}

func zMemberKey(key, member string) []byte {
	return []byte("zm!" + key + "!" + member)
}

func setKey(key, member string) []byte {
	return []byte("s!" + key + "!" + member)
}

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kvKey(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(kvKey(key), value)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (b *BadgerBackend) Delete(ctx context.Context, keys ...string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(kvKey(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Exists(ctx context.Context, key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(kvKey(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (b *BadgerBackend) Scan(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = kvKey(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len("k!"):]))
		}
		return nil
	})
	return keys, err
}

func (b *BadgerBackend) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		// 成员已有分值时先删旧的排序条目
		mk := zMemberKey(key, member)
		if item, err := txn.Get(mk); err == nil {
			old, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			oldScore := int64(binary.BigEndian.Uint64(old))
			if err := txn.Delete(zScoreKey(key, oldScore, member)); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(score))
		if err := txn.Set(mk, buf); err != nil {
			return err
		}
		return txn.Set(zScoreKey(key, score, member), nil)
	})
}

func (b *BadgerBackend) ZRem(ctx context.Context, key string, member string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return zRemInTxn(txn, key, member)
	})
}

func zRemInTxn(txn *badger.Txn, key, member string) error {
	mk := zMemberKey(key, member)
	item, err := txn.Get(mk)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	score := int64(binary.BigEndian.Uint64(val))
	if err := txn.Delete(zScoreKey(key, score, member)); err != nil {
		return err
	}
	return txn.Delete(mk)
}

func (b *BadgerBackend) ZCard(ctx context.Context, key string) (int64, error) {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("zm!" + key + "!")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// zRangeAsc 按分值升序遍历 [min, max] 区间内的成员
func (b *BadgerBackend) zRangeAsc(key string, min, max int64, fn func(member string, score int64)) error {
	prefix := []byte("zs!" + key + "!")
	lower := append(append([]byte{}, prefix...), []byte(encodeScore(min))...)
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(lower); it.Valid(); it.Next() {
			member, score, ok := parseScoreKey(it.Item().Key(), prefix)
			if !ok {
				continue
			}
			if score > max {
				break
			}
			fn(member, score)
		}
		return nil
	})
}

// parseScoreKey 从 zs 键中解析成员与分值
func parseScoreKey(raw, prefix []byte) (string, int64, bool) {
	rest := raw[len(prefix):]
	// 格式: {score16}!{member}
	if len(rest) < 17 || rest[16] != '!' {
		return "", 0, false
	}
	var encoded uint64
	if _, err := fmt.Sscanf(string(rest[:16]), "%016x", &encoded); err != nil {
		return "", 0, false
	}
	return string(rest[17:]), int64(encoded - 1<<63), true
}

func (b *BadgerBackend) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	var members []string
	err := b.zRangeAsc(key, min, max, func(member string, _ int64) {
		members = append(members, member)
	})
	return members, err
}

func (b *BadgerBackend) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	prefix := []byte("zs!" + key + "!")
	var members []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		// 反向迭代需要定位到前缀区间的末尾
		seek := append(append([]byte{}, prefix...), 0xff)
		var rank int64
		for it.Seek(seek); it.Valid(); it.Next() {
			member, _, ok := parseScoreKey(it.Item().Key(), prefix)
			if !ok {
				continue
			}
			if rank >= start && (stop < 0 || rank <= stop) {
				members = append(members, member)
			}
			rank++
			if stop >= 0 && rank > stop {
				break
			}
		}
		return nil
	})
	return members, err
}

func (b *BadgerBackend) ZRemRangeByScore(ctx context.Context, key string, min, max int64) error {
	var victims []string
	if err := b.zRangeAsc(key, min, max, func(member string, _ int64) {
		victims = append(victims, member)
	}); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, member := range victims {
			if err := zRemInTxn(txn, key, member); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	var victims []string
	var rank int64
	if err := b.zRangeAsc(key, -1<<62, 1<<62, func(member string, _ int64) {
		if rank >= start && rank <= stop {
			victims = append(victims, member)
		}
		rank++
	}); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, member := range victims {
			if err := zRemInTxn(txn, key, member); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) SAdd(ctx context.Context, key string, member string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(setKey(key, member), nil)
	})
}

func (b *BadgerBackend) SRem(ctx context.Context, key string, member string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(setKey(key, member))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (b *BadgerBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	prefix := []byte("s!" + key + "!")
	var members []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw := it.Item().Key()
			if !bytes.HasPrefix(raw, prefix) {
				continue
			}
			members = append(members, string(raw[len(prefix):]))
		}
		return nil
	})
	return members, err
}

func (b *BadgerBackend) Ping(ctx context.Context) error {
	if b.db.IsClosed() {
		return fmt.Errorf("badger 已关闭")
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}
