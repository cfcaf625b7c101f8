package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"syscall"
	"time"
)

const (
	retryAttempts = 3
	retryBaseWait = time.Second // 第 n 次失败后等待 n×retryBaseWait
)

// retryingBackend 为每次后端调用提供有界重试。
// 仅对连接类瞬时错误重试，其他错误立即向上传播
type retryingBackend struct {
	inner Backend
	sleep func(time.Duration) // 测试时替换
}

// NewRetryingBackend 包装后端，策略对所有操作统一，不支持按调用覆盖
func NewRetryingBackend(inner Backend) Backend {
	return &retryingBackend{inner: inner, sleep: time.Sleep}
}

// isTransient 判断是否为可重试的连接类错误
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// 兜底：部分客户端只以文本形式暴露连接错误
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout")
}

// doRetry 最多尝试 retryAttempts 次，耗尽后附带最后一次错误返回 ErrBackendUnavailable
func doRetry[T any](rb *retryingBackend, ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := 1; i <= retryAttempts; i++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		if errors.Is(err, ErrNotFound) || !isTransient(err) {
			return zero, err
		}
		lastErr = err
		if i < retryAttempts {
			log.Printf("[Storage] %s 失败，准备重试 (%d/%d): %v", op, i, retryAttempts, err)
			rb.sleep(retryBaseWait * time.Duration(i))
		}
	}
	return zero, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, op, lastErr)
}

// doRetryErr 无返回值版本
func doRetryErr(rb *retryingBackend, ctx context.Context, op string, fn func() error) error {
	_, err := doRetry(rb, ctx, op, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (rb *retryingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return doRetry(rb, ctx, "get", func() ([]byte, error) { return rb.inner.Get(ctx, key) })
}

func (rb *retryingBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return doRetryErr(rb, ctx, "set", func() error { return rb.inner.Set(ctx, key, value, ttl) })
}

func (rb *retryingBackend) Delete(ctx context.Context, keys ...string) error {
	return doRetryErr(rb, ctx, "delete", func() error { return rb.inner.Delete(ctx, keys...) })
}

func (rb *retryingBackend) Exists(ctx context.Context, key string) (bool, error) {
	return doRetry(rb, ctx, "exists", func() (bool, error) { return rb.inner.Exists(ctx, key) })
}

func (rb *retryingBackend) Scan(ctx context.Context, prefix string) ([]string, error) {
	return doRetry(rb, ctx, "scan", func() ([]string, error) { return rb.inner.Scan(ctx, prefix) })
}

func (rb *retryingBackend) ZAdd(ctx context.Context, key string, score int64, member string) error {
	return doRetryErr(rb, ctx, "zadd", func() error { return rb.inner.ZAdd(ctx, key, score, member) })
}

func (rb *retryingBackend) ZRem(ctx context.Context, key string, member string) error {
	return doRetryErr(rb, ctx, "zrem", func() error { return rb.inner.ZRem(ctx, key, member) })
}

func (rb *retryingBackend) ZCard(ctx context.Context, key string) (int64, error) {
	return doRetry(rb, ctx, "zcard", func() (int64, error) { return rb.inner.ZCard(ctx, key) })
}

func (rb *retryingBackend) ZRangeByScore(ctx context.Context, key string, min, max int64) ([]string, error) {
	return doRetry(rb, ctx, "zrangebyscore", func() ([]string, error) {
		return rb.inner.ZRangeByScore(ctx, key, min, max)
	})
}

func (rb *retryingBackend) ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return doRetry(rb, ctx, "zrevrange", func() ([]string, error) {
		return rb.inner.ZRevRange(ctx, key, start, stop)
	})
}

func (rb *retryingBackend) ZRemRangeByScore(ctx context.Context, key string, min, max int64) error {
	return doRetryErr(rb, ctx, "zremrangebyscore", func() error {
		return rb.inner.ZRemRangeByScore(ctx, key, min, max)
	})
}

func (rb *retryingBackend) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return doRetryErr(rb, ctx, "zremrangebyrank", func() error {
		return rb.inner.ZRemRangeByRank(ctx, key, start, stop)
	})
}

func (rb *retryingBackend) SAdd(ctx context.Context, key string, member string) error {
	return doRetryErr(rb, ctx, "sadd", func() error { return rb.inner.SAdd(ctx, key, member) })
}

func (rb *retryingBackend) SRem(ctx context.Context, key string, member string) error {
	return doRetryErr(rb, ctx, "srem", func() error { return rb.inner.SRem(ctx, key, member) })
}

func (rb *retryingBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	return doRetry(rb, ctx, "smembers", func() ([]string, error) { return rb.inner.SMembers(ctx, key) })
}

func (rb *retryingBackend) Ping(ctx context.Context) error {
	return doRetryErr(rb, ctx, "ping", func() error { return rb.inner.Ping(ctx) })
}

func (rb *retryingBackend) Close() error {
	return rb.inner.Close()
}
