package storage

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyBackend 前 failures 次 Get/Set 返回指定错误，之后透传给内存后端
type flakyBackend struct {
	Backend
	err      error
	failures int
	calls    int
}

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.Backend.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.Backend.Set(ctx, key, value, ttl)
}

func newRetryHarness(inner Backend) (*retryingBackend, *[]time.Duration) {
	var sleeps []time.Duration
	rb := &retryingBackend{
		inner: inner,
		sleep: func(d time.Duration) { sleeps = append(sleeps, d) },
	}
	return rb, &sleeps
}

func TestRetryTransientThenSuccess(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	require.NoError(t, mem.Set(ctx, "k", []byte("v"), 0))

	flaky := &flakyBackend{Backend: mem, err: syscall.ECONNREFUSED, failures: 2}
	rb, sleeps := newRetryHarness(flaky)

	val, err := rb.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, 3, flaky.calls)
	// 等待时长线性递增
	assert.Equal(t, []time.Duration{retryBaseWait, 2 * retryBaseWait}, *sleeps)
}

func TestRetryExhaustion(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyBackend{Backend: NewMemoryBackend(), err: syscall.ECONNRESET, failures: 100}
	rb, sleeps := newRetryHarness(flaky)

	_, err := rb.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, retryAttempts, flaky.calls)
	assert.Len(t, *sleeps, retryAttempts-1)
}

func TestRetryNonTransientNotRetried(t *testing.T) {
	ctx := context.Background()
	permanent := errors.New("syntax error")
	flaky := &flakyBackend{Backend: NewMemoryBackend(), err: permanent, failures: 100}
	rb, sleeps := newRetryHarness(flaky)

	_, err := rb.Get(ctx, "k")
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 1, flaky.calls)
	assert.Empty(t, *sleeps)
}

func TestRetryNotFoundNotRetried(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	rb, sleeps := newRetryHarness(mem)

	_, err := rb.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, *sleeps)
}

func TestRetrySetPropagates(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryBackend()
	flaky := &flakyBackend{Backend: mem, err: syscall.EPIPE, failures: 1}
	rb, _ := newRetryHarness(flaky)

	require.NoError(t, rb.Set(ctx, "k", []byte("v"), 0))
	val, err := mem.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("constraint violation")))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.True(t, isTransient(syscall.ECONNREFUSED))
	assert.True(t, isTransient(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransient(errors.New("read: i/o timeout")))
}
