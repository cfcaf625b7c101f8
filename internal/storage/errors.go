package storage

import (
	"errors"
	"fmt"
)

// 统一错误分类：调用方通过 errors.Is / errors.As 判断
var (
	// ErrNotFound 键不存在。仅在"缺失即错误"的场景返回（如更新不存在的广告），
	// 普通 Get 类操作返回 nil 值而不是错误
	ErrNotFound = errors.New("storage: not found")

	// ErrUserExists 注册冲突
	ErrUserExists = errors.New("storage: user already exists")

	// ErrBackendUnavailable 重试耗尽后的连接类失败
	ErrBackendUnavailable = errors.New("storage: backend unavailable")
)

// ValidationError 非法输入，不会触发重试
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("storage: invalid %s: %s", e.Field, e.Reason)
}

// IsValidation 判断是否为输入校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
