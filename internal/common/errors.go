package common

import (
	"errors"
	"fmt"
	"time"
)

// AppError 应用级错误结构
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WrapError 包装错误
func WrapError(code, message string, err error) error {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewError 创建新错误
func NewError(code, message string) error {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// IsCode 判断错误链上最近的 AppError 是否为指定错误码
func IsCode(err error, code string) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// RateLimitError 数据源配额耗尽,携带重试提示;与普通抓取失败区分开
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration // 数据源建议的等待时长,未知则为 0
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("[%s] %s (retry after %s)", ErrCodeRateLimit, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("[%s] %s", ErrCodeRateLimit, e.Message)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// IsRateLimit 判断错误链上是否存在限流错误
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// 错误码常量
const (
	ErrCodeFetch        = "FETCH_ERROR"      // 数据源不可达或响应损坏
	ErrCodeRateLimit    = "RATE_LIMIT"       // 配额耗尽
	ErrCodeAnalysis     = "ANALYSIS_ERROR"   // 单仓库分析失败,不中断批次
	ErrCodeValidation   = "VALIDATION_ERROR" // SKILL.md 校验失败
	ErrCodeDatabase     = "DATABASE_ERROR"
	ErrCodeAIProcessing = "AI_PROCESSING_ERROR"
	ErrCodeNotification = "NOTIFICATION_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
