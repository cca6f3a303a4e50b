package feederr

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Kind 核心错误分类
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidOperation 非法操作（自己关注自己、游标格式错误等）
	KindInvalidOperation
	// KindNotFound 目标不存在
	KindNotFound
	// KindForbidden 无权操作目标资源
	KindForbidden
	// KindTimeout 依赖超时
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidOperation:
		return "InvalidOperation"
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error 携带分类的错误，支持 errors.Is/As 链
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidOperation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Timeout(msg string, err error) error {
	return &Error{Kind: KindTimeout, Msg: msg, Err: err}
}

// KindOf 取出错误分类；非本包错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FromDB 把存储层错误翻译成核心分类：
// 记录不存在 -> NotFound，context 截止 -> Timeout，其余原样透传。
func FromDB(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Error{Kind: KindNotFound, Msg: op, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Msg: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
