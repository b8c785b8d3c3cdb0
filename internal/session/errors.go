package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound 会话不存在或已被淘汰
	ErrSessionNotFound = errors.New("会话不存在")
	// ErrInvalidState 当前状态不允许该操作
	ErrInvalidState = errors.New("会话状态不允许该操作")
	// ErrNotReady 会话尚未完成，不能生成或下载简历
	ErrNotReady = errors.New("简历尚未准备好")
	// ErrGenerationFailed 文档生成失败，会话保持已完成状态，可重试
	ErrGenerationFailed = errors.New("简历文档生成失败")
)

// Error 带会话上下文的错误
type Error struct {
	SessionID string
	Op        string
	BaseErr   error
	Detail    string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 会话:%s): %s", e.BaseErr, e.Op, e.SessionID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 会话:%s)", e.BaseErr, e.Op, e.SessionID)
}

func (e *Error) Unwrap() error {
	return e.BaseErr
}

// Is 支持 errors.Is 按基础错误比较
func (e *Error) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewNotFoundError 会话不存在
func NewNotFoundError(id, op string) error {
	return &Error{SessionID: id, Op: op, BaseErr: ErrSessionNotFound}
}

// NewStateError 当前状态不允许 op
func NewStateError(id, op string, state State) error {
	return &Error{SessionID: id, Op: op, BaseErr: ErrInvalidState, Detail: "当前状态 " + state.String()}
}

// NewNotReadyError 会话未完成
func NewNotReadyError(id, op string, state State) error {
	return &Error{SessionID: id, Op: op, BaseErr: ErrNotReady, Detail: "当前状态 " + state.String()}
}

// NewGenerationError 生成失败
func NewGenerationError(id string, cause error) error {
	return &Error{SessionID: id, Op: "generate", BaseErr: ErrGenerationFailed, Detail: cause.Error()}
}
