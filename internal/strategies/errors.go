package strategies

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidInput 本地校验失败，请求没有发出
	ErrInvalidInput = errors.New("invalid strategy input")
	// ErrEditorClosed 对话框未打开时 Save
	ErrEditorClosed = errors.New("editor is not open")
	// ErrNoMetrics 策略没有绩效数据
	ErrNoMetrics = errors.New("strategy has no performance metrics")
)

// ValidationError 本地校验失败详情
type ValidationError struct {
	Field    string
	Problems []string
}

func (e *ValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "parameters"
	}
	return field + ": " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }
