package gateway

import (
	"errors"
	"fmt"
)

// Kind 失败分类。调用方必须穷举处理
type Kind int

const (
	// KindTransport 请求没能完成：不可达、超时、被取消
	KindTransport Kind = iota + 1
	// KindStatus 收到非 2xx 响应
	KindStatus
	// KindDecode 2xx 但 body 不是预期的 JSON 结构
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// maxBodySnippet 错误中保留的响应体长度
const maxBodySnippet = 512

// Error 网关失败
type Error struct {
	Kind      Kind
	Op        Op
	Status    int    // 仅 KindStatus
	Body      string // 仅 KindStatus，截断
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindStatus:
		if e.Body != "" {
			return fmt.Sprintf("%s: http status %d: %s", e.Op, e.Status, e.Body)
		}
		return fmt.Sprintf("%s: http status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 返回 err 链上的网关失败分类；不是网关错误时返回 0
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return 0
}

func IsTransport(err error) bool { return KindOf(err) == KindTransport }
func IsStatus(err error) bool    { return KindOf(err) == KindStatus }
func IsDecode(err error) bool    { return KindOf(err) == KindDecode }

// StatusCode 非 2xx 时的状态码，否则 0
func StatusCode(err error) int {
	var ge *Error
	if errors.As(err, &ge) && ge.Kind == KindStatus {
		return ge.Status
	}
	return 0
}

func truncate(b []byte) string {
	if len(b) > maxBodySnippet {
		return string(b[:maxBodySnippet]) + "..."
	}
	return string(b)
}
