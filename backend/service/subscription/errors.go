package subscription

import (
	"errors"
	"fmt"
)

// ErrUnsupportedScheme 链接协议没有注册解析器。
var ErrUnsupportedScheme = errors.New("unsupported share link scheme")

// ParseError 链接属于已知协议但内容不合法。
type ParseError struct {
	Scheme string
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Scheme + ": " + e.Reason
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func malformed(scheme, reason string) error {
	return &ParseError{Scheme: scheme, Reason: reason}
}

func malformedf(scheme string, cause error, format string, args ...interface{}) error {
	return &ParseError{Scheme: scheme, Reason: fmt.Sprintf(format, args...), Cause: cause}
}

// snippetLimit 诊断信息中最多携带的原文字符数（订阅内容可能含有密钥）。
const snippetLimit = 100

// UnparseableError 所有解析策略都没能得到可用内容。
type UnparseableError struct {
	Snippet string
}

// NewUnparseableError 截取原文前缀作为诊断信息。
func NewUnparseableError(body []byte) *UnparseableError {
	return &UnparseableError{Snippet: Snippet(string(body))}
}

func (e *UnparseableError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("subscription content is not a recognized format (prefix: %q)", e.Snippet)
}

// Snippet 按字符截断到 snippetLimit。
func Snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return string(runes[:snippetLimit])
}
