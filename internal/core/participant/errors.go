package participant

import "errors"

var (
	// ErrClosed 参与者已关闭
	ErrClosed = errors.New("participant: closed")

	// ErrTypeMismatch 主题已绑定到另一个类型
	ErrTypeMismatch = errors.New("participant: topic bound to a different type")

	// ErrTopicNotBound 主题尚未创建
	ErrTopicNotBound = errors.New("participant: topic not created")

	// ErrUnknownEndpoint 端点不存在
	ErrUnknownEndpoint = errors.New("participant: unknown endpoint")

	// ErrNoMatch 写端与读端之间没有匹配
	ErrNoMatch = errors.New("participant: no match between writer and reader")
)
