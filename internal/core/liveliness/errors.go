package liveliness

import "errors"

var (
	// ErrAlreadyRegistered 端点已注册
	ErrAlreadyRegistered = errors.New("liveliness: endpoint already registered")

	// ErrUnknownEndpoint 端点未注册
	ErrUnknownEndpoint = errors.New("liveliness: unknown endpoint")

	// ErrAlreadyStarted 监测已启动
	ErrAlreadyStarted = errors.New("liveliness: already started")
)
