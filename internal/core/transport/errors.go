package transport

import "errors"

var (
	// ErrBridgeClosed 桥已关闭
	ErrBridgeClosed = errors.New("transport: bridge closed")

	// ErrAlreadyStarted 桥已启动
	ErrAlreadyStarted = errors.New("transport: bridge already started")

	// ErrUnknownBackend 未知的传输后端
	ErrUnknownBackend = errors.New("transport: unknown backend")
)
