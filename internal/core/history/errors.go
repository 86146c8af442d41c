package history

import "errors"

// 缓冲区错误
var (
	// ErrBufferFull KeepAll 缓冲区已达 MaxSamples
	ErrBufferFull = errors.New("history: buffer full")

	// ErrBlockingTimeout 在最长阻塞时间内缓冲区仍无空位
	ErrBlockingTimeout = errors.New("history: max blocking time exceeded")

	// ErrClosed 缓冲区已关闭
	ErrClosed = errors.New("history: buffer closed")
)
