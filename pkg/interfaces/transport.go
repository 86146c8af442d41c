package interfaces

import "context"

// Transport 跨进程传输
//
// 传输只负责按通道名搬运不透明的字节帧，不理解帧内容。
// 同一域内的参与者通过相同的通道名互相可见。
type Transport interface {
	// Publish 向通道发送一帧
	Publish(ctx context.Context, channel string, frame []byte) error

	// Subscribe 订阅通道，ctx 结束或 Close 后返回的通道关闭
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)

	// Close 关闭传输
	Close() error
}
