package dispatch

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

// 错误定义
var (
	// ErrBlockedTimeout 可靠投递超过最长阻塞时间
	ErrBlockedTimeout = errors.New("dispatch: delivery blocked timeout")

	// ErrPeerGone 对端已销毁
	ErrPeerGone = errors.New("dispatch: peer gone")

	// ErrTransport 传输失败
	ErrTransport = errors.New("dispatch: transport failure")

	// ErrCanceled 投递被调用方取消
	ErrCanceled = errors.New("dispatch: delivery canceled")
)

// DeliveryError 对单个对端的投递错误
type DeliveryError struct {
	// Kind 错误类别，为上面的哨兵错误之一
	Kind error

	// Peer 投递目标
	Peer types.GUID

	// Sample 样本标识
	Sample types.SampleID

	// Cause 底层原因
	Cause error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s (peer %s, sample %s)", e.Kind, e.Peer.ShortString(), e.Sample)
	if e.Cause != nil && e.Cause != e.Kind {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap 返回类别与底层原因
func (e *DeliveryError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}
