package eventbus

import (
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
// Subscription 实现
// ============================================================================

// Subscription 订阅
type Subscription struct {
	bus       *Bus
	kinds     []types.StatusKind
	settings  *pkgif.SubscriptionSettings
	out       chan types.StatusEvent
	closeOnce sync.Once
	closed    atomic.Bool
}

// Out 返回事件通道
func (s *Subscription) Out() <-chan types.StatusEvent {
	return s.out
}

// Close 取消订阅
//
// Close 是并发安全的，可以多次调用。
// 从总线移除后不会再有发射者写入，此时关闭通道是安全的。
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.bus.removeSub(s)
		close(s.out)
	})
	return nil
}
