// Package eventbus 实现状态事件总线
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/eventbus")

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrClosed 事件总线已关闭
	ErrClosed = errors.New("eventbus closed")
)

// DefaultBufferSize 默认订阅缓冲区大小
const DefaultBufferSize = 64

// ============================================================================
// Bus 实现
// ============================================================================

// Bus 状态事件总线
//
// 每种 StatusKind 一个节点。发射从不阻塞：订阅者缓冲区满时丢弃事件，
// 并按一定频率告警慢消费者。
type Bus struct {
	mu     sync.RWMutex
	nodes  map[types.StatusKind]*node
	closed atomic.Bool

	// stateful 这些类型的节点保留每个端点最后一个事件，新订阅者会立即收到
	stateful map[types.StatusKind]bool
}

// node 事件类型节点
type node struct {
	lk        sync.Mutex
	kind      types.StatusKind
	sinks     []*Subscription
	keepLast  bool
	last      map[types.GUID]types.StatusEvent // endpoint -> 最后一个事件
	dropCount atomic.Int64
}

// Option 总线选项
type Option func(*Bus)

// Stateful 设置保留最后事件的类型
func Stateful(kinds ...types.StatusKind) Option {
	return func(b *Bus) {
		for _, k := range kinds {
			b.stateful[k] = true
		}
	}
}

// NewBus 创建新的事件总线
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		nodes:    make(map[types.StatusKind]*node),
		stateful: make(map[types.StatusKind]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ============================================================================
// EventBus 接口实现
// ============================================================================

// Subscribe 订阅状态事件
func (b *Bus) Subscribe(opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	settings := &pkgif.SubscriptionSettings{
		Buffer: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.Buffer < 0 {
		settings.Buffer = 0
	}

	kinds := settings.Kinds
	if len(kinds) == 0 {
		kinds = allKinds()
	}

	sub := &Subscription{
		bus:      b,
		kinds:    kinds,
		settings: settings,
		out:      make(chan types.StatusEvent, settings.Buffer),
	}

	for _, k := range kinds {
		b.withNode(k, func(n *node) {
			n.sinks = append(n.sinks, sub)

			// 有状态节点：补发最后的事件
			for _, ev := range n.last {
				if !settings.Matches(ev) {
					continue
				}
				select {
				case sub.out <- ev:
				default:
				}
			}
		})
	}

	return sub, nil
}

// Emit 发射事件到所有订阅者
func (b *Bus) Emit(ev types.StatusEvent) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	n, ok := b.nodes[ev.Kind]
	b.mu.RUnlock()

	if !ok {
		if !b.stateful[ev.Kind] {
			return nil
		}
		b.withNode(ev.Kind, func(*node) {})
		b.mu.RLock()
		n = b.nodes[ev.Kind]
		b.mu.RUnlock()
	}

	n.emit(ev)
	return nil
}

// Close 关闭总线及全部订阅
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	b.mu.Lock()
	subs := make(map[*Subscription]struct{})
	for _, n := range b.nodes {
		n.lk.Lock()
		for _, s := range n.sinks {
			subs[s] = struct{}{}
		}
		n.lk.Unlock()
	}
	b.mu.Unlock()

	for s := range subs {
		_ = s.Close()
	}
	return nil
}

// ============================================================================
// 内部方法
// ============================================================================

// withNode 在节点上执行操作
func (b *Bus) withNode(kind types.StatusKind, cb func(*node)) {
	b.mu.Lock()

	n, ok := b.nodes[kind]
	if !ok {
		n = &node{
			kind:     kind,
			sinks:    make([]*Subscription, 0),
			keepLast: b.stateful[kind],
		}
		if n.keepLast {
			n.last = make(map[types.GUID]types.StatusEvent)
		}
		b.nodes[kind] = n
	}

	n.lk.Lock()
	b.mu.Unlock()

	cb(n)
	n.lk.Unlock()
}

// removeSub 移除订阅
func (b *Bus) removeSub(sub *Subscription) {
	for _, k := range sub.kinds {
		b.mu.Lock()
		n, ok := b.nodes[k]
		if !ok {
			b.mu.Unlock()
			continue
		}

		n.lk.Lock()
		for i, s := range n.sinks {
			if s == sub {
				n.sinks = append(n.sinks[:i], n.sinks[i+1:]...)
				break
			}
		}

		// 无订阅者且不保留状态的节点直接删除
		if len(n.sinks) == 0 && !n.keepLast {
			delete(b.nodes, k)
		}
		n.lk.Unlock()
		b.mu.Unlock()
	}
}

// emit 发射事件到节点的订阅者
func (n *node) emit(ev types.StatusEvent) {
	n.lk.Lock()
	defer n.lk.Unlock()

	if n.keepLast {
		n.last[ev.Endpoint] = ev
	}

	for _, sub := range n.sinks {
		if !sub.settings.Matches(ev) {
			continue
		}
		select {
		case sub.out <- ev:
		default:
			// 缓冲区满，丢弃事件
			dropped := n.dropCount.Add(1)

			// 每丢弃 100 个事件警告一次，避免日志泛滥
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"dropped", dropped,
					"kind", n.kind.String(),
					"reason", "subscriber buffer full")
			}
		}
	}
}

// Forget 端点销毁后清除其在有状态节点上保留的事件
func (b *Bus) Forget(id types.GUID) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, n := range b.nodes {
		if !n.keepLast {
			continue
		}
		n.lk.Lock()
		delete(n.last, id)
		n.lk.Unlock()
	}
}

func allKinds() []types.StatusKind {
	out := make([]types.StatusKind, 0, int(types.StatusSampleLost)+1)
	for k := types.StatusPublicationMatched; k <= types.StatusSampleLost; k++ {
		out = append(out, k)
	}
	return out
}
