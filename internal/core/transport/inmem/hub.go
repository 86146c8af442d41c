// Package inmem 提供进程内传输
//
// 同一 Hub 上的所有 Transport 共享通道，帧按发布顺序投递给每个订阅者，
// 包括发布者自己的订阅。订阅缓冲区满时发布阻塞，直到 ctx 结束。
package inmem

import (
	"context"
	"errors"
	"sync"

	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// DefaultBufferSize 每个订阅的默认缓冲帧数
const DefaultBufferSize = 256

// ErrClosed 传输已关闭
var ErrClosed = errors.New("inmem: transport closed")

// Hub 进程内的通道集合
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
	size int
}

type subscription struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once

	// mu 保护 ch 的关闭，push 持读锁
	mu     sync.RWMutex
	closed bool
}

// close 先关闭 done 唤醒阻塞的 push，再关闭 ch
func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

var (
	sharedOnce sync.Once
	shared     *Hub
)

// Shared 返回进程级共享 Hub
func Shared() *Hub {
	sharedOnce.Do(func() { shared = NewHub(0) })
	return shared
}

// NewHub 创建 Hub，bufferSize <= 0 时使用 DefaultBufferSize
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{subs: make(map[string]map[*subscription]struct{}), size: bufferSize}
}

// Transport 返回接入 Hub 的新传输
func (h *Hub) Transport() *Transport {
	return &Transport{hub: h}
}

func (h *Hub) add(channel string, s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := h.subs[channel]
	if m == nil {
		m = make(map[*subscription]struct{})
		h.subs[channel] = m
	}
	m[s] = struct{}{}
}

func (h *Hub) remove(channel string, s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.subs[channel]; m != nil {
		delete(m, s)
		if len(m) == 0 {
			delete(h.subs, channel)
		}
	}
}

func (h *Hub) targets(channel string) []*subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*subscription, 0, len(h.subs[channel]))
	for s := range h.subs[channel] {
		out = append(out, s)
	}
	return out
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport Hub 上的一个接入点
type Transport struct {
	hub *Hub

	mu     sync.Mutex
	subs   []func()
	closed bool
}

var _ pkgif.Transport = (*Transport)(nil)

// Publish 把帧投递给通道的全部订阅者
func (t *Transport) Publish(ctx context.Context, channel string, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}

	for _, s := range t.hub.targets(channel) {
		// 每个订阅者持有独立副本
		buf := append([]byte(nil), frame...)
		if err := s.push(ctx, buf); err != nil {
			return err
		}
	}
	return nil
}

// push 向订阅者投递一帧，订阅已关闭时静默丢弃
func (s *subscription) push(ctx context.Context, frame []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- frame:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 订阅通道
func (t *Transport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	s := &subscription{
		ch:   make(chan []byte, t.hub.size),
		done: make(chan struct{}),
	}
	t.hub.add(channel, s)

	stop := func() {
		t.hub.remove(channel, s)
		s.close()
	}
	t.subs = append(t.subs, stop)

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-s.done:
		}
	}()
	return s.ch, nil
}

// Close 关闭本接入点的全部订阅
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, stop := range subs {
		stop()
	}
	return nil
}
