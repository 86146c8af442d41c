package dds

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// Readiness 订阅者的就绪通知注册表
//
// 缓冲区每次从空变为非空时，向每个注册的通道送出一次令牌；
// 收到令牌后应反复 Take 直到返回 (nil, nil)。
type Readiness = endpoint.Readiness

// SampleInfo 样本元信息
type SampleInfo struct {
	// Writer 来源写端
	Writer types.GUID

	// Seq 写端内序列号
	Seq types.SequenceNumber

	// SourceTimestamp 写入时间
	SourceTimestamp time.Time
}

// Message 解码后的消息
type Message[T any] struct {
	Value T
	Info  SampleInfo
}

// Result 推送流中的一项，Message 与 Err 恰有一个非空
type Result[T any] struct {
	Message *Message[T]
	Err     error
}

// ════════════════════════════════════════════════════════════════════════════
//                              Subscription
// ════════════════════════════════════════════════════════════════════════════

// Subscription 类型化读端
//
// 拉取（Take/Next/Readiness）与推送（Stream）消费同一个缓冲区，
// 每个样本只交付给其中一个消费者。
type Subscription[T any] struct {
	node  *Node
	topic *Topic
	codec Codec[T]
	r     *endpoint.Reader

	closed atomic.Bool
}

// CreateSubscription 在主题上创建订阅者
//
// q 为端点级策略，可为 nil（使用主题策略）。请求 TransientLocal 及以上
// 持久性时，匹配的发布者保留的历史会先交付给新订阅者。
func CreateSubscription[T any](node *Node, topic *Topic, codec Codec[T], q *qos.Policies, opts ...EndpointOption) (*Subscription[T], error) {
	if node == nil || topic == nil {
		return nil, configError("topic", errors.New("node and topic are required"))
	}
	if codec == nil {
		return nil, configError("codec", errors.New("codec is required"))
	}
	if node.isClosed() {
		return nil, ErrNodeClosed
	}
	profile, err := topic.profile(q)
	if err != nil {
		return nil, err
	}
	o := newEndpointOptions(opts)

	r, err := node.ctx.participant.CreateReader(topic.name, profile, o.listener)
	if err != nil {
		return nil, endpointError(err)
	}
	s := &Subscription[T]{node: node, topic: topic, codec: codec, r: r}
	if err := node.track(r.GUID(), s); err != nil {
		_ = node.ctx.participant.DeleteEndpoint(r.GUID())
		return nil, err
	}
	return s, nil
}

// GUID 返回端点标识
func (s *Subscription[T]) GUID() types.GUID { return s.r.GUID() }

// Topic 返回主题
func (s *Subscription[T]) Topic() *Topic { return s.topic }

// QoS 返回完整策略
func (s *Subscription[T]) QoS() qos.Profile { return s.r.QoS() }

// Readiness 返回就绪通知注册表
//
// 示例：
//
//	ready := make(chan any, 1)
//	sub.Readiness().Register(1, ready)
//	for range ready {
//	    for {
//	        msg, err := sub.Take()
//	        if msg == nil && err == nil {
//	            break
//	        }
//	        ...
//	    }
//	}
func (s *Subscription[T]) Readiness() *Readiness { return s.r.Readiness() }

// Len 返回缓冲区中待读的样本数
func (s *Subscription[T]) Len() int { return s.r.Len() }

// Take 取出最旧的消息
//
// 缓冲区为空时返回 (nil, nil)；解码失败时返回 *ReceiveError，样本已被取出。
func (s *Subscription[T]) Take() (*Message[T], error) {
	if s.closed.Load() {
		return nil, ErrEndpointDestroyed
	}
	sample, err := s.r.Take()
	if err != nil {
		return nil, endpointError(err)
	}
	if sample == nil {
		return nil, nil
	}
	return s.decode(sample)
}

// Next 取出最旧的消息，缓冲区为空时挂起直到有消息、ctx 结束或订阅者销毁
func (s *Subscription[T]) Next(ctx context.Context) (*Message[T], error) {
	if s.closed.Load() {
		return nil, ErrEndpointDestroyed
	}
	sample, err := s.r.Next(ctx)
	if err != nil {
		return nil, endpointError(err)
	}
	return s.decode(sample)
}

// Stream 返回按到达顺序推送消息的通道
//
// 后台协程只在缓冲区为空时挂起；解码失败以 Result.Err 形式送出，
// 流继续。ctx 结束或订阅者销毁时通道关闭，不影响其他消费者。
// ctx 结束时已取出但未被接收的样本放回缓冲区队首，留给后续的 Take。
func (s *Subscription[T]) Stream(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T])
	go func() {
		defer close(out)
		for {
			sample, err := s.r.Next(ctx)
			if err != nil {
				return
			}
			var res Result[T]
			if msg, err := s.decode(sample); err != nil {
				res.Err = err
			} else {
				res.Message = msg
			}
			select {
			case out <- res:
			case <-ctx.Done():
				if err := s.r.Requeue(sample); err != nil {
					logger.Debug("放回未交付样本失败",
						"topic", s.topic.name.String(),
						"seq", uint64(sample.Seq),
						"error", err)
				}
				return
			}
		}
	}()
	return out
}

// Status 返回状态快照
func (s *Subscription[T]) Status() types.EndpointStatus {
	return s.r.Status()
}

// Close 销毁订阅者
//
// 阻塞在 Next 上的消费者返回 ErrEndpointDestroyed，推送流关闭。
// 重复调用返回 nil。
func (s *Subscription[T]) Close() error {
	if s.closed.Load() {
		return nil
	}
	s.node.untrack(s.r.GUID())
	return s.destroy()
}

func (s *Subscription[T]) destroy() error {
	if s.closed.Swap(true) {
		return nil
	}
	return deleteEndpoint(s.node.ctx.participant, s.r.GUID())
}

func (s *Subscription[T]) decode(sample *types.Sample) (*Message[T], error) {
	info := SampleInfo{
		Writer:          sample.Writer,
		Seq:             sample.Seq,
		SourceTimestamp: sample.SourceTimestamp,
	}
	v, err := s.codec.Decode(sample.Data())
	if err != nil {
		logger.Debug("样本解码失败",
			"topic", s.topic.name.String(),
			"writer", sample.Writer.ShortString(),
			"seq", uint64(sample.Seq),
			"error", err)
		return nil, &ReceiveError{Writer: sample.Writer, Seq: sample.Seq, Err: err}
	}
	return &Message[T]{Value: v, Info: info}, nil
}
