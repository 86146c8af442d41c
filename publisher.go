package dds

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/internal/core/participant"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Publisher
// ════════════════════════════════════════════════════════════════════════════

// Publisher 类型化写端
type Publisher[T any] struct {
	node  *Node
	topic *Topic
	codec Codec[T]
	w     *endpoint.Writer

	closed atomic.Bool
}

// CreatePublisher 在主题上创建发布者
//
// q 为端点级策略，可为 nil（使用主题策略）。创建时即与现有订阅者匹配；
// 不兼容的订阅者只产生 OfferedIncompatibleQos 事件。
func CreatePublisher[T any](node *Node, topic *Topic, codec Codec[T], q *qos.Policies, opts ...EndpointOption) (*Publisher[T], error) {
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

	w, err := node.ctx.participant.CreateWriter(topic.name, profile, o.listener)
	if err != nil {
		return nil, endpointError(err)
	}
	p := &Publisher[T]{node: node, topic: topic, codec: codec, w: w}
	if err := node.track(w.GUID(), p); err != nil {
		_ = node.ctx.participant.DeleteEndpoint(w.GUID())
		return nil, err
	}
	return p, nil
}

// GUID 返回端点标识
func (p *Publisher[T]) GUID() types.GUID { return p.w.GUID() }

// Topic 返回主题
func (p *Publisher[T]) Topic() *Topic { return p.topic }

// QoS 返回完整策略
func (p *Publisher[T]) QoS() qos.Profile { return p.w.QoS() }

// Publish 发布消息
//
// 返回 nil 表示样本已进入发布者自己的历史。对各订阅者的投递失败
// （可靠投递超时、对端消失、传输失败）不会从这里返回，而是以
// DeliveryFailed 状态事件报告；需要逐个查看时使用 PublishReport。
func (p *Publisher[T]) Publish(ctx context.Context, msg T) error {
	_, err := p.PublishReport(ctx, msg)
	return err
}

// PublishReport 发布消息并返回投递结果
func (p *Publisher[T]) PublishReport(ctx context.Context, msg T) (*Report, error) {
	if p.closed.Load() {
		return nil, ErrEndpointDestroyed
	}
	data, err := p.codec.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	_, report, err := p.w.Write(ctx, data)
	if err != nil {
		return nil, endpointError(err)
	}
	return report, nil
}

// AssertLiveliness 显式声明存活，用于 ManualByTopic 写端
func (p *Publisher[T]) AssertLiveliness() error {
	return endpointError(p.w.AssertLiveliness())
}

// Status 返回状态快照
func (p *Publisher[T]) Status() types.EndpointStatus {
	return p.w.Status()
}

// Close 销毁发布者
//
// 匹配的订阅者收到匹配数减少的事件。重复调用返回 nil。
func (p *Publisher[T]) Close() error {
	if p.closed.Load() {
		return nil
	}
	p.node.untrack(p.w.GUID())
	return p.destroy()
}

func (p *Publisher[T]) destroy() error {
	if p.closed.Swap(true) {
		return nil
	}
	return deleteEndpoint(p.node.ctx.participant, p.w.GUID())
}

// ════════════════════════════════════════════════════════════════════════════
//                              辅助函数
// ════════════════════════════════════════════════════════════════════════════

// endpointError 把内部错误转换为公共错误
func endpointError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, endpoint.ErrDestroyed):
		return ErrEndpointDestroyed
	case errors.Is(err, participant.ErrClosed):
		return ErrContextClosed
	case errors.Is(err, participant.ErrTopicNotBound):
		return configError("topic", err)
	case errors.Is(err, endpoint.ErrInvalidConfig):
		return configError("qos", err)
	default:
		return err
	}
}

// deleteEndpoint 销毁端点；Context 关闭时端点可能已被参与者回收
func deleteEndpoint(p *participant.Participant, id types.GUID) error {
	err := p.DeleteEndpoint(id)
	if errors.Is(err, participant.ErrUnknownEndpoint) || errors.Is(err, endpoint.ErrDestroyed) {
		return nil
	}
	return err
}
