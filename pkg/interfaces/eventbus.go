package interfaces

import "github.com/dep2p/go-dds/pkg/types"

// EventBus 状态事件总线
//
// 所有端点的状态事件（匹配、不兼容、存活、截止期、投递失败）都会发到总线，
// 订阅方按类型、主题或端点过滤。
type EventBus interface {
	// Subscribe 订阅状态事件
	Subscribe(opts ...SubscriptionOpt) (Subscription, error)

	// Emit 发射状态事件，不会阻塞
	Emit(event types.StatusEvent) error

	// Forget 端点销毁后清除其保留的最后状态
	Forget(id types.GUID)

	// Close 关闭总线及全部订阅
	Close() error
}

// Subscription 状态事件订阅
type Subscription interface {
	// Out 返回接收事件的通道，订阅关闭后通道关闭
	Out() <-chan types.StatusEvent

	// Close 取消订阅
	Close() error
}

// SubscriptionOpt 订阅选项函数类型
type SubscriptionOpt func(*SubscriptionSettings)

// SubscriptionSettings 订阅设置（导出以供实现使用）
type SubscriptionSettings struct {
	// Buffer 通道缓冲区大小
	Buffer int

	// Kinds 只接收这些类型，为空表示全部
	Kinds []types.StatusKind

	// Topic 只接收该主题的事件
	Topic *types.TopicName

	// Endpoint 只接收该端点的事件
	Endpoint *types.GUID
}

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Buffer = size
	}
}

// Kinds 只订阅指定类型的事件
func Kinds(kinds ...types.StatusKind) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Kinds = append(s.Kinds, kinds...)
	}
}

// ForTopic 只订阅指定主题的事件
func ForTopic(topic types.TopicName) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Topic = &topic
	}
}

// ForEndpoint 只订阅指定端点的事件
func ForEndpoint(id types.GUID) SubscriptionOpt {
	return func(s *SubscriptionSettings) {
		s.Endpoint = &id
	}
}

// Matches 报告事件是否满足订阅设置
func (s *SubscriptionSettings) Matches(ev types.StatusEvent) bool {
	if s.Topic != nil && *s.Topic != ev.Topic {
		return false
	}
	if s.Endpoint != nil && *s.Endpoint != ev.Endpoint {
		return false
	}
	return true
}
