package types

import "time"

// ============================================================================
//                              状态事件
// ============================================================================

// StatusKind 状态事件类型
type StatusKind int

const (
	// StatusPublicationMatched 写端匹配集合变化
	StatusPublicationMatched StatusKind = iota
	// StatusSubscriptionMatched 读端匹配集合变化
	StatusSubscriptionMatched
	// StatusOfferedIncompatibleQos 写端发现 QoS 不兼容的读端
	StatusOfferedIncompatibleQos
	// StatusRequestedIncompatibleQos 读端发现 QoS 不兼容的写端
	StatusRequestedIncompatibleQos
	// StatusLivelinessLost 写端未在租约内声明存活
	StatusLivelinessLost
	// StatusLivelinessChanged 读端观察到的写端存活状态变化
	StatusLivelinessChanged
	// StatusOfferedDeadlineMissed 写端未在周期内写入
	StatusOfferedDeadlineMissed
	// StatusRequestedDeadlineMissed 读端未在周期内收到样本
	StatusRequestedDeadlineMissed
	// StatusDeliveryFailed 对某个对端的投递失败
	StatusDeliveryFailed
	// StatusSampleLost 样本因 KeepLast 淘汰或生命周期过期而未被读取
	StatusSampleLost
)

// String 返回事件类型的字符串表示
func (k StatusKind) String() string {
	switch k {
	case StatusPublicationMatched:
		return "publication_matched"
	case StatusSubscriptionMatched:
		return "subscription_matched"
	case StatusOfferedIncompatibleQos:
		return "offered_incompatible_qos"
	case StatusRequestedIncompatibleQos:
		return "requested_incompatible_qos"
	case StatusLivelinessLost:
		return "liveliness_lost"
	case StatusLivelinessChanged:
		return "liveliness_changed"
	case StatusOfferedDeadlineMissed:
		return "offered_deadline_missed"
	case StatusRequestedDeadlineMissed:
		return "requested_deadline_missed"
	case StatusDeliveryFailed:
		return "delivery_failed"
	case StatusSampleLost:
		return "sample_lost"
	default:
		return "unknown"
	}
}

// StatusEvent 端点状态事件
//
// 状态事件只是通知性质的，不会中断发布或读取。
// 各字段是否有意义取决于 Kind。
type StatusEvent struct {
	// Kind 事件类型
	Kind StatusKind

	// Endpoint 事件所属端点
	Endpoint GUID

	// Topic 所属主题
	Topic TopicName

	// Peer 相关的对端（匹配、不兼容、投递失败、存活变化）
	Peer GUID

	// Alive 存活状态（LivelinessChanged / LivelinessLost）
	Alive bool

	// AliveCount 读端视角下存活的写端数量
	AliveCount int

	// NotAliveCount 读端视角下失活的写端数量
	NotAliveCount int

	// CurrentCount 当前匹配数量（Matched）
	CurrentCount int

	// TotalCount 累计次数（匹配、截止期错过、样本丢失）
	TotalCount int

	// Policies 不兼容的策略名称
	Policies []string

	// Err 投递失败原因
	Err error

	// Time 事件时间
	Time time.Time
}

// EndpointStatus 端点状态快照
type EndpointStatus struct {
	// Alive 写端：自身是否存活；读端：是否至少有一个存活的写端
	Alive bool

	// AliveCount / NotAliveCount 读端视角的写端存活计数
	AliveCount    int
	NotAliveCount int

	// DeadlineMissed 当前是否处于错过截止期状态
	DeadlineMissed bool

	// TotalDeadlineMissed 累计错过截止期次数
	TotalDeadlineMissed int

	// Matched 当前匹配数量
	Matched int

	// LastActivity 最近一次写入/收到样本的时间
	LastActivity time.Time
}
