// Package qos 定义端点的服务质量策略集与兼容性解析
//
// 策略集由若干策略种类组成（History、Reliability、Durability、Deadline、
// Lifespan、Liveliness、ResourceLimits）。每个种类都有文档化的默认值，
// 因此部分指定的策略集总能解析为完整的 Profile。
package qos

import (
	"fmt"
	"math"
	"time"
)

// Infinite 表示无限时长
const Infinite time.Duration = math.MaxInt64

// ============================================================================
//                              Kind - 策略种类
// ============================================================================

// Kind 策略种类
type Kind int

const (
	// KindHistory 历史策略
	KindHistory Kind = iota
	// KindReliability 可靠性策略
	KindReliability
	// KindDurability 持久性策略
	KindDurability
	// KindDeadline 截止期策略
	KindDeadline
	// KindLifespan 生命周期策略
	KindLifespan
	// KindLiveliness 存活性策略
	KindLiveliness
	// KindResourceLimits 资源限制策略
	KindResourceLimits
)

// AllKinds 按固定顺序列出所有策略种类
var AllKinds = []Kind{
	KindHistory,
	KindReliability,
	KindDurability,
	KindDeadline,
	KindLifespan,
	KindLiveliness,
	KindResourceLimits,
}

// String 返回策略种类的字符串表示
func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "history"
	case KindReliability:
		return "reliability"
	case KindDurability:
		return "durability"
	case KindDeadline:
		return "deadline"
	case KindLifespan:
		return "lifespan"
	case KindLiveliness:
		return "liveliness"
	case KindResourceLimits:
		return "resource_limits"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              History - 历史策略
// ============================================================================

// HistoryKind 历史策略类型
type HistoryKind int

const (
	// HistoryKeepLast 仅保留最新的 Depth 条样本
	HistoryKeepLast HistoryKind = iota
	// HistoryKeepAll 保留全部样本，仅受资源限制约束
	HistoryKeepAll
)

// String 返回历史策略类型的字符串表示
func (k HistoryKind) String() string {
	switch k {
	case HistoryKeepLast:
		return "keep_last"
	case HistoryKeepAll:
		return "keep_all"
	default:
		return "unknown"
	}
}

// History 历史策略
//
// KeepLast 在缓冲区满时淘汰最旧的样本，与读端是否已消费无关。
// 慢读端会因此静默错过样本，这是 KeepLast 的既定语义。
type History struct {
	Kind  HistoryKind
	Depth int
}

// KeepLast 返回 KeepLast{depth}
func KeepLast(depth int) History {
	return History{Kind: HistoryKeepLast, Depth: depth}
}

// KeepAll 返回 KeepAll
func KeepAll() History {
	return History{Kind: HistoryKeepAll}
}

// String 返回日志用表示
func (h History) String() string {
	if h.Kind == HistoryKeepLast {
		return fmt.Sprintf("keep_last(%d)", h.Depth)
	}
	return h.Kind.String()
}

// covers 报告 h 作为提供方是否满足 req
func (h History) covers(req History) bool {
	switch {
	case h.Kind == HistoryKeepAll:
		return true
	case req.Kind == HistoryKeepAll:
		return false
	default:
		return h.Depth >= req.Depth
	}
}

// ============================================================================
//                              Reliability - 可靠性策略
// ============================================================================

// ReliabilityKind 可靠性类型
//
// 顺序：BestEffort < Reliable。
type ReliabilityKind int

const (
	// ReliabilityBestEffort 尽力而为，失败静默丢弃
	ReliabilityBestEffort ReliabilityKind = iota
	// ReliabilityReliable 可靠投递，受 MaxBlockingTime 约束的有界阻塞
	ReliabilityReliable
)

// String 返回可靠性类型的字符串表示
func (k ReliabilityKind) String() string {
	switch k {
	case ReliabilityBestEffort:
		return "best_effort"
	case ReliabilityReliable:
		return "reliable"
	default:
		return "unknown"
	}
}

// Reliability 可靠性策略
type Reliability struct {
	Kind ReliabilityKind

	// MaxBlockingTime 可靠投递时单个对端的最长阻塞时间，仅 Reliable 有意义
	MaxBlockingTime time.Duration
}

// Reliable 返回 Reliable{maxBlocking}
func Reliable(maxBlocking time.Duration) Reliability {
	return Reliability{Kind: ReliabilityReliable, MaxBlockingTime: maxBlocking}
}

// BestEffort 返回 BestEffort
func BestEffort() Reliability {
	return Reliability{Kind: ReliabilityBestEffort}
}

// String 返回日志用表示
func (r Reliability) String() string {
	if r.Kind == ReliabilityReliable {
		return fmt.Sprintf("reliable(%s)", formatDuration(r.MaxBlockingTime))
	}
	return r.Kind.String()
}

// ============================================================================
//                              Durability - 持久性策略
// ============================================================================

// Durability 持久性策略
//
// 顺序：Volatile < TransientLocal < Transient < Persistent。
type Durability int

const (
	// DurabilityVolatile 不为后加入的读端保留样本
	DurabilityVolatile Durability = iota
	// DurabilityTransientLocal 写端存活期间为后加入的读端保留历史
	DurabilityTransientLocal
	// DurabilityTransient 写端关闭后历史仍在 Context 内保留
	DurabilityTransient
	// DurabilityPersistent 历史写入持久化存储，跨进程重启保留
	DurabilityPersistent
)

// String 返回持久性的字符串表示
func (d Durability) String() string {
	switch d {
	case DurabilityVolatile:
		return "volatile"
	case DurabilityTransientLocal:
		return "transient_local"
	case DurabilityTransient:
		return "transient"
	case DurabilityPersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Deadline / Lifespan
// ============================================================================

// Deadline 截止期策略：相邻两次写入（或接收）的最长间隔
type Deadline struct {
	Period time.Duration
}

// String 返回日志用表示
func (d Deadline) String() string {
	return formatDuration(d.Period)
}

// Lifespan 生命周期策略：样本写入后的有效时长
type Lifespan struct {
	Duration time.Duration
}

// String 返回日志用表示
func (l Lifespan) String() string {
	return formatDuration(l.Duration)
}

// ============================================================================
//                              Liveliness - 存活性策略
// ============================================================================

// LivelinessKind 存活性声明方式
//
// 顺序：Automatic < ManualByTopic < ManualByParticipant。
type LivelinessKind int

const (
	// LivelinessAutomatic 由参与者自动声明
	LivelinessAutomatic LivelinessKind = iota
	// LivelinessManualByTopic 由写端写入或显式声明
	LivelinessManualByTopic
	// LivelinessManualByParticipant 由参与者显式声明
	LivelinessManualByParticipant
)

// String 返回存活性类型的字符串表示
func (k LivelinessKind) String() string {
	switch k {
	case LivelinessAutomatic:
		return "automatic"
	case LivelinessManualByTopic:
		return "manual_by_topic"
	case LivelinessManualByParticipant:
		return "manual_by_participant"
	default:
		return "unknown"
	}
}

// Liveliness 存活性策略
type Liveliness struct {
	Kind          LivelinessKind
	LeaseDuration time.Duration
}

// String 返回日志用表示
func (l Liveliness) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, formatDuration(l.LeaseDuration))
}

// ============================================================================
//                              ResourceLimits
// ============================================================================

// ResourceLimits 资源限制
//
// MaxSamples 为 0 表示不限。仅对 KeepAll 的阻塞行为有影响。
type ResourceLimits struct {
	MaxSamples int
}

// Unlimited 报告是否不限样本数
func (r ResourceLimits) Unlimited() bool {
	return r.MaxSamples <= 0
}

// String 返回日志用表示
func (r ResourceLimits) String() string {
	if r.Unlimited() {
		return "unlimited"
	}
	return fmt.Sprintf("max_samples(%d)", r.MaxSamples)
}

func formatDuration(d time.Duration) string {
	if d == Infinite {
		return "infinite"
	}
	return d.String()
}

// IsInfinite 报告 d 是否表示无限
func IsInfinite(d time.Duration) bool {
	return d == Infinite
}
