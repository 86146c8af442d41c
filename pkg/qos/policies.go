package qos

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// ============================================================================
//                              默认值
// ============================================================================

// 默认策略值，写端与读端相同
const (
	// DefaultDepth 默认 KeepLast 深度
	DefaultDepth = 1

	// DefaultMaxBlockingTime 默认可靠投递最长阻塞时间
	DefaultMaxBlockingTime = 100 * time.Millisecond
)

// Default 返回默认的完整策略
//
//	History:        KeepLast{1}
//	Reliability:    Reliable{100ms}
//	Durability:     Volatile
//	Deadline:       Infinite
//	Lifespan:       Infinite
//	Liveliness:     Automatic{Infinite}
//	ResourceLimits: 不限
func Default() Profile {
	return Profile{
		History:        KeepLast(DefaultDepth),
		Reliability:    Reliable(DefaultMaxBlockingTime),
		Durability:     DurabilityVolatile,
		Deadline:       Deadline{Period: Infinite},
		Lifespan:       Lifespan{Duration: Infinite},
		Liveliness:     Liveliness{Kind: LivelinessAutomatic, LeaseDuration: Infinite},
		ResourceLimits: ResourceLimits{},
	}
}

// ============================================================================
//                              Policies - 部分指定的策略集
// ============================================================================

// Policies 部分指定的策略集
//
// nil 字段表示未指定，解析时取默认值或被覆盖的底层策略值。
// Policies 通过 Builder 构建，构建后不应再修改。
type Policies struct {
	History        *History
	Reliability    *Reliability
	Durability     *Durability
	Deadline       *Deadline
	Lifespan       *Lifespan
	Liveliness     *Liveliness
	ResourceLimits *ResourceLimits
}

// Merge 返回以 p 为底、override 中已指定的种类覆盖后的新策略集
//
// 任一方为 nil 时返回另一方的副本。结果不与 p 或 override 共享任何策略值。
func (p *Policies) Merge(override *Policies) *Policies {
	out := &Policies{}
	if p != nil {
		out.History = p.History
		out.Reliability = p.Reliability
		out.Durability = p.Durability
		out.Deadline = p.Deadline
		out.Lifespan = p.Lifespan
		out.Liveliness = p.Liveliness
		out.ResourceLimits = p.ResourceLimits
	}
	if override != nil {
		out.History = pick(out.History, override.History)
		out.Reliability = pick(out.Reliability, override.Reliability)
		out.Durability = pick(out.Durability, override.Durability)
		out.Deadline = pick(out.Deadline, override.Deadline)
		out.Lifespan = pick(out.Lifespan, override.Lifespan)
		out.Liveliness = pick(out.Liveliness, override.Liveliness)
		out.ResourceLimits = pick(out.ResourceLimits, override.ResourceLimits)
	}

	out.History = clonePolicy(out.History)
	out.Reliability = clonePolicy(out.Reliability)
	out.Durability = clonePolicy(out.Durability)
	out.Deadline = clonePolicy(out.Deadline)
	out.Lifespan = clonePolicy(out.Lifespan)
	out.Liveliness = clonePolicy(out.Liveliness)
	out.ResourceLimits = clonePolicy(out.ResourceLimits)
	return out
}

func pick[T any](base, override *T) *T {
	if override != nil {
		return override
	}
	return base
}

func clonePolicy[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Complete 解析为完整策略，未指定的种类取默认值
func (p *Policies) Complete() Profile {
	out := Default()
	if p == nil {
		return out
	}
	if p.History != nil {
		out.History = *p.History
	}
	if p.Reliability != nil {
		out.Reliability = *p.Reliability
	}
	if p.Durability != nil {
		out.Durability = *p.Durability
	}
	if p.Deadline != nil {
		out.Deadline = *p.Deadline
	}
	if p.Lifespan != nil {
		out.Lifespan = *p.Lifespan
	}
	if p.Liveliness != nil {
		out.Liveliness = *p.Liveliness
	}
	if p.ResourceLimits != nil {
		out.ResourceLimits = *p.ResourceLimits
	}
	return out
}

// Validate 校验已指定的策略
func (p *Policies) Validate() error {
	if p == nil {
		return nil
	}
	return p.Complete().Validate()
}

// ============================================================================
//                              Profile - 完整策略
// ============================================================================

// Profile 完整的策略集，所有种类都有具体值
//
// Profile 是值类型，端点持有自己的副本。
type Profile struct {
	History        History
	Reliability    Reliability
	Durability     Durability
	Deadline       Deadline
	Lifespan       Lifespan
	Liveliness     Liveliness
	ResourceLimits ResourceLimits
}

// Validate 校验策略集，返回所有不合法的种类
func (p Profile) Validate() error {
	var errs error

	switch p.History.Kind {
	case HistoryKeepLast:
		if p.History.Depth < 1 {
			errs = multierr.Append(errs, invalid(KindHistory, "keep_last depth must be >= 1, got %d", p.History.Depth))
		} else if !p.ResourceLimits.Unlimited() && p.History.Depth > p.ResourceLimits.MaxSamples {
			errs = multierr.Append(errs, invalid(KindHistory, "keep_last depth %d exceeds max_samples %d",
				p.History.Depth, p.ResourceLimits.MaxSamples))
		}
	case HistoryKeepAll:
	default:
		errs = multierr.Append(errs, invalid(KindHistory, "unknown kind %d", p.History.Kind))
	}

	switch p.Reliability.Kind {
	case ReliabilityBestEffort, ReliabilityReliable:
		if p.Reliability.MaxBlockingTime < 0 {
			errs = multierr.Append(errs, invalid(KindReliability, "max_blocking_time must be >= 0, got %s",
				p.Reliability.MaxBlockingTime))
		}
	default:
		errs = multierr.Append(errs, invalid(KindReliability, "unknown kind %d", p.Reliability.Kind))
	}

	if p.Durability < DurabilityVolatile || p.Durability > DurabilityPersistent {
		errs = multierr.Append(errs, invalid(KindDurability, "unknown kind %d", p.Durability))
	}
	if p.Deadline.Period <= 0 {
		errs = multierr.Append(errs, invalid(KindDeadline, "period must be > 0, got %s", p.Deadline.Period))
	}
	if p.Lifespan.Duration <= 0 {
		errs = multierr.Append(errs, invalid(KindLifespan, "duration must be > 0, got %s", p.Lifespan.Duration))
	}

	if p.Liveliness.Kind < LivelinessAutomatic || p.Liveliness.Kind > LivelinessManualByParticipant {
		errs = multierr.Append(errs, invalid(KindLiveliness, "unknown kind %d", p.Liveliness.Kind))
	}
	if p.Liveliness.LeaseDuration <= 0 {
		errs = multierr.Append(errs, invalid(KindLiveliness, "lease_duration must be > 0, got %s",
			p.Liveliness.LeaseDuration))
	}

	if p.ResourceLimits.MaxSamples < 0 {
		errs = multierr.Append(errs, invalid(KindResourceLimits, "max_samples must be >= 0, got %d",
			p.ResourceLimits.MaxSamples))
	}
	return errs
}

// Policies 返回完整指定的 Policies
func (p Profile) Policies() *Policies {
	return &Policies{
		History:        &p.History,
		Reliability:    &p.Reliability,
		Durability:     &p.Durability,
		Deadline:       &p.Deadline,
		Lifespan:       &p.Lifespan,
		Liveliness:     &p.Liveliness,
		ResourceLimits: &p.ResourceLimits,
	}
}

// String 返回日志用表示
func (p Profile) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "history=%s reliability=%s durability=%s", p.History, p.Reliability, p.Durability)
	fmt.Fprintf(&b, " deadline=%s lifespan=%s liveliness=%s", p.Deadline, p.Lifespan, p.Liveliness)
	fmt.Fprintf(&b, " resource_limits=%s", p.ResourceLimits)
	return b.String()
}

// IsReliable 报告是否为可靠投递
func (p Profile) IsReliable() bool {
	return p.Reliability.Kind == ReliabilityReliable
}

// ============================================================================
//                              Builder
// ============================================================================

// Builder 策略集构建器
//
// 使用示例：
//
//	p, err := qos.NewBuilder().
//	    History(qos.KeepLast(10)).
//	    Reliability(qos.Reliable(100 * time.Millisecond)).
//	    Durability(qos.DurabilityTransientLocal).
//	    Build()
type Builder struct {
	p Policies
}

// NewBuilder 创建空的构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// History 设置历史策略
func (b *Builder) History(h History) *Builder {
	b.p.History = &h
	return b
}

// Reliability 设置可靠性策略
func (b *Builder) Reliability(r Reliability) *Builder {
	b.p.Reliability = &r
	return b
}

// Durability 设置持久性策略
func (b *Builder) Durability(d Durability) *Builder {
	b.p.Durability = &d
	return b
}

// Deadline 设置截止期
func (b *Builder) Deadline(period time.Duration) *Builder {
	b.p.Deadline = &Deadline{Period: period}
	return b
}

// Lifespan 设置生命周期
func (b *Builder) Lifespan(d time.Duration) *Builder {
	b.p.Lifespan = &Lifespan{Duration: d}
	return b
}

// Liveliness 设置存活性策略
func (b *Builder) Liveliness(kind LivelinessKind, lease time.Duration) *Builder {
	b.p.Liveliness = &Liveliness{Kind: kind, LeaseDuration: lease}
	return b
}

// ResourceLimits 设置资源限制
func (b *Builder) ResourceLimits(maxSamples int) *Builder {
	b.p.ResourceLimits = &ResourceLimits{MaxSamples: maxSamples}
	return b
}

// Build 校验并返回策略集
func (b *Builder) Build() (*Policies, error) {
	out := b.p
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// MustBuild 同 Build，校验失败时 panic
func (b *Builder) MustBuild() *Policies {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
