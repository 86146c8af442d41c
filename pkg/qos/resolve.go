package qos

import (
	"go.uber.org/multierr"
)

// ============================================================================
//                              兼容性解析
// ============================================================================

// Resolution 一对写端/读端策略的解析结果
type Resolution struct {
	// Compatible 是否完全兼容
	Compatible bool

	// Effective 生效策略，每个种类取更保守的一方；仅 Compatible 时有意义
	Effective Profile

	// Reasons 每个不兼容种类一条，按 AllKinds 顺序排列
	Reasons []Incompatibility
}

// Err 返回合并后的不兼容错误，兼容时返回 nil
func (r Resolution) Err() error {
	var errs error
	for _, reason := range r.Reasons {
		errs = multierr.Append(errs, reason)
	}
	return errs
}

// Kinds 返回不兼容的策略种类名
func (r Resolution) Kinds() []string {
	out := make([]string, 0, len(r.Reasons))
	for _, reason := range r.Reasons {
		out = append(out, reason.Kind.String())
	}
	return out
}

// Resolve 比较提供方（写端）与请求方（读端）的策略
//
// 每个种类上提供方必须不弱于请求方：
//   - Reliability: Reliable 满足任意请求；BestEffort 只满足 BestEffort
//   - Durability: 提供方 >= 请求方
//   - History: KeepAll 总是满足；KeepLast 不满足 KeepAll；KeepLast 之间比较深度
//   - Deadline: 提供方周期 <= 请求方周期
//   - Liveliness: 提供方租约 <= 请求方租约，且种类 >= 请求方
//
// 每个失败的种类都会报告，不存在部分匹配。Resolve 是纯函数。
func Resolve(offered, requested Profile) Resolution {
	var reasons []Incompatibility
	fail := func(kind Kind, o, r string) {
		reasons = append(reasons, Incompatibility{Kind: kind, Offered: o, Requested: r})
	}

	if !offered.History.covers(requested.History) {
		fail(KindHistory, offered.History.String(), requested.History.String())
	}
	if offered.Reliability.Kind < requested.Reliability.Kind {
		fail(KindReliability, offered.Reliability.Kind.String(), requested.Reliability.Kind.String())
	}
	if offered.Durability < requested.Durability {
		fail(KindDurability, offered.Durability.String(), requested.Durability.String())
	}
	if offered.Deadline.Period > requested.Deadline.Period {
		fail(KindDeadline, offered.Deadline.String(), requested.Deadline.String())
	}
	if offered.Liveliness.Kind < requested.Liveliness.Kind ||
		offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration {
		fail(KindLiveliness, offered.Liveliness.String(), requested.Liveliness.String())
	}

	if len(reasons) > 0 {
		return Resolution{Reasons: reasons}
	}
	return Resolution{Compatible: true, Effective: effective(offered, requested)}
}

// effective 计算兼容对的生效策略
func effective(o, r Profile) Profile {
	// 兼容时请求方在 History/Durability/Deadline/Liveliness 上都不强于提供方
	e := Profile{
		History:    r.History,
		Durability: r.Durability,
		Deadline:   r.Deadline,
		Liveliness: r.Liveliness,
		Lifespan:   o.Lifespan,
	}

	if r.Reliability.Kind == ReliabilityBestEffort {
		e.Reliability = BestEffort()
	} else {
		e.Reliability = Reliable(o.Reliability.MaxBlockingTime)
	}

	if r.Lifespan.Duration < e.Lifespan.Duration {
		e.Lifespan = r.Lifespan
	}

	e.ResourceLimits = o.ResourceLimits
	switch {
	case e.ResourceLimits.Unlimited():
		e.ResourceLimits = r.ResourceLimits
	case !r.ResourceLimits.Unlimited() && r.ResourceLimits.MaxSamples < e.ResourceLimits.MaxSamples:
		e.ResourceLimits = r.ResourceLimits
	}
	return e
}
