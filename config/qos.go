package config

import (
	"fmt"

	"github.com/dep2p/go-dds/pkg/qos"
)

// QoSConfig 可 JSON 配置的策略集
//
// 所有字段可选，未出现的种类在解析时取默认值。
//
// 示例 JSON:
//
//	{
//	  "history": "keep_last",
//	  "depth": 10,
//	  "reliability": "reliable",
//	  "max_blocking_time": "100ms",
//	  "durability": "transient_local",
//	  "deadline": "1s",
//	  "liveliness": "automatic",
//	  "lease_duration": "infinite"
//	}
type QoSConfig struct {
	// History 历史策略: keep_last/keep_all
	History string `json:"history,omitempty"`

	// Depth KeepLast 深度；只设置 Depth 时视为 keep_last
	Depth int `json:"depth,omitempty"`

	// Reliability 可靠性: reliable/best_effort
	Reliability string `json:"reliability,omitempty"`

	// MaxBlockingTime 可靠投递最长阻塞时间
	MaxBlockingTime *Duration `json:"max_blocking_time,omitempty"`

	// Durability 持久性: volatile/transient_local/transient/persistent
	Durability string `json:"durability,omitempty"`

	// Deadline 截止期
	Deadline *Duration `json:"deadline,omitempty"`

	// Lifespan 样本生命周期
	Lifespan *Duration `json:"lifespan,omitempty"`

	// Liveliness 存活性: automatic/manual_by_topic/manual_by_participant
	Liveliness string `json:"liveliness,omitempty"`

	// LeaseDuration 存活租约
	LeaseDuration *Duration `json:"lease_duration,omitempty"`

	// MaxSamples 资源限制，0 表示不限
	MaxSamples *int `json:"max_samples,omitempty"`
}

// IsZero 是否未指定任何策略
func (c QoSConfig) IsZero() bool {
	return c.History == "" && c.Depth == 0 && c.Reliability == "" && c.MaxBlockingTime == nil &&
		c.Durability == "" && c.Deadline == nil && c.Lifespan == nil && c.Liveliness == "" &&
		c.LeaseDuration == nil && c.MaxSamples == nil
}

// Validate 验证策略配置
func (c QoSConfig) Validate() error {
	_, err := c.ToPolicies()
	return err
}

// ToPolicies 转换为策略集
//
// 返回的策略集只包含配置中出现的种类。
func (c QoSConfig) ToPolicies() (*qos.Policies, error) {
	b := qos.NewBuilder()

	switch c.History {
	case "":
		if c.Depth != 0 {
			b.History(qos.KeepLast(c.Depth))
		}
	case "keep_last":
		depth := c.Depth
		if depth == 0 {
			depth = qos.DefaultDepth
		}
		b.History(qos.KeepLast(depth))
	case "keep_all":
		b.History(qos.KeepAll())
	default:
		return nil, fmt.Errorf("qos: unknown history %q", c.History)
	}

	switch c.Reliability {
	case "":
		if c.MaxBlockingTime != nil {
			b.Reliability(qos.Reliable(c.MaxBlockingTime.Duration()))
		}
	case "reliable":
		blocking := qos.DefaultMaxBlockingTime
		if c.MaxBlockingTime != nil {
			blocking = c.MaxBlockingTime.Duration()
		}
		b.Reliability(qos.Reliable(blocking))
	case "best_effort":
		b.Reliability(qos.BestEffort())
	default:
		return nil, fmt.Errorf("qos: unknown reliability %q", c.Reliability)
	}

	if c.Durability != "" {
		d, err := parseDurability(c.Durability)
		if err != nil {
			return nil, err
		}
		b.Durability(d)
	}
	if c.Deadline != nil {
		b.Deadline(c.Deadline.Duration())
	}
	if c.Lifespan != nil {
		b.Lifespan(c.Lifespan.Duration())
	}

	if c.Liveliness != "" || c.LeaseDuration != nil {
		kind := qos.LivelinessAutomatic
		if c.Liveliness != "" {
			k, err := parseLiveliness(c.Liveliness)
			if err != nil {
				return nil, err
			}
			kind = k
		}
		lease := qos.Infinite
		if c.LeaseDuration != nil {
			lease = c.LeaseDuration.Duration()
		}
		b.Liveliness(kind, lease)
	}

	if c.MaxSamples != nil {
		b.ResourceLimits(*c.MaxSamples)
	}

	p, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("qos: %w", err)
	}
	return p, nil
}

// QoSConfigFromProfile 把完整策略转换为配置表示
func QoSConfigFromProfile(p qos.Profile) QoSConfig {
	out := QoSConfig{
		History:         p.History.Kind.String(),
		Reliability:     p.Reliability.Kind.String(),
		MaxBlockingTime: durationPtr(p.Reliability.MaxBlockingTime),
		Durability:      p.Durability.String(),
		Deadline:        durationPtr(p.Deadline.Period),
		Lifespan:        durationPtr(p.Lifespan.Duration),
		Liveliness:      p.Liveliness.Kind.String(),
		LeaseDuration:   durationPtr(p.Liveliness.LeaseDuration),
	}
	if p.History.Kind == qos.HistoryKeepLast {
		out.Depth = p.History.Depth
	}
	if !p.ResourceLimits.Unlimited() {
		n := p.ResourceLimits.MaxSamples
		out.MaxSamples = &n
	}
	return out
}

func (c QoSConfig) clone() QoSConfig {
	out := c
	if c.MaxSamples != nil {
		n := *c.MaxSamples
		out.MaxSamples = &n
	}
	return out
}

func parseDurability(s string) (qos.Durability, error) {
	for _, d := range []qos.Durability{
		qos.DurabilityVolatile,
		qos.DurabilityTransientLocal,
		qos.DurabilityTransient,
		qos.DurabilityPersistent,
	} {
		if d.String() == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("qos: unknown durability %q", s)
}

func parseLiveliness(s string) (qos.LivelinessKind, error) {
	for _, k := range []qos.LivelinessKind{
		qos.LivelinessAutomatic,
		qos.LivelinessManualByTopic,
		qos.LivelinessManualByParticipant,
	} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("qos: unknown liveliness %q", s)
}
