package participant

import (
	"errors"

	"github.com/dep2p/go-dds/internal/core/metrics"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// Option Participant 构造选项类型
type Option func(*Participant) error

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(p *Participant) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		p.cfg = cfg
		return nil
	}
}

// WithEventBus 设置状态事件总线，未设置时使用私有总线
func WithEventBus(eb pkgif.EventBus) Option {
	return func(p *Participant) error {
		p.bus = eb
		return nil
	}
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Participant) error {
		p.metrics = m
		return nil
	}
}

// WithSampleStore 设置 Persistent 样本存储
func WithSampleStore(s pkgif.SampleStore) Option {
	return func(p *Participant) error {
		p.store = s
		return nil
	}
}
