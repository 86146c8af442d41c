package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 指标命名空间
const namespace = "dds"

// 丢弃原因标签
const (
	// ReasonBestEffort 尽力而为投递失败
	ReasonBestEffort = "best_effort"
	// ReasonEvicted KeepLast 淘汰
	ReasonEvicted = "evicted"
	// ReasonExpired 生命周期过期
	ReasonExpired = "expired"
	// ReasonTransport 传输失败
	ReasonTransport = "transport"
)

// Collector 指标收集器
type Collector struct {
	registry prometheus.Gatherer

	published    *prometheus.CounterVec
	delivered    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	matches      *prometheus.GaugeVec
	statusEvents *prometheus.CounterVec
}

// New 在 reg 上注册并返回收集器
//
// reg 为 nil 时使用私有注册表，避免多个 Context 在同一进程中重复注册。
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		published: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_published_total",
			Help:      "Samples accepted into a writer history.",
		}, []string{"topic"}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_delivered_total",
			Help:      "Samples written into a matched reader history.",
		}, []string{"topic"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_dropped_total",
			Help:      "Samples dropped before being read.",
		}, []string{"topic", "reason"}),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_timeouts_total",
			Help:      "Reliable deliveries that exceeded max blocking time.",
		}, []string{"topic"}),
		matches: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "matches",
			Help:      "Current writer/reader match records.",
		}, []string{"topic"}),
		statusEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_events_total",
			Help:      "Endpoint status events emitted.",
		}, []string{"kind"}),
	}
}

// Gatherer 返回底层注册表，供 promhttp 使用
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// Published 记录一次发布
func (c *Collector) Published(topic string) {
	if c == nil {
		return
	}
	c.published.WithLabelValues(topic).Inc()
}

// Delivered 记录一次成功投递
func (c *Collector) Delivered(topic string) {
	if c == nil {
		return
	}
	c.delivered.WithLabelValues(topic).Inc()
}

// Dropped 记录 n 个丢弃的样本
func (c *Collector) Dropped(topic, reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.dropped.WithLabelValues(topic, reason).Add(float64(n))
}

// Timeout 记录一次可靠投递超时
func (c *Collector) Timeout(topic string) {
	if c == nil {
		return
	}
	c.timeouts.WithLabelValues(topic).Inc()
}

// SetMatches 设置主题的当前匹配数
func (c *Collector) SetMatches(topic string, n int) {
	if c == nil {
		return
	}
	c.matches.WithLabelValues(topic).Set(float64(n))
}

// StatusEvent 记录一次状态事件
func (c *Collector) StatusEvent(kind string) {
	if c == nil {
		return
	}
	c.statusEvents.WithLabelValues(kind).Inc()
}
