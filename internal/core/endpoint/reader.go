package endpoint

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/history"
	"github.com/dep2p/go-dds/internal/core/liveliness"
	"github.com/dep2p/go-dds/internal/core/metrics"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// DefaultDedupSize 默认去重缓存大小
const DefaultDedupSize = 1024

// ============================================================================
//                              Reader
// ============================================================================

// ReaderConfig 读端配置
type ReaderConfig struct {
	// ID 读端 GUID
	ID types.GUID

	// Topic 主题
	Topic types.TopicName

	// QoS 读端请求的完整策略
	QoS qos.Profile

	// DedupSize 记住的 (写端, 序列号) 数量，默认 DefaultDedupSize
	DedupSize int

	// Liveliness 监测句柄，可为 nil
	Liveliness *liveliness.Reader

	// Metrics 指标，可为 nil
	Metrics *metrics.Collector

	// Emit 状态事件出口，可为 nil
	Emit func(types.StatusEvent)

	// Clock 时钟，默认系统时钟
	Clock clock.Clock
}

// Reader 本地读端
type Reader struct {
	id    types.GUID
	topic types.TopicName
	qos   qos.Profile
	clock clock.Clock

	buf   *history.Buffer
	seen  *lru.Cache[types.SampleID, struct{}]
	live  *liveliness.Reader
	emit  func(types.StatusEvent)
	ready *Readiness

	metrics *metrics.Collector

	// wake 缓冲区变为非空时置位，唤醒 Next
	wake chan struct{}
	done chan struct{}

	closed atomic.Bool
	lost   atomic.Int64
}

var _ dispatch.Sink = (*Reader)(nil)

// NewReader 创建读端
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.ID.IsZero() {
		return nil, fmt.Errorf("%w: reader needs id", ErrInvalidConfig)
	}
	if err := cfg.QoS.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.DedupSize <= 0 {
		cfg.DedupSize = DefaultDedupSize
	}
	if cfg.Emit == nil {
		cfg.Emit = func(types.StatusEvent) {}
	}
	seen, err := lru.New[types.SampleID, struct{}](cfg.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	hc := history.ConfigFromProfile(cfg.QoS)
	hc.Clock = cfg.Clock

	r := &Reader{
		id:      cfg.ID,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		clock:   cfg.Clock,
		buf:     history.New(hc),
		seen:    seen,
		live:    cfg.Liveliness,
		emit:    cfg.Emit,
		ready:   newReadiness(),
		metrics: cfg.Metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	r.buf.OnReady(r.onReady)
	r.buf.OnLost(r.onLost)
	return r, nil
}

// GUID 返回读端标识
func (r *Reader) GUID() types.GUID { return r.id }

// Topic 返回主题
func (r *Reader) Topic() types.TopicName { return r.topic }

// Role 返回角色
func (r *Reader) Role() types.Role { return types.RoleReader }

// QoS 返回读端策略
func (r *Reader) QoS() qos.Profile { return r.qos }

// Readiness 返回就绪通知注册表
func (r *Reader) Readiness() *Readiness { return r.ready }

// ============================================================================
//                              投递入口
// ============================================================================

// Offer 非阻塞写入，已见过的样本被静默忽略
func (r *Reader) Offer(s *types.Sample) error {
	if r.closed.Load() {
		return dispatch.ErrPeerGone
	}
	if r.seen.Contains(s.ID()) {
		return nil
	}
	if err := r.buf.Write(s); err != nil {
		return err
	}
	r.accepted(s)
	return nil
}

// Deliver 写入，缓冲区满时最多阻塞 maxBlocking
func (r *Reader) Deliver(ctx context.Context, s *types.Sample, maxBlocking time.Duration) error {
	if r.closed.Load() {
		return dispatch.ErrPeerGone
	}
	if r.seen.Contains(s.ID()) {
		return nil
	}
	if err := r.buf.WriteWait(ctx, s, maxBlocking); err != nil {
		return err
	}
	r.accepted(s)
	return nil
}

func (r *Reader) accepted(s *types.Sample) {
	r.seen.Add(s.ID(), struct{}{})
	if r.live != nil {
		r.live.Received(r.clock.Now())
	}
}

// ============================================================================
//                              消费
// ============================================================================

// Take 取出最旧的样本，缓冲区为空时返回 (nil, nil)
func (r *Reader) Take() (*types.Sample, error) {
	if r.closed.Load() {
		return nil, ErrDestroyed
	}
	return r.buf.Take(nil), nil
}

// Next 取出最旧的样本，缓冲区为空时挂起
//
// ctx 结束返回 ctx.Err()，读端销毁返回 ErrDestroyed。
// 多个消费者并发调用时，每个样本只交付给其中一个。
func (r *Reader) Next(ctx context.Context) (*types.Sample, error) {
	for {
		if r.closed.Load() {
			return nil, ErrDestroyed
		}
		if s := r.buf.Take(nil); s != nil {
			if r.buf.Len() > 0 {
				r.signal()
			}
			return s, nil
		}

		select {
		case <-r.wake:
		case <-r.done:
			return nil, ErrDestroyed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Requeue 将取出后未能交付给消费者的样本放回队首
func (r *Reader) Requeue(s *types.Sample) error {
	if r.closed.Load() {
		return ErrDestroyed
	}
	if err := r.buf.Requeue(s); err != nil {
		return ErrDestroyed
	}
	r.signal()
	return nil
}

// Len 返回缓冲区中未过期的样本数
func (r *Reader) Len() int {
	return r.buf.Len()
}

// Status 返回状态快照
func (r *Reader) Status() types.EndpointStatus {
	if r.live == nil {
		return types.EndpointStatus{}
	}
	return r.live.Status()
}

// Stats 返回缓冲区统计
func (r *Reader) Stats() history.Stats {
	return r.buf.Stats()
}

// Close 销毁读端
//
// 唤醒所有阻塞在 Next 上的消费者与阻塞在投递上的写端。重复调用返回 ErrDestroyed。
func (r *Reader) Close() error {
	if r.closed.Swap(true) {
		return ErrDestroyed
	}
	close(r.done)
	r.buf.Close()
	r.ready.clear()
	logger.Debug("读端已销毁", "reader", r.id.ShortString(), "topic", r.topic.String())
	return nil
}

// Closed 报告读端是否已销毁
func (r *Reader) Closed() bool {
	return r.closed.Load()
}

func (r *Reader) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reader) onReady() {
	r.signal()
	r.ready.notify()
}

func (r *Reader) onLost(reason history.LossReason, n int) {
	topic := r.topic.String()
	switch reason {
	case history.LossEvicted:
		r.metrics.Dropped(topic, metrics.ReasonEvicted, n)
	case history.LossExpired:
		r.metrics.Dropped(topic, metrics.ReasonExpired, n)
	}
	total := r.lost.Add(int64(n))
	logger.Debug("样本未被读取即丢失", "reader", r.id.ShortString(), "topic", topic,
		"reason", reason.String(), "count", n)
	r.emit(types.StatusEvent{
		Kind:       types.StatusSampleLost,
		Endpoint:   r.id,
		Topic:      r.topic,
		TotalCount: int(total),
		Time:       r.clock.Now(),
	})
}
