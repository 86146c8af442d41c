package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-dds/internal/core/history"
	"github.com/dep2p/go-dds/internal/core/matching"
	"github.com/dep2p/go-dds/internal/core/metrics"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/dispatch")

// ============================================================================
//                              接口定义
// ============================================================================

// Sink 读端的投递入口
//
// 本地读端写入自己的历史缓冲区；远端代理读端把样本交给传输层。
type Sink interface {
	// GUID 读端标识
	GUID() types.GUID

	// Offer 非阻塞写入
	Offer(s *types.Sample) error

	// Deliver 写入，缓冲区满时最多阻塞 maxBlocking
	Deliver(ctx context.Context, s *types.Sample, maxBlocking time.Duration) error
}

// FailureHandler 对端投递失败回调
type FailureHandler func(writer types.GUID, err *DeliveryError)

// ============================================================================
//                              配置
// ============================================================================

// Config 投递配置
type Config struct {
	// MaxConcurrentDeliveries 单次发布中并发的可靠投递数上限
	// 默认: 16
	MaxConcurrentDeliveries int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxConcurrentDeliveries: 16,
	}
}

// ============================================================================
//                              Report
// ============================================================================

// Report 一次发布的投递结果
type Report struct {
	// Sample 样本标识
	Sample types.SampleID

	// Matched 投递时的匹配对端数
	Matched int

	// Delivered 成功写入的对端数
	Delivered int

	// Dropped BestEffort 静默丢弃数
	Dropped int

	// Failures 可靠投递失败，每个对端一条
	Failures []*DeliveryError
}

// Err 返回合并的对端失败，全部成功时返回 nil
func (r *Report) Err() error {
	if r == nil {
		return nil
	}
	var errs error
	for _, f := range r.Failures {
		errs = multierr.Append(errs, f)
	}
	return errs
}

// ============================================================================
//                              Dispatcher
// ============================================================================

// Dispatcher 样本投递器
type Dispatcher struct {
	engine  *matching.Engine
	metrics *metrics.Collector
	cfg     Config

	mu    sync.RWMutex
	sinks map[types.GUID]Sink

	onFailure FailureHandler

	// 统计
	stats struct {
		published atomic.Int64
		delivered atomic.Int64
		dropped   atomic.Int64
		failed    atomic.Int64
		timeouts  atomic.Int64
	}
}

// New 创建投递器
func New(engine *matching.Engine, m *metrics.Collector, cfg Config) *Dispatcher {
	if cfg.MaxConcurrentDeliveries <= 0 {
		cfg.MaxConcurrentDeliveries = DefaultConfig().MaxConcurrentDeliveries
	}
	return &Dispatcher{
		engine:  engine,
		metrics: m,
		cfg:     cfg,
		sinks:   make(map[types.GUID]Sink),
	}
}

// OnFailure 设置对端投递失败回调
func (d *Dispatcher) OnFailure(fn FailureHandler) {
	d.mu.Lock()
	d.onFailure = fn
	d.mu.Unlock()
}

// Register 注册读端投递入口
func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	d.sinks[s.GUID()] = s
	d.mu.Unlock()
}

// Unregister 注销读端投递入口
func (d *Dispatcher) Unregister(id types.GUID) {
	d.mu.Lock()
	delete(d.sinks, id)
	d.mu.Unlock()
}

// Publish 把样本投递给写端当前匹配的全部读端
//
// 调用方应已把样本写入写端自己的历史缓冲区；投递结果通过 Report 与
// 失败回调带外报告。
func (d *Dispatcher) Publish(ctx context.Context, writer types.GUID, s *types.Sample) *Report {
	d.stats.published.Add(1)
	return d.deliver(ctx, writer, d.engine.ReadersOf(writer), []*types.Sample{s})
}

// Replay 把写端保留的历史投递给新匹配的读端
//
// 仅当生效持久性不低于 TransientLocal 时才回放。
func (d *Dispatcher) Replay(ctx context.Context, rec matching.Record, samples []*types.Sample) *Report {
	if rec.Effective.Durability < qos.DurabilityTransientLocal || len(samples) == 0 {
		return &Report{}
	}
	logger.Debug("回放历史",
		"topic", rec.Topic.String(),
		"writer", rec.Writer.ShortString(),
		"reader", rec.Reader.ShortString(),
		"samples", len(samples))
	return d.deliver(ctx, rec.Writer, []matching.Record{rec}, samples)
}

// Stats 返回投递统计
func (d *Dispatcher) Stats() Stats {
	return Stats{
		TotalPublished: d.stats.published.Load(),
		TotalDelivered: d.stats.delivered.Load(),
		TotalDropped:   d.stats.dropped.Load(),
		TotalFailed:    d.stats.failed.Load(),
		TotalTimeouts:  d.stats.timeouts.Load(),
	}
}

// Stats 投递统计
type Stats struct {
	TotalPublished int64
	TotalDelivered int64
	TotalDropped   int64
	TotalFailed    int64
	TotalTimeouts  int64
}

// ============================================================================
//                              内部方法
// ============================================================================

type target struct {
	sink Sink
	rec  matching.Record
}

// deliver 按匹配记录把样本依次投递给各对端
func (d *Dispatcher) deliver(ctx context.Context, writer types.GUID, recs []matching.Record, samples []*types.Sample) *Report {
	report := &Report{Sample: samples[len(samples)-1].ID(), Matched: len(recs)}
	if len(recs) == 0 {
		return report
	}
	topic := recs[0].Topic.String()

	var (
		reliable   []target
		bestEffort []target
	)
	d.mu.RLock()
	onFailure := d.onFailure
	for _, rec := range recs {
		sink, ok := d.sinks[rec.Reader]
		if !ok {
			// 匹配记录与注销之间的窗口，读端即将消失
			continue
		}
		if rec.Effective.IsReliable() {
			reliable = append(reliable, target{sink: sink, rec: rec})
		} else {
			bestEffort = append(bestEffort, target{sink: sink, rec: rec})
		}
	}
	d.mu.RUnlock()

	// BestEffort：非阻塞，失败静默丢弃
	for _, t := range bestEffort {
		for _, s := range samples {
			if err := t.sink.Offer(s); err != nil {
				report.Dropped++
				d.stats.dropped.Add(1)
				d.metrics.Dropped(topic, metrics.ReasonBestEffort, 1)
				logger.Debug("尽力而为投递丢弃",
					"topic", topic,
					"reader", t.rec.Reader.ShortString(),
					"sample", s.ID().String(),
					"error", err)
				continue
			}
			report.Delivered++
			d.stats.delivered.Add(1)
			d.metrics.Delivered(topic)
		}
	}

	// Reliable：每个对端独立有界阻塞，互不影响
	var mu sync.Mutex
	deliverTo := func(t target) {
		for _, s := range samples {
			err := t.sink.Deliver(ctx, s, t.rec.Effective.Reliability.MaxBlockingTime)
			mu.Lock()
			if err == nil {
				report.Delivered++
				mu.Unlock()
				d.stats.delivered.Add(1)
				d.metrics.Delivered(topic)
				continue
			}
			derr := classify(t.rec.Reader, s, err)
			report.Failures = append(report.Failures, derr)
			mu.Unlock()
			d.fail(topic, writer, derr, onFailure)
			if derr.Kind == ErrPeerGone || derr.Kind == ErrCanceled {
				return
			}
		}
	}

	switch len(reliable) {
	case 0:
	case 1:
		deliverTo(reliable[0])
	default:
		var g errgroup.Group
		g.SetLimit(d.cfg.MaxConcurrentDeliveries)
		for _, t := range reliable {
			t := t
			g.Go(func() error {
				deliverTo(t)
				return nil
			})
		}
		_ = g.Wait()
	}

	return report
}

func (d *Dispatcher) fail(topic string, writer types.GUID, err *DeliveryError, onFailure FailureHandler) {
	d.stats.failed.Add(1)
	if err.Kind == ErrBlockedTimeout {
		d.stats.timeouts.Add(1)
		d.metrics.Timeout(topic)
	} else {
		d.metrics.Dropped(topic, metrics.ReasonTransport, 1)
	}

	logger.Warn("可靠投递失败",
		"topic", topic,
		"writer", writer.ShortString(),
		"reader", err.Peer.ShortString(),
		"sample", err.Sample.String(),
		"error", err.Cause)

	if onFailure != nil {
		onFailure(writer, err)
	}
}

// classify 把底层错误归类为 DeliveryError
func classify(peer types.GUID, s *types.Sample, err error) *DeliveryError {
	derr := &DeliveryError{Peer: peer, Sample: s.ID(), Cause: err}
	switch {
	case errors.Is(err, history.ErrBlockingTimeout), errors.Is(err, history.ErrBufferFull):
		derr.Kind = ErrBlockedTimeout
	case errors.Is(err, history.ErrClosed), errors.Is(err, ErrPeerGone):
		derr.Kind = ErrPeerGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		derr.Kind = ErrCanceled
	case errors.Is(err, ErrBlockedTimeout):
		derr.Kind = ErrBlockedTimeout
	default:
		derr.Kind = ErrTransport
	}
	return derr
}
