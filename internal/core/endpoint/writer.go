package endpoint

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/history"
	"github.com/dep2p/go-dds/internal/core/liveliness"
	"github.com/dep2p/go-dds/internal/core/metrics"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/endpoint")

// ============================================================================
//                              Writer
// ============================================================================

// WriterConfig 写端配置
type WriterConfig struct {
	// ID 写端 GUID
	ID types.GUID

	// Topic 主题
	Topic types.TopicName

	// QoS 写端提供的完整策略
	QoS qos.Profile

	// Dispatcher 投递器
	Dispatcher *dispatch.Dispatcher

	// Liveliness 监测句柄，可为 nil
	Liveliness *liveliness.Writer

	// Store Persistent 样本存储，可为 nil
	Store pkgif.SampleStore

	// Metrics 指标，可为 nil
	Metrics *metrics.Collector

	// Clock 时钟，默认系统时钟
	Clock clock.Clock
}

// Writer 本地写端
type Writer struct {
	id    types.GUID
	topic types.TopicName
	qos   qos.Profile
	clock clock.Clock

	dispatcher *dispatch.Dispatcher
	live       *liveliness.Writer
	store      pkgif.SampleStore
	metrics    *metrics.Collector

	// writeMu 保证序列号与历史中的到达顺序一致
	writeMu sync.Mutex
	seq     types.SequenceNumber
	// history 保留的样本，Volatile 写端为 nil
	history *history.Buffer

	closed atomic.Bool
}

// NewWriter 创建写端
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.ID.IsZero() || cfg.Dispatcher == nil {
		return nil, fmt.Errorf("%w: writer needs id and dispatcher", ErrInvalidConfig)
	}
	if err := cfg.QoS.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	w := &Writer{
		id:         cfg.ID,
		topic:      cfg.Topic,
		qos:        cfg.QoS,
		clock:      cfg.Clock,
		dispatcher: cfg.Dispatcher,
		live:       cfg.Liveliness,
		metrics:    cfg.Metrics,
	}
	if cfg.QoS.Durability >= qos.DurabilityTransientLocal {
		hc := history.ConfigFromProfile(cfg.QoS)
		hc.Overwrite = true
		hc.Clock = cfg.Clock
		w.history = history.New(hc)
	}
	if cfg.QoS.Durability == qos.DurabilityPersistent {
		w.store = cfg.Store
	}
	return w, nil
}

// GUID 返回写端标识
func (w *Writer) GUID() types.GUID { return w.id }

// Topic 返回主题
func (w *Writer) Topic() types.TopicName { return w.topic }

// Role 返回角色
func (w *Writer) Role() types.Role { return types.RoleWriter }

// QoS 返回写端策略
func (w *Writer) QoS() qos.Profile { return w.qos }

// Write 写入一个样本并投递给当前匹配的读端
//
// 返回 nil 表示样本已进入本地历史；各对端的投递结果在 Report 中。
func (w *Writer) Write(ctx context.Context, payload []byte) (*types.Sample, *dispatch.Report, error) {
	if w.closed.Load() {
		return nil, nil, ErrDestroyed
	}

	now := w.clock.Now()
	lifespan := w.qos.Lifespan.Duration
	if qos.IsInfinite(lifespan) {
		lifespan = 0
	}

	w.writeMu.Lock()
	w.seq++
	sample := types.NewSample(w.id, w.topic, w.seq, now, lifespan, payload)
	if w.history != nil {
		if err := w.history.Write(sample); err != nil {
			w.writeMu.Unlock()
			return nil, nil, err
		}
	}
	w.writeMu.Unlock()

	if w.store != nil {
		if err := w.store.Append(sample); err != nil {
			logger.Warn("持久化样本失败",
				"topic", w.topic.String(),
				"sample", sample.ID().String(),
				"error", err)
		}
	}
	if w.live != nil {
		w.live.Wrote(now)
	}
	w.metrics.Published(w.topic.String())

	return sample, w.dispatcher.Publish(ctx, w.id, sample), nil
}

// Retained 返回保留的历史样本，按写入顺序排列
func (w *Writer) Retained() []*types.Sample {
	if w.history == nil {
		return nil
	}
	return w.history.Snapshot()
}

// AssertLiveliness 显式声明存活
func (w *Writer) AssertLiveliness() error {
	if w.closed.Load() {
		return ErrDestroyed
	}
	if w.live != nil {
		w.live.Assert(w.clock.Now())
	}
	return nil
}

// Status 返回状态快照
func (w *Writer) Status() types.EndpointStatus {
	if w.live == nil {
		return types.EndpointStatus{Alive: !w.closed.Load()}
	}
	return w.live.Status()
}

// Seq 返回最近分配的序列号
func (w *Writer) Seq() types.SequenceNumber {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.seq
}

// Close 销毁写端，返回保留的历史
//
// 重复调用返回 ErrDestroyed。
func (w *Writer) Close() ([]*types.Sample, error) {
	if w.closed.Swap(true) {
		return nil, ErrDestroyed
	}
	retained := w.Retained()
	if w.history != nil {
		w.history.Close()
	}
	logger.Debug("写端已销毁", "writer", w.id.ShortString(), "topic", w.topic.String(),
		"retained", len(retained))
	return retained, nil
}

// Closed 报告写端是否已销毁
func (w *Writer) Closed() bool {
	return w.closed.Load()
}
