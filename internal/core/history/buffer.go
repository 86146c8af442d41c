package history

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              配置
// ============================================================================

// Config 缓冲区配置
type Config struct {
	// History 历史策略
	History qos.History

	// Lifespan 样本生命周期，与样本自带的写端生命周期取较短者
	Lifespan time.Duration

	// MaxSamples KeepAll 的样本上限，0 表示不限
	MaxSamples int

	// Overwrite KeepAll 达到上限时淘汰最旧样本而不是拒绝写入
	//
	// 写端自身的历史只用于后加入读端的回放，设置此项。
	Overwrite bool

	// Clock 时间源，默认系统时钟
	Clock clock.Clock
}

// ConfigFromProfile 从完整策略生成配置
func ConfigFromProfile(p qos.Profile) Config {
	return Config{
		History:    p.History,
		Lifespan:   p.Lifespan.Duration,
		MaxSamples: p.ResourceLimits.MaxSamples,
	}
}

// LossReason 样本丢失原因
type LossReason int

const (
	// LossEvicted KeepLast 或 Overwrite 淘汰
	LossEvicted LossReason = iota
	// LossExpired 生命周期过期
	LossExpired
)

// String 返回原因的字符串表示
func (r LossReason) String() string {
	switch r {
	case LossEvicted:
		return "evicted"
	case LossExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Buffer
// ============================================================================

type entry struct {
	sample    *types.Sample
	expiresAt time.Time
	expires   bool
}

// Buffer 历史缓冲区
type Buffer struct {
	mu sync.Mutex

	// 队列数据（使用链表实现 FIFO）
	queue *list.List

	// 索引（用于去重）
	index map[types.SampleID]*list.Element

	history    qos.History
	lifespan   time.Duration
	maxSamples int
	overwrite  bool
	clock      clock.Clock

	// spaceCh 有空位时关闭并替换，唤醒 WriteWait
	spaceCh chan struct{}
	closed  bool

	onReady func()
	onLost  func(reason LossReason, n int)

	// 统计
	totalWritten    int64
	totalTaken      int64
	totalEvicted    int64
	totalExpired    int64
	totalRejected   int64
	totalDuplicates int64
}

// New 创建缓冲区
func New(cfg Config) *Buffer {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Buffer{
		queue:      list.New(),
		index:      make(map[types.SampleID]*list.Element),
		history:    cfg.History,
		lifespan:   cfg.Lifespan,
		maxSamples: cfg.MaxSamples,
		overwrite:  cfg.Overwrite,
		clock:      cfg.Clock,
		spaceCh:    make(chan struct{}),
	}
}

// OnReady 设置就绪回调，每次从空到非空时调用一次
//
// 回调在锁外执行，不得阻塞。
func (b *Buffer) OnReady(fn func()) {
	b.mu.Lock()
	b.onReady = fn
	b.mu.Unlock()
}

// OnLost 设置样本丢失回调（淘汰或过期），在锁外执行
func (b *Buffer) OnLost(fn func(reason LossReason, n int)) {
	b.mu.Lock()
	b.onLost = fn
	b.mu.Unlock()
}

// ============================================================================
//                              写入
// ============================================================================

// Write 非阻塞写入
//
// KeepLast 满时淘汰最旧样本；KeepAll 达到上限时返回 ErrBufferFull。
// 已在缓冲区中的同一样本会被忽略。
func (b *Buffer) Write(s *types.Sample) error {
	b.mu.Lock()
	ok, n, err := b.writeLocked(s)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	b.notify(ok, n)
	return nil
}

// WriteWait 写入，缓冲区满时最多阻塞 maxBlocking
//
// 超时返回 ErrBlockingTimeout；ctx 结束返回 ctx.Err()。
// maxBlocking 为 0 时不等待，为 qos.Infinite 时只受 ctx 约束。
func (b *Buffer) WriteWait(ctx context.Context, s *types.Sample, maxBlocking time.Duration) error {
	var timeout <-chan time.Time
	if maxBlocking > 0 && !qos.IsInfinite(maxBlocking) {
		timer := b.clock.Timer(maxBlocking)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		b.mu.Lock()
		ok, n, err := b.writeLocked(s)
		wait := b.spaceCh
		b.mu.Unlock()

		if err == nil {
			b.notify(ok, n)
			return nil
		}
		if err != ErrBufferFull {
			return err
		}
		if maxBlocking <= 0 {
			return ErrBlockingTimeout
		}

		select {
		case <-wait:
		case <-timeout:
			return ErrBlockingTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeLocked 写入（需持有锁）
//
// 返回是否发生空到非空的转换，以及被淘汰/过期的样本数。
func (b *Buffer) writeLocked(s *types.Sample) (becameReady bool, lost [2]int, err error) {
	if b.closed {
		return false, lost, ErrClosed
	}

	lost[LossExpired] = b.evictExpiredLocked(b.clock.Now())

	if _, exists := b.index[s.ID()]; exists {
		b.totalDuplicates++
		return false, lost, nil
	}

	if limit := b.capacity(); limit > 0 {
		for b.queue.Len() >= limit {
			if b.history.Kind == qos.HistoryKeepAll && !b.overwrite {
				b.totalRejected++
				return false, lost, ErrBufferFull
			}
			b.removeLocked(b.queue.Front())
			b.totalEvicted++
			lost[LossEvicted]++
		}
	}

	e := &entry{sample: s}
	e.expiresAt, e.expires = s.ExpiresAt(b.lifespan)
	if e.expires && !b.clock.Now().Before(e.expiresAt) {
		// 到达时已过期
		b.totalExpired++
		lost[LossExpired]++
		return false, lost, nil
	}

	wasEmpty := b.queue.Len() == 0
	b.index[s.ID()] = b.queue.PushBack(e)
	b.totalWritten++
	return wasEmpty, lost, nil
}

// capacity 返回容量上限，0 表示不限
func (b *Buffer) capacity() int {
	if b.history.Kind == qos.HistoryKeepLast {
		return b.history.Depth
	}
	if b.maxSamples > 0 {
		return b.maxSamples
	}
	return 0
}

// ============================================================================
//                              读取
// ============================================================================

// Take 移除并返回第一个满足 pred 的样本，pred 为 nil 时取最旧的
//
// 缓冲区为空或无匹配时返回 nil。
func (b *Buffer) Take(pred func(*types.Sample) bool) *types.Sample {
	b.mu.Lock()
	expired := b.evictExpiredLocked(b.clock.Now())

	var out *types.Sample
	for elem := b.queue.Front(); elem != nil; elem = elem.Next() {
		s := elem.Value.(*entry).sample
		if pred == nil || pred(s) {
			b.removeLocked(elem)
			b.totalTaken++
			out = s
			break
		}
	}
	b.mu.Unlock()

	b.reportLost(LossExpired, expired)
	return out
}

// Requeue 将已取出但未交付的样本放回队首
//
// 放回时已过期的样本计为过期；KeepLast 已满时它是最旧的样本，计为淘汰。
// KeepAll 的上限不约束放回的样本。
func (b *Buffer) Requeue(s *types.Sample) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	now := b.clock.Now()
	var lost [2]int
	lost[LossExpired] = b.evictExpiredLocked(now)

	becameReady := false
	e := &entry{sample: s}
	e.expiresAt, e.expires = s.ExpiresAt(b.lifespan)
	switch _, exists := b.index[s.ID()]; {
	case exists:
	case e.expires && !now.Before(e.expiresAt):
		b.totalExpired++
		lost[LossExpired]++
	case b.history.Kind == qos.HistoryKeepLast && b.queue.Len() >= b.history.Depth:
		b.totalEvicted++
		lost[LossEvicted]++
	default:
		becameReady = b.queue.Len() == 0
		b.index[s.ID()] = b.queue.PushFront(e)
		b.totalTaken--
	}
	b.mu.Unlock()

	b.notify(becameReady, lost)
	return nil
}

// ReadNewest 返回最新的 n 个样本，按到达顺序排列，不移除
func (b *Buffer) ReadNewest(n int) []*types.Sample {
	b.mu.Lock()
	expired := b.evictExpiredLocked(b.clock.Now())

	if n > b.queue.Len() {
		n = b.queue.Len()
	}
	if n < 0 {
		n = 0
	}
	out := make([]*types.Sample, n)
	elem := b.queue.Back()
	for i := n - 1; i >= 0; i-- {
		out[i] = elem.Value.(*entry).sample
		elem = elem.Prev()
	}
	b.mu.Unlock()

	b.reportLost(LossExpired, expired)
	return out
}

// Snapshot 返回全部未过期样本，按到达顺序排列
func (b *Buffer) Snapshot() []*types.Sample {
	b.mu.Lock()
	expired := b.evictExpiredLocked(b.clock.Now())
	out := make([]*types.Sample, 0, b.queue.Len())
	for elem := b.queue.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*entry).sample)
	}
	b.mu.Unlock()

	b.reportLost(LossExpired, expired)
	return out
}

// Len 返回未过期样本数
func (b *Buffer) Len() int {
	b.mu.Lock()
	expired := b.evictExpiredLocked(b.clock.Now())
	n := b.queue.Len()
	b.mu.Unlock()

	b.reportLost(LossExpired, expired)
	return n
}

// EvictExpired 清理在 now 时刻已过期的样本，返回清理数量
func (b *Buffer) EvictExpired(now time.Time) int {
	b.mu.Lock()
	n := b.evictExpiredLocked(now)
	b.mu.Unlock()

	b.reportLost(LossExpired, n)
	return n
}

// Reset 清空缓冲区（不计入丢失）
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.queue.Init()
	b.index = make(map[types.SampleID]*list.Element)
	b.signalSpaceLocked()
}

// Close 关闭缓冲区，唤醒所有阻塞的写入者
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.queue.Init()
	b.index = make(map[types.SampleID]*list.Element)
	b.signalSpaceLocked()
}

// Stats 返回缓冲区统计
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		CurrentSize:     b.queue.Len(),
		Capacity:        b.capacity(),
		TotalWritten:    b.totalWritten,
		TotalTaken:      b.totalTaken,
		TotalEvicted:    b.totalEvicted,
		TotalExpired:    b.totalExpired,
		TotalRejected:   b.totalRejected,
		TotalDuplicates: b.totalDuplicates,
	}
}

// Stats 缓冲区统计
type Stats struct {
	CurrentSize     int
	Capacity        int // 0 表示不限
	TotalWritten    int64
	TotalTaken      int64
	TotalEvicted    int64
	TotalExpired    int64
	TotalRejected   int64
	TotalDuplicates int64
}

// ============================================================================
//                              内部方法
// ============================================================================

// evictExpiredLocked 清理过期样本（需持有锁）
//
// 不同写端的样本生命周期不同，过期顺序不一定与到达顺序一致，因此扫描全部条目。
func (b *Buffer) evictExpiredLocked(now time.Time) int {
	n := 0
	for elem := b.queue.Front(); elem != nil; {
		next := elem.Next()
		e := elem.Value.(*entry)
		if e.expires && !now.Before(e.expiresAt) {
			b.removeLocked(elem)
			b.totalExpired++
			n++
		}
		elem = next
	}
	return n
}

// removeLocked 移除条目（需持有锁）
func (b *Buffer) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(b.index, e.sample.ID())
	b.queue.Remove(elem)
	b.signalSpaceLocked()
}

func (b *Buffer) signalSpaceLocked() {
	close(b.spaceCh)
	b.spaceCh = make(chan struct{})
}

func (b *Buffer) notify(becameReady bool, lost [2]int) {
	b.reportLost(LossEvicted, lost[LossEvicted])
	b.reportLost(LossExpired, lost[LossExpired])
	if !becameReady {
		return
	}
	b.mu.Lock()
	fn := b.onReady
	b.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (b *Buffer) reportLost(reason LossReason, n int) {
	if n == 0 {
		return
	}
	b.mu.Lock()
	fn := b.onLost
	b.mu.Unlock()
	if fn != nil {
		fn(reason, n)
	}
}
