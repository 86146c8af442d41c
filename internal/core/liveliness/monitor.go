package liveliness

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/liveliness")

// Handler 状态事件回调，在监测锁外调用，不得阻塞
type Handler func(ev types.StatusEvent)

// Config 监测配置
type Config struct {
	// CheckInterval 检查周期
	CheckInterval time.Duration

	// Clock 时钟，nil 时使用系统时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		CheckInterval: config.DefaultMonitorConfig().CheckInterval.Duration(),
	}
}

// ConfigFromUnified 从统一配置创建监测配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg != nil && cfg.Monitor.CheckInterval > 0 {
		out.CheckInterval = cfg.Monitor.CheckInterval.Duration()
	}
	return out
}

// ============================================================================
//                              Monitor
// ============================================================================

// Monitor 存活性与截止期监测器
//
// 锁顺序：Monitor.mu -> Reader.mu。
type Monitor struct {
	cfg     Config
	clock   clock.Clock
	handler Handler

	mu      sync.RWMutex
	writers map[types.GUID]*Writer
	readers map[types.GUID]*Reader

	// checkMu 串行化 Check，锚点字段只在其保护下访问
	checkMu sync.Mutex

	running int32
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New 创建监测器
func New(cfg Config, handler Handler) *Monitor {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if handler == nil {
		handler = func(types.StatusEvent) {}
	}
	return &Monitor{
		cfg:     cfg,
		clock:   cfg.Clock,
		handler: handler,
		writers: make(map[types.GUID]*Writer),
		readers: make(map[types.GUID]*Reader),
	}
}

// Start 启动周期检查
//
// 使用独立的 context，调用方传入的启动 context 可能在启动完成后被取消。
func (m *Monitor) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return ErrAlreadyStarted
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop()

	logger.Info("存活性监测已启动", "interval", m.cfg.CheckInterval)
	return nil
}

// Stop 停止周期检查
func (m *Monitor) Stop() error {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return nil
	}
	m.cancel()
	m.wg.Wait()

	logger.Info("存活性监测已停止")
	return nil
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.Check(m.clock.Now())
		}
	}
}

// AddWriter 注册写端
//
// local 为 false 表示远端写端的本地代理：不产生 LivelinessLost 与
// OfferedDeadlineMissed，只影响匹配读端的存活计数。
func (m *Monitor) AddWriter(id types.GUID, topic types.TopicName, profile qos.Profile, local bool) (*Writer, error) {
	now := m.clock.Now().UnixNano()
	w := &Writer{
		id:      id,
		topic:   topic,
		kind:    profile.Liveliness.Kind,
		lease:   profile.Liveliness.LeaseDuration,
		period:  profile.Deadline.Period,
		local:   local,
		anchor:  now,
		readers: make(map[types.GUID]*Reader),
	}
	w.lastAssert.Store(now)
	w.alive.Store(true)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.writers[id]; ok {
		return nil, ErrAlreadyRegistered
	}
	m.writers[id] = w

	logger.Debug("注册写端", "writer", id.ShortString(), "topic", topic.String(),
		"liveliness", profile.Liveliness.String(), "deadline", profile.Deadline.String())
	return w, nil
}

// AddReader 注册读端
func (m *Monitor) AddReader(id types.GUID, topic types.TopicName, profile qos.Profile) (*Reader, error) {
	r := &Reader{
		id:      id,
		topic:   topic,
		period:  profile.Deadline.Period,
		anchor:  m.clock.Now().UnixNano(),
		writers: make(map[types.GUID]bool),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.readers[id]; ok {
		return nil, ErrAlreadyRegistered
	}
	m.readers[id] = r

	logger.Debug("注册读端", "reader", id.ShortString(), "topic", topic.String(),
		"deadline", profile.Deadline.String())
	return r, nil
}

// Writer 查找写端
func (m *Monitor) Writer(id types.GUID) (*Writer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.writers[id]
	return w, ok
}

// Reader 查找读端
func (m *Monitor) Reader(id types.GUID) (*Reader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.readers[id]
	return r, ok
}

// Match 记录写端与读端的匹配
//
// 未注册的写端视为始终存活。
func (m *Monitor) Match(writer, reader types.GUID) error {
	m.mu.Lock()
	r, ok := m.readers[reader]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownEndpoint
	}
	alive := true
	if w, ok := m.writers[writer]; ok {
		if _, dup := w.readers[reader]; !dup {
			w.readers[reader] = r
			w.matched.Add(1)
		}
		alive = w.alive.Load()
	}
	added, aliveCount, notAliveCount := r.addWriter(writer, alive)
	m.mu.Unlock()

	if added {
		m.handler(types.StatusEvent{
			Kind:          types.StatusLivelinessChanged,
			Endpoint:      reader,
			Topic:         r.topic,
			Peer:          writer,
			Alive:         alive,
			AliveCount:    aliveCount,
			NotAliveCount: notAliveCount,
			Time:          m.clock.Now(),
		})
	}
	return nil
}

// Unmatch 移除写端与读端的匹配
func (m *Monitor) Unmatch(writer, reader types.GUID) {
	m.mu.Lock()
	if w, ok := m.writers[writer]; ok {
		if _, had := w.readers[reader]; had {
			delete(w.readers, reader)
			w.matched.Add(-1)
		}
	}
	var ev *types.StatusEvent
	if r, ok := m.readers[reader]; ok {
		ev = r.removeWriter(writer)
	}
	m.mu.Unlock()

	if ev != nil {
		ev.Time = m.clock.Now()
		m.handler(*ev)
	}
}

// Remove 注销端点，解除其全部匹配
func (m *Monitor) Remove(id types.GUID) {
	var events []types.StatusEvent

	m.mu.Lock()
	if w, ok := m.writers[id]; ok {
		for _, r := range w.readers {
			if ev := r.removeWriter(id); ev != nil {
				events = append(events, *ev)
			}
		}
		delete(m.writers, id)
	}
	if r, ok := m.readers[id]; ok {
		r.mu.Lock()
		for wid := range r.writers {
			if w, ok := m.writers[wid]; ok {
				if _, had := w.readers[id]; had {
					delete(w.readers, id)
					w.matched.Add(-1)
				}
			}
		}
		r.mu.Unlock()
		delete(m.readers, id)
	}
	m.mu.Unlock()

	now := m.clock.Now()
	for _, ev := range events {
		ev.Time = now
		m.handler(ev)
	}
}

// AssertParticipant 声明参与者下所有非 ManualByTopic 写端存活
func (m *Monitor) AssertParticipant(prefix uuid.UUID) {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, w := range m.writers {
		if id.Prefix == prefix && w.kind != qos.LivelinessManualByTopic {
			w.Assert(now)
		}
	}
}

// AssertAutomatic 声明参与者下所有 Automatic 写端存活
//
// 用于远端参与者的心跳：远端手动声明不经过传输层。
func (m *Monitor) AssertAutomatic(prefix uuid.UUID) {
	now := m.clock.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, w := range m.writers {
		if id.Prefix == prefix && w.kind == qos.LivelinessAutomatic {
			w.Assert(now)
		}
	}
}

// Check 执行一次检查，生成存活性与截止期事件
//
// 周期检查在监测协程中调用；测试可以直接传入时间驱动。
func (m *Monitor) Check(now time.Time) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	n := now.UnixNano()
	var events []types.StatusEvent

	m.mu.RLock()
	for _, w := range m.writers {
		events = w.check(n, now, events)
	}
	for _, r := range m.readers {
		events = r.check(n, now, events)
	}
	m.mu.RUnlock()

	for _, ev := range events {
		m.handler(ev)
	}
}

// Len 返回已注册的写端与读端数量
func (m *Monitor) Len() (writers, readers int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.writers), len(m.readers)
}

// finite 报告 d 是否为有限正时长
func finite(d time.Duration) bool {
	return d > 0 && !qos.IsInfinite(d)
}

// ============================================================================
//                              Writer
// ============================================================================

// Writer 写端监测状态
type Writer struct {
	id     types.GUID
	topic  types.TopicName
	kind   qos.LivelinessKind
	lease  time.Duration
	period time.Duration
	local  bool

	lastAssert atomic.Int64
	lastWrite  atomic.Int64
	lastMiss   atomic.Int64
	alive      atomic.Bool
	missed     atomic.Int64
	lost       atomic.Int64
	matched    atomic.Int64

	// anchor 截止期锚点，受 Monitor.checkMu 保护
	anchor int64

	// readers 匹配的读端，受 Monitor.mu 保护
	readers map[types.GUID]*Reader
}

// ID 返回写端 GUID
func (w *Writer) ID() types.GUID { return w.id }

// Wrote 记录一次写入，同时声明存活
func (w *Writer) Wrote(now time.Time) {
	n := now.UnixNano()
	w.lastWrite.Store(n)
	w.lastAssert.Store(n)
}

// Assert 显式声明存活
func (w *Writer) Assert(now time.Time) {
	w.lastAssert.Store(now.UnixNano())
}

// Status 返回写端状态快照
func (w *Writer) Status() types.EndpointStatus {
	lastWrite := w.lastWrite.Load()
	st := types.EndpointStatus{
		Alive:               w.alive.Load(),
		DeadlineMissed:      w.lastMiss.Load() > lastWrite,
		TotalDeadlineMissed: int(w.missed.Load()),
		Matched:             int(w.matched.Load()),
	}
	if lastWrite != 0 {
		st.LastActivity = time.Unix(0, lastWrite)
	}
	return st
}

// check 在 Monitor.mu 读锁下执行
func (w *Writer) check(n int64, now time.Time, events []types.StatusEvent) []types.StatusEvent {
	if w.local && w.kind == qos.LivelinessAutomatic {
		w.lastAssert.Store(n)
	}

	if finite(w.lease) {
		expired := n-w.lastAssert.Load() > int64(w.lease)
		if expired == w.alive.Load() {
			alive := !expired
			w.alive.Store(alive)
			if !alive && w.local {
				total := w.lost.Add(1)
				logger.Debug("写端失去存活", "writer", w.id.ShortString(), "topic", w.topic.String())
				events = append(events, types.StatusEvent{
					Kind:       types.StatusLivelinessLost,
					Endpoint:   w.id,
					Topic:      w.topic,
					Alive:      false,
					TotalCount: int(total),
					Time:       now,
				})
			}
			for _, r := range w.readers {
				if ev := r.setWriterAlive(w.id, alive); ev != nil {
					ev.Time = now
					events = append(events, *ev)
				}
			}
		}
	}

	if w.local && finite(w.period) {
		if missed, ok := deadline(&w.anchor, w.lastWrite.Load(), n, int64(w.period)); ok {
			w.lastMiss.Store(n)
			total := w.missed.Add(missed)
			events = append(events, types.StatusEvent{
				Kind:       types.StatusOfferedDeadlineMissed,
				Endpoint:   w.id,
				Topic:      w.topic,
				TotalCount: int(total),
				Time:       now,
			})
		}
	}
	return events
}

// deadline 推进截止期锚点，返回本次错过的周期数
func deadline(anchor *int64, last, now, period int64) (int64, bool) {
	if last > *anchor {
		*anchor = last
	}
	if now-*anchor < period {
		return 0, false
	}
	missed := (now - *anchor) / period
	*anchor += missed * period
	return missed, true
}

// ============================================================================
//                              Reader
// ============================================================================

// Reader 读端监测状态
type Reader struct {
	id     types.GUID
	topic  types.TopicName
	period time.Duration

	lastReceived atomic.Int64
	lastMiss     atomic.Int64
	missed       atomic.Int64

	// anchor 截止期锚点，受 Monitor.checkMu 保护
	anchor int64

	mu sync.Mutex
	// writers 匹配写端的存活状态
	writers map[types.GUID]bool
}

// ID 返回读端 GUID
func (r *Reader) ID() types.GUID { return r.id }

// Received 记录收到样本
func (r *Reader) Received(now time.Time) {
	r.lastReceived.Store(now.UnixNano())
}

// Status 返回读端状态快照
func (r *Reader) Status() types.EndpointStatus {
	r.mu.Lock()
	alive, notAlive := r.countsLocked()
	matched := len(r.writers)
	r.mu.Unlock()

	last := r.lastReceived.Load()
	st := types.EndpointStatus{
		Alive:               alive > 0,
		AliveCount:          alive,
		NotAliveCount:       notAlive,
		DeadlineMissed:      r.lastMiss.Load() > last,
		TotalDeadlineMissed: int(r.missed.Load()),
		Matched:             matched,
	}
	if last != 0 {
		st.LastActivity = time.Unix(0, last)
	}
	return st
}

func (r *Reader) countsLocked() (alive, notAlive int) {
	for _, a := range r.writers {
		if a {
			alive++
		} else {
			notAlive++
		}
	}
	return alive, notAlive
}

func (r *Reader) addWriter(writer types.GUID, alive bool) (bool, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.writers[writer]; ok {
		return false, 0, 0
	}
	r.writers[writer] = alive
	a, n := r.countsLocked()
	return true, a, n
}

func (r *Reader) removeWriter(writer types.GUID) *types.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.writers[writer]; !ok {
		return nil
	}
	delete(r.writers, writer)
	a, n := r.countsLocked()
	return &types.StatusEvent{
		Kind:          types.StatusLivelinessChanged,
		Endpoint:      r.id,
		Topic:         r.topic,
		Peer:          writer,
		Alive:         false,
		AliveCount:    a,
		NotAliveCount: n,
	}
}

func (r *Reader) setWriterAlive(writer types.GUID, alive bool) *types.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.writers[writer]
	if !ok || prev == alive {
		return nil
	}
	r.writers[writer] = alive
	a, n := r.countsLocked()
	return &types.StatusEvent{
		Kind:          types.StatusLivelinessChanged,
		Endpoint:      r.id,
		Topic:         r.topic,
		Peer:          writer,
		Alive:         alive,
		AliveCount:    a,
		NotAliveCount: n,
	}
}

func (r *Reader) check(n int64, now time.Time, events []types.StatusEvent) []types.StatusEvent {
	if !finite(r.period) {
		return events
	}
	missed, ok := deadline(&r.anchor, r.lastReceived.Load(), n, int64(r.period))
	if !ok {
		return events
	}
	r.lastMiss.Store(n)
	total := r.missed.Add(missed)
	return append(events, types.StatusEvent{
		Kind:       types.StatusRequestedDeadlineMissed,
		Endpoint:   r.id,
		Topic:      r.topic,
		TotalCount: int(total),
		Time:       now,
	})
}
