package participant

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/internal/core/eventbus"
	"github.com/dep2p/go-dds/internal/core/liveliness"
	"github.com/dep2p/go-dds/internal/core/matching"
	"github.com/dep2p/go-dds/internal/core/metrics"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/participant")

// Listener 端点状态监听器，在事件产生的协程中同步调用，不得阻塞
type Listener func(ev types.StatusEvent)

// LocalEndpoint 本地端点的公告信息
type LocalEndpoint struct {
	GUID  types.GUID
	Role  types.Role
	Topic types.TopicName
	Type  types.TypeName
	QoS   qos.Profile
}

// Observer 本地端点变化的观察者
//
// 传输桥实现此接口，把本地端点公告给远端参与者。回调在锁外同步调用。
type Observer interface {
	LocalEndpointAdded(ep LocalEndpoint)
	LocalEndpointRemoved(id types.GUID)
}

// ============================================================================
//                              Participant
// ============================================================================

// Participant 参与者门面
type Participant struct {
	cfg    *Config
	prefix uuid.UUID
	clock  clock.Clock

	// 核心组件
	engine     *matching.Engine
	dispatcher *dispatch.Dispatcher
	monitor    *liveliness.Monitor
	bus        pkgif.EventBus
	ownBus     bool
	metrics    *metrics.Collector
	store      pkgif.SampleStore

	transient *transientCache

	mu        sync.RWMutex
	topics    map[types.TopicName]types.TypeName
	writers   map[types.GUID]*endpoint.Writer
	readers   map[types.GUID]*endpoint.Reader
	remotes   map[types.GUID]matching.Endpoint
	listeners map[types.GUID]Listener
	observers []Observer

	// totals 每个端点每种事件的累计次数
	totalsMu sync.Mutex
	totals   map[totalKey]int

	persistentWarn sync.Once
	started        atomic.Bool
	closed         atomic.Bool
}

type totalKey struct {
	id   types.GUID
	kind types.StatusKind
}

// New 创建参与者
func New(opts ...Option) (*Participant, error) {
	p := &Participant{
		cfg:       DefaultConfig(),
		engine:    matching.NewEngine(),
		transient: newTransientCache(),
		topics:    make(map[types.TopicName]types.TypeName),
		writers:   make(map[types.GUID]*endpoint.Writer),
		readers:   make(map[types.GUID]*endpoint.Reader),
		remotes:   make(map[types.GUID]matching.Endpoint),
		listeners: make(map[types.GUID]Listener),
		totals:    make(map[totalKey]int),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	p.prefix = p.cfg.Prefix
	if p.prefix == uuid.Nil {
		p.prefix = types.NewParticipantPrefix()
	}
	p.clock = p.cfg.Clock
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.bus == nil {
		p.bus = eventbus.NewBus(eventbus.Stateful(
			types.StatusLivelinessChanged,
			types.StatusPublicationMatched,
			types.StatusSubscriptionMatched,
		))
		p.ownBus = true
	}
	if p.metrics == nil {
		p.metrics = metrics.New(nil)
	}

	p.dispatcher = dispatch.New(p.engine, p.metrics, p.cfg.Dispatch)
	p.dispatcher.OnFailure(p.onDeliveryFailure)

	monCfg := p.cfg.Monitor
	monCfg.Clock = p.clock
	p.monitor = liveliness.New(monCfg, p.emit)

	logger.Info("参与者已创建",
		"prefix", log.TruncateID(p.prefix.String(), 8),
		"domain", p.cfg.Domain,
		"persistent", p.store != nil)
	return p, nil
}

// Start 启动后台监测
func (p *Participant) Start() error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.started.CompareAndSwap(false, true) {
		return nil
	}
	return p.monitor.Start()
}

// Prefix 返回参与者前缀
func (p *Participant) Prefix() uuid.UUID { return p.prefix }

// Domain 返回域 ID
func (p *Participant) Domain() int { return p.cfg.Domain }

// EventBus 返回状态事件总线
func (p *Participant) EventBus() pkgif.EventBus { return p.bus }

// Metrics 返回指标收集器
func (p *Participant) Metrics() *metrics.Collector { return p.metrics }

// Clock 返回时钟
func (p *Participant) Clock() clock.Clock { return p.clock }

// Observe 注册本地端点观察者，已存在的端点立即回放给它
func (p *Participant) Observe(o Observer) {
	p.mu.Lock()
	p.observers = append(p.observers, o)
	p.mu.Unlock()

	for _, ep := range p.LocalEndpoints() {
		o.LocalEndpointAdded(ep)
	}
}

// ============================================================================
//                              主题
// ============================================================================

// BindTopic 把主题绑定到类型名，同名主题只能绑定一个类型
func (p *Participant) BindTopic(topic types.TopicName, typ types.TypeName) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := topic.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if bound, ok := p.topics[topic]; ok {
		if bound != typ {
			return fmt.Errorf("%w: %s is %s, not %s", ErrTypeMismatch, topic, bound, typ)
		}
		return nil
	}
	p.topics[topic] = typ
	logger.Debug("主题已创建", "topic", topic.String(), "type", typ.String())
	return nil
}

// TopicType 返回主题绑定的类型名
func (p *Participant) TopicType(topic types.TopicName) (types.TypeName, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	typ, ok := p.topics[topic]
	return typ, ok
}

// ============================================================================
//                              本地端点
// ============================================================================

// CreateWriter 在已创建的主题上创建写端
func (p *Participant) CreateWriter(topic types.TopicName, profile qos.Profile, l Listener) (*endpoint.Writer, error) {
	typ, err := p.boundType(topic)
	if err != nil {
		return nil, err
	}

	id := types.NewGUID(p.prefix)
	live, err := p.monitor.AddWriter(id, topic, profile, true)
	if err != nil {
		return nil, err
	}
	w, err := endpoint.NewWriter(endpoint.WriterConfig{
		ID:         id,
		Topic:      topic,
		QoS:        profile,
		Dispatcher: p.dispatcher,
		Liveliness: live,
		Store:      p.store,
		Metrics:    p.metrics,
		Clock:      p.clock,
	})
	if err != nil {
		p.monitor.Remove(id)
		return nil, err
	}
	if profile.Durability == qos.DurabilityPersistent && p.store == nil {
		p.warnNoStore(topic)
	}

	p.mu.Lock()
	p.writers[id] = w
	if l != nil {
		p.listeners[id] = l
	}
	p.mu.Unlock()

	matched, rejected, err := p.engine.Add(w)
	if err != nil {
		p.forget(id)
		return nil, err
	}
	p.onMatched(matched)
	p.onRejected(rejected)

	logger.Info("写端已创建",
		"topic", topic.String(),
		"writer", id.ShortString(),
		"qos", profile.String(),
		"matched", len(matched))
	p.notifyAdded(LocalEndpoint{GUID: id, Role: types.RoleWriter, Topic: topic, Type: typ, QoS: profile})
	return w, nil
}

// CreateReader 在已创建的主题上创建读端
//
// 读端请求 Transient 及以上持久性时，先回放已销毁写端留下的历史
// （Persistent 还包括存储中的样本），再与现存写端匹配。
func (p *Participant) CreateReader(topic types.TopicName, profile qos.Profile, l Listener) (*endpoint.Reader, error) {
	typ, err := p.boundType(topic)
	if err != nil {
		return nil, err
	}

	id := types.NewGUID(p.prefix)
	live, err := p.monitor.AddReader(id, topic, profile)
	if err != nil {
		return nil, err
	}
	r, err := endpoint.NewReader(endpoint.ReaderConfig{
		ID:         id,
		Topic:      topic,
		QoS:        profile,
		DedupSize:  p.cfg.DedupSize,
		Liveliness: live,
		Metrics:    p.metrics,
		Emit:       p.emit,
		Clock:      p.clock,
	})
	if err != nil {
		p.monitor.Remove(id)
		return nil, err
	}

	p.mu.Lock()
	p.readers[id] = r
	if l != nil {
		p.listeners[id] = l
	}
	p.mu.Unlock()

	p.replayDurable(r)
	p.dispatcher.Register(r)

	matched, rejected, err := p.engine.Add(r)
	if err != nil {
		p.dispatcher.Unregister(id)
		p.forget(id)
		return nil, err
	}
	p.onMatched(matched)
	p.onRejected(rejected)

	logger.Info("读端已创建",
		"topic", topic.String(),
		"reader", id.ShortString(),
		"qos", profile.String(),
		"matched", len(matched))
	p.notifyAdded(LocalEndpoint{GUID: id, Role: types.RoleReader, Topic: topic, Type: typ, QoS: profile})
	return r, nil
}

// DeleteEndpoint 销毁本地端点
//
// 匹配记录被移除，对端收到匹配数减少的事件；Transient 及以上的写端把
// 保留的历史移入主题缓存。
func (p *Participant) DeleteEndpoint(id types.GUID) error {
	p.mu.RLock()
	w, isWriter := p.writers[id]
	r, isReader := p.readers[id]
	p.mu.RUnlock()

	switch {
	case isWriter:
		p.onUnmatched(id, p.engine.Remove(id))
		p.monitor.Remove(id)
		retained, err := w.Close()
		if err != nil {
			return err
		}
		if w.QoS().Durability >= qos.DurabilityTransient {
			p.transient.put(w.Topic(), id, retained)
		}
	case isReader:
		p.dispatcher.Unregister(id)
		p.onUnmatched(id, p.engine.Remove(id))
		p.monitor.Remove(id)
		if err := r.Close(); err != nil {
			return err
		}
	default:
		return ErrUnknownEndpoint
	}

	p.forget(id)
	p.notifyRemoved(id)
	logger.Debug("端点已销毁", "endpoint", id.ShortString())
	return nil
}

// AssertLiveliness 声明参与者下所有 Automatic 与 ManualByParticipant 写端存活
func (p *Participant) AssertLiveliness() error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.monitor.AssertParticipant(p.prefix)
	return nil
}

// LocalEndpoints 返回全部本地端点
func (p *Participant) LocalEndpoints() []LocalEndpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]LocalEndpoint, 0, len(p.writers)+len(p.readers))
	for id, w := range p.writers {
		out = append(out, LocalEndpoint{GUID: id, Role: types.RoleWriter, Topic: w.Topic(), Type: p.topics[w.Topic()], QoS: w.QoS()})
	}
	for id, r := range p.readers {
		out = append(out, LocalEndpoint{GUID: id, Role: types.RoleReader, Topic: r.Topic(), Type: p.topics[r.Topic()], QoS: r.QoS()})
	}
	return out
}

// Matches 返回端点当前的匹配记录
func (p *Participant) Matches(id types.GUID) []matching.Record {
	return p.engine.MatchesFor(id)
}

// Close 销毁全部端点并停止后台监测
func (p *Participant) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	p.mu.RLock()
	ids := make([]types.GUID, 0, len(p.writers)+len(p.readers)+len(p.remotes))
	for id := range p.readers {
		ids = append(ids, id)
	}
	for id := range p.writers {
		ids = append(ids, id)
	}
	remotes := make([]types.GUID, 0, len(p.remotes))
	for id := range p.remotes {
		remotes = append(remotes, id)
	}
	p.mu.RUnlock()

	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, p.DeleteEndpoint(id))
	}
	for _, id := range remotes {
		p.RemoveRemote(id)
	}
	errs = multierr.Append(errs, p.monitor.Stop())
	if p.ownBus {
		errs = multierr.Append(errs, p.bus.Close())
	}

	logger.Info("参与者已关闭", "prefix", log.TruncateID(p.prefix.String(), 8))
	return errs
}

// ============================================================================
//                              内部方法
// ============================================================================

func (p *Participant) boundType(topic types.TopicName) (types.TypeName, error) {
	if p.closed.Load() {
		return types.TypeName{}, ErrClosed
	}
	typ, ok := p.TopicType(topic)
	if !ok {
		return types.TypeName{}, fmt.Errorf("%w: %s", ErrTopicNotBound, topic)
	}
	return typ, nil
}

// forget 清除端点的登记、监听器与累计计数
func (p *Participant) forget(id types.GUID) {
	p.monitor.Remove(id)

	p.mu.Lock()
	delete(p.writers, id)
	delete(p.readers, id)
	delete(p.listeners, id)
	p.mu.Unlock()

	p.totalsMu.Lock()
	for k := range p.totals {
		if k.id == id {
			delete(p.totals, k)
		}
	}
	p.totalsMu.Unlock()

	p.bus.Forget(id)
}

func (p *Participant) notifyAdded(ep LocalEndpoint) {
	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		o.LocalEndpointAdded(ep)
	}
}

func (p *Participant) notifyRemoved(id types.GUID) {
	p.mu.RLock()
	observers := append([]Observer(nil), p.observers...)
	p.mu.RUnlock()
	for _, o := range observers {
		o.LocalEndpointRemoved(id)
	}
}

func (p *Participant) warnNoStore(topic types.TopicName) {
	p.persistentWarn.Do(func() {
		logger.Warn("未配置持久化存储，Persistent 按 Transient 处理", "topic", topic.String())
	})
}
