package matching

import (
	"sync"

	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/matching")

// ============================================================================
//                              类型定义
// ============================================================================

// Endpoint 参与匹配的端点
//
// 本地端点与传输层创建的远端代理都实现此接口。
type Endpoint interface {
	GUID() types.GUID
	Topic() types.TopicName
	Role() types.Role
	QoS() qos.Profile
}

// Record 一对兼容端点的匹配记录
type Record struct {
	Writer    types.GUID
	Reader    types.GUID
	Topic     types.TopicName
	Effective qos.Profile
}

// Peer 返回 self 在记录中的对端
func (r Record) Peer(self types.GUID) types.GUID {
	if r.Writer == self {
		return r.Reader
	}
	return r.Writer
}

// Rejection 一对不兼容端点
type Rejection struct {
	Writer  types.GUID
	Reader  types.GUID
	Topic   types.TopicName
	Reasons []qos.Incompatibility
}

// Peer 返回 self 在拒绝记录中的对端
func (r Rejection) Peer(self types.GUID) types.GUID {
	if r.Writer == self {
		return r.Reader
	}
	return r.Writer
}

// Kinds 返回不兼容的策略种类名
func (r Rejection) Kinds() []string {
	return qos.Resolution{Reasons: r.Reasons}.Kinds()
}

// topicMatches 单个主题的端点与匹配记录
type topicMatches struct {
	mu       sync.RWMutex
	writers  map[types.GUID]Endpoint
	readers  map[types.GUID]Endpoint
	byWriter map[types.GUID]map[types.GUID]Record // writer -> reader -> record
	byReader map[types.GUID]map[types.GUID]Record // reader -> writer -> record
}

func newTopicMatches() *topicMatches {
	return &topicMatches{
		writers:  make(map[types.GUID]Endpoint),
		readers:  make(map[types.GUID]Endpoint),
		byWriter: make(map[types.GUID]map[types.GUID]Record),
		byReader: make(map[types.GUID]map[types.GUID]Record),
	}
}

func (tm *topicMatches) empty() bool {
	return len(tm.writers) == 0 && len(tm.readers) == 0
}

// ============================================================================
//                              Engine
// ============================================================================

// Engine 匹配引擎
type Engine struct {
	mu        sync.RWMutex
	topics    map[types.TopicName]*topicMatches
	endpoints map[types.GUID]types.TopicName
}

// NewEngine 创建匹配引擎
func NewEngine() *Engine {
	return &Engine{
		topics:    make(map[types.TopicName]*topicMatches),
		endpoints: make(map[types.GUID]types.TopicName),
	}
}

// Add 注册端点并与对侧端点逐对解析
//
// 返回新生成的匹配记录和不兼容的端点对。不兼容的对只报告，不生成记录。
func (e *Engine) Add(ep Endpoint) (matched []Record, incompatible []Rejection, err error) {
	id := ep.GUID()
	topic := ep.Topic()

	e.mu.Lock()
	if _, exists := e.endpoints[id]; exists {
		e.mu.Unlock()
		return nil, nil, ErrDuplicateEndpoint
	}
	e.endpoints[id] = topic
	tm, ok := e.topics[topic]
	if !ok {
		tm = newTopicMatches()
		e.topics[topic] = tm
	}
	// 在释放全局锁前持有主题锁，保证并发的 Remove 看到完整的注册
	tm.mu.Lock()
	e.mu.Unlock()
	defer tm.mu.Unlock()

	self := ep.QoS()
	if ep.Role() == types.RoleWriter {
		tm.writers[id] = ep
		for rid, reader := range tm.readers {
			rec, rej, ok := resolvePair(topic, id, self, rid, reader.QoS())
			if !ok {
				incompatible = append(incompatible, rej)
				continue
			}
			tm.insertLocked(rec)
			matched = append(matched, rec)
		}
	} else {
		tm.readers[id] = ep
		for wid, writer := range tm.writers {
			rec, rej, ok := resolvePair(topic, wid, writer.QoS(), id, self)
			if !ok {
				incompatible = append(incompatible, rej)
				continue
			}
			tm.insertLocked(rec)
			matched = append(matched, rec)
		}
	}

	logger.Debug("端点已注册",
		"topic", topic.String(),
		"endpoint", id.ShortString(),
		"role", ep.Role().String(),
		"matched", len(matched),
		"incompatible", len(incompatible))
	return matched, incompatible, nil
}

// Remove 注销端点并移除所有引用它的匹配记录
//
// 返回被移除的记录。端点未注册时返回 nil。
func (e *Engine) Remove(id types.GUID) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	topic, ok := e.endpoints[id]
	if !ok {
		return nil
	}
	delete(e.endpoints, id)

	tm := e.topics[topic]
	tm.mu.Lock()
	defer tm.mu.Unlock()

	var removed []Record
	for _, rec := range tm.byWriter[id] {
		removed = append(removed, rec)
		delete(tm.byReader[rec.Reader], id)
	}
	for _, rec := range tm.byReader[id] {
		removed = append(removed, rec)
		delete(tm.byWriter[rec.Writer], id)
	}
	delete(tm.byWriter, id)
	delete(tm.byReader, id)
	delete(tm.writers, id)
	delete(tm.readers, id)

	if tm.empty() {
		delete(e.topics, topic)
	}

	logger.Debug("端点已注销",
		"topic", topic.String(),
		"endpoint", id.ShortString(),
		"removed", len(removed))
	return removed
}

// MatchesFor 返回端点当前的全部匹配记录
func (e *Engine) MatchesFor(id types.GUID) []Record {
	tm := e.topicOf(id)
	if tm == nil {
		return nil
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	set := tm.byReader[id]
	if _, ok := tm.writers[id]; ok {
		set = tm.byWriter[id]
	}
	out := make([]Record, 0, len(set))
	for _, rec := range set {
		out = append(out, rec)
	}
	return out
}

// ReadersOf 返回写端匹配的读端快照
func (e *Engine) ReadersOf(writer types.GUID) []Record {
	tm := e.topicOf(writer)
	if tm == nil {
		return nil
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	set := tm.byWriter[writer]
	out := make([]Record, 0, len(set))
	for _, rec := range set {
		out = append(out, rec)
	}
	return out
}

// Lookup 查找两个端点之间的匹配记录
func (e *Engine) Lookup(writer, reader types.GUID) (Record, bool) {
	tm := e.topicOf(writer)
	if tm == nil {
		return Record{}, false
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	rec, ok := tm.byWriter[writer][reader]
	return rec, ok
}

// Endpoint 返回已注册的端点
func (e *Engine) Endpoint(id types.GUID) (Endpoint, bool) {
	tm := e.topicOf(id)
	if tm == nil {
		return nil, false
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if ep, ok := tm.writers[id]; ok {
		return ep, true
	}
	ep, ok := tm.readers[id]
	return ep, ok
}

// Count 返回主题的匹配记录数
func (e *Engine) Count(topic types.TopicName) int {
	e.mu.RLock()
	tm := e.topics[topic]
	e.mu.RUnlock()
	if tm == nil {
		return 0
	}

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	n := 0
	for _, set := range tm.byWriter {
		n += len(set)
	}
	return n
}

// Len 返回已注册的端点数
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.endpoints)
}

// ============================================================================
//                              内部方法
// ============================================================================

func (e *Engine) topicOf(id types.GUID) *topicMatches {
	e.mu.RLock()
	defer e.mu.RUnlock()

	topic, ok := e.endpoints[id]
	if !ok {
		return nil
	}
	return e.topics[topic]
}

// insertLocked 插入匹配记录（需持有主题写锁）
func (tm *topicMatches) insertLocked(rec Record) {
	if tm.byWriter[rec.Writer] == nil {
		tm.byWriter[rec.Writer] = make(map[types.GUID]Record)
	}
	if tm.byReader[rec.Reader] == nil {
		tm.byReader[rec.Reader] = make(map[types.GUID]Record)
	}
	tm.byWriter[rec.Writer][rec.Reader] = rec
	tm.byReader[rec.Reader][rec.Writer] = rec
}

func resolvePair(topic types.TopicName, writer types.GUID, offered qos.Profile,
	reader types.GUID, requested qos.Profile) (Record, Rejection, bool) {

	res := qos.Resolve(offered, requested)
	if !res.Compatible {
		return Record{}, Rejection{Writer: writer, Reader: reader, Topic: topic, Reasons: res.Reasons}, false
	}
	return Record{Writer: writer, Reader: reader, Topic: topic, Effective: res.Effective}, Rejection{}, true
}
