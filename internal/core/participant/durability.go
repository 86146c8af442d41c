package participant

import (
	"sync"
	"time"

	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              Transient 缓存
// ============================================================================

// transientCache 已销毁写端留下的历史，按主题与写端保存
//
// 生存期与参与者相同。每个写端的样本数已受其历史策略约束。
type transientCache struct {
	mu     sync.Mutex
	topics map[types.TopicName]map[types.GUID][]*types.Sample
}

func newTransientCache() *transientCache {
	return &transientCache{topics: make(map[types.TopicName]map[types.GUID][]*types.Sample)}
}

func (c *transientCache) put(topic types.TopicName, writer types.GUID, samples []*types.Sample) {
	if len(samples) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.topics[topic]
	if m == nil {
		m = make(map[types.GUID][]*types.Sample)
		c.topics[topic] = m
	}
	m[writer] = samples
}

// get 返回主题缓存的样本，顺带清除在 now 时刻已过期的样本
func (c *transientCache) get(topic types.TopicName, now time.Time) []*types.Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*types.Sample
	for writer, samples := range c.topics[topic] {
		live := samples[:0]
		for _, s := range samples {
			if at, ok := s.ExpiresAt(0); ok && !now.Before(at) {
				continue
			}
			live = append(live, s)
		}
		if len(live) == 0 {
			delete(c.topics[topic], writer)
			continue
		}
		c.topics[topic][writer] = live
		out = append(out, live...)
	}
	return out
}

func (c *transientCache) len(topic types.TopicName) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, samples := range c.topics[topic] {
		n += len(samples)
	}
	return n
}

// ============================================================================
//                              回放
// ============================================================================

// replayDurable 向新读端回放已不在世的写端留下的样本
//
// Transient: 参与者缓存；Persistent: 样本存储，未配置存储时退化为缓存。
// 与现存写端的 TransientLocal 回放重叠的样本由读端去重。
func (p *Participant) replayDurable(r *endpoint.Reader) {
	profile := r.QoS()
	if profile.Durability < qos.DurabilityTransient {
		return
	}

	samples := p.transient.get(r.Topic(), p.clock.Now())
	source := "transient"
	if profile.Durability == qos.DurabilityPersistent {
		if p.store == nil {
			p.warnNoStore(r.Topic())
		} else {
			depth := 0
			if profile.History.Kind == qos.HistoryKeepLast {
				depth = profile.History.Depth
			}
			stored, err := p.store.Load(r.Topic(), depth)
			if err != nil {
				logger.Warn("加载持久化样本失败", "topic", r.Topic().String(), "error", err)
			} else {
				samples = append(stored, samples...)
				source = "persistent"
			}
		}
	}

	delivered := 0
	for _, s := range samples {
		if err := r.Offer(s); err != nil {
			logger.Debug("回放样本被拒绝", "reader", r.GUID().ShortString(),
				"sample", s.ID().String(), "error", err)
			continue
		}
		delivered++
	}
	if delivered > 0 {
		logger.Debug("已回放持久化历史",
			"topic", r.Topic().String(),
			"reader", r.GUID().ShortString(),
			"source", source,
			"samples", delivered)
	}
}
