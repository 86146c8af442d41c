package participant

import (
	"context"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/matching"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              事件出口
// ============================================================================

// emit 把状态事件发往指标、事件总线与端点监听器
func (p *Participant) emit(ev types.StatusEvent) {
	if ev.Time.IsZero() {
		ev.Time = p.clock.Now()
	}
	p.metrics.StatusEvent(ev.Kind.String())
	if err := p.bus.Emit(ev); err != nil {
		logger.Debug("事件总线发射失败", "kind", ev.Kind.String(), "error", err)
	}

	p.mu.RLock()
	l := p.listeners[ev.Endpoint]
	p.mu.RUnlock()
	if l != nil {
		l(ev)
	}
}

// bump 累加并返回端点某类事件的次数
func (p *Participant) bump(id types.GUID, kind types.StatusKind) int {
	p.totalsMu.Lock()
	defer p.totalsMu.Unlock()
	k := totalKey{id: id, kind: kind}
	p.totals[k]++
	return p.totals[k]
}

func (p *Participant) isLocal(id types.GUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, w := p.writers[id]
	_, r := p.readers[id]
	return w || r
}

// onMatched 处理新生成的匹配记录
//
// 登记存活性关系，向本地一侧发匹配事件，并在生效持久性不低于
// TransientLocal 时把写端保留的历史回放给读端。
func (p *Participant) onMatched(recs []matching.Record) {
	if len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		// 远端读端不在本地监测
		_ = p.monitor.Match(rec.Writer, rec.Reader)

		p.matchEvent(types.StatusPublicationMatched, rec.Writer, rec.Reader, rec.Topic, true)
		p.matchEvent(types.StatusSubscriptionMatched, rec.Reader, rec.Writer, rec.Topic, true)

		if rec.Effective.Durability < qos.DurabilityTransientLocal {
			continue
		}
		p.mu.RLock()
		w := p.writers[rec.Writer]
		p.mu.RUnlock()
		if w == nil {
			continue
		}
		report := p.dispatcher.Replay(context.Background(), rec, w.Retained())
		if report.Delivered > 0 {
			logger.Debug("已回放历史",
				"topic", rec.Topic.String(),
				"writer", rec.Writer.ShortString(),
				"reader", rec.Reader.ShortString(),
				"samples", report.Delivered)
		}
	}
	p.metrics.SetMatches(recs[0].Topic.String(), p.engine.Count(recs[0].Topic))
}

// onUnmatched 处理被移除的匹配记录，removed 为被销毁的一侧
func (p *Participant) onUnmatched(removed types.GUID, recs []matching.Record) {
	if len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		p.monitor.Unmatch(rec.Writer, rec.Reader)
		if peer := rec.Peer(removed); peer == rec.Writer {
			p.matchEvent(types.StatusPublicationMatched, peer, removed, rec.Topic, false)
		} else {
			p.matchEvent(types.StatusSubscriptionMatched, peer, removed, rec.Topic, false)
		}
	}
	p.metrics.SetMatches(recs[0].Topic.String(), p.engine.Count(recs[0].Topic))
}

// matchEvent 向本地端点 self 发送匹配数变化事件
func (p *Participant) matchEvent(kind types.StatusKind, self, peer types.GUID, topic types.TopicName, added bool) {
	if !p.isLocal(self) {
		return
	}
	ev := types.StatusEvent{
		Kind:         kind,
		Endpoint:     self,
		Topic:        topic,
		Peer:         peer,
		Alive:        added,
		CurrentCount: len(p.engine.MatchesFor(self)),
	}
	if added {
		ev.TotalCount = p.bump(self, kind)
	} else {
		ev.TotalCount = p.total(self, kind)
	}
	p.emit(ev)
}

func (p *Participant) total(id types.GUID, kind types.StatusKind) int {
	p.totalsMu.Lock()
	defer p.totalsMu.Unlock()
	return p.totals[totalKey{id: id, kind: kind}]
}

// onRejected 为不兼容的端点对发送 IncompatibleQos 事件
func (p *Participant) onRejected(rejs []matching.Rejection) {
	for _, rej := range rejs {
		kinds := rej.Kinds()
		logger.Warn("QoS 不兼容",
			"topic", rej.Topic.String(),
			"writer", rej.Writer.ShortString(),
			"reader", rej.Reader.ShortString(),
			"policies", kinds)

		if p.isLocal(rej.Writer) {
			p.emit(types.StatusEvent{
				Kind:       types.StatusOfferedIncompatibleQos,
				Endpoint:   rej.Writer,
				Topic:      rej.Topic,
				Peer:       rej.Reader,
				Policies:   kinds,
				TotalCount: p.bump(rej.Writer, types.StatusOfferedIncompatibleQos),
			})
		}
		if p.isLocal(rej.Reader) {
			p.emit(types.StatusEvent{
				Kind:       types.StatusRequestedIncompatibleQos,
				Endpoint:   rej.Reader,
				Topic:      rej.Topic,
				Peer:       rej.Writer,
				Policies:   kinds,
				TotalCount: p.bump(rej.Reader, types.StatusRequestedIncompatibleQos),
			})
		}
	}
}

// onDeliveryFailure 投递器的对端失败回调
func (p *Participant) onDeliveryFailure(writer types.GUID, err *dispatch.DeliveryError) {
	p.mu.RLock()
	w := p.writers[writer]
	p.mu.RUnlock()

	ev := types.StatusEvent{
		Kind:     types.StatusDeliveryFailed,
		Endpoint: writer,
		Peer:     err.Peer,
		Err:      err,
	}
	if w != nil {
		ev.Topic = w.Topic()
	}
	ev.TotalCount = p.bump(writer, types.StatusDeliveryFailed)
	p.emit(ev)
}
