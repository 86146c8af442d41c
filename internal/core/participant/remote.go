package participant

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/matching"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              远端代理
// ============================================================================

// AddRemote 加入远端端点的本地代理
//
// 代理写端在监测中登记为非本地写端；代理读端必须提供 sink，投递器把
// 样本交给它发往远端。主题已在本地绑定到不同类型时返回 ErrTypeMismatch。
func (p *Participant) AddRemote(ep matching.Endpoint, typ types.TypeName, sink dispatch.Sink) error {
	if p.closed.Load() {
		return ErrClosed
	}
	id := ep.GUID()
	if bound, ok := p.TopicType(ep.Topic()); ok && bound != typ {
		return fmt.Errorf("%w: %s is %s, remote offers %s", ErrTypeMismatch, ep.Topic(), bound, typ)
	}

	p.mu.Lock()
	if _, ok := p.remotes[id]; ok {
		p.mu.Unlock()
		return nil
	}
	p.remotes[id] = ep
	p.mu.Unlock()

	if ep.Role() == types.RoleWriter {
		if _, err := p.monitor.AddWriter(id, ep.Topic(), ep.QoS(), false); err != nil {
			return err
		}
	} else {
		if sink == nil {
			p.dropRemote(id)
			return fmt.Errorf("%w: remote reader needs a sink", ErrUnknownEndpoint)
		}
		p.dispatcher.Register(sink)
	}

	matched, rejected, err := p.engine.Add(ep)
	if err != nil {
		p.dispatcher.Unregister(id)
		p.monitor.Remove(id)
		p.dropRemote(id)
		return err
	}
	p.onMatched(matched)
	p.onRejected(rejected)

	logger.Debug("远端代理已加入",
		"topic", ep.Topic().String(),
		"endpoint", id.ShortString(),
		"role", ep.Role().String(),
		"matched", len(matched))
	return nil
}

// RemoveRemote 移除远端代理
func (p *Participant) RemoveRemote(id types.GUID) {
	p.mu.RLock()
	_, ok := p.remotes[id]
	p.mu.RUnlock()
	if !ok {
		return
	}

	p.dispatcher.Unregister(id)
	p.onUnmatched(id, p.engine.Remove(id))
	p.monitor.Remove(id)
	p.dropRemote(id)
	logger.Debug("远端代理已移除", "endpoint", id.ShortString())
}

// RemoteEndpoints 返回属于远端参与者 prefix 的代理
func (p *Participant) RemoteEndpoints(prefix uuid.UUID) []types.GUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.GUID
	for id := range p.remotes {
		if id.Prefix == prefix {
			out = append(out, id)
		}
	}
	return out
}

// AssertRemote 远端参与者心跳，声明其 Automatic 写端存活
func (p *Participant) AssertRemote(prefix uuid.UUID) {
	p.monitor.AssertAutomatic(prefix)
}

// DeliverRemote 把远端写端的样本交给本地读端
//
// 按匹配记录的生效可靠性选择阻塞或非阻塞写入。
func (p *Participant) DeliverRemote(ctx context.Context, reader types.GUID, s *types.Sample) error {
	p.mu.RLock()
	r := p.readers[reader]
	p.mu.RUnlock()
	if r == nil {
		return ErrUnknownEndpoint
	}
	rec, ok := p.engine.Lookup(s.Writer, reader)
	if !ok {
		return ErrNoMatch
	}

	if w, ok := p.monitor.Writer(s.Writer); ok {
		w.Wrote(p.clock.Now())
	}
	if rec.Effective.IsReliable() {
		return r.Deliver(ctx, s, rec.Effective.Reliability.MaxBlockingTime)
	}
	return r.Offer(s)
}

func (p *Participant) dropRemote(id types.GUID) {
	p.mu.Lock()
	delete(p.remotes, id)
	p.mu.Unlock()
}
