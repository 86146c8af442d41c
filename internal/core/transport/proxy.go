package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/wire"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// remoteEndpoint 远端公告在本地匹配引擎中的代理
type remoteEndpoint struct {
	ann *wire.Announce
}

func (e remoteEndpoint) GUID() types.GUID       { return e.ann.Endpoint }
func (e remoteEndpoint) Topic() types.TopicName { return e.ann.Topic }
func (e remoteEndpoint) Role() types.Role       { return e.ann.Role }
func (e remoteEndpoint) QoS() qos.Profile       { return e.ann.QoS }

// remoteReader 代理读端的投递出口，把样本作为 Data 帧发往远端
type remoteReader struct {
	id     types.GUID
	bridge *Bridge
}

var _ dispatch.Sink = (*remoteReader)(nil)

func (r *remoteReader) GUID() types.GUID { return r.id }

// Offer 在发送超时内发出 Data 帧
func (r *remoteReader) Offer(s *types.Sample) error {
	ctx, cancel := context.WithTimeout(r.bridge.ctx, r.bridge.cfg.SendTimeout)
	defer cancel()
	return r.send(ctx, s)
}

// Deliver 发送时间受 maxBlocking 与发送超时中较小者约束
func (r *remoteReader) Deliver(ctx context.Context, s *types.Sample, maxBlocking time.Duration) error {
	timeout := r.bridge.cfg.SendTimeout
	if !qos.IsInfinite(maxBlocking) && maxBlocking < timeout {
		timeout = maxBlocking
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.send(ctx, s)
}

func (r *remoteReader) send(ctx context.Context, s *types.Sample) error {
	if r.bridge.closed.Load() {
		return dispatch.ErrPeerGone
	}
	err := r.bridge.publish(ctx, r.bridge.cfg.DataChannel(), &wire.Frame{Data: &wire.Data{
		Participant: r.bridge.self,
		Reader:      r.id,
		Sample:      s,
	}})
	if err != nil {
		return fmt.Errorf("%w: %v", dispatch.ErrTransport, err)
	}
	return nil
}
