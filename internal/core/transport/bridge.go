package transport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/participant"
	"github.com/dep2p/go-dds/internal/core/wire"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/transport")

// maxPending 每个未知写端暂存的 Data 帧上限
const maxPending = 64

// pendingData 写端公告到达前收到的样本
type pendingData struct {
	data *wire.Data
	at   time.Time
}

// ============================================================================
//                              Bridge
// ============================================================================

// Bridge 参与者与跨进程传输之间的桥
type Bridge struct {
	cfg   Config
	tr    pkgif.Transport
	p     *participant.Participant
	self  uuid.UUID
	clock clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	local map[types.GUID]*wire.Announce
	peers map[uuid.UUID]time.Time

	// pending 按写端暂存，写端代理建立后补交
	pending map[types.GUID][]pendingData

	started atomic.Bool
	closed  atomic.Bool
}

var _ participant.Observer = (*Bridge)(nil)

// New 创建传输桥
func New(cfg Config, tr pkgif.Transport, p *participant.Participant) (*Bridge, error) {
	if tr == nil || p == nil {
		return nil, errors.New("transport and participant are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Domain = p.Domain()

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		cfg:     cfg,
		tr:      tr,
		p:       p,
		self:    p.Prefix(),
		clock:   p.Clock(),
		ctx:     ctx,
		cancel:  cancel,
		local:   make(map[types.GUID]*wire.Announce),
		peers:   make(map[uuid.UUID]time.Time),
		pending: make(map[types.GUID][]pendingData),
	}, nil
}

// Start 订阅通道并开始公告本地端点
func (b *Bridge) Start() error {
	if b.closed.Load() {
		return ErrBridgeClosed
	}
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	disc, err := b.tr.Subscribe(b.ctx, b.cfg.DiscoveryChannel())
	if err != nil {
		return err
	}
	data, err := b.tr.Subscribe(b.ctx, b.cfg.DataChannel())
	if err != nil {
		return err
	}

	b.wg.Add(3)
	go b.recvLoop(disc, b.handleDiscovery)
	go b.recvLoop(data, b.handleData)
	go b.announceLoop()

	// 已有端点在此回放公告
	b.p.Observe(b)

	logger.Info("传输桥已启动",
		"participant", log.TruncateID(b.self.String(), 8),
		"discovery", b.cfg.DiscoveryChannel(),
		"data", b.cfg.DataChannel())
	return nil
}

// Close 撤销本参与者并移除全部远端代理
//
// 传输本身由调用方关闭。
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}

	if b.started.Load() {
		ctx, cancel := context.WithTimeout(b.ctx, b.cfg.SendTimeout)
		err := b.publish(ctx, b.cfg.DiscoveryChannel(), &wire.Frame{Withdraw: &wire.Withdraw{Participant: b.self}})
		cancel()
		if err != nil {
			logger.Warn("发送参与者撤销失败", "error", err)
		}
	}

	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	peers := make([]uuid.UUID, 0, len(b.peers))
	for prefix := range b.peers {
		peers = append(peers, prefix)
	}
	b.mu.Unlock()
	for _, prefix := range peers {
		b.dropPeer(prefix)
	}

	logger.Info("传输桥已关闭", "participant", log.TruncateID(b.self.String(), 8))
	return nil
}

// Peers 返回当前可见的远端参与者
func (b *Bridge) Peers() []uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uuid.UUID, 0, len(b.peers))
	for prefix := range b.peers {
		out = append(out, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ============================================================================
//                              本地端点
// ============================================================================

// LocalEndpointAdded 公告新的本地端点
func (b *Bridge) LocalEndpointAdded(ep participant.LocalEndpoint) {
	if b.closed.Load() {
		return
	}
	ann := &wire.Announce{
		Participant: b.self,
		Endpoint:    ep.GUID,
		Role:        ep.Role,
		Topic:       ep.Topic,
		Type:        ep.Type,
		QoS:         ep.QoS,
	}
	b.mu.Lock()
	b.local[ep.GUID] = ann
	b.mu.Unlock()

	b.send(b.cfg.DiscoveryChannel(), &wire.Frame{Announce: ann})
}

// LocalEndpointRemoved 撤销本地端点
func (b *Bridge) LocalEndpointRemoved(id types.GUID) {
	b.mu.Lock()
	_, ok := b.local[id]
	delete(b.local, id)
	b.mu.Unlock()
	if !ok || b.closed.Load() {
		return
	}
	b.send(b.cfg.DiscoveryChannel(), &wire.Frame{Withdraw: &wire.Withdraw{Participant: b.self, Endpoint: id}})
}

// ============================================================================
//                              入站帧
// ============================================================================

func (b *Bridge) handleDiscovery(f *wire.Frame) {
	from := f.Participant()
	if from == b.self || from == uuid.Nil {
		return
	}
	b.touch(from)

	switch {
	case f.Announce != nil:
		b.onAnnounce(f.Announce)
	case f.Withdraw != nil:
		if f.Withdraw.Endpoint.IsZero() {
			logger.Info("远端参与者离开", "participant", log.TruncateID(from.String(), 8))
			b.dropPeer(from)
			return
		}
		b.p.RemoveRemote(f.Withdraw.Endpoint)
	}
}

func (b *Bridge) onAnnounce(a *wire.Announce) {
	var sink dispatch.Sink
	if a.Role == types.RoleReader {
		sink = &remoteReader{id: a.Endpoint, bridge: b}
	}
	if err := b.p.AddRemote(remoteEndpoint{ann: a}, a.Type, sink); err != nil {
		logger.Warn("无法建立远端代理",
			"topic", a.Topic.String(),
			"endpoint", a.Endpoint.ShortString(),
			"type", a.Type.String(),
			"error", err)
		return
	}
	if a.Role == types.RoleWriter {
		b.flush(a.Endpoint)
	}
}

func (b *Bridge) handleData(f *wire.Frame) {
	d := f.Data
	if d == nil || d.Participant == b.self || d.Reader.Prefix != b.self {
		return
	}
	b.touch(d.Participant)

	err := b.p.DeliverRemote(b.ctx, d.Reader, d.Sample)
	if errors.Is(err, participant.ErrNoMatch) {
		b.stash(d)
		return
	}
	if err != nil {
		logger.Debug("远端样本未交付",
			"reader", d.Reader.ShortString(),
			"sample", d.Sample.ID().String(),
			"error", err)
	}
}

// stash 暂存尚未与读端匹配的写端发来的样本
//
// 发现与数据走不同通道，写端公告可能晚于它的第一批样本。
// 每次收到该写端的公告都会补交一次。
func (b *Bridge) stash(d *wire.Data) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.pending[d.Sample.Writer]
	if len(q) >= maxPending {
		q = q[1:]
	}
	b.pending[d.Sample.Writer] = append(q, pendingData{data: d, at: b.clock.Now()})
}

// flush 补交写端代理建立前暂存的样本
func (b *Bridge) flush(writer types.GUID) {
	b.mu.Lock()
	q := b.pending[writer]
	delete(b.pending, writer)
	b.mu.Unlock()

	for _, pd := range q {
		if err := b.p.DeliverRemote(b.ctx, pd.data.Reader, pd.data.Sample); err != nil {
			logger.Debug("暂存样本未交付",
				"reader", pd.data.Reader.ShortString(),
				"sample", pd.data.Sample.ID().String(),
				"error", err)
		}
	}
}

// touch 记录远端参与者的最近活动，并作为其 Automatic 写端的心跳
func (b *Bridge) touch(prefix uuid.UUID) {
	b.mu.Lock()
	_, known := b.peers[prefix]
	b.peers[prefix] = b.clock.Now()
	b.mu.Unlock()

	if !known {
		logger.Info("发现远端参与者", "participant", log.TruncateID(prefix.String(), 8))
	}
	b.p.AssertRemote(prefix)
}

// expire 移除在 now 时刻已超过租约的远端参与者
func (b *Bridge) expire(now time.Time) {
	var stale []uuid.UUID
	b.mu.Lock()
	for prefix, last := range b.peers {
		if now.Sub(last) > b.cfg.LeaseDuration {
			stale = append(stale, prefix)
		}
	}
	for writer, q := range b.pending {
		if now.Sub(q[len(q)-1].at) > b.cfg.LeaseDuration {
			delete(b.pending, writer)
		}
	}
	b.mu.Unlock()

	for _, prefix := range stale {
		logger.Warn("远端参与者租约过期", "participant", log.TruncateID(prefix.String(), 8))
		b.dropPeer(prefix)
	}
}

func (b *Bridge) dropPeer(prefix uuid.UUID) {
	b.mu.Lock()
	delete(b.peers, prefix)
	for writer := range b.pending {
		if writer.Prefix == prefix {
			delete(b.pending, writer)
		}
	}
	b.mu.Unlock()
	for _, id := range b.p.RemoteEndpoints(prefix) {
		b.p.RemoveRemote(id)
	}
}

// ============================================================================
//                              循环与发送
// ============================================================================

func (b *Bridge) recvLoop(ch <-chan []byte, handle func(*wire.Frame)) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			f, err := wire.Unmarshal(raw)
			if err != nil {
				logger.Debug("丢弃无法解码的帧", "size", len(raw), "error", err)
				continue
			}
			handle(f)
		}
	}
}

func (b *Bridge) announceLoop() {
	defer b.wg.Done()
	ticker := b.clock.Ticker(b.cfg.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.reannounce()
			b.expire(b.clock.Now())
		}
	}
}

func (b *Bridge) reannounce() {
	b.mu.Lock()
	anns := make([]*wire.Announce, 0, len(b.local))
	for _, a := range b.local {
		anns = append(anns, a)
	}
	b.mu.Unlock()

	for _, a := range anns {
		b.send(b.cfg.DiscoveryChannel(), &wire.Frame{Announce: a})
	}
}

// send 在发送超时内发出帧，失败只记录日志
func (b *Bridge) send(channel string, f *wire.Frame) {
	ctx, cancel := context.WithTimeout(b.ctx, b.cfg.SendTimeout)
	defer cancel()
	if err := b.publish(ctx, channel, f); err != nil {
		logger.Warn("发送帧失败", "channel", channel, "kind", f.Kind().String(), "error", err)
	}
}

func (b *Bridge) publish(ctx context.Context, channel string, f *wire.Frame) error {
	raw, err := wire.Marshal(f)
	if err != nil {
		return err
	}
	return b.tr.Publish(ctx, channel, raw)
}
