package participant

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/internal/core/storage"
	"github.com/dep2p/go-dds/internal/core/storage/engine"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var (
	chatter  = types.TopicName{Namespace: "/", Name: "chatter"}
	typeName = types.TypeName{Package: "std_msgs", Name: "String"}
)

type events struct {
	mu  sync.Mutex
	all []types.StatusEvent
}

func (e *events) listen(ev types.StatusEvent) {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
}

func (e *events) of(kind types.StatusKind) []types.StatusEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.StatusEvent
	for _, ev := range e.all {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func newParticipant(t *testing.T, opts ...Option) *Participant {
	t.Helper()
	p, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.BindTopic(chatter, typeName))
	return p
}

func profile(h qos.History, r qos.Reliability, d qos.Durability) qos.Profile {
	return qos.NewBuilder().History(h).Reliability(r).Durability(d).MustBuild().Complete()
}

func reliable() qos.Reliability { return qos.Reliable(100 * time.Millisecond) }

func publish(t *testing.T, w *endpoint.Writer, from, to int) {
	t.Helper()
	for i := from; i <= to; i++ {
		_, _, err := w.Write(context.Background(), []byte(fmt.Sprintf("count=%d", i)))
		require.NoError(t, err)
	}
}

func drain(t *testing.T, r *endpoint.Reader) []string {
	t.Helper()
	var out []string
	for {
		s, err := r.Take()
		require.NoError(t, err)
		if s == nil {
			return out
		}
		out = append(out, string(s.Data()))
	}
}

func TestParticipant_MulticastAndMatchEvents(t *testing.T) {
	p := newParticipant(t)
	var wev, r1ev events

	w, err := p.CreateWriter(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityVolatile), wev.listen)
	require.NoError(t, err)
	r1, err := p.CreateReader(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityVolatile), r1ev.listen)
	require.NoError(t, err)
	r2, err := p.CreateReader(chatter, profile(qos.KeepLast(10), qos.BestEffort(), qos.DurabilityVolatile), nil)
	require.NoError(t, err)

	publish(t, w, 1, 3)
	assert.Equal(t, []string{"count=1", "count=2", "count=3"}, drain(t, r1))
	assert.Equal(t, []string{"count=1", "count=2", "count=3"}, drain(t, r2))

	pub := wev.of(types.StatusPublicationMatched)
	require.Len(t, pub, 2)
	assert.Equal(t, 2, pub[1].CurrentCount)
	assert.Equal(t, 2, pub[1].TotalCount)

	sub := r1ev.of(types.StatusSubscriptionMatched)
	require.Len(t, sub, 1)
	assert.Equal(t, w.GUID(), sub[0].Peer)
	assert.Equal(t, 2, w.Status().Matched)

	// 读端销毁后写端收到匹配数减少
	require.NoError(t, p.DeleteEndpoint(r2.GUID()))
	pub = wev.of(types.StatusPublicationMatched)
	require.Len(t, pub, 3)
	assert.Equal(t, 1, pub[2].CurrentCount)
	assert.Equal(t, 2, pub[2].TotalCount)
	assert.False(t, pub[2].Alive)
	assert.ErrorIs(t, p.DeleteEndpoint(r2.GUID()), ErrUnknownEndpoint)
}

func TestParticipant_IncompatibleDurability(t *testing.T) {
	p := newParticipant(t)
	var wev, rev events

	w, err := p.CreateWriter(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityVolatile), wev.listen)
	require.NoError(t, err)
	r, err := p.CreateReader(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityTransientLocal), rev.listen)
	require.NoError(t, err)

	publish(t, w, 1, 1)
	assert.Empty(t, drain(t, r))
	assert.Empty(t, p.Matches(w.GUID()))

	req := rev.of(types.StatusRequestedIncompatibleQos)
	require.Len(t, req, 1)
	assert.Equal(t, []string{"durability"}, req[0].Policies)
	assert.Equal(t, w.GUID(), req[0].Peer)

	off := wev.of(types.StatusOfferedIncompatibleQos)
	require.Len(t, off, 1)
	assert.Equal(t, 1, off[0].TotalCount)
}

func TestParticipant_TransientLocalLateJoiner(t *testing.T) {
	p := newParticipant(t)

	w, err := p.CreateWriter(chatter, profile(qos.KeepLast(3), reliable(), qos.DurabilityTransientLocal), nil)
	require.NoError(t, err)
	publish(t, w, 1, 5)

	late, err := p.CreateReader(chatter, profile(qos.KeepLast(3), reliable(), qos.DurabilityTransientLocal), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"count=3", "count=4", "count=5"}, drain(t, late))

	volatile, err := p.CreateReader(chatter, profile(qos.KeepLast(3), reliable(), qos.DurabilityVolatile), nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, volatile))

	// 请求深度大于写端深度时不匹配
	var dev events
	deep, err := p.CreateReader(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityTransientLocal), dev.listen)
	require.NoError(t, err)
	assert.Empty(t, drain(t, deep))
	assert.Empty(t, p.Matches(deep.GUID()))
	req := dev.of(types.StatusRequestedIncompatibleQos)
	require.Len(t, req, 1)
	assert.Equal(t, []string{"history"}, req[0].Policies)

	publish(t, w, 6, 6)
	assert.Equal(t, []string{"count=6"}, drain(t, late))
	assert.Equal(t, []string{"count=6"}, drain(t, volatile))
	assert.Empty(t, drain(t, deep))
}

func TestParticipant_TransientOutlivesWriter(t *testing.T) {
	p := newParticipant(t)

	w, err := p.CreateWriter(chatter, profile(qos.KeepLast(2), reliable(), qos.DurabilityTransient), nil)
	require.NoError(t, err)
	publish(t, w, 1, 3)
	require.NoError(t, p.DeleteEndpoint(w.GUID()))
	assert.Equal(t, 2, p.transient.len(chatter))

	r, err := p.CreateReader(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityTransient), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"count=2", "count=3"}, drain(t, r))

	local, err := p.CreateReader(chatter, profile(qos.KeepLast(10), reliable(), qos.DurabilityTransientLocal), nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, local))
}

func TestParticipant_PersistentSurvivesParticipant(t *testing.T) {
	store, err := storage.Open(storage.Config{Enabled: true, Engine: engine.Config{InMemory: true}})
	require.NoError(t, err)
	defer store.Close()

	persistent := profile(qos.KeepLast(5), reliable(), qos.DurabilityPersistent)

	first, err := New(WithSampleStore(store))
	require.NoError(t, err)
	require.NoError(t, first.BindTopic(chatter, typeName))
	w, err := first.CreateWriter(chatter, persistent, nil)
	require.NoError(t, err)
	publish(t, w, 1, 3)
	require.NoError(t, first.Close())

	second := newParticipant(t, WithSampleStore(store))
	r, err := second.CreateReader(chatter, persistent, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"count=1", "count=2", "count=3"}, drain(t, r))

	// 同一写端的存储样本与 TransientLocal 回放重叠时只交付一次
	w2, err := second.CreateWriter(chatter, persistent, nil)
	require.NoError(t, err)
	publish(t, w2, 1, 2)
	r2, err := second.CreateReader(chatter, persistent, nil)
	require.NoError(t, err)
	got := drain(t, r2)
	assert.Len(t, got, 5)
}

func TestParticipant_PersistentWithoutStore(t *testing.T) {
	p := newParticipant(t)
	persistent := profile(qos.KeepLast(5), reliable(), qos.DurabilityPersistent)

	w, err := p.CreateWriter(chatter, persistent, nil)
	require.NoError(t, err)
	publish(t, w, 1, 2)
	require.NoError(t, p.DeleteEndpoint(w.GUID()))

	r, err := p.CreateReader(chatter, persistent, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"count=1", "count=2"}, drain(t, r))
}

func TestParticipant_ReliableTimeoutIsolated(t *testing.T) {
	p := newParticipant(t)
	var wev events

	keepAll := qos.NewBuilder().
		History(qos.KeepAll()).
		Reliability(reliable()).
		ResourceLimits(1).
		MustBuild().
		Complete()

	w, err := p.CreateWriter(chatter, profile(qos.KeepAll(), reliable(), qos.DurabilityVolatile), wev.listen)
	require.NoError(t, err)
	slow, err := p.CreateReader(chatter, keepAll, nil)
	require.NoError(t, err)
	fast, err := p.CreateReader(chatter, profile(qos.KeepAll(), reliable(), qos.DurabilityVolatile), nil)
	require.NoError(t, err)

	_, report, err := w.Write(context.Background(), []byte("count=1"))
	require.NoError(t, err)
	require.NoError(t, report.Err())

	start := time.Now()
	_, report, err = w.Write(context.Background(), []byte("count=2"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], dispatch.ErrBlockedTimeout)
	assert.Equal(t, slow.GUID(), report.Failures[0].Peer)

	assert.Equal(t, []string{"count=1", "count=2"}, drain(t, fast))
	assert.Equal(t, []string{"count=1"}, drain(t, slow))

	failed := wev.of(types.StatusDeliveryFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, slow.GUID(), failed[0].Peer)
	assert.ErrorIs(t, failed[0].Err, dispatch.ErrBlockedTimeout)
}

func TestParticipant_TopicBinding(t *testing.T) {
	p := newParticipant(t)

	assert.NoError(t, p.BindTopic(chatter, typeName))
	assert.ErrorIs(t, p.BindTopic(chatter, types.TypeName{Package: "geometry_msgs", Name: "Twist"}), ErrTypeMismatch)

	_, err := p.CreateWriter(types.TopicName{Namespace: "/", Name: "unknown"}, qos.Default(), nil)
	assert.ErrorIs(t, err, ErrTopicNotBound)

	typ, ok := p.TopicType(chatter)
	assert.True(t, ok)
	assert.Equal(t, typeName, typ)
}

func TestParticipant_LivelinessEvents(t *testing.T) {
	clk := clock.NewMock()
	cfg := DefaultConfig()
	cfg.Clock = clk
	p := newParticipant(t, WithConfig(cfg))
	var wev, rev events

	lease := qos.NewBuilder().
		Liveliness(qos.LivelinessManualByTopic, 100*time.Millisecond).
		MustBuild().
		Complete()
	w, err := p.CreateWriter(chatter, lease, wev.listen)
	require.NoError(t, err)
	_, err = p.CreateReader(chatter, lease, rev.listen)
	require.NoError(t, err)

	clk.Add(150 * time.Millisecond)
	p.monitor.Check(clk.Now())

	require.Len(t, wev.of(types.StatusLivelinessLost), 1)
	changed := rev.of(types.StatusLivelinessChanged)
	require.NotEmpty(t, changed)
	assert.Equal(t, 1, changed[len(changed)-1].NotAliveCount)
	assert.False(t, w.Status().Alive)

	require.NoError(t, w.AssertLiveliness())
	p.monitor.Check(clk.Now())
	assert.True(t, w.Status().Alive)
}

func TestParticipant_AssertLiveliness(t *testing.T) {
	clk := clock.NewMock()
	cfg := DefaultConfig()
	cfg.Clock = clk
	p := newParticipant(t, WithConfig(cfg))

	lease := qos.NewBuilder().
		Liveliness(qos.LivelinessManualByParticipant, 100*time.Millisecond).
		MustBuild().
		Complete()
	w, err := p.CreateWriter(chatter, lease, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		clk.Add(60 * time.Millisecond)
		require.NoError(t, p.AssertLiveliness())
		p.monitor.Check(clk.Now())
	}
	assert.True(t, w.Status().Alive)
}

func TestParticipant_EventBus(t *testing.T) {
	p := newParticipant(t)
	sub, err := p.EventBus().Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	_, err = p.CreateWriter(chatter, qos.Default(), nil)
	require.NoError(t, err)
	_, err = p.CreateReader(chatter, qos.Default(), nil)
	require.NoError(t, err)

	select {
	case ev := <-sub.Out():
		assert.Contains(t, []types.StatusKind{types.StatusPublicationMatched, types.StatusSubscriptionMatched, types.StatusLivelinessChanged}, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("事件总线未收到匹配事件")
	}
}

func TestParticipant_Close(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	require.NoError(t, p.Start())
	require.NoError(t, p.BindTopic(chatter, typeName))

	w, err := p.CreateWriter(chatter, qos.Default(), nil)
	require.NoError(t, err)
	r, err := p.CreateReader(chatter, qos.Default(), nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.True(t, w.Closed())
	assert.True(t, r.Closed())
	assert.Empty(t, p.LocalEndpoints())
	_, err = p.CreateReader(chatter, qos.Default(), nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Start(), ErrClosed)
}

// ============================================================================
//                              远端代理
// ============================================================================

type proxy struct {
	id      types.GUID
	topic   types.TopicName
	role    types.Role
	profile qos.Profile
}

func (x proxy) GUID() types.GUID { return x.id }
func (x proxy) Topic() types.TopicName { return x.topic }
func (x proxy) Role() types.Role { return x.role }
func (x proxy) QoS() qos.Profile { return x.profile }

type captureSink struct {
	id types.GUID
	mu sync.Mutex
	ss []*types.Sample
}

func (c *captureSink) GUID() types.GUID { return c.id }

func (c *captureSink) Offer(s *types.Sample) error {
	c.mu.Lock()
	c.ss = append(c.ss, s)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) Deliver(_ context.Context, s *types.Sample, _ time.Duration) error {
	return c.Offer(s)
}

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ss)
}

func TestParticipant_RemoteWriter(t *testing.T) {
	p := newParticipant(t)
	var rev events

	remote := types.NewParticipantPrefix()
	w := proxy{id: types.NewGUID(remote), topic: chatter, role: types.RoleWriter, profile: qos.Default()}
	require.NoError(t, p.AddRemote(w, typeName, nil))
	assert.Equal(t, []types.GUID{w.id}, p.RemoteEndpoints(remote))

	r, err := p.CreateReader(chatter, qos.Default(), rev.listen)
	require.NoError(t, err)
	require.Len(t, rev.of(types.StatusSubscriptionMatched), 1)

	s := types.NewSample(w.id, chatter, 1, time.Now(), qos.Infinite, []byte("hello"))
	require.NoError(t, p.DeliverRemote(context.Background(), r.GUID(), s))
	assert.Equal(t, []string{"hello"}, drain(t, r))

	assert.ErrorIs(t, p.DeliverRemote(context.Background(), types.NewGUID(remote), s), ErrUnknownEndpoint)
	stranger := types.NewSample(types.NewGUID(remote), chatter, 1, time.Now(), qos.Infinite, nil)
	assert.ErrorIs(t, p.DeliverRemote(context.Background(), r.GUID(), stranger), ErrNoMatch)

	p.RemoveRemote(w.id)
	assert.Empty(t, p.RemoteEndpoints(remote))
	sub := rev.of(types.StatusSubscriptionMatched)
	require.Len(t, sub, 2)
	assert.Equal(t, 0, sub[1].CurrentCount)
}

func TestParticipant_RemoteReader(t *testing.T) {
	p := newParticipant(t)

	remote := types.NewParticipantPrefix()
	sink := &captureSink{id: types.NewGUID(remote)}
	rd := proxy{id: sink.id, topic: chatter, role: types.RoleReader, profile: qos.Default()}

	assert.ErrorIs(t, p.AddRemote(rd, typeName, nil), ErrUnknownEndpoint)
	assert.ErrorIs(t, p.AddRemote(rd, types.TypeName{Package: "geometry_msgs", Name: "Twist"}, sink), ErrTypeMismatch)
	require.NoError(t, p.AddRemote(rd, typeName, sink))

	w, err := p.CreateWriter(chatter, qos.Default(), nil)
	require.NoError(t, err)
	publish(t, w, 1, 3)
	assert.Equal(t, 3, sink.len())

	p.RemoveRemote(rd.id)
	publish(t, w, 4, 4)
	assert.Equal(t, 3, sink.len())
	assert.Empty(t, p.Matches(w.GUID()))
}
