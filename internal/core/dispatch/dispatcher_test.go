package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dds/internal/core/history"
	"github.com/dep2p/go-dds/internal/core/matching"
	"github.com/dep2p/go-dds/internal/core/metrics"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var (
	prefix = types.NewParticipantPrefix()
	topic  = types.TopicName{Namespace: "/", Name: "topic"}
)

// endpoint 同时实现 matching.Endpoint 与 Sink
type endpoint struct {
	id   types.GUID
	role types.Role
	qos  qos.Profile
	buf  *history.Buffer
}

func (e *endpoint) GUID() types.GUID       { return e.id }
func (e *endpoint) Topic() types.TopicName { return topic }
func (e *endpoint) Role() types.Role       { return e.role }
func (e *endpoint) QoS() qos.Profile       { return e.qos }

func (e *endpoint) Offer(s *types.Sample) error { return e.buf.Write(s) }

func (e *endpoint) Deliver(ctx context.Context, s *types.Sample, maxBlocking time.Duration) error {
	return e.buf.WriteWait(ctx, s, maxBlocking)
}

type fixture struct {
	engine *matching.Engine
	d      *Dispatcher
}

func newFixture() *fixture {
	engine := matching.NewEngine()
	return &fixture{engine: engine, d: New(engine, metrics.New(nil), DefaultConfig())}
}

func (f *fixture) add(t *testing.T, role types.Role, p qos.Profile) *endpoint {
	t.Helper()
	cfg := history.ConfigFromProfile(p)
	ep := &endpoint{id: types.NewGUID(prefix), role: role, qos: p, buf: history.New(cfg)}
	if role == types.RoleReader {
		f.d.Register(ep)
	}
	_, _, err := f.engine.Add(ep)
	require.NoError(t, err)
	return ep
}

func reliableQoS() qos.Profile {
	return qos.NewBuilder().
		History(qos.KeepLast(10)).
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityTransientLocal).
		MustBuild().
		Complete()
}

func sample(w *endpoint, seq types.SequenceNumber, data string) *types.Sample {
	return types.NewSample(w.id, topic, seq, time.Now(), 0, []byte(data))
}

func TestDispatcher_RoundTrip(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())
	r := f.add(t, types.RoleReader, reliableQoS())

	report := f.d.Publish(context.Background(), w.id, sample(w, 1, "count=1"))
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Delivered)

	got := r.buf.Take(nil)
	require.NotNil(t, got)
	assert.Equal(t, "count=1", string(got.Data()))
	assert.Nil(t, r.buf.Take(nil))
}

func TestDispatcher_Multicast(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())
	r1 := f.add(t, types.RoleReader, reliableQoS())
	r2 := f.add(t, types.RoleReader, reliableQoS())

	for i := 1; i <= 3; i++ {
		report := f.d.Publish(context.Background(), w.id, sample(w, types.SequenceNumber(i), "x"))
		require.NoError(t, report.Err())
		assert.Equal(t, 2, report.Delivered)
	}

	// 缓冲区不共享：各自拿到全部样本
	assert.Equal(t, 3, r1.buf.Len())
	assert.Equal(t, 3, r2.buf.Len())
	r1.buf.Take(nil)
	assert.Equal(t, 3, r2.buf.Len())
}

func keepAllWriterQoS() qos.Profile {
	p := reliableQoS()
	p.History = qos.KeepAll()
	return p
}

// 一个可靠对端阻塞超时，另一个对端仍然收到样本
func TestDispatcher_ReliableTimeoutIsolated(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, keepAllWriterQoS())

	blockedQoS := reliableQoS()
	blockedQoS.History = qos.KeepAll()
	blockedQoS.ResourceLimits = qos.ResourceLimits{MaxSamples: 1}
	blocked := f.add(t, types.RoleReader, blockedQoS)
	healthy := f.add(t, types.RoleReader, reliableQoS())

	var (
		mu       sync.Mutex
		failures []*DeliveryError
	)
	f.d.OnFailure(func(writer types.GUID, err *DeliveryError) {
		mu.Lock()
		failures = append(failures, err)
		mu.Unlock()
	})

	require.NoError(t, f.d.Publish(context.Background(), w.id, sample(w, 1, "count=1")).Err())

	start := time.Now()
	report := f.d.Publish(context.Background(), w.id, sample(w, 2, "count=2"))
	elapsed := time.Since(start)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, blocked.id, report.Failures[0].Peer)
	assert.ErrorIs(t, report.Err(), ErrBlockedTimeout)
	assert.ErrorIs(t, report.Failures[0], history.ErrBlockingTimeout)
	assert.Equal(t, 1, report.Delivered)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, time.Second)

	assert.Equal(t, []string{"count=1", "count=2"}, dataOf(healthy.buf.Snapshot()))
	assert.Equal(t, []string{"count=1"}, dataOf(blocked.buf.Snapshot()))

	mu.Lock()
	assert.Len(t, failures, 1)
	mu.Unlock()
	assert.Equal(t, int64(1), f.d.Stats().TotalTimeouts)
}

func TestDispatcher_BestEffortDropsSilently(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, keepAllWriterQoS())

	be := reliableQoS()
	be.Reliability = qos.BestEffort()
	be.History = qos.KeepAll()
	be.ResourceLimits = qos.ResourceLimits{MaxSamples: 1}
	r := f.add(t, types.RoleReader, be)

	called := false
	f.d.OnFailure(func(types.GUID, *DeliveryError) { called = true })

	require.NoError(t, f.d.Publish(context.Background(), w.id, sample(w, 1, "a")).Err())
	report := f.d.Publish(context.Background(), w.id, sample(w, 2, "b"))

	assert.NoError(t, report.Err())
	assert.Equal(t, 1, report.Dropped)
	assert.False(t, called)
	assert.Equal(t, []string{"a"}, dataOf(r.buf.Snapshot()))
}

func TestDispatcher_PeerGone(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())
	r := f.add(t, types.RoleReader, reliableQoS())
	r.buf.Close()

	report := f.d.Publish(context.Background(), w.id, sample(w, 1, "a"))
	require.Len(t, report.Failures, 1)
	assert.True(t, errors.Is(report.Failures[0], ErrPeerGone))
}

func TestDispatcher_UnregisteredSinkSkipped(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())
	r := f.add(t, types.RoleReader, reliableQoS())
	f.d.Unregister(r.id)

	report := f.d.Publish(context.Background(), w.id, sample(w, 1, "a"))
	assert.NoError(t, report.Err())
	assert.Equal(t, 0, report.Delivered)
}

func TestDispatcher_NoMatches(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())

	report := f.d.Publish(context.Background(), w.id, sample(w, 1, "a"))
	assert.Equal(t, 0, report.Matched)
	assert.NoError(t, report.Err())
}

func TestDispatcher_Replay(t *testing.T) {
	f := newFixture()
	w := f.add(t, types.RoleWriter, reliableQoS())
	retained := []*types.Sample{sample(w, 1, "a"), sample(w, 2, "b")}

	r := f.add(t, types.RoleReader, reliableQoS())
	rec, ok := f.engine.Lookup(w.id, r.id)
	require.True(t, ok)

	report := f.d.Replay(context.Background(), rec, retained)
	require.NoError(t, report.Err())
	assert.Equal(t, []string{"a", "b"}, dataOf(r.buf.Snapshot()))

	// Volatile 不回放
	volatile := reliableQoS()
	volatile.Durability = qos.DurabilityVolatile
	v := f.add(t, types.RoleReader, volatile)
	rec, ok = f.engine.Lookup(w.id, v.id)
	require.True(t, ok)
	f.d.Replay(context.Background(), rec, retained)
	assert.Equal(t, 0, v.buf.Len())
}

func dataOf(samples []*types.Sample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, string(s.Data()))
	}
	return out
}
