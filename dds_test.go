package dds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dep2p/go-dds/internal/core/transport/inmem"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

func newContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	c, err := NewContext(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newTestNode(t *testing.T, c *Context) *Node {
	t.Helper()
	n, err := c.NewNode("/", "test_node")
	require.NoError(t, err)
	return n
}

// talkerQoS 与演示程序一致的策略
func talkerQoS() *qos.Policies {
	return qos.NewBuilder().
		History(qos.KeepLast(10)).
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityTransientLocal).
		MustBuild()
}

type recorder struct {
	mu     sync.Mutex
	events []types.StatusEvent
}

func (r *recorder) listen(ev types.StatusEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) of(kind types.StatusKind) []types.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.StatusEvent
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestScenario_TopicString(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)

	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)
	assert.Equal(t, "/topic", topic.Name().String())

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	assert.Len(t, c.participant.Matches(pub.GUID()), 1)
	assert.Equal(t, 1, pub.Status().Matched)

	require.NoError(t, pub.Publish(context.Background(), "count=1"))

	msg, err := sub.Take()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "count=1", msg.Value)
	assert.Equal(t, pub.GUID(), msg.Info.Writer)
	assert.Equal(t, types.SequenceNumber(1), msg.Info.Seq)

	msg, err = sub.Take()
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestScenario_IncompatibleDurability(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	offered := qos.NewBuilder().
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityVolatile).
		MustBuild()
	requested := qos.NewBuilder().
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityTransientLocal).
		MustBuild()

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, offered)
	require.NoError(t, err)
	rec := &recorder{}
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, requested, WithStatusListener(rec.listen))
	require.NoError(t, err)

	assert.Empty(t, c.participant.Matches(sub.GUID()))
	evs := rec.of(types.StatusRequestedIncompatibleQos)
	require.Len(t, evs, 1)
	assert.Equal(t, []string{"durability"}, evs[0].Policies)
	assert.Equal(t, pub.GUID(), evs[0].Peer)

	for i := 1; i <= 5; i++ {
		require.NoError(t, pub.Publish(context.Background(), fmt.Sprintf("count=%d", i)))
		msg, err := sub.Take()
		assert.NoError(t, err)
		assert.Nil(t, msg)
	}
}

func TestCreateTopic_Errors(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)

	_, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	// 同名同类型可重复创建
	_, err = n.CreateTopic("topic", "std_msgs/String", nil)
	require.NoError(t, err)

	_, err = n.CreateTopic("/topic", "geometry_msgs/Twist", nil)
	require.ErrorIs(t, err, ErrConfiguration)
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "type_name", cerr.Field)

	_, err = n.CreateTopic("/bad topic", "std_msgs/String", nil)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = n.CreateTopic("/ok", "String", nil)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "type_name", cerr.Field)
}

func TestCreatePublisher_InvalidQoS(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	h := qos.KeepLast(0)
	_, err = CreatePublisher[string](n, topic, StringCodec{}, &qos.Policies{History: &h})
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "qos", cerr.Field)

	_, err = CreateSubscription[string](n, topic, nil, nil)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "codec", cerr.Field)
}

func TestTopicQoS_Layering(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)

	topicQoS := qos.NewBuilder().
		History(qos.KeepLast(5)).
		Durability(qos.DurabilityTransientLocal).
		MustBuild()
	topic, err := n.CreateTopic("chatter", "std_msgs/String", topicQoS)
	require.NoError(t, err)
	assert.Equal(t, "/chatter", topic.Name().String())

	pub, err := CreatePublisher[string](n, topic, StringCodec{},
		qos.NewBuilder().Reliability(qos.BestEffort()).MustBuild())
	require.NoError(t, err)

	p := pub.QoS()
	assert.Equal(t, qos.KeepLast(5), p.History)
	assert.Equal(t, qos.DurabilityTransientLocal, p.Durability)
	assert.Equal(t, qos.BestEffort(), p.Reliability)
	assert.True(t, qos.IsInfinite(p.Deadline.Period))
}

func TestTopic_QoSIsCopy(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)

	q := talkerQoS()
	topic, err := n.CreateTopic("chatter", "std_msgs/String", q)
	require.NoError(t, err)

	got := topic.QoS()
	got.History.Depth = 1
	*got.Durability = qos.DurabilityVolatile
	q.History.Depth = 2

	again := topic.QoS()
	assert.Equal(t, qos.KeepLast(10), *again.History)
	assert.Equal(t, qos.DurabilityTransientLocal, *again.Durability)

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, nil)
	require.NoError(t, err)
	assert.Equal(t, qos.KeepLast(10), pub.QoS().History)
}

func TestSubscription_ReadinessTakeLoop(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	ready := make(chan any, 1)
	sub.Readiness().Register(1, ready)

	for i := 1; i <= 3; i++ {
		require.NoError(t, pub.Publish(context.Background(), fmt.Sprintf("count=%d", i)))
	}

	select {
	case token := <-ready:
		assert.Equal(t, 1, token)
	case <-time.After(time.Second):
		t.Fatal("no readiness token")
	}

	var got []string
	for {
		msg, err := sub.Take()
		require.NoError(t, err)
		if msg == nil {
			break
		}
		got = append(got, msg.Value)
	}
	assert.Equal(t, []string{"count=1", "count=2", "count=3"}, got)
}

func TestSubscription_StreamReceiveError(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	raw, err := CreatePublisher[[]byte](n, topic, BytesCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream := sub.Stream(ctx)

	require.NoError(t, raw.Publish(context.Background(), []byte{0xff, 0xfe}))
	require.NoError(t, raw.Publish(context.Background(), []byte("count=2")))

	first := <-stream
	var rerr *ReceiveError
	require.True(t, errors.As(first.Err, &rerr))
	assert.Equal(t, raw.GUID(), rerr.Writer)
	assert.Equal(t, types.SequenceNumber(1), rerr.Seq)
	assert.Nil(t, first.Message)

	second := <-stream
	require.NoError(t, second.Err)
	assert.Equal(t, "count=2", second.Message.Value)

	cancel()
	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancel")
	}

	// 另一个消费者不受影响
	require.NoError(t, raw.Publish(context.Background(), []byte("count=3")))
	msg, err := sub.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "count=3", msg.Value)
}

func TestSubscription_StreamCancelKeepsPending(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "count=1"))
	require.NoError(t, pub.Publish(context.Background(), "count=2"))

	ctx, cancel := context.WithCancel(context.Background())
	stream := sub.Stream(ctx)
	first := <-stream
	require.NoError(t, first.Err)
	assert.Equal(t, "count=1", first.Message.Value)

	// count=2 已被推送协程取出，等待消费者接收
	require.Eventually(t, func() bool { return sub.Len() == 0 }, time.Second, time.Millisecond)
	cancel()

	require.Eventually(t, func() bool { return sub.Len() == 1 }, time.Second, time.Millisecond)
	_, ok := <-stream
	assert.False(t, ok)

	msg, err := sub.Take()
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "count=2", msg.Value)

	msg, err = sub.Take()
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestPublishReport_ReliableTimeout(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	q := qos.NewBuilder().
		History(qos.KeepAll()).
		Reliability(qos.Reliable(50 * time.Millisecond)).
		MustBuild()
	slowQ := qos.NewBuilder().
		History(qos.KeepAll()).
		Reliability(qos.Reliable(50 * time.Millisecond)).
		ResourceLimits(1).
		MustBuild()

	rec := &recorder{}
	pub, err := CreatePublisher[string](n, topic, StringCodec{}, q, WithStatusListener(rec.listen))
	require.NoError(t, err)
	slow, err := CreateSubscription[string](n, topic, StringCodec{}, slowQ)
	require.NoError(t, err)
	fast, err := CreateSubscription[string](n, topic, StringCodec{}, q)
	require.NoError(t, err)

	report, err := pub.PublishReport(context.Background(), "count=1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Delivered)

	start := time.Now()
	report, err = pub.PublishReport(context.Background(), "count=2")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0], ErrBlockedTimeout)
	assert.Equal(t, slow.GUID(), report.Failures[0].Peer)
	assert.Equal(t, 1, report.Delivered)
	assert.Len(t, rec.of(types.StatusDeliveryFailed), 1)

	for _, want := range []string{"count=1", "count=2"} {
		msg, err := fast.Take()
		require.NoError(t, err)
		assert.Equal(t, want, msg.Value)
	}
}

func TestClose_Semantics(t *testing.T) {
	c := newContext(t)
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	pub, err := CreatePublisher[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), "late"), ErrEndpointDestroyed)
	assert.Empty(t, c.participant.Matches(sub.GUID()))

	done := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, n.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrEndpointDestroyed)
	case <-time.After(time.Second):
		t.Fatal("Next not woken by node close")
	}

	_, err = CreatePublisher[string](n, topic, StringCodec{}, nil)
	assert.ErrorIs(t, err, ErrNodeClosed)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err = c.NewNode("/", "again")
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, c.AssertLiveliness(), ErrContextClosed)
}

func TestContext_Subscribe(t *testing.T) {
	c := newContext(t, WithDomain(4))
	assert.Equal(t, 4, c.Domain())
	n := newTestNode(t, c)
	topic, err := n.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)

	events, err := c.Subscribe(pkgif.Kinds(types.StatusSubscriptionMatched))
	require.NoError(t, err)
	defer events.Close()

	_, err = CreatePublisher[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)
	sub, err := CreateSubscription[string](n, topic, StringCodec{}, talkerQoS())
	require.NoError(t, err)

	select {
	case ev := <-events.Out():
		assert.Equal(t, sub.GUID(), ev.Endpoint)
		assert.Equal(t, 1, ev.CurrentCount)
	case <-time.After(time.Second):
		t.Fatal("no match event")
	}
}

func TestContext_InmemLateJoiner(t *testing.T) {
	hub := inmem.NewHub(0)
	tr1, tr2 := hub.Transport(), hub.Transport()
	t.Cleanup(func() {
		_ = tr1.Close()
		_ = tr2.Close()
	})

	talker := newContext(t, WithTransport(tr1))
	tn := newTestNode(t, talker)
	topic, err := tn.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)
	pub, err := CreatePublisher(tn, topic, StringValueCodec(), talkerQoS())
	require.NoError(t, err)
	for i := 1; i <= 12; i++ {
		require.NoError(t, pub.Publish(context.Background(), wrapperspb.String(fmt.Sprintf("count=%d", i))))
	}

	listener := newContext(t, WithTransport(tr2))
	ln := newTestNode(t, listener)
	ltopic, err := ln.CreateTopic("/topic", "std_msgs/String", nil)
	require.NoError(t, err)
	sub, err := CreateSubscription(ln, ltopic, StringValueCodec(), talkerQoS())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var got []string
	for len(got) < 10 {
		msg, err := sub.Next(ctx)
		require.NoError(t, err, "received %v", got)
		got = append(got, msg.Value.GetValue())
	}
	assert.Equal(t, "count=3", got[0])
	assert.Equal(t, "count=12", got[9])
	assert.Equal(t, []string{talker.Participant().String()}, peerStrings(listener))
}

func peerStrings(c *Context) []string {
	var out []string
	for _, p := range c.Peers() {
		out = append(out, p.String())
	}
	return out
}

func TestNewContext_Options(t *testing.T) {
	_, err := NewContext(context.Background(), WithDomain(-1))
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewContext(context.Background(), WithConfig(nil))
	assert.ErrorIs(t, err, ErrConfiguration)

	c := newContext(t, WithStorage(""))
	assert.NotNil(t, c.store)
	assert.Nil(t, c.bridge)
	assert.NotNil(t, c.Gatherer())
	assert.Empty(t, c.Peers())
}
