package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var testTopic = types.TopicName{Namespace: "/", Name: "topic"}

type sampler struct {
	writer types.GUID
	clk    clock.Clock
	seq    types.SequenceNumber
}

func newSampler(clk clock.Clock) *sampler {
	return &sampler{writer: types.NewGUID(types.NewParticipantPrefix()), clk: clk}
}

func (s *sampler) next(lifespan time.Duration) *types.Sample {
	s.seq++
	return types.NewSample(s.writer, testTopic, s.seq, s.clk.Now(), lifespan, []byte(fmt.Sprintf("count=%d", s.seq)))
}

func payloads(samples []*types.Sample) []string {
	out := make([]string, 0, len(samples))
	for _, s := range samples {
		out = append(out, string(s.Data()))
	}
	return out
}

func TestBuffer_KeepLastEvictsOldest(t *testing.T) {
	const d, k = 5, 3
	clk := clock.NewMock()
	b := New(Config{History: qos.KeepLast(d), Clock: clk})
	src := newSampler(clk)

	for i := 0; i < d+k; i++ {
		require.NoError(t, b.Write(src.next(0)))
	}

	got := b.ReadNewest(d)
	assert.Equal(t, []string{"count=4", "count=5", "count=6", "count=7", "count=8"}, payloads(got))

	// 前 k 个已不可恢复
	assert.Equal(t, d, b.Len())
	assert.Equal(t, int64(k), b.Stats().TotalEvicted)
	first := b.Take(nil)
	require.NotNil(t, first)
	assert.Equal(t, "count=4", string(first.Data()))
}

func TestBuffer_TakeExactlyOnce(t *testing.T) {
	b := New(Config{History: qos.KeepLast(10)})
	src := newSampler(clock.New())

	require.NoError(t, b.Write(src.next(0)))

	s := b.Take(nil)
	require.NotNil(t, s)
	assert.Equal(t, "count=1", string(s.Data()))
	assert.Nil(t, b.Take(nil))
}

func TestBuffer_TakeWithPredicate(t *testing.T) {
	b := New(Config{History: qos.KeepAll()})
	src := newSampler(clock.New())
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Write(src.next(0)))
	}

	even := b.Take(func(s *types.Sample) bool { return s.Seq%2 == 0 })
	require.NotNil(t, even)
	assert.Equal(t, types.SequenceNumber(2), even.Seq)
	assert.Nil(t, b.Take(func(s *types.Sample) bool { return s.Seq > 10 }))
	assert.Equal(t, []string{"count=1", "count=3", "count=4"}, payloads(b.Snapshot()))
}

func TestBuffer_LifespanBoundary(t *testing.T) {
	const lifespan = 100 * time.Millisecond
	clk := clock.NewMock()
	b := New(Config{History: qos.KeepLast(10), Lifespan: lifespan, Clock: clk})
	src := newSampler(clk)

	require.NoError(t, b.Write(src.next(0)))

	clk.Add(lifespan - time.Nanosecond)
	assert.Equal(t, 1, b.Len())

	// t0+L 时刻起不可读，即使仍在深度内
	clk.Add(time.Nanosecond)
	assert.Nil(t, b.Take(nil))
	assert.Empty(t, b.ReadNewest(10))
	assert.Equal(t, int64(1), b.Stats().TotalExpired)
}

func TestBuffer_WriterLifespanApplies(t *testing.T) {
	clk := clock.NewMock()
	b := New(Config{History: qos.KeepLast(10), Lifespan: qos.Infinite, Clock: clk})
	src := newSampler(clk)

	require.NoError(t, b.Write(src.next(50*time.Millisecond)))
	require.NoError(t, b.Write(src.next(0)))

	n := b.EvictExpired(clk.Now().Add(50 * time.Millisecond))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"count=2"}, payloads(b.Snapshot()))
}

func TestBuffer_ExpiredOnArrival(t *testing.T) {
	clk := clock.NewMock()
	clk.Add(time.Second)
	b := New(Config{History: qos.KeepLast(10), Clock: clk})

	old := types.NewSample(types.GUID{}, testTopic, 1, clk.Now().Add(-time.Second), 10*time.Millisecond, nil)
	require.NoError(t, b.Write(old))
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_KeepAllUnlimitedNeverDrops(t *testing.T) {
	b := New(Config{History: qos.KeepAll()})
	src := newSampler(clock.New())

	for i := 0; i < 1000; i++ {
		require.NoError(t, b.Write(src.next(0)))
	}
	assert.Equal(t, 1000, b.Len())
	assert.Equal(t, int64(0), b.Stats().TotalEvicted)
}

func TestBuffer_KeepAllFull(t *testing.T) {
	b := New(Config{History: qos.KeepAll(), MaxSamples: 2})
	src := newSampler(clock.New())

	require.NoError(t, b.Write(src.next(0)))
	require.NoError(t, b.Write(src.next(0)))
	assert.ErrorIs(t, b.Write(src.next(0)), ErrBufferFull)
	assert.ErrorIs(t, b.WriteWait(context.Background(), src.next(0), 0), ErrBlockingTimeout)
	assert.Equal(t, int64(2), b.Stats().TotalRejected)
}

func TestBuffer_KeepAllOverwrite(t *testing.T) {
	b := New(Config{History: qos.KeepAll(), MaxSamples: 2, Overwrite: true})
	src := newSampler(clock.New())

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Write(src.next(0)))
	}
	assert.Equal(t, []string{"count=2", "count=3"}, payloads(b.Snapshot()))
}

func TestBuffer_WriteWaitTimeout(t *testing.T) {
	clk := clock.NewMock()
	b := New(Config{History: qos.KeepAll(), MaxSamples: 1, Clock: clk})
	src := newSampler(clk)
	require.NoError(t, b.Write(src.next(0)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.WriteWait(context.Background(), src.next(0), 100*time.Millisecond)
	}()

	// 等待 goroutine 注册定时器
	time.Sleep(10 * time.Millisecond)
	clk.Add(100 * time.Millisecond)

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrBlockingTimeout)
	case <-time.After(time.Second):
		t.Fatal("WriteWait did not time out")
	}
}

func TestBuffer_WriteWaitUnblocksOnTake(t *testing.T) {
	b := New(Config{History: qos.KeepAll(), MaxSamples: 1})
	src := newSampler(clock.New())
	require.NoError(t, b.Write(src.next(0)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.WriteWait(context.Background(), src.next(0), time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NotNil(t, b.Take(nil))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WriteWait did not unblock")
	}
	assert.Equal(t, []string{"count=2"}, payloads(b.Snapshot()))
}

func TestBuffer_WriteWaitContextCancel(t *testing.T) {
	b := New(Config{History: qos.KeepAll(), MaxSamples: 1})
	src := newSampler(clock.New())
	require.NoError(t, b.Write(src.next(0)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.WriteWait(ctx, src.next(0), qos.Infinite), context.Canceled)
}

func TestBuffer_CloseWakesWriters(t *testing.T) {
	b := New(Config{History: qos.KeepAll(), MaxSamples: 1})
	src := newSampler(clock.New())
	require.NoError(t, b.Write(src.next(0)))

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.WriteWait(context.Background(), src.next(0), qos.Infinite)
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("WriteWait did not return after Close")
	}
	assert.ErrorIs(t, b.Write(src.next(0)), ErrClosed)
}

func TestBuffer_DuplicateIgnored(t *testing.T) {
	b := New(Config{History: qos.KeepLast(10)})
	src := newSampler(clock.New())
	s := src.next(0)

	require.NoError(t, b.Write(s))
	require.NoError(t, b.Write(s))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, int64(1), b.Stats().TotalDuplicates)
}

func TestBuffer_ReadyIsEdgeTriggered(t *testing.T) {
	b := New(Config{History: qos.KeepLast(10)})
	src := newSampler(clock.New())

	var fired atomic.Int32
	b.OnReady(func() { fired.Add(1) })

	require.NoError(t, b.Write(src.next(0)))
	require.NoError(t, b.Write(src.next(0)))
	assert.Equal(t, int32(1), fired.Load())

	for b.Take(nil) != nil {
	}
	require.NoError(t, b.Write(src.next(0)))
	assert.Equal(t, int32(2), fired.Load())
}

func TestBuffer_LostReported(t *testing.T) {
	clk := clock.NewMock()
	b := New(Config{History: qos.KeepLast(1), Lifespan: time.Second, Clock: clk})
	src := newSampler(clk)

	lost := map[LossReason]int{}
	var mu sync.Mutex
	b.OnLost(func(reason LossReason, n int) {
		mu.Lock()
		lost[reason] += n
		mu.Unlock()
	})

	require.NoError(t, b.Write(src.next(0)))
	require.NoError(t, b.Write(src.next(0)))
	clk.Add(time.Second)
	assert.Equal(t, 0, b.Len())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, lost[LossEvicted])
	assert.Equal(t, 1, lost[LossExpired])
}

func TestBuffer_ConcurrentWriteTake(t *testing.T) {
	const writers, perWriter = 4, 250
	b := New(Config{History: qos.KeepAll()})

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := newSampler(clock.New())
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, b.Write(src.next(0)))
			}
		}()
	}

	var taken atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for taken.Load() < writers*perWriter {
			if b.Take(nil) != nil {
				taken.Add(1)
			}
		}
	}()

	wg.Wait()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not drain buffer")
	}
	assert.Equal(t, int64(writers*perWriter), taken.Load())
	assert.Equal(t, 0, b.Len())
}

func TestBuffer_Requeue(t *testing.T) {
	t.Run("BackToFront", func(t *testing.T) {
		b := New(Config{History: qos.KeepAll(), MaxSamples: 2})
		src := newSampler(clock.New())
		require.NoError(t, b.Write(src.next(0)))
		require.NoError(t, b.Write(src.next(0)))

		first := b.Take(nil)
		require.NotNil(t, first)
		require.NoError(t, b.Write(src.next(0)))

		// 上限不约束放回的样本
		require.NoError(t, b.Requeue(first))
		assert.Equal(t, 3, b.Len())
		assert.Equal(t, []string{"count=1", "count=2", "count=3"}, payloads(b.Snapshot()))
		assert.Equal(t, int64(0), b.Stats().TotalTaken)

		// 重复放回被忽略
		require.NoError(t, b.Requeue(first))
		assert.Equal(t, 3, b.Len())
	})

	t.Run("ReadyOnEmpty", func(t *testing.T) {
		b := New(Config{History: qos.KeepLast(10)})
		src := newSampler(clock.New())
		var fired atomic.Int32
		b.OnReady(func() { fired.Add(1) })

		require.NoError(t, b.Write(src.next(0)))
		s := b.Take(nil)
		require.NoError(t, b.Requeue(s))
		assert.Equal(t, int32(2), fired.Load())
		assert.Same(t, s, b.Take(nil))
	})

	t.Run("KeepLastFullEvicts", func(t *testing.T) {
		b := New(Config{History: qos.KeepLast(2)})
		src := newSampler(clock.New())
		require.NoError(t, b.Write(src.next(0)))
		require.NoError(t, b.Write(src.next(0)))
		first := b.Take(nil)
		require.NoError(t, b.Write(src.next(0)))

		var lost []LossReason
		b.OnLost(func(reason LossReason, n int) { lost = append(lost, reason) })
		require.NoError(t, b.Requeue(first))
		assert.Equal(t, []string{"count=2", "count=3"}, payloads(b.Snapshot()))
		assert.Equal(t, []LossReason{LossEvicted}, lost)
	})

	t.Run("Expired", func(t *testing.T) {
		clk := clock.NewMock()
		b := New(Config{History: qos.KeepLast(10), Lifespan: time.Second, Clock: clk})
		src := newSampler(clk)
		require.NoError(t, b.Write(src.next(0)))
		s := b.Take(nil)

		clk.Add(time.Second)
		require.NoError(t, b.Requeue(s))
		assert.Zero(t, b.Len())
		assert.Equal(t, int64(1), b.Stats().TotalExpired)
	})

	t.Run("Closed", func(t *testing.T) {
		b := New(Config{History: qos.KeepLast(10)})
		src := newSampler(clock.New())
		require.NoError(t, b.Write(src.next(0)))
		s := b.Take(nil)
		b.Close()
		assert.ErrorIs(t, b.Requeue(s), ErrClosed)
	})
}
