package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case b, ok := <-ch:
		require.True(t, ok, "channel closed")
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestHub_Fanout(t *testing.T) {
	hub := NewHub(0)
	a, b := hub.Transport(), hub.Transport()
	defer a.Close()
	defer b.Close()
	ctx := context.Background()

	chA, err := a.Subscribe(ctx, "dds/0/data")
	require.NoError(t, err)
	chB, err := b.Subscribe(ctx, "dds/0/data")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "dds/1/data")
	require.NoError(t, err)

	frame := []byte("hello")
	require.NoError(t, a.Publish(ctx, "dds/0/data", frame))
	frame[0] = 'j'

	assert.Equal(t, []byte("hello"), recv(t, chA))
	assert.Equal(t, []byte("hello"), recv(t, chB))
	select {
	case <-other:
		t.Fatal("frame leaked across channels")
	default:
	}
}

func TestHub_Order(t *testing.T) {
	hub := NewHub(0)
	tr := hub.Transport()
	defer tr.Close()
	ctx := context.Background()

	ch, err := tr.Subscribe(ctx, "c")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Publish(ctx, "c", []byte{byte(i)}))
	}
	for i := 0; i < 10; i++ {
		assert.Equal(t, []byte{byte(i)}, recv(t, ch))
	}
}

func TestHub_FullBufferBlocks(t *testing.T) {
	hub := NewHub(1)
	tr := hub.Transport()
	defer tr.Close()

	_, err := tr.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), "c", []byte{1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tr.Publish(ctx, "c", []byte{2}), context.DeadlineExceeded)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(0)
	tr := hub.Transport()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := tr.Subscribe(ctx, "c")
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, hub.targets("c"))

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Publish(context.Background(), "c", nil), ErrClosed)
	_, err = tr.Subscribe(context.Background(), "c")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_CloseWakesPublisher(t *testing.T) {
	hub := NewHub(1)
	sub, pub := hub.Transport(), hub.Transport()
	defer pub.Close()

	_, err := sub.Subscribe(context.Background(), "c")
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "c", []byte{1}))

	done := make(chan error, 1)
	go func() { done <- pub.Publish(context.Background(), "c", []byte{2}) }()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sub.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher still blocked after subscriber closed")
	}
}
