// Package redis 基于 Redis 发布/订阅的传输
//
// 帧作为消息体原样发布，不做额外编码。Redis 发布/订阅不持久化消息，
// 订阅建立前发布的帧不会被收到，这与参与者的周期性公告相容。
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
)

var logger = log.Logger("core/transport/redis")

// ErrClosed 传输已关闭
var ErrClosed = errors.New("redis: transport closed")

// DefaultBufferSize 每个订阅的接收缓冲帧数
const DefaultBufferSize = 256

// Client 传输依赖的 Redis 客户端能力
//
// *redis.Client 与 *redis.ClusterClient 都满足此接口。
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Close() error
}

var _ Client = (*redis.Client)(nil)

// Options 连接参数
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Transport Redis 传输
type Transport struct {
	client    Client
	ownClient bool

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

var _ pkgif.Transport = (*Transport)(nil)

// Dial 连接 Redis 并验证连通性
func Dial(ctx context.Context, opts Options) (*Transport, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		PoolTimeout: 5 * time.Second,
		PoolSize:    10,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	t := New(rdb)
	t.ownClient = true
	logger.Info("已连接 Redis", "addr", opts.Addr, "db", opts.DB)
	return t, nil
}

// New 使用已有客户端创建传输，Close 不关闭该客户端
func New(client Client) *Transport {
	return &Transport{client: client, subs: make(map[*redis.PubSub]struct{})}
}

// Publish 发布一帧
func (t *Transport) Publish(ctx context.Context, channel string, frame []byte) error {
	if t.isClosed() {
		return ErrClosed
	}
	if err := t.client.Publish(ctx, channel, frame).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅通道，订阅确认后才返回
func (t *Transport) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if t.isClosed() {
		return nil, ErrClosed
	}

	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	t.subs[ps] = struct{}{}
	t.mu.Unlock()

	out := make(chan []byte, DefaultBufferSize)
	go func() {
		defer close(out)
		defer t.release(ps)

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	logger.Debug("已订阅通道", "channel", channel)
	return out, nil
}

// Close 关闭全部订阅；由 Dial 创建的客户端一并关闭
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := make([]*redis.PubSub, 0, len(t.subs))
	for ps := range t.subs {
		subs = append(subs, ps)
	}
	t.mu.Unlock()

	var errs error
	for _, ps := range subs {
		errs = multierr.Append(errs, ps.Close())
	}
	if t.ownClient {
		errs = multierr.Append(errs, t.client.Close())
	}
	return errs
}

func (t *Transport) release(ps *redis.PubSub) {
	t.mu.Lock()
	_, ok := t.subs[ps]
	delete(t.subs, ps)
	t.mu.Unlock()
	if ok {
		_ = ps.Close()
	}
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
