package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dep2p/go-dds"
	"github.com/dep2p/go-dds/pkg/qos"
)

// 演示参数
const (
	talkInterval  = 100 * time.Millisecond
	turtleTick    = 10 * time.Millisecond
	previewLength = 50
)

// filler 附加在 talker 消息后的填充文本
var filler = strings.Repeat("All work and no play makes ROS a dull boy. All play and no work makes RTPS a mere toy. ", 2)

// chatterQoS talker 与 listener 使用的策略
func chatterQoS() *qos.Policies {
	return qos.NewBuilder().
		History(qos.KeepLast(10)).
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityTransientLocal).
		MustBuild()
}

// ============================================================================
//                              demo
// ============================================================================

// demo 演示程序的一种运行模式
type demo struct {
	c     *dds.Context
	out   io.Writer
	clock clock.Clock
}

// run 按模式运行，直到 ctx 结束
func (d *demo) run(ctx context.Context, m string) error {
	switch m {
	case modeTalker:
		return d.talker(ctx)
	case modeListener:
		return d.listener(ctx)
	case modeAsyncListener:
		return d.asyncListener(ctx)
	case modeTurtle:
		return d.turtle(ctx)
	default:
		return fmt.Errorf("未知模式 %q", m)
	}
}

// talker 每 100ms 发布一条 "count=N ..." 消息
func (d *demo) talker(ctx context.Context) error {
	node, err := d.c.NewNode("/rustdds", "talker")
	if err != nil {
		return err
	}
	defer node.Close()

	topic, err := node.CreateTopic("/topic", "std_msgs/String", chatterQoS())
	if err != nil {
		return err
	}
	pub, err := dds.CreatePublisher(node, topic, dds.StringValueCodec(), nil)
	if err != nil {
		return err
	}

	ticker := d.clock.Ticker(talkInterval)
	defer ticker.Stop()
	for count := 1; ; count++ {
		msg := fmt.Sprintf("count=%d %s", count, filler)
		fmt.Fprintf(d.out, "Talking, count = %d len = %d\n", count, len(msg))
		if err := pub.Publish(ctx, wrapperspb.String(msg)); err != nil {
			logger.Warn("发布失败", "count", count, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// listener 就绪令牌驱动的拉取循环
func (d *demo) listener(ctx context.Context) error {
	sub, closeNode, err := d.chatterSubscription()
	if err != nil {
		return err
	}
	defer closeNode()

	const token = 1
	ready := make(chan any, 1)
	sub.Readiness().Register(token, ready)
	defer sub.Readiness().Deregister(token)
	// 注册前可能已有迟到补发的样本
	ready <- token

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ready:
			if t != token {
				fmt.Fprintf(d.out, ">>> Unknown poll token %v\n", t)
				continue
			}
		}
		for {
			msg, err := sub.Take()
			if err != nil {
				if errors.Is(err, dds.ErrEndpointDestroyed) {
					return nil
				}
				fmt.Fprintf(d.out, ">>> error with response handling, e: %v\n", err)
				continue
			}
			if msg == nil {
				break
			}
			text := msg.Value.GetValue()
			fmt.Fprintf(d.out, "message len=%d : %q\n", len(text), text[:min(len(text), previewLength)])
		}
	}
}

// asyncListener 推送流
func (d *demo) asyncListener(ctx context.Context) error {
	sub, closeNode, err := d.chatterSubscription()
	if err != nil {
		return err
	}
	defer closeNode()

	for res := range sub.Stream(ctx) {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "Receive request error: %v\n", res.Err)
			continue
		}
		fmt.Fprintf(d.out, "I heard: %s\n", res.Message.Value.GetValue())
	}
	return nil
}

func (d *demo) chatterSubscription() (*dds.Subscription[*wrapperspb.StringValue], func(), error) {
	node, err := d.c.NewNode("/rustdds", "rustdds_listener")
	if err != nil {
		return nil, nil, err
	}
	closeNode := func() { _ = node.Close() }

	topic, err := node.CreateTopic("/topic", "std_msgs/String", chatterQoS())
	if err != nil {
		closeNode()
		return nil, nil, err
	}
	sub, err := dds.CreateSubscription(node, topic, dds.StringValueCodec(), nil)
	if err != nil {
		closeNode()
		return nil, nil, err
	}
	return sub, closeNode, nil
}

// ============================================================================
//                              Fx 注册
// ============================================================================

// registerDemo 随应用启动演示协程，随应用停止结束
func registerDemo(lc fx.Lifecycle, c *dds.Context, rt *runtimeConfig) {
	d := &demo{c: c, out: os.Stdout, clock: clock.New()}

	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := d.run(ctx, rt.mode); err != nil {
					logger.Error("演示运行失败", "mode", rt.mode, "error", err)
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}
