package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dep2p/go-dds"
	"github.com/dep2p/go-dds/pkg/qos"
)

// Vector3 三维向量
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Twist geometry_msgs/Twist：线速度与角速度
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// turtleStep 返回第 tick 次的运动指令与下一次的 tick
//
// 前进 100 次、旋转 100 次、停一次，循环往复。
func turtleStep(tick int) (Twist, int) {
	var msg Twist
	switch {
	case tick < 100:
		msg.Linear.X = 2.0
	case tick < 200:
		msg.Angular.Z = 1.0
	default:
		return msg, 0
	}
	return msg, tick + 1
}

// turtle 每 10ms 在 /turtle1/cmd_vel 上发布运动指令
func (d *demo) turtle(ctx context.Context) error {
	node, err := d.c.NewNode("/ros2_demo", "moving_turtle")
	if err != nil {
		return err
	}
	defer node.Close()

	q := qos.NewBuilder().
		History(qos.KeepLast(10)).
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityVolatile).
		MustBuild()
	topic, err := node.CreateTopic("/turtle1/cmd_vel", "geometry_msgs/Twist", q)
	if err != nil {
		return err
	}
	pub, err := dds.CreatePublisher(node, topic, dds.JSONCodec[Twist]{}, nil)
	if err != nil {
		return err
	}

	ticker := d.clock.Ticker(turtleTick)
	defer ticker.Stop()
	tick := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		var msg Twist
		msg, tick = turtleStep(tick)
		if err := pub.Publish(ctx, msg); err != nil {
			fmt.Fprintf(d.out, "Failed to publish message: %v\n", err)
		}
	}
}
