// Package dds 提供带 QoS 治理的发布订阅核心
//
// 主题、策略集与端点构成数据模型：写端（Publisher）把样本写入自己的历史，
// 投递器按匹配记录把样本送进读端（Subscription）的历史缓冲，读端以拉取或
// 推送两种方式消费同一个缓冲。策略兼容性在端点创建时解析，不兼容的配对
// 只产生状态事件，不会建立匹配。
//
// # 核心概念
//
//   - Context: 调用方持有的上下文，拥有主题注册表、域标识和所有端点
//   - Node: 命名的端点容器，关闭时销毁其下所有端点
//   - Topic: 主题名 + 类型名 + 主题级策略
//   - Publisher[T] / Subscription[T]: 带编解码器的类型化端点
//
// # 快速开始
//
//	ctx, err := dds.NewContext(context.Background(), dds.WithDomain(0))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	node, _ := ctx.NewNode("/", "talker")
//	topic, _ := node.CreateTopic("/topic", "std_msgs/String", nil)
//
//	q := qos.NewBuilder().
//	    History(qos.KeepLast(10)).
//	    Reliability(qos.Reliable(100 * time.Millisecond)).
//	    Durability(qos.DurabilityTransientLocal).
//	    MustBuild()
//
//	pub, _ := dds.CreatePublisher(node, topic, dds.StringCodec{}, q)
//	_ = pub.Publish(context.Background(), "hello")
//
//	sub, _ := dds.CreateSubscription(node, topic, dds.StringCodec{}, q)
//	msg, _ := sub.Next(context.Background())
//	fmt.Println(msg.Value)
//
// # 消费方式
//
// 拉取：向 Subscription.Readiness() 注册令牌，收到令牌后反复 Take 直到返回
// (nil, nil)。推送：Stream(ctx) 返回按到达顺序的结果通道，ctx 结束时关闭。
// 两种方式共享同一缓冲，每个样本只交付一次。
//
// # 状态
//
// 匹配、不兼容、存活变化、截止期错过、样本丢失与投递失败都以状态事件的
// 形式发出：端点级监听器通过 WithStatusListener 注册，Context 级订阅通过
// Context.Subscribe。
package dds
