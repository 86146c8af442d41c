// Package eventbus 实现进程内状态事件总线
//
// 端点的状态事件（匹配变化、QoS 不兼容、存活变化、截止期错过、投递失败、
// 样本丢失）都经由总线分发。支持：
//   - 按类型、主题、端点过滤
//   - 缓冲区配置
//   - 有状态模式（新订阅者立即收到每个端点最后一个事件）
//   - 慢消费者丢弃并告警，发射从不阻塞
//
// # 快速开始
//
//	bus := eventbus.NewBus(eventbus.Stateful(types.StatusLivelinessChanged))
//
//	sub, _ := bus.Subscribe(pkgif.Kinds(types.StatusDeliveryFailed))
//	defer sub.Close()
//
//	go func() {
//	    for ev := range sub.Out() {
//	        // 处理事件
//	    }
//	}()
//
//	bus.Emit(types.StatusEvent{Kind: types.StatusDeliveryFailed, ...})
//
// # 并发安全
//
//   - 订阅/取消订阅：RWMutex 保护节点表，节点内 Mutex 保护订阅者列表
//   - 通道关闭：closeOnce 防止重复
package eventbus
