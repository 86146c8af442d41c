// Package metrics 提供 prometheus 监控指标
//
// 指标：
//   - dds_samples_published_total{topic}         写端接受的样本数
//   - dds_samples_delivered_total{topic}         写入读端缓冲区的样本数
//   - dds_samples_dropped_total{topic,reason}    丢弃的样本数
//   - dds_delivery_timeouts_total{topic}         可靠投递超时次数
//   - dds_matches{topic}                         当前匹配记录数
//   - dds_status_events_total{kind}              状态事件数
//
// nil *Collector 的所有方法都是空操作，核心组件可以在未启用指标时直接调用。
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module(),
//	    fx.Invoke(func(c *metrics.Collector) { ... }),
//	)
package metrics
