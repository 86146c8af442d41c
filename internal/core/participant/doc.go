// Package participant 实现参与者门面
//
// Participant 聚合一个 Context 内的全部核心组件：匹配引擎、投递器、
// 存活性监测、状态事件总线、指标与持久性服务。它负责端点的完整生命周期：
//
//   - 创建端点：注册监测、加入匹配引擎、为兼容的对生成匹配事件、
//     按持久性回放历史
//   - 销毁端点：移除匹配、通知对端、把 Transient 写端的历史移入缓存
//   - 远端代理：传输桥把远端端点作为代理加入，与本地端点一样参与匹配
//
// 所有状态事件经由同一出口发往端点监听器、事件总线与指标。
package participant
