// Package liveliness 实现存活性与截止期监测
//
// 写端在租约内通过写入或显式声明保持存活，超过 LeaseDuration 未声明则进入
// NotAlive 状态并触发 LivelinessLost；读端汇总所有匹配写端的存活计数，
// 任一写端状态变化时触发 LivelinessChanged。
//
// 截止期以最近一次写入（写端）或收到样本（读端）为锚点，每经过一个
// Deadline.Period 未发生活动就触发一次 DeadlineMissed，并把锚点推进一个周期。
// 截止期从端点注册时开始计时。
//
// 热路径（Wrote / Assert / Received）只更新原子时间戳，不获取任何锁。
// Check 在监测协程中运行，事件回调在锁外执行。
//
// 存活性声明方式：
//   - Automatic: 本地写端每个检查周期由参与者自动声明
//   - ManualByTopic: 只有写入或 Writer.Assert 声明
//   - ManualByParticipant: 写入或 Monitor.AssertParticipant 声明
package liveliness
