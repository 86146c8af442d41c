// Package dispatch 实现样本投递
//
// Publish 在主题读锁下获取写端的匹配快照，然后在不持有任何匹配锁的情况下
// 逐个对端投递：
//   - BestEffort: 非阻塞写入，失败静默丢弃（计数并记录 debug 日志）
//   - Reliable: 受 MaxBlockingTime 约束的有界阻塞写入，多个对端并发进行，
//     一个慢对端不会拖住其他对端
//
// 对端失败只通过 Report 与失败回调带外报告，不影响对其他对端的投递。
package dispatch
