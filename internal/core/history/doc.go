// Package history 实现端点的历史缓冲区
//
// 缓冲区按到达顺序保存样本，容量由 History 策略约束：
//   - KeepLast{depth}: 满时淘汰最旧样本，不论读端是否已读取
//   - KeepAll: 仅受 ResourceLimits.MaxSamples 约束，未设置时不丢弃
//
// 过期（Lifespan）在每次读写时惰性清理，过期样本永远不会被返回。
//
// 所有操作在同一把互斥锁下线性化。样本是不可变指针，
// 淘汰不会使已交给读端的样本失效。
package history
