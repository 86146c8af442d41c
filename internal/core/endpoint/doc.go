// Package endpoint 实现本地写端与读端
//
// Writer 为每次写入分配单调递增的序列号，持久性不低于 TransientLocal 时
// 把样本保留在自己的历史中供后加入的读端回放，然后交给投递器扇出。
// 写入成功只表示样本已进入本地历史，对端失败通过状态事件带外报告。
//
// Reader 是投递器的 Sink：样本写入自己的历史缓冲区，按 (写端, 序列号)
// 去重。消费有两种方式，都基于 Take，同一样本不会被交付两次：
//   - 拉取: Take 取出最旧样本，缓冲区为空时返回 (nil, nil)；
//     Readiness 在每次空到非空转换时送出一次令牌
//   - 推送: Next 在缓冲区为空时挂起，直到有样本、ctx 结束或读端销毁
package endpoint
