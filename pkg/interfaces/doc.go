// Package interfaces 定义 go-dds 与外部协作方之间的边界接口
//
// 核心（匹配、缓冲、投递）只依赖这里的接口：
//   - eventbus.go       - 状态事件总线
//   - transport.go      - 跨进程传输（按通道发布/订阅字节帧）
//   - storage.go        - Persistent 持久性使用的样本存储
//
// 具体实现位于 internal/core 下对应目录。
package interfaces
