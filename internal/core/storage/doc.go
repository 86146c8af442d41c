// Package storage 提供 Persistent 持久性的样本存储
//
// 样本存储基于 BadgerDB，写端在发布时把样本追加到存储，
// 请求 Persistent 的读端在匹配时从存储回放，进程重启后仍然可用。
//
// # 架构
//
//	┌─────────────────────────────────────────────┐
//	│               SampleStore                   │
//	│     Append / Load(topic, depth) / Close     │
//	└─────────────────────────────────────────────┘
//	                      │
//	┌─────────────────────────────────────────────┐
//	│          kv.Store（前缀 p/ 与 m/）           │
//	└─────────────────────────────────────────────┘
//	                      │
//	┌─────────────────────────────────────────────┐
//	│           engine（BadgerDB 实现）            │
//	└─────────────────────────────────────────────┘
//
// # 键空间设计
//
//	p/<topic>\x00<writer:32><seq:8 大端>  →  wire 编码的样本
//	m/version                              →  格式版本
//
// 主题与写端之间用 0x00 分隔，避免 "/a" 与 "/a/b" 的前缀相互覆盖；
// 序列号大端编码，同一写端的样本按序列号有序。
package storage
