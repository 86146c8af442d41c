package interfaces

import "github.com/dep2p/go-dds/pkg/types"

// SampleStore Persistent 持久性的样本存储
//
// 样本按 (主题, 写端, 序列号) 保存，跨进程重启保留。
type SampleStore interface {
	// Append 保存样本
	Append(s *types.Sample) error

	// Load 返回主题的样本，按写端分组、组内按序列号排列；
	// 每个写端最多返回最近 depth 条，0 表示全部
	//
	// 读端回放时以到达顺序写入缓冲区，不同写端之间没有全局顺序。
	Load(topic types.TopicName, depth int) ([]*types.Sample, error)

	// Close 关闭存储
	Close() error
}
