package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// StorageConfig 存储配置
//
// 启用后 Persistent 持久性的样本写入 BadgerDB，跨进程重启保留。
// 未启用时 Persistent 退化为 Transient。
//
// 数据目录结构：
//
//	${DataDir}/
//	└── dds.db/             # BadgerDB 数据库
//	    ├── 000001.vlog
//	    ├── 000001.sst
//	    └── MANIFEST
type StorageConfig struct {
	// Enabled 是否启用持久化存储
	// 默认值: false
	Enabled bool `json:"enabled"`

	// DataDir 数据目录路径
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// InMemory 使用内存模式（不落盘，仅用于测试）
	InMemory bool `json:"in_memory,omitempty"`

	// SyncWrites 每次写入是否同步到磁盘
	SyncWrites bool `json:"sync_writes"`

	// MaxSamplesPerWriter 每个写端最多保留的样本数，0 表示不限
	// 默认值: 1000
	MaxSamplesPerWriter int `json:"max_samples_per_writer"`

	// GCInterval 值日志垃圾回收间隔，0 表示禁用
	// 默认值: 10m
	GCInterval Duration `json:"gc_interval"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Enabled:             false,
		DataDir:             "./data",
		MaxSamplesPerWriter: 1000,
		GCInterval:          Duration(10 * time.Minute),
	}
}

// Validate 验证存储配置的有效性
func (c StorageConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.DataDir == "" && !c.InMemory {
		return fmt.Errorf("storage: data_dir cannot be empty")
	}
	if c.MaxSamplesPerWriter < 0 {
		return fmt.Errorf("storage: max_samples_per_writer cannot be negative")
	}
	if c.GCInterval < 0 {
		return fmt.Errorf("storage: gc_interval cannot be negative")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "dds.db")
}
