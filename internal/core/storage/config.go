package storage

import (
	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/storage/engine"
)

// Config Storage 模块配置
type Config struct {
	// Enabled 是否启用
	Enabled bool

	// Engine 引擎配置
	Engine engine.Config

	// MaxSamplesPerWriter 每个写端最多保留的样本数，0 表示不限
	MaxSamplesPerWriter int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	def := config.DefaultStorageConfig()
	return Config{
		Enabled:             def.Enabled,
		Engine:              engine.DefaultConfig(def.DBPath()),
		MaxSamplesPerWriter: def.MaxSamplesPerWriter,
	}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	s := cfg.Storage
	out.Enabled = s.Enabled
	out.Engine.Path = s.DBPath()
	out.Engine.InMemory = s.InMemory
	out.Engine.SyncWrites = s.SyncWrites
	out.Engine.GCInterval = s.GCInterval.Duration()
	out.MaxSamplesPerWriter = s.MaxSamplesPerWriter
	return out
}
