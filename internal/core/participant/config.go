package participant

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/internal/core/endpoint"
	"github.com/dep2p/go-dds/internal/core/liveliness"
)

// Config 参与者配置
type Config struct {
	// Prefix 参与者前缀，零值时自动生成
	Prefix uuid.UUID

	// Domain 域 ID
	Domain int

	// Monitor 存活性监测配置
	Monitor liveliness.Config

	// Dispatch 投递配置
	Dispatch dispatch.Config

	// DedupSize 读端去重缓存大小
	DedupSize int

	// Clock 时钟，nil 时使用系统时钟
	Clock clock.Clock
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Monitor:   liveliness.DefaultConfig(),
		Dispatch:  dispatch.DefaultConfig(),
		DedupSize: endpoint.DefaultDedupSize,
	}
}

// ConfigFromUnified 从统一配置创建参与者配置
func ConfigFromUnified(cfg *config.Config) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Domain = cfg.Domain.ID
	out.Monitor = liveliness.ConfigFromUnified(cfg)
	out.Dispatch.MaxConcurrentDeliveries = cfg.Dispatch.MaxConcurrentDeliveries
	out.DedupSize = cfg.Dispatch.DedupCacheSize
	return out
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Domain < 0 || c.Domain > config.MaxDomainID {
		return fmt.Errorf("domain id %d out of range [0, %d]", c.Domain, config.MaxDomainID)
	}
	if c.Monitor.CheckInterval < 0 {
		return fmt.Errorf("monitor check interval must not be negative")
	}
	return nil
}
