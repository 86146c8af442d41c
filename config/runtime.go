package config

import (
	"fmt"
	"time"
)

// MonitorConfig 存活性与截止期监测配置
type MonitorConfig struct {
	// CheckInterval 检查周期
	// 截止期与租约的检测精度受此值限制
	// 默认值: 10ms
	CheckInterval Duration `json:"check_interval"`
}

// DefaultMonitorConfig 返回默认的监测配置
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		CheckInterval: Duration(10 * time.Millisecond),
	}
}

// Validate 验证监测配置
func (c MonitorConfig) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("monitor: check_interval must be positive")
	}
	return nil
}

// DispatchConfig 投递配置
type DispatchConfig struct {
	// MaxConcurrentDeliveries 单次发布中并发的可靠投递数上限
	// 默认值: 16
	MaxConcurrentDeliveries int `json:"max_concurrent_deliveries"`

	// DedupCacheSize 每个读端记住的 (写端, 序列号) 数量，用于抑制重复样本
	// 默认值: 1024
	DedupCacheSize int `json:"dedup_cache_size"`
}

// DefaultDispatchConfig 返回默认的投递配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxConcurrentDeliveries: 16,
		DedupCacheSize:          1024,
	}
}

// Validate 验证投递配置
func (c DispatchConfig) Validate() error {
	if c.MaxConcurrentDeliveries <= 0 {
		return fmt.Errorf("dispatch: max_concurrent_deliveries must be positive")
	}
	if c.DedupCacheSize <= 0 {
		return fmt.Errorf("dispatch: dedup_cache_size must be positive")
	}
	return nil
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否通过 HTTP 暴露指标
	// 默认值: false
	Enabled bool `json:"enabled"`

	// ListenAddr 指标 HTTP 监听地址
	// 默认值: ":9464"
	ListenAddr string `json:"listen_addr"`

	// Path 指标路径
	// 默认值: "/metrics"
	Path string `json:"path"`
}

// DefaultMetricsConfig 返回默认的指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:    false,
		ListenAddr: ":9464",
		Path:       "/metrics",
	}
}

// Validate 验证指标配置
func (c MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("metrics: listen_addr cannot be empty")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("metrics: path must start with '/'")
	}
	return nil
}
