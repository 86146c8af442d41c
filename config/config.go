// Package config 提供统一的配置管理
//
// 本包采用分段配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带 Default*Config() 与 Validate()
//   - 支持从 JSON 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Domain.ID = 7
//	cfg.Transport.Backend = config.TransportRedis
//
//	// 从文件加载
//	cfg, err := config.LoadFile("dds.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"go.uber.org/multierr"
)

// Config 是 DDS Context 的完整配置结构
//
// 配置按照功能模块组织：
//   - Domain: 域标识，不同域之间的端点互不可见
//   - Log: 日志级别与格式
//   - Monitor: 存活性/截止期监测
//   - Dispatch: 投递并发与去重
//   - Discovery: 跨进程端点公告
//   - Transport: 跨进程传输后端
//   - Storage: Persistent 持久性的样本存储
//   - Metrics: Prometheus 指标
//   - DefaultQoS: 主题级默认策略
type Config struct {
	// Domain 域配置
	Domain DomainConfig `json:"domain"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// Monitor 监测配置
	Monitor MonitorConfig `json:"monitor"`

	// Dispatch 投递配置
	Dispatch DispatchConfig `json:"dispatch"`

	// Discovery 发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Transport 传输配置
	Transport TransportConfig `json:"transport"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// DefaultQoS 未显式指定策略时使用的默认策略
	DefaultQoS QoSConfig `json:"default_qos"`
}

// NewConfig 创建默认配置
//
// 默认配置只在进程内工作：无跨进程传输、无持久化存储、无指标端口。
func NewConfig() *Config {
	return &Config{
		Domain:     DefaultDomainConfig(),
		Log:        DefaultLogConfig(),
		Monitor:    DefaultMonitorConfig(),
		Dispatch:   DefaultDispatchConfig(),
		Discovery:  DefaultDiscoveryConfig(),
		Transport:  DefaultTransportConfig(),
		Storage:    DefaultStorageConfig(),
		Metrics:    DefaultMetricsConfig(),
		DefaultQoS: QoSConfig{},
	}
}

// Validate 验证配置的有效性
//
// 返回所有子配置的错误合集。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	return multierr.Combine(
		c.Domain.Validate(),
		c.Log.Validate(),
		c.Monitor.Validate(),
		c.Dispatch.Validate(),
		c.Discovery.Validate(),
		c.Transport.Validate(),
		c.Storage.Validate(),
		c.Metrics.Validate(),
		c.DefaultQoS.Validate(),
	)
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "domain": {"id": 0},
//	  "transport": {"backend": "redis", "redis_addr": "localhost:6379"},
//	  "default_qos": {"history": "keep_last", "depth": 10, "reliability": "reliable"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// LoadFile 从 JSON 文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Clone 返回配置的深拷贝
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.Log.Components != nil {
		out.Log.Components = make(map[string]string, len(c.Log.Components))
		for k, v := range c.Log.Components {
			out.Log.Components[k] = v
		}
	}
	out.DefaultQoS = c.DefaultQoS.clone()
	return &out
}
