package config

import (
	"fmt"
	"time"
)

// 传输后端
const (
	// TransportNone 仅进程内
	TransportNone = "none"
	// TransportInmem 进程内 Hub，用于同一进程中的多个 Context
	TransportInmem = "inmem"
	// TransportRedis Redis 发布/订阅
	TransportRedis = "redis"
)

// TransportConfig 跨进程传输配置
type TransportConfig struct {
	// Backend 传输后端: none/inmem/redis
	// 默认值: "none"
	Backend string `json:"backend"`

	// ChannelPrefix 通道名前缀，通道名为 <prefix>/<domain>/<kind>
	// 默认值: "dds"
	ChannelPrefix string `json:"channel_prefix"`

	// RedisAddr Redis 地址
	// 默认值: "localhost:6379"
	RedisAddr string `json:"redis_addr"`

	// RedisPassword Redis 密码
	RedisPassword string `json:"redis_password,omitempty"`

	// RedisDB Redis 数据库编号
	RedisDB int `json:"redis_db"`

	// SendTimeout 单帧发送超时
	// 默认值: 1s
	SendTimeout Duration `json:"send_timeout"`
}

// DefaultTransportConfig 返回默认的传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Backend:       TransportNone,
		ChannelPrefix: "dds",
		RedisAddr:     "localhost:6379",
		SendTimeout:   Duration(time.Second),
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Backend {
	case TransportNone, TransportInmem:
	case TransportRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("transport: redis_addr cannot be empty")
		}
	default:
		return fmt.Errorf("transport: unknown backend %q", c.Backend)
	}
	if c.ChannelPrefix == "" {
		return fmt.Errorf("transport: channel_prefix cannot be empty")
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("transport: send_timeout must be positive")
	}
	return nil
}

// Enabled 是否启用跨进程传输
func (c TransportConfig) Enabled() bool {
	return c.Backend != "" && c.Backend != TransportNone
}

// DiscoveryConfig 端点发现配置
//
// 仅在启用传输时生效。
type DiscoveryConfig struct {
	// AnnounceInterval 本地端点重新公告的间隔
	// 默认值: 1s
	AnnounceInterval Duration `json:"announce_interval"`

	// LeaseDuration 远端参与者静默多久后移除其代理端点
	// 默认值: 5s
	LeaseDuration Duration `json:"lease_duration"`
}

// DefaultDiscoveryConfig 返回默认的发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		AnnounceInterval: Duration(time.Second),
		LeaseDuration:    Duration(5 * time.Second),
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("discovery: announce_interval must be positive")
	}
	if c.LeaseDuration <= c.AnnounceInterval {
		return fmt.Errorf("discovery: lease_duration (%s) must exceed announce_interval (%s)",
			c.LeaseDuration, c.AnnounceInterval)
	}
	return nil
}
