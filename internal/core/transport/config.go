package transport

import (
	"fmt"
	"time"

	"github.com/dep2p/go-dds/config"
)

// Config 传输桥配置
type Config struct {
	// Backend 传输后端: none/inmem/redis
	Backend string

	// Domain 域 ID，作为通道名的一部分
	Domain int

	// ChannelPrefix 通道名前缀
	ChannelPrefix string

	// AnnounceInterval 重新公告间隔
	AnnounceInterval time.Duration

	// LeaseDuration 远端参与者的静默上限
	LeaseDuration time.Duration

	// SendTimeout 单帧发送超时
	SendTimeout time.Duration

	// Redis 连接参数
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	t := config.DefaultTransportConfig()
	d := config.DefaultDiscoveryConfig()
	return Config{
		Backend:          t.Backend,
		ChannelPrefix:    t.ChannelPrefix,
		AnnounceInterval: d.AnnounceInterval.Duration(),
		LeaseDuration:    d.LeaseDuration.Duration(),
		SendTimeout:      t.SendTimeout.Duration(),
		RedisAddr:        t.RedisAddr,
	}
}

// ConfigFromUnified 从统一配置创建传输桥配置
func ConfigFromUnified(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	out.Backend = cfg.Transport.Backend
	out.Domain = cfg.Domain.ID
	out.ChannelPrefix = cfg.Transport.ChannelPrefix
	out.AnnounceInterval = cfg.Discovery.AnnounceInterval.Duration()
	out.LeaseDuration = cfg.Discovery.LeaseDuration.Duration()
	out.SendTimeout = cfg.Transport.SendTimeout.Duration()
	out.RedisAddr = cfg.Transport.RedisAddr
	out.RedisPassword = cfg.Transport.RedisPassword
	out.RedisDB = cfg.Transport.RedisDB
	return out
}

// Enabled 是否启用跨进程传输
func (c Config) Enabled() bool {
	return c.Backend != "" && c.Backend != config.TransportNone
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.AnnounceInterval <= 0 {
		return fmt.Errorf("announce interval must be positive")
	}
	if c.LeaseDuration <= c.AnnounceInterval {
		return fmt.Errorf("lease duration %s must exceed announce interval %s", c.LeaseDuration, c.AnnounceInterval)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive")
	}
	return nil
}

// DiscoveryChannel 返回发现通道名
func (c Config) DiscoveryChannel() string {
	return fmt.Sprintf("%s/%d/discovery", c.ChannelPrefix, c.Domain)
}

// DataChannel 返回数据通道名
func (c Config) DataChannel() string {
	return fmt.Sprintf("%s/%d/data", c.ChannelPrefix, c.Domain)
}
