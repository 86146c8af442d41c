package config

import (
	"fmt"
	"strings"

	"github.com/dep2p/go-dds/pkg/lib/log"
)

// MaxDomainID 最大域标识
const MaxDomainID = 232

// DomainConfig 域配置
//
// 域是端点可见性的分区：只有同一域内的端点会相互匹配，
// 跨进程时域标识也是传输通道名的一部分。
type DomainConfig struct {
	// ID 域标识，0-232
	// 默认值: 0
	ID int `json:"id"`
}

// DefaultDomainConfig 返回默认的域配置
func DefaultDomainConfig() DomainConfig {
	return DomainConfig{ID: 0}
}

// Validate 验证域配置
func (c DomainConfig) Validate() error {
	if c.ID < 0 || c.ID > MaxDomainID {
		return fmt.Errorf("domain: id must be in [0, %d], got %d", MaxDomainID, c.ID)
	}
	return nil
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 默认日志级别: debug/info/warn/error
	// 默认值: "info"
	Level string `json:"level"`

	// Format 输出格式: text/json
	// 默认值: "text"
	Format string `json:"format"`

	// Components 组件级日志级别，例如 {"core/dispatch": "debug"}
	Components map[string]string `json:"components,omitempty"`
}

// DefaultLogConfig 返回默认的日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	if _, ok := log.ParseLevel(c.Level); !ok {
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	for component, level := range c.Components {
		if _, ok := log.ParseLevel(level); !ok {
			return fmt.Errorf("log: unknown level %q for component %s", level, component)
		}
	}
	return nil
}

// ToLogConfig 转换为日志包配置
func (c LogConfig) ToLogConfig() *log.Config {
	out := &log.Config{
		DefaultLevel:    log.LevelInfo,
		ComponentLevels: make(map[string]log.Level, len(c.Components)),
	}
	if level, ok := log.ParseLevel(c.Level); ok {
		out.DefaultLevel = level
	}
	if strings.EqualFold(c.Format, "json") {
		out.Format = log.FormatJSON
	}
	for component, name := range c.Components {
		if level, ok := log.ParseLevel(name); ok {
			out.ComponentLevels[component] = level
		}
	}
	return out
}

// Apply 应用到全局日志配置
func (c LogConfig) Apply() {
	log.Configure(c.ToLogConfig())
}
