package main

import (
	"flag"
	"fmt"

	"github.com/dep2p/go-dds/config"
)

// 运行模式
const (
	modeTalker        = "talker"
	modeListener      = "listener"
	modeAsyncListener = "async-listener"
	modeTurtle        = "turtle"
)

// runtimeConfig 一次运行的完整配置
type runtimeConfig struct {
	mode string
	cfg  *config.Config
}

// ============================================================================
//                              配置加载（CLI 专用）
// ============================================================================

// buildRuntime 合并配置文件与命令行参数
//
// 配置优先级（从高到低）：
//  1. 命令行参数（运行时覆盖）
//  2. 配置文件（持久化配置）
//  3. 默认值
func buildRuntime() (*runtimeConfig, error) {
	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
	} else {
		cfg = config.NewConfig()
	}

	overrides := flagOverrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "domain":
			overrides.domain = domain
		case "redis":
			overrides.redis = *redisAddr
		case "metrics":
			overrides.metrics = *metrics
		case "log-level":
			overrides.logLevel = *logLevel
		}
	})
	overrides.apply(cfg)

	if err := validateMode(*mode); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &runtimeConfig{mode: *mode, cfg: cfg}, nil
}

// flagOverrides 显式设置的命令行参数
type flagOverrides struct {
	domain   *int
	redis    string
	metrics  string
	logLevel string
}

func (o flagOverrides) apply(cfg *config.Config) {
	if o.domain != nil {
		cfg.Domain.ID = *o.domain
	}
	if o.redis != "" {
		cfg.Transport.Backend = config.TransportRedis
		cfg.Transport.RedisAddr = o.redis
	}
	if o.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = o.metrics
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

func validateMode(m string) error {
	switch m {
	case modeTalker, modeListener, modeAsyncListener, modeTurtle:
		return nil
	default:
		return fmt.Errorf("未知模式 %q", m)
	}
}
