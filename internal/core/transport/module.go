package transport

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/participant"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// 模块元信息
const (
	Version     = "1.0.0"
	Name        = "transport"
	Description = "跨进程传输桥：端点发现与样本转发"
)

// dialTimeout 创建传输时连接后端的超时
const dialTimeout = 5 * time.Second

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	UnifiedCfg  *config.Config `optional:"true"`
	Participant *participant.Participant

	// Transport 外部提供的传输，优先于配置的后端
	Transport pkgif.Transport `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	// Bridge 未启用传输时为 nil
	Bridge *Bridge
	// Config 传输桥配置
	Config Config
}

// Module 返回 Fx 模块
//
// 提供:
//   - *Bridge: 传输桥（未启用时为 nil）
//   - Config: 传输桥配置
//
// 生命周期:
//   - OnStart: 订阅通道，开始公告
//   - OnStop: 撤销参与者，关闭自建的传输
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideBridge),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideBridge 提供传输桥
func ProvideBridge(input ModuleInput, lc fx.Lifecycle) (ModuleOutput, error) {
	cfg := ConfigFromUnified(input.UnifiedCfg)
	tr := input.Transport
	if tr == nil && !cfg.Enabled() {
		logger.Debug("跨进程传输未启用")
		return ModuleOutput{Config: cfg}, nil
	}

	owned := false
	if tr == nil {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		defer cancel()
		var err error
		if tr, err = Open(ctx, cfg); err != nil {
			logger.Error("创建传输失败", "backend", cfg.Backend, "error", err)
			return ModuleOutput{}, err
		}
		owned = true
	}

	b, err := New(cfg, tr, input.Participant)
	if err != nil {
		if owned {
			_ = tr.Close()
		}
		return ModuleOutput{}, err
	}
	if owned {
		lc.Append(fx.Hook{
			OnStop: func(_ context.Context) error {
				return tr.Close()
			},
		})
	}
	return ModuleOutput{Bridge: b, Config: cfg}, nil
}

// lifecycleInput Lifecycle 注册输入
type lifecycleInput struct {
	fx.In
	LC     fx.Lifecycle
	Bridge *Bridge `optional:"true"`
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	if input.Bridge == nil {
		return
	}
	b := input.Bridge
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动传输桥")
			return b.Start()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭传输桥")
			return b.Close()
		},
	})
}
