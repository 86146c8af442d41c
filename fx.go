package dds

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/eventbus"
	"github.com/dep2p/go-dds/internal/core/metrics"
	"github.com/dep2p/go-dds/internal/core/participant"
	"github.com/dep2p/go-dds/internal/core/storage"
	"github.com/dep2p/go-dds/internal/core/transport"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// Module 返回 DDS 核心的 Fx 模块
//
// 需要由外部提供 *config.Config；可选提供 *prometheus.Registry 与
// pkgif.Transport。加载顺序（按依赖）：
//  1. EventBus / Metrics / Storage
//  2. Participant
//  3. Transport Bridge（配置了后端或注入了传输时）
func Module() fx.Option {
	return fx.Options(
		eventbus.Module(),
		metrics.Module(),
		storage.Module(),
		participant.Module(),
		transport.Module(),
	)
}

// buildFxApp 构建 Fx 应用
func buildFxApp(o *options, c *Context) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := o.config.Validate(); err != nil {
		return nil, configError("config", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 外部依赖
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(o.config),
	}
	if o.registry != nil {
		modules = append(modules, fx.Supply(o.registry))
	}
	if tr := o.transport; tr != nil {
		modules = append(modules, fx.Provide(func() pkgif.Transport { return tr }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 核心模块
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, Module())

	// ════════════════════════════════════════════════════════════════════════
	// 4. 用户自定义模块
	// ════════════════════════════════════════════════════════════════════════
	if len(o.userFxOptions) > 0 {
		modules = append(modules, o.userFxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 5. 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectContextComponents(c)))

	// ════════════════════════════════════════════════════════════════════════
	// 6. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("assemble modules: %w", err)
	}
	return app, nil
}

// contextInjectParams Context 组件注入参数
type contextInjectParams struct {
	fx.In

	Config      *config.Config
	Participant *participant.Participant
	Metrics     *metrics.Collector

	// 可选组件
	Bridge *transport.Bridge `optional:"true"`
	Store  pkgif.SampleStore `optional:"true"`
}

// injectContextComponents 创建 Context 组件注入函数
func injectContextComponents(c *Context) interface{} {
	return func(params contextInjectParams) {
		c.cfg = params.Config
		c.participant = params.Participant
		c.metrics = params.Metrics
		c.bridge = params.Bridge
		c.store = params.Store
	}
}
