package participant

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/metrics"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// 模块元信息
const (
	Version     = "1.0.0"
	Name        = "participant"
	Description = "参与者门面，聚合匹配、投递、存活性监测与持久性服务"
)

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`

	EventBus pkgif.EventBus

	// 可选依赖
	Metrics *metrics.Collector `optional:"true"`
	Store   pkgif.SampleStore  `optional:"true"`
}

// ModuleOutput 模块输出
type ModuleOutput struct {
	fx.Out

	Participant *Participant
}

// ProvideParticipant 提供参与者
func ProvideParticipant(input ModuleInput) (ModuleOutput, error) {
	p, err := New(
		WithConfig(ConfigFromUnified(input.UnifiedCfg)),
		WithEventBus(input.EventBus),
		WithMetrics(input.Metrics),
		WithSampleStore(input.Store),
	)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Participant: p}, nil
}

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideParticipant),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput Lifecycle 注册输入
type lifecycleInput struct {
	fx.In
	LC          fx.Lifecycle
	Participant *Participant
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动参与者")
			return input.Participant.Start()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭参与者")
			return input.Participant.Close()
		},
	})
}
