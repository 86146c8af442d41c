package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/go-dds/config"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
)

// 模块元信息
const (
	Version     = "1.0.0"
	Name        = "storage"
	Description = "Persistent 持久性样本存储"
)

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result Storage 模块提供的结果
type Result struct {
	fx.Out

	// Store 未启用存储时为 nil
	Store pkgif.SampleStore
	// Config 存储配置
	Config Config
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - pkgif.SampleStore: 样本存储（未启用时为 nil）
//   - Config: 存储配置
//
// 生命周期:
//   - OnStart: 启动引擎后台 GC
//   - OnStop: 关闭存储
func Module() fx.Option {
	return fx.Module(Name,
		fx.Provide(ProvideStorage),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStorage 提供样本存储和配置
func ProvideStorage(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		logger.Debug("持久化存储未启用")
		return Result{Config: cfg}, nil
	}

	store, err := Open(cfg)
	if err != nil {
		logger.Error("打开样本存储失败", "path", cfg.Engine.Path, "error", err)
		return Result{}, err
	}
	return Result{Store: store, Config: cfg}, nil
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, store pkgif.SampleStore) {
	s, ok := store.(*SampleStore)
	if !ok || s == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动样本存储")
			return s.Start()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭样本存储")
			if err := s.Close(); err != nil {
				logger.Warn("样本存储关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}
