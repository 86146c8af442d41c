package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/dep2p/go-dds"
)

// newRegistry 创建进程指标注册表
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newDDSContext 创建 DDS Context，随应用停止关闭
func newDDSContext(lc fx.Lifecycle, rt *runtimeConfig, reg *prometheus.Registry) (*dds.Context, error) {
	c, err := dds.NewContext(context.Background(),
		dds.WithConfig(rt.cfg),
		dds.WithRegistry(reg),
	)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

// registerMetricsServer 按配置启动指标 HTTP 服务
func registerMetricsServer(lc fx.Lifecycle, rt *runtimeConfig, reg *prometheus.Registry) {
	mc := rt.cfg.Metrics
	if !mc.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(mc.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              mc.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", mc.ListenAddr)
			if err != nil {
				return err
			}
			logger.Info("指标服务已启动", "addr", ln.Addr().String(), "path", mc.Path)
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("指标服务异常退出", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
