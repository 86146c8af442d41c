// Package main 提供 go-dds 演示程序
//
// 四种模式对应四个常见的 ROS 2 示例：
//
//	dds-demo -mode talker           每 100ms 在 /topic 上发布 "count=N ..."
//	dds-demo -mode listener         就绪令牌 + Take 循环（拉取）
//	dds-demo -mode async-listener   推送流
//	dds-demo -mode turtle           每 10ms 在 /turtle1/cmd_vel 上发布 Twist
//
// 跨进程运行时需要传输后端，例如 -redis localhost:6379。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dep2p/go-dds"
	"github.com/dep2p/go-dds/pkg/lib/log"
)

var logger = log.Logger("dds/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖 / 快速测试
//   JSON 配置文件：持久化配置（域、传输、存储、默认策略）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	mode       = flag.String("mode", modeTalker, "运行模式 (talker/listener/async-listener/turtle)")
	configFile = flag.String("config", "", "配置文件路径")
	domain     = flag.Int("domain", 0, "域标识 (0-232)")
	redisAddr  = flag.String("redis", "", "Redis 地址，设置后通过 Redis 跨进程通信")
	metrics    = flag.String("metrics", "", "指标 HTTP 监听地址，例如 :9464")
	logLevel   = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")

	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(dds.VersionInfo())
		return nil
	}

	rt, err := buildRuntime()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}
	rt.cfg.Log.Apply()

	zl, err := newZapLogger(rt.cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("创建日志失败: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	fmt.Printf("📦 %s\n", dds.VersionInfo())
	logger.Info("启动演示程序", "mode", rt.mode, "domain", rt.cfg.Domain.ID, "transport", rt.cfg.Transport.Backend)

	app := fx.New(
		fx.Supply(rt),
		fx.Provide(
			newRegistry,
			newDDSContext,
		),
		fx.Invoke(registerMetricsServer),
		fx.Invoke(registerDemo),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zl}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}

	fmt.Println("已启动，按 Ctrl+C 退出")
	sig := <-app.Done()
	logger.Info("收到退出信号", "signal", sig.String())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	return app.Stop(stopCtx)
}

// newZapLogger 创建 Fx 生命周期事件使用的 zap 日志
func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
