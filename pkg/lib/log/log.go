// Package log 提供 go-dds 统一日志接口
//
// 基于 Go 标准库 log/slog 封装，每个组件通过 Logger(component) 获取
// 带组件名的懒加载 logger。
//
// 支持通过环境变量配置：
//   - DDS_LOG_LEVEL: 日志级别，支持按组件配置
//     格式: 组件=级别,组件=级别,默认级别
//     示例: core/matching=debug,core/dispatch=warn,info
//   - DDS_LOG_FORMAT: 日志格式 (text 或 json)
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level 日志级别
type Level = slog.Level

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// ComponentLevels 各组件的日志级别
	ComponentLevels map[string]slog.Level

	// Format 输出格式
	Format Format
}

// LevelFor 获取指定组件的日志级别
func (c *Config) LevelFor(component string) slog.Level {
	if level, ok := c.ComponentLevels[component]; ok {
		return level
	}
	return c.DefaultLevel
}

var (
	mu     sync.RWMutex
	output io.Writer = os.Stderr
	config           = &Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
	}
	loggers = make(map[string]*slog.Logger)
)

// ConfigFromEnv 从环境变量解析配置
func ConfigFromEnv() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		ComponentLevels: make(map[string]slog.Level),
	}
	if levelStr := os.Getenv("DDS_LOG_LEVEL"); levelStr != "" {
		ParseLevels(cfg, levelStr)
	}
	if strings.EqualFold(os.Getenv("DDS_LOG_FORMAT"), "json") {
		cfg.Format = FormatJSON
	}
	return cfg
}

// ParseLevels 解析日志级别配置字符串
//
// 格式: component=level,component=level,defaultLevel
func ParseLevels(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(strings.TrimSpace(v)); ok {
				cfg.ComponentLevels[strings.TrimSpace(k)] = level
			}
			continue
		}
		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// Configure 应用日志配置，已创建的 LazyLogger 会在下次调用时生效
func Configure(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.ComponentLevels == nil {
		cfg.ComponentLevels = make(map[string]slog.Level)
	}
	mu.Lock()
	config = cfg
	loggers = make(map[string]*slog.Logger)
	mu.Unlock()
}

// SetOutput 设置日志输出目标
func SetOutput(w io.Writer) {
	mu.Lock()
	output = w
	loggers = make(map[string]*slog.Logger)
	mu.Unlock()
}

// SetLevel 设置默认日志级别
func SetLevel(level slog.Level) {
	mu.Lock()
	config.DefaultLevel = level
	loggers = make(map[string]*slog.Logger)
	mu.Unlock()
}

// forComponent 返回（并缓存）组件对应的 slog.Logger
func forComponent(component string) *slog.Logger {
	mu.RLock()
	l, ok := loggers[component]
	mu.RUnlock()
	if ok {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[component]; ok {
		return l
	}

	opts := &slog.HandlerOptions{
		Level: config.LevelFor(component),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}
	var h slog.Handler
	if config.Format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	l = slog.New(h).With("component", component)
	loggers[component] = l
	return l
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 每次日志调用时都按组件查找当前配置，支持运行时切换输出与级别。
//
//	var logger = log.Logger("core/dispatch")
//	logger.Info("分发完成", "topic", name)
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	forComponent(l.component).Debug(msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	forComponent(l.component).Info(msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	forComponent(l.component).Warn(msg, args...)
}

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) {
	forComponent(l.component).Error(msg, args...)
}

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	forComponent(l.component).DebugContext(ctx, msg, args...)
}

// Enabled 检查组件是否启用指定级别
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return forComponent(l.component).Enabled(context.Background(), level)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return forComponent(l.component).With(args...)
}

// TruncateID 安全截取 ID 用于日志显示
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	Configure(ConfigFromEnv())
}
