package dds

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-dds/internal/core/dispatch"
	"github.com/dep2p/go-dds/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 配置错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrConfiguration 无效的配置（主题、策略或选项）
	ErrConfiguration = errors.New("dds: invalid configuration")

	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrEndpointDestroyed 端点已销毁
	ErrEndpointDestroyed = errors.New("dds: endpoint destroyed")

	// ErrContextClosed Context 已关闭
	ErrContextClosed = errors.New("dds: context closed")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("dds: node closed")
)

// ────────────────────────────────────────────────────────────────────────────
// 投递错误（由投递器定义）
// ────────────────────────────────────────────────────────────────────────────

// DeliveryError 单个对端的投递失败
type DeliveryError = dispatch.DeliveryError

// Report 一次发布的投递结果
type Report = dispatch.Report

var (
	// ErrBlockedTimeout 可靠投递超过最长阻塞时间
	ErrBlockedTimeout = dispatch.ErrBlockedTimeout

	// ErrPeerGone 对端已销毁
	ErrPeerGone = dispatch.ErrPeerGone

	// ErrTransport 传输失败
	ErrTransport = dispatch.ErrTransport
)

// ════════════════════════════════════════════════════════════════════════════
//                              ConfigurationError
// ════════════════════════════════════════════════════════════════════════════

// ConfigurationError 带字段名的配置错误
//
// errors.Is(err, ErrConfiguration) 对所有配置错误成立，
// 同时可以继续匹配底层原因。
type ConfigurationError struct {
	// Field 出错的配置项，例如 "topic"、"type_name"、"qos"
	Field string

	// Err 底层原因
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrConfiguration, e.Field, e.Err)
}

// Unwrap 返回 ErrConfiguration 与底层原因
func (e *ConfigurationError) Unwrap() []error {
	return []error{ErrConfiguration, e.Err}
}

func configError(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}

// ════════════════════════════════════════════════════════════════════════════
//                              ReceiveError
// ════════════════════════════════════════════════════════════════════════════

// ReceiveError 单个样本的解码失败
//
// 推送流遇到 ReceiveError 后继续交付后续样本。
type ReceiveError struct {
	// Writer 样本的写端
	Writer types.GUID

	// Seq 样本序列号
	Seq types.SequenceNumber

	// Err 解码错误
	Err error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("dds: decode sample %s#%d: %v", e.Writer.ShortString(), e.Seq, e.Err)
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}
