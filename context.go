package dds

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-dds/config"
	"github.com/dep2p/go-dds/internal/core/metrics"
	"github.com/dep2p/go-dds/internal/core/participant"
	"github.com/dep2p/go-dds/internal/core/transport"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("dds")

// ════════════════════════════════════════════════════════════════════════════
//                              Context
// ════════════════════════════════════════════════════════════════════════════

// Context 调用方持有的 DDS 上下文
//
// Context 拥有主题注册表、域标识、状态事件总线以及其下所有节点和端点。
// 同一进程可以存在多个 Context；它们之间只通过跨进程传输相互可见。
type Context struct {
	app  *fx.App
	opts *options

	// ────────────────────────────────────────────────────────────────────────
	// 由 Fx 注入的组件
	// ────────────────────────────────────────────────────────────────────────

	cfg         *config.Config
	participant *participant.Participant
	metrics     *metrics.Collector
	bridge      *transport.Bridge
	store       pkgif.SampleStore

	mu     sync.Mutex
	nodes  map[*Node]struct{}
	closed bool
}

// NewContext 创建并启动 Context
//
// 示例：
//
//	ctx, err := dds.NewContext(context.Background(),
//	    dds.WithDomain(7),
//	    dds.WithRedis("localhost:6379"),
//	)
func NewContext(ctx context.Context, opts ...Option) (*Context, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, configError("option", err)
		}
	}

	c := &Context{
		opts:  o,
		nodes: make(map[*Node]struct{}),
	}
	app, err := buildFxApp(o, c)
	if err != nil {
		return nil, err
	}
	c.app = app

	startCtx, cancel := context.WithTimeout(ctx, o.startTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		logger.Error("Context 启动失败", "error", err)
		return nil, fmt.Errorf("start context: %w", err)
	}

	logger.Info("Context 已启动",
		"domain", c.cfg.Domain.ID,
		"participant", log.TruncateID(c.participant.Prefix().String(), 8),
		"transport", c.cfg.Transport.Backend,
		"persistent", c.store != nil)
	return c, nil
}

// Domain 返回域标识
func (c *Context) Domain() int {
	return c.participant.Domain()
}

// Participant 返回参与者前缀
func (c *Context) Participant() uuid.UUID {
	return c.participant.Prefix()
}

// Gatherer 返回指标注册表，供 promhttp 使用
func (c *Context) Gatherer() prometheus.Gatherer {
	return c.metrics.Gatherer()
}

// Peers 返回当前可见的远端参与者，未启用跨进程传输时为空
func (c *Context) Peers() []uuid.UUID {
	if c.bridge == nil {
		return nil
	}
	return c.bridge.Peers()
}

// Subscribe 订阅 Context 内所有端点的状态事件
//
// 示例：
//
//	sub, _ := ctx.Subscribe(interfaces.Kinds(types.StatusRequestedDeadlineMissed))
//	defer sub.Close()
//	for ev := range sub.Out() {
//	    fmt.Println(ev.Kind, ev.Topic)
//	}
func (c *Context) Subscribe(opts ...pkgif.SubscriptionOpt) (pkgif.Subscription, error) {
	if c.isClosed() {
		return nil, ErrContextClosed
	}
	return c.participant.EventBus().Subscribe(opts...)
}

// AssertLiveliness 声明本 Context 下 Automatic 与 ManualByParticipant 写端存活
func (c *Context) AssertLiveliness() error {
	if c.isClosed() {
		return ErrContextClosed
	}
	return c.participant.AssertLiveliness()
}

// ════════════════════════════════════════════════════════════════════════════
//                              节点
// ════════════════════════════════════════════════════════════════════════════

// NewNode 创建节点
//
// namespace 以 "/" 开头，作为节点下相对主题名的前缀；name 为单段名称。
func (c *Context) NewNode(namespace, name string) (*Node, error) {
	// 节点的完整名与主题名遵循同样的规则
	if _, err := types.NewTopicName(namespace, name); err != nil {
		return nil, configError("node", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	n := newNode(c, namespace, name)
	c.nodes[n] = struct{}{}
	logger.Debug("节点已创建", "node", n.FullName())
	return n, nil
}

func (c *Context) removeNode(n *Node) {
	c.mu.Lock()
	delete(c.nodes, n)
	c.mu.Unlock()
}

// ════════════════════════════════════════════════════════════════════════════
//                              生命周期
// ════════════════════════════════════════════════════════════════════════════

// Close 关闭 Context
//
// 依次关闭所有节点（销毁其端点并通知对端），然后停止所有模块。
// 重复调用返回 nil。
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nodes := make([]*Node, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	logger.Info("正在关闭 Context", "nodes", len(nodes))

	var errs error
	for _, n := range nodes {
		errs = multierr.Append(errs, n.Close())
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.stopTimeout)
	defer cancel()
	if err := c.app.Stop(ctx); err != nil {
		logger.Warn("停止 Fx 应用失败", "error", err)
		errs = multierr.Append(errs, err)
	}

	logger.Info("Context 已关闭")
	return errs
}

func (c *Context) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
