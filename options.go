package dds

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-dds/config"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/types"
)

// 默认超时
const (
	defaultStartTimeout = 15 * time.Second
	defaultStopTimeout  = 30 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Context 选项
// ════════════════════════════════════════════════════════════════════════════

// Option Context 配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// config 统一配置，选项按顺序在其副本上修改
	config *config.Config

	// registry 调用方持有的指标注册表
	registry *prometheus.Registry

	// transport 外部提供的传输，优先于配置的后端
	transport pkgif.Transport

	// 超时
	startTimeout time.Duration
	stopTimeout  time.Duration

	// userFxOptions 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

func newOptions() *options {
	return &options{
		config:       config.NewConfig(),
		startTimeout: defaultStartTimeout,
		stopTimeout:  defaultStopTimeout,
	}
}

// WithConfig 使用完整配置
//
// 配置被复制，之后的选项在副本上修改。应放在其他选项之前。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithDomain 设置域标识
//
// 不同域的端点互不可见。
func WithDomain(id int) Option {
	return func(o *options) error {
		if id < 0 || id > config.MaxDomainID {
			return fmt.Errorf("domain id %d out of range [0, %d]", id, config.MaxDomainID)
		}
		o.config.Domain.ID = id
		return nil
	}
}

// WithRegistry 在调用方的注册表上注册指标
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) error {
		o.registry = reg
		return nil
	}
}

// WithTransport 使用外部提供的跨进程传输
//
// 传输的关闭由调用方负责。
func WithTransport(tr pkgif.Transport) Option {
	return func(o *options) error {
		if tr == nil {
			return errors.New("transport is nil")
		}
		o.transport = tr
		return nil
	}
}

// WithInmemTransport 接入进程内共享 Hub
//
// 同一进程中的多个 Context 通过它相互发现。
func WithInmemTransport() Option {
	return func(o *options) error {
		o.config.Transport.Backend = config.TransportInmem
		return nil
	}
}

// WithRedis 使用 Redis 发布/订阅作为跨进程传输
func WithRedis(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return errors.New("redis address is empty")
		}
		o.config.Transport.Backend = config.TransportRedis
		o.config.Transport.RedisAddr = addr
		return nil
	}
}

// WithStorage 启用 Persistent 持久性的样本存储
//
// dataDir 为空时使用内存模式。
func WithStorage(dataDir string) Option {
	return func(o *options) error {
		o.config.Storage.Enabled = true
		if dataDir == "" {
			o.config.Storage.InMemory = true
			return nil
		}
		o.config.Storage.DataDir = dataDir
		return nil
	}
}

// WithDefaultQoS 设置 Context 级默认策略
//
// 主题级与端点级策略在其之上覆盖。
func WithDefaultQoS(q config.QoSConfig) Option {
	return func(o *options) error {
		if err := q.Validate(); err != nil {
			return err
		}
		o.config.DefaultQoS = q
		return nil
	}
}

// WithStartTimeout 设置启动超时
func WithStartTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.New("start timeout must be positive")
		}
		o.startTimeout = d
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              端点选项
// ════════════════════════════════════════════════════════════════════════════

// EndpointOption 端点配置选项函数
type EndpointOption func(*endpointOptions)

type endpointOptions struct {
	listener func(types.StatusEvent)
}

func newEndpointOptions(opts []EndpointOption) *endpointOptions {
	o := &endpointOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithStatusListener 注册端点状态监听器
//
// 监听器在事件产生的协程中同步调用，不得阻塞。
func WithStatusListener(fn func(types.StatusEvent)) EndpointOption {
	return func(o *endpointOptions) {
		o.listener = fn
	}
}
