package dds

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-dds/internal/core/participant"
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// Node 命名的端点容器
//
// 节点下创建的主题、发布者与订阅者都属于其 Context；关闭节点销毁
// 该节点创建的所有端点，主题绑定保留在 Context 中。
type Node struct {
	ctx       *Context
	namespace string
	name      string

	mu        sync.Mutex
	endpoints map[types.GUID]destroyer
	closed    bool
}

// destroyer 节点持有的端点
type destroyer interface {
	destroy() error
}

func newNode(c *Context, namespace, name string) *Node {
	return &Node{
		ctx:       c,
		namespace: namespace,
		name:      name,
		endpoints: make(map[types.GUID]destroyer),
	}
}

// Context 返回所属 Context
func (n *Node) Context() *Context { return n.ctx }

// Namespace 返回命名空间
func (n *Node) Namespace() string { return n.namespace }

// Name 返回节点名
func (n *Node) Name() string { return n.name }

// FullName 返回完整名，例如 "/turtle1/teleop"
func (n *Node) FullName() string {
	return types.TopicName{Namespace: n.namespace, Name: n.name}.String()
}

// ════════════════════════════════════════════════════════════════════════════
//                              主题
// ════════════════════════════════════════════════════════════════════════════

// CreateTopic 创建主题
//
// name 以 "/" 开头时为绝对路径（"/turtle1/cmd_vel"），否则相对于节点的
// 命名空间。typeName 形如 "std_msgs/String"。q 为主题级策略，可为 nil；
// 它覆盖 Context 的默认策略，又被端点级策略覆盖。
//
// 同名主题已绑定到不同类型时返回 *ConfigurationError（Field 为 "type_name"）。
func (n *Node) CreateTopic(name, typeName string, q *qos.Policies) (*Topic, error) {
	if n.isClosed() {
		return nil, ErrNodeClosed
	}

	topic, err := n.resolveTopic(name)
	if err != nil {
		return nil, configError("topic", err)
	}
	typ, err := types.ParseTypeName(typeName)
	if err != nil {
		return nil, configError("type_name", err)
	}
	if q != nil {
		if err := q.Validate(); err != nil {
			return nil, configError("qos", err)
		}
	}

	if err := n.ctx.participant.BindTopic(topic, typ); err != nil {
		switch {
		case errors.Is(err, participant.ErrTypeMismatch):
			return nil, configError("type_name", err)
		case errors.Is(err, participant.ErrClosed):
			return nil, ErrContextClosed
		default:
			return nil, configError("topic", err)
		}
	}

	base, err := n.ctx.cfg.DefaultQoS.ToPolicies()
	if err != nil {
		return nil, configError("default_qos", err)
	}
	logger.Debug("主题已创建", "node", n.FullName(), "topic", topic.String(), "type", typ.String())
	return &Topic{name: topic, typ: typ, qos: base.Merge(q)}, nil
}

func (n *Node) resolveTopic(name string) (types.TopicName, error) {
	if strings.HasPrefix(name, "/") {
		return types.ParseTopicName(name)
	}
	return types.NewTopicName(n.namespace, name)
}

// ════════════════════════════════════════════════════════════════════════════
//                              端点登记
// ════════════════════════════════════════════════════════════════════════════

func (n *Node) track(id types.GUID, ep destroyer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	n.endpoints[id] = ep
	return nil
}

func (n *Node) untrack(id types.GUID) {
	n.mu.Lock()
	delete(n.endpoints, id)
	n.mu.Unlock()
}

// Close 关闭节点，销毁节点创建的所有端点
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	eps := make([]destroyer, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		eps = append(eps, ep)
	}
	n.mu.Unlock()

	var errs error
	for _, ep := range eps {
		errs = multierr.Append(errs, ep.destroy())
	}
	n.ctx.removeNode(n)
	logger.Debug("节点已关闭", "node", n.FullName(), "endpoints", len(eps))
	return errs
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
