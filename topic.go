package dds

import (
	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// Topic 主题
//
// 主题创建后不可变。端点的完整策略按 Context 默认策略、主题策略、
// 端点策略的顺序逐层覆盖，未指定的种类取默认值。
type Topic struct {
	name types.TopicName
	typ  types.TypeName
	qos  *qos.Policies
}

// Name 返回主题名
func (t *Topic) Name() types.TopicName { return t.name }

// TypeName 返回类型名
func (t *Topic) TypeName() types.TypeName { return t.typ }

// QoS 返回主题级策略（已合并 Context 默认策略）的深拷贝
func (t *Topic) QoS() *qos.Policies { return t.qos.Merge(nil) }

// String 返回 "主题名 (类型名)"
func (t *Topic) String() string {
	return t.name.String() + " (" + t.typ.String() + ")"
}

// profile 合并端点策略并补全为完整策略
func (t *Topic) profile(q *qos.Policies) (qos.Profile, error) {
	if q != nil {
		if err := q.Validate(); err != nil {
			return qos.Profile{}, configError("qos", err)
		}
	}
	p := t.qos.Merge(q).Complete()
	if err := p.Validate(); err != nil {
		return qos.Profile{}, configError("qos", err)
	}
	return p, nil
}
