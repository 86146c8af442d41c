// Package types 定义 go-dds 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 go-dds 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ============================================================================
//                              GUID - 端点标识
// ============================================================================

// GUID 端点全局唯一标识
//
// 由参与者前缀（Context 创建时生成）和实体 ID 组成。
// 同一个 Context 创建的所有端点共享同一个 Prefix。
type GUID struct {
	Prefix uuid.UUID
	Entity uuid.UUID
}

// GUIDLen GUID 的二进制长度
const GUIDLen = 32

// ErrInvalidGUID 无效的 GUID
var ErrInvalidGUID = errors.New("types: invalid guid")

// NewParticipantPrefix 生成新的参与者前缀
func NewParticipantPrefix() uuid.UUID {
	return uuid.New()
}

// NewGUID 在指定参与者下生成新的端点 GUID
func NewGUID(prefix uuid.UUID) GUID {
	return GUID{Prefix: prefix, Entity: uuid.New()}
}

// String 返回 "prefix.entity" 形式
func (g GUID) String() string {
	return g.Prefix.String() + "." + g.Entity.String()
}

// ShortString 返回日志用的短标识
func (g GUID) ShortString() string {
	return g.Entity.String()[:8]
}

// IsZero 检查是否为零值
func (g GUID) IsZero() bool {
	return g.Prefix == uuid.Nil && g.Entity == uuid.Nil
}

// Bytes 返回 32 字节二进制表示
func (g GUID) Bytes() []byte {
	b := make([]byte, 0, GUIDLen)
	b = append(b, g.Prefix[:]...)
	return append(b, g.Entity[:]...)
}

// GUIDFromBytes 从二进制表示解析 GUID
func GUIDFromBytes(b []byte) (GUID, error) {
	if len(b) != GUIDLen {
		return GUID{}, fmt.Errorf("%w: length %d", ErrInvalidGUID, len(b))
	}
	var g GUID
	copy(g.Prefix[:], b[:16])
	copy(g.Entity[:], b[16:])
	return g, nil
}

// ParseGUID 从 "prefix.entity" 字符串解析 GUID
func ParseGUID(s string) (GUID, error) {
	p, e, ok := strings.Cut(s, ".")
	if !ok {
		return GUID{}, fmt.Errorf("%w: %q", ErrInvalidGUID, s)
	}
	prefix, err := uuid.Parse(p)
	if err != nil {
		return GUID{}, fmt.Errorf("%w: %v", ErrInvalidGUID, err)
	}
	entity, err := uuid.Parse(e)
	if err != nil {
		return GUID{}, fmt.Errorf("%w: %v", ErrInvalidGUID, err)
	}
	return GUID{Prefix: prefix, Entity: entity}, nil
}

// ============================================================================
//                              Role - 端点角色
// ============================================================================

// Role 端点角色
type Role int

const (
	// RoleWriter 发布端
	RoleWriter Role = iota
	// RoleReader 订阅端
	RoleReader
)

// String 返回角色的字符串表示
func (r Role) String() string {
	switch r {
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return "unknown"
	}
}

// Opposite 返回对端角色
func (r Role) Opposite() Role {
	if r == RoleWriter {
		return RoleReader
	}
	return RoleWriter
}
