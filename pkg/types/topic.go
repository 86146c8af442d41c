package types

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
//                              主题与类型名
// ============================================================================

// 名称错误
var (
	// ErrInvalidName 无效的主题名
	ErrInvalidName = errors.New("types: invalid name")

	// ErrInvalidTypeName 无效的类型名
	ErrInvalidTypeName = errors.New("types: invalid type name")
)

// TopicName 主题名
//
// Namespace 以 "/" 开头，例如 "/" 或 "/turtle1"；Name 为单段名称，
// 例如 "topic" 或 "cmd_vel"。
type TopicName struct {
	Namespace string
	Name      string
}

// NewTopicName 创建并校验主题名
func NewTopicName(namespace, name string) (TopicName, error) {
	t := TopicName{Namespace: namespace, Name: name}
	if err := t.Validate(); err != nil {
		return TopicName{}, err
	}
	return t, nil
}

// ParseTopicName 解析完整主题路径，例如 "/turtle1/cmd_vel"
func ParseTopicName(path string) (TopicName, error) {
	if !strings.HasPrefix(path, "/") {
		return TopicName{}, fmt.Errorf("%w: %q must start with '/'", ErrInvalidName, path)
	}
	i := strings.LastIndex(path, "/")
	ns := path[:i]
	if ns == "" {
		ns = "/"
	}
	return NewTopicName(ns, path[i+1:])
}

// Validate 校验主题名
func (t TopicName) Validate() error {
	if !strings.HasPrefix(t.Namespace, "/") {
		return fmt.Errorf("%w: namespace %q must start with '/'", ErrInvalidName, t.Namespace)
	}
	if t.Namespace != "/" {
		if strings.HasSuffix(t.Namespace, "/") {
			return fmt.Errorf("%w: namespace %q has trailing '/'", ErrInvalidName, t.Namespace)
		}
		for _, seg := range strings.Split(t.Namespace[1:], "/") {
			if !validSegment(seg) {
				return fmt.Errorf("%w: namespace segment %q", ErrInvalidName, seg)
			}
		}
	}
	if !validSegment(t.Name) {
		return fmt.Errorf("%w: name %q", ErrInvalidName, t.Name)
	}
	return nil
}

// String 返回完整路径
func (t TopicName) String() string {
	if t.Namespace == "/" {
		return "/" + t.Name
	}
	return t.Namespace + "/" + t.Name
}

// TypeName 消息类型名，例如 std_msgs/String
type TypeName struct {
	Package string
	Name    string
}

// NewTypeName 创建并校验类型名
func NewTypeName(pkg, name string) (TypeName, error) {
	if !validSegment(pkg) || !validSegment(name) {
		return TypeName{}, fmt.Errorf("%w: %s/%s", ErrInvalidTypeName, pkg, name)
	}
	return TypeName{Package: pkg, Name: name}, nil
}

// ParseTypeName 解析 "pkg/Name"
func ParseTypeName(s string) (TypeName, error) {
	pkg, name, ok := strings.Cut(s, "/")
	if !ok {
		return TypeName{}, fmt.Errorf("%w: %q", ErrInvalidTypeName, s)
	}
	return NewTypeName(pkg, name)
}

// String 返回 "pkg/Name"
func (t TypeName) String() string {
	return t.Package + "/" + t.Name
}

// validSegment 名称段只允许字母、数字和下划线，且不以数字开头
func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
