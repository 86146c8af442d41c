package qos

import (
	"errors"
	"fmt"
)

// 策略错误
var (
	// ErrInvalidPolicy 策略值不合法
	ErrInvalidPolicy = errors.New("qos: invalid policy")

	// ErrIncompatible 提供方与请求方策略不兼容
	ErrIncompatible = errors.New("qos: incompatible policy")
)

// PolicyError 单个策略种类的校验错误
type PolicyError struct {
	Kind   Kind
	Reason string
}

func invalid(kind Kind, format string, args ...interface{}) *PolicyError {
	return &PolicyError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Error 实现 error 接口
func (e *PolicyError) Error() string {
	return fmt.Sprintf("qos: invalid %s: %s", e.Kind, e.Reason)
}

// Is 使 errors.Is(err, ErrInvalidPolicy) 成立
func (e *PolicyError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// Incompatibility 单个策略种类的不兼容原因
type Incompatibility struct {
	Kind      Kind
	Offered   string
	Requested string
}

// Error 实现 error 接口
func (i Incompatibility) Error() string {
	return fmt.Sprintf("qos: incompatible %s: offered %s, requested %s", i.Kind, i.Offered, i.Requested)
}

// Is 使 errors.Is(err, ErrIncompatible) 成立
func (i Incompatibility) Is(target error) bool {
	return target == ErrIncompatible
}
