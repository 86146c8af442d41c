package endpoint

import "errors"

var (
	// ErrDestroyed 端点已销毁
	ErrDestroyed = errors.New("endpoint: destroyed")

	// ErrInvalidConfig 端点配置无效
	ErrInvalidConfig = errors.New("endpoint: invalid config")
)
