package matching

import "errors"

// 匹配错误
var (
	// ErrDuplicateEndpoint 端点已注册
	ErrDuplicateEndpoint = errors.New("matching: endpoint already registered")
)
