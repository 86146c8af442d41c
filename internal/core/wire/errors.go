package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformed 编码数据损坏
	ErrMalformed = errors.New("wire: malformed data")

	// ErrUnknownFrame 未知帧类型
	ErrUnknownFrame = errors.New("wire: unknown frame")
)

// parseError 把 protowire 的负长度结果转换为错误
func parseError(what string, n int) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, what, protowire.ParseError(n))
}
