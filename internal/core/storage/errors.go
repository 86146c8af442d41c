package storage

import (
	"errors"

	"github.com/dep2p/go-dds/internal/core/storage/engine"
)

var (
	// ErrClosed 存储已关闭
	ErrClosed = engine.ErrClosed

	// ErrNotFound 键不存在
	ErrNotFound = engine.ErrNotFound

	// ErrVersionMismatch 数据目录的格式版本与当前实现不一致
	ErrVersionMismatch = errors.New("storage: format version mismatch")

	// ErrNoTopic 样本缺少主题
	ErrNoTopic = errors.New("storage: sample has no topic")
)
