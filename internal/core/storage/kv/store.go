// Package kv 提供带前缀隔离的 KV 存储抽象层
//
// Store 在底层存储引擎之上提供命名空间隔离，
// 每个组件使用不同的前缀来隔离数据。
//
// # 键空间设计
//
//	p/   - Persistent 样本（storage.SampleStore）
//	m/   - 元数据（格式版本等）
//
// # 使用示例
//
//	eng, _ := engine.Open(cfg)
//	samples := kv.New(eng, []byte("p/"))
//	samples.Put([]byte("key"), value) // 实际键: p/key
package kv

import (
	"encoding/binary"
	"fmt"

	"github.com/dep2p/go-dds/internal/core/storage/engine"
)

// Backend Store 依赖的引擎能力
type Backend interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Update(fn func(txn engine.Txn) error) error
	Scan(prefix []byte, reverse bool, fn func(key, value []byte) bool) error
}

// Store 带前缀隔离的 KV 存储
//
// Store 封装底层存储引擎，为所有键自动添加前缀。
type Store struct {
	backend Backend
	prefix  []byte
}

// New 创建新的 KVStore
func New(backend Backend, prefix []byte) *Store {
	return &Store{
		backend: backend,
		prefix:  append([]byte{}, prefix...),
	}
}

// Sub 返回嵌套前缀的子存储
func (s *Store) Sub(prefix []byte) *Store {
	return New(s.backend, s.prefixKey(prefix))
}

// Prefix 返回完整前缀
func (s *Store) Prefix() []byte {
	return append([]byte{}, s.prefix...)
}

// prefixKey 为键添加前缀
func (s *Store) prefixKey(key []byte) []byte {
	prefixed := make([]byte, len(s.prefix)+len(key))
	copy(prefixed, s.prefix)
	copy(prefixed[len(s.prefix):], key)
	return prefixed
}

// stripPrefix 从键中移除前缀
func (s *Store) stripPrefix(key []byte) []byte {
	if len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// ============================================================================
//                              基础操作
// ============================================================================

// Get 获取指定键的值
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.backend.Get(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.backend.Has(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.Update(func(txn Txn) error {
		return txn.Set(key, value)
	})
}

// Delete 删除指定键
func (s *Store) Delete(key []byte) error {
	return s.Update(func(txn Txn) error {
		return txn.Delete(key)
	})
}

// Txn 带前缀的事务视图
type Txn interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
}

type prefixedTxn struct {
	s   *Store
	txn engine.Txn
}

func (t prefixedTxn) Get(key []byte) ([]byte, error) { return t.txn.Get(t.s.prefixKey(key)) }
func (t prefixedTxn) Set(key, value []byte) error    { return t.txn.Set(t.s.prefixKey(key), value) }
func (t prefixedTxn) Delete(key []byte) error        { return t.txn.Delete(t.s.prefixKey(key)) }

// Update 在一个事务中执行 fn，键自动带前缀
func (s *Store) Update(fn func(txn Txn) error) error {
	return s.backend.Update(func(txn engine.Txn) error {
		return fn(prefixedTxn{s: s, txn: txn})
	})
}

// Scan 遍历 prefix 下的键值对，回调中的键已去掉 Store 前缀
func (s *Store) Scan(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	return s.backend.Scan(s.prefixKey(prefix), reverse, func(k, v []byte) bool {
		return fn(s.stripPrefix(k), v)
	})
}

// ============================================================================
//                              便捷方法
// ============================================================================

// GetUint64 获取 uint64 值
func (s *Store) GetUint64(key []byte) (uint64, error) {
	data, err := s.Get(key)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("kv: value of %q is %d bytes, want 8", key, len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// PutUint64 存储 uint64 值
func (s *Store) PutUint64(key []byte, value uint64) error {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, value)
	return s.Put(key, data)
}
