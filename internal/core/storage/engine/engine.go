// Package engine 提供基于 BadgerDB 的键值存储引擎
//
// BadgerDB 是一个嵌入式 LSM 键值存储，支持 ACID 事务与有序前缀扫描。
// 样本存储依赖它的键有序性：同一主题、同一写端的样本按序列号连续排列。
//
// # 使用示例
//
//	cfg := engine.DefaultConfig("/data/dds.db")
//	db, err := engine.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	err = db.Update(func(txn engine.Txn) error {
//	    return txn.Set([]byte("key"), []byte("value"))
//	})
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-dds/pkg/lib/log"
)

var logger = log.Logger("storage/badger")

// ============================================================================
//                              配置
// ============================================================================

// Config 存储引擎配置
type Config struct {
	// Path 数据目录路径，InMemory 时忽略
	Path string

	// InMemory 内存模式，不落盘
	InMemory bool

	// SyncWrites 是否同步写入
	SyncWrites bool

	// ReadOnly 是否只读模式
	ReadOnly bool

	// GCInterval 值日志垃圾回收间隔，0 表示禁用
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64

	// BlockCacheSize 块缓存大小（字节）
	BlockCacheSize int64

	// Compression ZSTD 压缩级别，0 表示禁用
	Compression int
}

// DefaultConfig 返回默认配置
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		BlockCacheSize: 64 << 20,
		Compression:    1,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Path == "" && !c.InMemory {
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if c.InMemory && c.ReadOnly {
		return fmt.Errorf("%w: in-memory engine cannot be read-only", ErrInvalidConfig)
	}
	if c.GCDiscardRatio < 0 || c.GCDiscardRatio >= 1 {
		return fmt.Errorf("%w: gc discard ratio must be in [0, 1)", ErrInvalidConfig)
	}
	return nil
}

func (c Config) badgerOptions() badger.Options {
	var opts badger.Options
	if c.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(c.Path)
	}
	opts = opts.
		WithSyncWrites(c.SyncWrites).
		WithNumVersionsToKeep(1).
		WithReadOnly(c.ReadOnly).
		WithZSTDCompressionLevel(c.Compression).
		WithLogger(&badgerLogger{})
	if c.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(c.BlockCacheSize)
	}
	return opts
}

// badgerLogger 把 badger 日志转发到组件日志，Info 及以下降为 Debug
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// ============================================================================
//                              Engine
// ============================================================================

// Txn 可写事务视图
type Txn interface {
	// Get 读取键，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Set 写入键值
	Set(key, value []byte) error

	// Delete 删除键
	Delete(key []byte) error
}

// Engine BadgerDB 存储引擎
type Engine struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool

	stats struct {
		reads   atomic.Int64
		writes  atomic.Int64
		deletes atomic.Int64
		scans   atomic.Int64
	}

	gcOnce   sync.Once
	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开存储引擎
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && !cfg.ReadOnly {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := badger.Open(cfg.badgerOptions())
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger.Debug("存储引擎已打开", "path", cfg.Path, "inMemory", cfg.InMemory)
	return &Engine{
		db:       db,
		cfg:      cfg,
		gcCtx:    ctx,
		gcCancel: cancel,
	}, nil
}

// Start 启动后台垃圾回收
func (e *Engine) Start() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.cfg.GCInterval <= 0 || e.cfg.InMemory || e.cfg.ReadOnly {
		return nil
	}
	e.gcOnce.Do(func() {
		e.gcWg.Add(1)
		go e.gcLoop()
	})
	return nil
}

func (e *Engine) gcLoop() {
	defer e.gcWg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.gcCtx.Done():
			return
		case <-ticker.C:
			e.runGC()
		}
	}
}

// runGC 运行 GC 直到没有可回收的值日志
func (e *Engine) runGC() {
	for !e.closed.Load() {
		if err := e.db.RunValueLogGC(e.cfg.GCDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logger.Debug("值日志回收结束", "error", err)
			}
			return
		}
	}
}

// Get 获取指定键的值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	e.stats.reads.Add(1)

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, convertError(err)
	}
	return value, nil
}

// Has 检查键是否存在
func (e *Engine) Has(key []byte) (bool, error) {
	_, err := e.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Put 设置键值对
func (e *Engine) Put(key, value []byte) error {
	return e.Update(func(txn Txn) error {
		return txn.Set(key, value)
	})
}

// Delete 删除指定键
func (e *Engine) Delete(key []byte) error {
	return e.Update(func(txn Txn) error {
		return txn.Delete(key)
	})
}

// Update 在一个读写事务中执行 fn
//
// fn 返回错误时事务回滚。
func (e *Engine) Update(fn func(txn Txn) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.cfg.ReadOnly {
		return ErrReadOnly
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return fn(&writeTxn{e: e, txn: txn})
	}))
}

// Scan 按键序遍历 prefix 下的键值对，fn 返回 false 时停止
//
// 传给 fn 的切片在回调返回后失效，需要保留时调用方自行复制。
func (e *Engine) Scan(prefix []byte, reverse bool, fn func(key, value []byte) bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.stats.scans.Add(1)

	return convertError(e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if reverse {
			// 反向遍历需要从前缀的上界开始
			start = append(append([]byte{}, prefix...), 0xff)
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var cont bool
			err := item.Value(func(v []byte) error {
				cont = fn(item.Key(), v)
				return nil
			})
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	}))
}

// Sync 同步数据到磁盘
func (e *Engine) Sync() error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Sync()
}

// Close 关闭存储引擎
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.gcCancel()
	e.gcWg.Wait()
	logger.Debug("存储引擎已关闭", "path", e.cfg.Path)
	return e.db.Close()
}

// Stats 引擎统计信息
type Stats struct {
	LSMSize  int64
	VlogSize int64
	Reads    int64
	Writes   int64
	Deletes  int64
	Scans    int64
}

// Stats 返回统计信息
func (e *Engine) Stats() Stats {
	lsm, vlog := e.db.Size()
	return Stats{
		LSMSize:  lsm,
		VlogSize: vlog,
		Reads:    e.stats.reads.Load(),
		Writes:   e.stats.writes.Load(),
		Deletes:  e.stats.deletes.Load(),
		Scans:    e.stats.scans.Load(),
	}
}

// ============================================================================
//                              事务
// ============================================================================

type writeTxn struct {
	e   *Engine
	txn *badger.Txn
}

func (t *writeTxn) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	item, err := t.txn.Get(key)
	if err != nil {
		return nil, convertError(err)
	}
	return item.ValueCopy(nil)
}

func (t *writeTxn) Set(key, value []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if err := t.txn.Set(key, value); err != nil {
		return err
	}
	t.e.stats.writes.Add(1)
	return nil
}

func (t *writeTxn) Delete(key []byte) error {
	if len(key) == 0 {
		return ErrEmptyKey
	}
	if err := t.txn.Delete(key); err != nil {
		return err
	}
	t.e.stats.deletes.Add(1)
	return nil
}
