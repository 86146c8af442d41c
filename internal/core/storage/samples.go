package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dep2p/go-dds/internal/core/storage/engine"
	"github.com/dep2p/go-dds/internal/core/storage/kv"
	"github.com/dep2p/go-dds/internal/core/wire"
	pkgif "github.com/dep2p/go-dds/pkg/interfaces"
	"github.com/dep2p/go-dds/pkg/lib/log"
	"github.com/dep2p/go-dds/pkg/types"
)

var logger = log.Logger("core/storage")

// formatVersion 样本键与编码格式版本
const formatVersion uint64 = 1

var (
	samplePrefix = []byte("p/")
	metaPrefix   = []byte("m/")
	versionKey   = []byte("version")
)

// ============================================================================
//                              SampleStore
// ============================================================================

// SampleStore 基于 BadgerDB 的样本存储
type SampleStore struct {
	eng     *engine.Engine
	samples *kv.Store
	meta    *kv.Store

	maxPerWriter int
	closed       atomic.Bool

	stats struct {
		appended atomic.Int64
		loaded   atomic.Int64
		corrupt  atomic.Int64
	}
}

var _ pkgif.SampleStore = (*SampleStore)(nil)

// Open 按配置打开引擎并创建样本存储
//
// 返回的存储拥有引擎，Close 时一并关闭。
func Open(cfg Config) (*SampleStore, error) {
	eng, err := engine.Open(cfg.Engine)
	if err != nil {
		return nil, err
	}
	s, err := NewSampleStore(eng, cfg.MaxSamplesPerWriter)
	if err != nil {
		_ = eng.Close()
		return nil, err
	}
	return s, nil
}

// NewSampleStore 在已打开的引擎上创建样本存储
//
// 新数据目录写入格式版本；已有目录的版本不一致时返回 ErrVersionMismatch。
func NewSampleStore(eng *engine.Engine, maxPerWriter int) (*SampleStore, error) {
	s := &SampleStore{
		eng:          eng,
		samples:      kv.New(eng, samplePrefix),
		meta:         kv.New(eng, metaPrefix),
		maxPerWriter: maxPerWriter,
	}

	v, err := s.meta.GetUint64(versionKey)
	switch {
	case errors.Is(err, engine.ErrNotFound):
		if err := s.meta.PutUint64(versionKey, formatVersion); err != nil {
			return nil, fmt.Errorf("write format version: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("read format version: %w", err)
	case v != formatVersion:
		return nil, fmt.Errorf("%w: have %d, want %d", ErrVersionMismatch, v, formatVersion)
	}
	return s, nil
}

// Start 启动引擎后台任务
func (s *SampleStore) Start() error {
	return s.eng.Start()
}

// Append 保存样本
//
// 设置了 MaxSamplesPerWriter 时，同一事务内删除超出保留数的最旧样本。
func (s *SampleStore) Append(sample *types.Sample) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := sample.Topic.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrNoTopic, err)
	}

	key := sampleKey(sample.Topic, sample.Writer, sample.Seq)
	value := wire.MarshalSample(sample)
	err := s.samples.Update(func(txn kv.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if s.maxPerWriter > 0 && uint64(sample.Seq) > uint64(s.maxPerWriter) {
			old := sample.Seq - types.SequenceNumber(s.maxPerWriter)
			return txn.Delete(sampleKey(sample.Topic, sample.Writer, old))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", sample.ID(), err)
	}
	s.stats.appended.Add(1)
	return nil
}

// Load 返回主题的样本，按写端分组、组内按序列号排列
//
// depth > 0 时每个写端只返回最近 depth 条。无法解码的记录被跳过并记录日志。
func (s *SampleStore) Load(topic types.TopicName, depth int) ([]*types.Sample, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	var (
		out     []*types.Sample
		group   []*types.Sample
		current types.GUID
	)
	flush := func() {
		if depth > 0 && len(group) > depth {
			group = group[len(group)-depth:]
		}
		out = append(out, group...)
		group = nil
	}

	err := s.samples.Scan(topicKey(topic), false, func(key, value []byte) bool {
		sample, err := wire.UnmarshalSample(value)
		if err != nil {
			s.stats.corrupt.Add(1)
			logger.Warn("跳过损坏的样本记录", "topic", topic.String(), "error", err)
			return true
		}
		if sample.Writer != current {
			flush()
			current = sample.Writer
		}
		group = append(group, sample)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", topic, err)
	}
	flush()

	s.stats.loaded.Add(int64(len(out)))
	logger.Debug("加载持久化样本", "topic", topic.String(), "samples", len(out))
	return out, nil
}

// Close 关闭存储及其引擎
func (s *SampleStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.eng.Close()
}

// Stats 样本存储统计
type Stats struct {
	Appended int64
	Loaded   int64
	Corrupt  int64
	Engine   engine.Stats
}

// Stats 返回统计信息
func (s *SampleStore) Stats() Stats {
	return Stats{
		Appended: s.stats.appended.Load(),
		Loaded:   s.stats.loaded.Load(),
		Corrupt:  s.stats.corrupt.Load(),
		Engine:   s.eng.Stats(),
	}
}

// ============================================================================
//                              键编码
// ============================================================================

// topicKey <topic>\x00
func topicKey(topic types.TopicName) []byte {
	name := topic.String()
	b := make([]byte, 0, len(name)+1)
	b = append(b, name...)
	return append(b, 0)
}

// sampleKey <topic>\x00<writer><seq>
func sampleKey(topic types.TopicName, writer types.GUID, seq types.SequenceNumber) []byte {
	b := topicKey(topic)
	b = append(b, writer.Bytes()...)
	return binary.BigEndian.AppendUint64(b, uint64(seq))
}
