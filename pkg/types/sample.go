package types

import (
	"fmt"
	"math"
	"time"
)

// ============================================================================
//                              Sample - 数据样本
// ============================================================================

// SequenceNumber 每个写端单调递增的序列号，从 1 开始
type SequenceNumber uint64

// SampleID 样本标识（写端 + 序列号）
type SampleID struct {
	Writer GUID
	Seq    SequenceNumber
}

// String 返回日志用表示
func (id SampleID) String() string {
	return fmt.Sprintf("%s#%d", id.Writer.ShortString(), id.Seq)
}

// Sample 一条已写入的数据样本
//
// 样本写入后不可变。所有匹配的订阅端共享同一个 *Sample，
// 载荷只通过 Data() 以副本形式对外暴露。
type Sample struct {
	// Writer 来源写端
	Writer GUID

	// Topic 所属主题
	Topic TopicName

	// Seq 写端内序列号
	Seq SequenceNumber

	// SourceTimestamp 写入时间
	SourceTimestamp time.Time

	// Lifespan 写端的生命周期策略，随样本传递；0 表示不限
	Lifespan time.Duration

	payload []byte
}

// NewSample 创建样本，载荷会被复制
func NewSample(writer GUID, topic TopicName, seq SequenceNumber, ts time.Time, lifespan time.Duration, data []byte) *Sample {
	payload := make([]byte, len(data))
	copy(payload, data)
	return &Sample{
		Writer:          writer,
		Topic:           topic,
		Seq:             seq,
		SourceTimestamp: ts,
		Lifespan:        lifespan,
		payload:         payload,
	}
}

// ID 返回样本标识
func (s *Sample) ID() SampleID {
	return SampleID{Writer: s.Writer, Seq: s.Seq}
}

// Data 返回载荷副本
func (s *Sample) Data() []byte {
	out := make([]byte, len(s.payload))
	copy(out, s.payload)
	return out
}

// Len 返回载荷长度
func (s *Sample) Len() int {
	return len(s.payload)
}

// ExpiresAt 返回过期时间，取写端生命周期与 readerLifespan 中较短者
//
// 两者均不限（<= 0 或无限）时返回 false。
func (s *Sample) ExpiresAt(readerLifespan time.Duration) (time.Time, bool) {
	d := s.Lifespan
	if !finite(d) || (finite(readerLifespan) && readerLifespan < d) {
		d = readerLifespan
	}
	if !finite(d) {
		return time.Time{}, false
	}
	return s.SourceTimestamp.Add(d), true
}

func finite(d time.Duration) bool {
	return d > 0 && d != math.MaxInt64
}
