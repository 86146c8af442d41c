package wire

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dds/pkg/types"
)

// Sample 字段编号
const (
	sampleWriter    protowire.Number = 1
	sampleTopic     protowire.Number = 2
	sampleSeq       protowire.Number = 3
	sampleTimestamp protowire.Number = 4
	sampleLifespan  protowire.Number = 5
	samplePayload   protowire.Number = 6
)

// AppendSample 把样本编码追加到 b
func AppendSample(b []byte, s *types.Sample) []byte {
	b = appendBytes(b, sampleWriter, s.Writer.Bytes())
	b = appendString(b, sampleTopic, s.Topic.String())
	b = appendVarint(b, sampleSeq, uint64(s.Seq))
	b = appendVarint(b, sampleTimestamp, uint64(s.SourceTimestamp.UnixNano()))
	if s.Lifespan > 0 {
		b = appendVarint(b, sampleLifespan, uint64(s.Lifespan))
	}
	return appendBytes(b, samplePayload, s.Data())
}

// MarshalSample 编码样本
func MarshalSample(s *types.Sample) []byte {
	return AppendSample(make([]byte, 0, s.Len()+96), s)
}

// UnmarshalSample 解码样本
func UnmarshalSample(b []byte) (*types.Sample, error) {
	var (
		writer   types.GUID
		topic    types.TopicName
		seq      uint64
		ts       int64
		lifespan time.Duration
		payload  []byte
	)
	err := fields(b, func(f field) (err error) {
		switch f.num {
		case sampleWriter:
			writer, err = types.GUIDFromBytes(f.bytes)
		case sampleTopic:
			topic, err = types.ParseTopicName(string(f.bytes))
		case sampleSeq:
			seq = f.varint
		case sampleTimestamp:
			ts = int64(f.varint)
		case sampleLifespan:
			lifespan = time.Duration(f.varint)
		case samplePayload:
			payload = f.bytes
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: sample: %v", ErrMalformed, err)
	}
	if writer.IsZero() || seq == 0 {
		return nil, fmt.Errorf("%w: sample missing writer or sequence number", ErrMalformed)
	}
	return types.NewSample(writer, topic, types.SequenceNumber(seq), time.Unix(0, ts), lifespan, payload), nil
}

// ============================================================================
//                              编码辅助
// ============================================================================

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// field 解码出的单个字段；只保留 varint 与 length-delimited 两种类型
type field struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

// fields 依次解码 b 中的字段，其它线类型被跳过
func fields(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return parseError("tag", n)
		}
		b = b[n:]

		f := field{num: num}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return parseError("field", n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return parseError("value", n)
		}
		b = b[n:]
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}
