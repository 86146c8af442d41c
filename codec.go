package dds

import (
	"encoding/json"
	"errors"
	"unicode/utf8"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ════════════════════════════════════════════════════════════════════════════
//                              编解码器
// ════════════════════════════════════════════════════════════════════════════

// Codec 消息类型 T 与样本载荷之间的编解码器
//
// 核心只搬运不透明的字节，类型化由端点两侧的 Codec 负责。
type Codec[T any] interface {
	Encode(msg T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// errInvalidUTF8 载荷不是合法的 UTF-8
var errInvalidUTF8 = errors.New("payload is not valid utf-8")

// StringCodec 字符串编解码器，载荷为 UTF-8 字节
type StringCodec struct{}

// Encode 编码
func (StringCodec) Encode(msg string) ([]byte, error) {
	return []byte(msg), nil
}

// Decode 解码
func (StringCodec) Decode(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}

// BytesCodec 原始字节编解码器
type BytesCodec struct{}

// Encode 编码
func (BytesCodec) Encode(msg []byte) ([]byte, error) {
	return msg, nil
}

// Decode 解码
func (BytesCodec) Decode(data []byte) ([]byte, error) {
	return data, nil
}

// JSONCodec JSON 编解码器
type JSONCodec[T any] struct{}

// Encode 编码
func (JSONCodec[T]) Encode(msg T) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode 解码
func (JSONCodec[T]) Decode(data []byte) (T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return msg, err
}

// ProtoCodec Protobuf 编解码器
//
// New 返回一个空消息用于解码，例如：
//
//	codec := dds.ProtoCodec[*wrapperspb.StringValue]{New: func() *wrapperspb.StringValue {
//	    return &wrapperspb.StringValue{}
//	}}
type ProtoCodec[T proto.Message] struct {
	New func() T
}

// Encode 编码
func (c ProtoCodec[T]) Encode(msg T) ([]byte, error) {
	return proto.Marshal(msg)
}

// Decode 解码
func (c ProtoCodec[T]) Decode(data []byte) (T, error) {
	if c.New == nil {
		var zero T
		return zero, errors.New("proto codec has no message constructor")
	}
	msg := c.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		var zero T
		return zero, err
	}
	return msg, nil
}

// StringValueCodec 返回 std_msgs/String 的 Protobuf 编解码器
//
// 消息类型为 wrapperspb.StringValue，跨语言对端可以直接解码。
func StringValueCodec() ProtoCodec[*wrapperspb.StringValue] {
	return ProtoCodec[*wrapperspb.StringValue]{New: func() *wrapperspb.StringValue {
		return &wrapperspb.StringValue{}
	}}
}
