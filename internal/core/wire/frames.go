package wire

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

// ============================================================================
//                              帧定义
// ============================================================================

// Kind 帧类型
type Kind int

const (
	// KindAnnounce 端点公告
	KindAnnounce Kind = iota + 1
	// KindWithdraw 端点撤销
	KindWithdraw
	// KindData 样本
	KindData
)

// String 返回帧类型名称
func (k Kind) String() string {
	switch k {
	case KindAnnounce:
		return "announce"
	case KindWithdraw:
		return "withdraw"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Announce 端点公告
type Announce struct {
	Participant uuid.UUID
	Endpoint    types.GUID
	Role        types.Role
	Topic       types.TopicName
	Type        types.TypeName
	QoS         qos.Profile
}

// Withdraw 端点撤销；Endpoint 为零值表示整个参与者离开
type Withdraw struct {
	Participant uuid.UUID
	Endpoint    types.GUID
}

// Data 寻址到一个远端读端的样本
type Data struct {
	Participant uuid.UUID
	Reader      types.GUID
	Sample      *types.Sample
}

// Frame 线上帧，恰有一个字段非空
type Frame struct {
	Announce *Announce
	Withdraw *Withdraw
	Data     *Data
}

// Kind 返回帧类型
func (f *Frame) Kind() Kind {
	switch {
	case f.Announce != nil:
		return KindAnnounce
	case f.Withdraw != nil:
		return KindWithdraw
	case f.Data != nil:
		return KindData
	default:
		return 0
	}
}

// Participant 返回发送方参与者
func (f *Frame) Participant() uuid.UUID {
	switch {
	case f.Announce != nil:
		return f.Announce.Participant
	case f.Withdraw != nil:
		return f.Withdraw.Participant
	case f.Data != nil:
		return f.Data.Participant
	default:
		return uuid.Nil
	}
}

// ============================================================================
//                              字段编号
// ============================================================================

// Frame 字段
const (
	frameAnnounce protowire.Number = 1
	frameWithdraw protowire.Number = 2
	frameData     protowire.Number = 3
)

// Announce / Withdraw / Data 共用字段
const (
	fieldParticipant protowire.Number = 1
	fieldEndpoint    protowire.Number = 2
	fieldRole        protowire.Number = 3
	fieldTopic       protowire.Number = 4
	fieldType        protowire.Number = 5
	fieldQoS         protowire.Number = 6
	fieldSample      protowire.Number = 7
)

// QoS 字段
const (
	qosHistoryKind     protowire.Number = 1
	qosHistoryDepth    protowire.Number = 2
	qosReliabilityKind protowire.Number = 3
	qosMaxBlocking     protowire.Number = 4
	qosDurability      protowire.Number = 5
	qosDeadline        protowire.Number = 6
	qosLifespan        protowire.Number = 7
	qosLivelinessKind  protowire.Number = 8
	qosLease           protowire.Number = 9
	qosMaxSamples      protowire.Number = 10
)

// ============================================================================
//                              编码
// ============================================================================

// Marshal 编码帧
func Marshal(f *Frame) ([]byte, error) {
	switch {
	case f.Announce != nil:
		return appendBytes(nil, frameAnnounce, marshalAnnounce(f.Announce)), nil
	case f.Withdraw != nil:
		return appendBytes(nil, frameWithdraw, marshalWithdraw(f.Withdraw)), nil
	case f.Data != nil:
		if f.Data.Sample == nil {
			return nil, fmt.Errorf("%w: data frame without sample", ErrMalformed)
		}
		return appendBytes(nil, frameData, marshalData(f.Data)), nil
	default:
		return nil, ErrUnknownFrame
	}
}

func marshalAnnounce(a *Announce) []byte {
	var b []byte
	b = appendBytes(b, fieldParticipant, a.Participant[:])
	b = appendBytes(b, fieldEndpoint, a.Endpoint.Bytes())
	b = appendVarint(b, fieldRole, uint64(a.Role))
	b = appendString(b, fieldTopic, a.Topic.String())
	b = appendString(b, fieldType, a.Type.String())
	return appendBytes(b, fieldQoS, marshalQoS(a.QoS))
}

func marshalWithdraw(w *Withdraw) []byte {
	b := appendBytes(nil, fieldParticipant, w.Participant[:])
	if !w.Endpoint.IsZero() {
		b = appendBytes(b, fieldEndpoint, w.Endpoint.Bytes())
	}
	return b
}

func marshalData(d *Data) []byte {
	b := appendBytes(nil, fieldParticipant, d.Participant[:])
	b = appendBytes(b, fieldEndpoint, d.Reader.Bytes())
	return appendBytes(b, fieldSample, MarshalSample(d.Sample))
}

func marshalQoS(p qos.Profile) []byte {
	var b []byte
	b = appendVarint(b, qosHistoryKind, uint64(p.History.Kind))
	b = appendVarint(b, qosHistoryDepth, uint64(p.History.Depth))
	b = appendVarint(b, qosReliabilityKind, uint64(p.Reliability.Kind))
	b = appendVarint(b, qosMaxBlocking, uint64(p.Reliability.MaxBlockingTime))
	b = appendVarint(b, qosDurability, uint64(p.Durability))
	b = appendVarint(b, qosDeadline, uint64(p.Deadline.Period))
	b = appendVarint(b, qosLifespan, uint64(p.Lifespan.Duration))
	b = appendVarint(b, qosLivelinessKind, uint64(p.Liveliness.Kind))
	b = appendVarint(b, qosLease, uint64(p.Liveliness.LeaseDuration))
	return appendVarint(b, qosMaxSamples, uint64(p.ResourceLimits.MaxSamples))
}

// ============================================================================
//                              解码
// ============================================================================

// Unmarshal 解码帧
func Unmarshal(b []byte) (*Frame, error) {
	var (
		f   Frame
		err error
	)
	ferr := fields(b, func(fd field) error {
		switch fd.num {
		case frameAnnounce:
			f.Announce, err = unmarshalAnnounce(fd.bytes)
		case frameWithdraw:
			f.Withdraw, err = unmarshalWithdraw(fd.bytes)
		case frameData:
			f.Data, err = unmarshalData(fd.bytes)
		}
		return err
	})
	if ferr != nil {
		return nil, ferr
	}
	if f.Kind() == 0 {
		return nil, ErrUnknownFrame
	}
	return &f, nil
}

func unmarshalAnnounce(b []byte) (*Announce, error) {
	a := &Announce{}
	err := fields(b, func(f field) (err error) {
		switch f.num {
		case fieldParticipant:
			a.Participant, err = uuid.FromBytes(f.bytes)
		case fieldEndpoint:
			a.Endpoint, err = types.GUIDFromBytes(f.bytes)
		case fieldRole:
			a.Role = types.Role(f.varint)
		case fieldTopic:
			a.Topic, err = types.ParseTopicName(string(f.bytes))
		case fieldType:
			a.Type, err = types.ParseTypeName(string(f.bytes))
		case fieldQoS:
			a.QoS, err = unmarshalQoS(f.bytes)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: announce: %v", ErrMalformed, err)
	}
	if a.Endpoint.IsZero() {
		return nil, fmt.Errorf("%w: announce without endpoint", ErrMalformed)
	}
	return a, nil
}

func unmarshalWithdraw(b []byte) (*Withdraw, error) {
	w := &Withdraw{}
	err := fields(b, func(f field) (err error) {
		switch f.num {
		case fieldParticipant:
			w.Participant, err = uuid.FromBytes(f.bytes)
		case fieldEndpoint:
			w.Endpoint, err = types.GUIDFromBytes(f.bytes)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: withdraw: %v", ErrMalformed, err)
	}
	return w, nil
}

func unmarshalData(b []byte) (*Data, error) {
	d := &Data{}
	err := fields(b, func(f field) (err error) {
		switch f.num {
		case fieldParticipant:
			d.Participant, err = uuid.FromBytes(f.bytes)
		case fieldEndpoint:
			d.Reader, err = types.GUIDFromBytes(f.bytes)
		case fieldSample:
			d.Sample, err = UnmarshalSample(f.bytes)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: data: %v", ErrMalformed, err)
	}
	if d.Sample == nil {
		return nil, fmt.Errorf("%w: data frame without sample", ErrMalformed)
	}
	return d, nil
}

func unmarshalQoS(b []byte) (qos.Profile, error) {
	p := qos.Default()
	err := fields(b, func(f field) error {
		d := time.Duration(f.varint)
		switch f.num {
		case qosHistoryKind:
			p.History.Kind = qos.HistoryKind(f.varint)
		case qosHistoryDepth:
			p.History.Depth = int(f.varint)
		case qosReliabilityKind:
			p.Reliability.Kind = qos.ReliabilityKind(f.varint)
		case qosMaxBlocking:
			p.Reliability.MaxBlockingTime = d
		case qosDurability:
			p.Durability = qos.Durability(f.varint)
		case qosDeadline:
			p.Deadline.Period = d
		case qosLifespan:
			p.Lifespan.Duration = d
		case qosLivelinessKind:
			p.Liveliness.Kind = qos.LivelinessKind(f.varint)
		case qosLease:
			p.Liveliness.LeaseDuration = d
		case qosMaxSamples:
			p.ResourceLimits.MaxSamples = int(f.varint)
		}
		return nil
	})
	if err != nil {
		return qos.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return qos.Profile{}, err
	}
	return p, nil
}
