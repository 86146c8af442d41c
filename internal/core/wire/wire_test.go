package wire

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-dds/pkg/qos"
	"github.com/dep2p/go-dds/pkg/types"
)

var (
	participant = types.NewParticipantPrefix()
	topic       = types.TopicName{Namespace: "/turtle1", Name: "cmd_vel"}
)

func newSample(t *testing.T) *types.Sample {
	t.Helper()
	return types.NewSample(types.NewGUID(participant), topic, 42,
		time.Unix(1700000000, 123456789), 500*time.Millisecond, []byte(`{"linear":{"x":1}}`))
}

func TestSample_Codec(t *testing.T) {
	s := newSample(t)

	got, err := UnmarshalSample(MarshalSample(s))
	require.NoError(t, err)

	assert.Equal(t, s.ID(), got.ID())
	assert.Equal(t, s.Topic, got.Topic)
	assert.True(t, s.SourceTimestamp.Equal(got.SourceTimestamp))
	assert.Equal(t, s.Lifespan, got.Lifespan)
	assert.Equal(t, s.Data(), got.Data())
}

func TestSample_Malformed(t *testing.T) {
	_, err := UnmarshalSample([]byte{0xff})
	assert.ErrorIs(t, err, ErrMalformed)

	// 缺少写端
	b := appendVarint(nil, sampleSeq, 1)
	_, err = UnmarshalSample(b)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSample_SkipsUnknownFields(t *testing.T) {
	s := newSample(t)
	b := MarshalSample(s)
	b = protowire.AppendTag(b, 99, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	b = appendString(b, 100, "future")

	got, err := UnmarshalSample(b)
	require.NoError(t, err)
	assert.Equal(t, s.ID(), got.ID())
}

func TestFrame_Announce(t *testing.T) {
	profile := qos.NewBuilder().
		History(qos.KeepLast(10)).
		Reliability(qos.Reliable(100 * time.Millisecond)).
		Durability(qos.DurabilityTransientLocal).
		Deadline(time.Second).
		ResourceLimits(20).
		MustBuild().
		Complete()

	in := &Frame{Announce: &Announce{
		Participant: participant,
		Endpoint:    types.NewGUID(participant),
		Role:        types.RoleReader,
		Topic:       topic,
		Type:        types.TypeName{Package: "geometry_msgs", Name: "Twist"},
		QoS:         profile,
	}}

	b, err := Marshal(in)
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)

	assert.Equal(t, KindAnnounce, out.Kind())
	assert.Equal(t, participant, out.Participant())
	assert.Equal(t, in.Announce, out.Announce)
}

func TestFrame_Withdraw(t *testing.T) {
	ep := types.NewGUID(participant)
	b, err := Marshal(&Frame{Withdraw: &Withdraw{Participant: participant, Endpoint: ep}})
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, KindWithdraw, out.Kind())
	assert.Equal(t, ep, out.Withdraw.Endpoint)

	// 参与者离开
	b, err = Marshal(&Frame{Withdraw: &Withdraw{Participant: participant}})
	require.NoError(t, err)
	out, err = Unmarshal(b)
	require.NoError(t, err)
	assert.True(t, out.Withdraw.Endpoint.IsZero())
}

func TestFrame_Data(t *testing.T) {
	s := newSample(t)
	reader := types.NewGUID(types.NewParticipantPrefix())

	b, err := Marshal(&Frame{Data: &Data{Participant: participant, Reader: reader, Sample: s}})
	require.NoError(t, err)
	out, err := Unmarshal(b)
	require.NoError(t, err)

	assert.Equal(t, KindData, out.Kind())
	assert.Equal(t, reader, out.Data.Reader)
	assert.Equal(t, s.ID(), out.Data.Sample.ID())
	assert.Equal(t, s.Data(), out.Data.Sample.Data())
}

func TestFrame_Errors(t *testing.T) {
	_, err := Marshal(&Frame{})
	assert.ErrorIs(t, err, ErrUnknownFrame)

	_, err = Marshal(&Frame{Data: &Data{Participant: participant}})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, ErrUnknownFrame)

	_, err = Unmarshal([]byte{0x0a, 0x05, 0x01})
	assert.ErrorIs(t, err, ErrMalformed)

	// 非法 QoS
	bad := marshalAnnounce(&Announce{
		Participant: participant,
		Endpoint:    types.NewGUID(participant),
		Topic:       topic,
		Type:        types.TypeName{Package: "std_msgs", Name: "String"},
		QoS:         qos.Profile{},
	})
	_, err = Unmarshal(appendBytes(nil, frameAnnounce, bad))
	assert.ErrorIs(t, err, ErrMalformed)

	assert.Equal(t, uuid.Nil, (&Frame{}).Participant())
}
