package qos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func talkerProfile() Profile {
	return NewBuilder().
		History(KeepLast(10)).
		Reliability(Reliable(100 * time.Millisecond)).
		Durability(DurabilityTransientLocal).
		MustBuild().
		Complete()
}

func TestResolve_Compatible(t *testing.T) {
	res := Resolve(talkerProfile(), talkerProfile())
	require.True(t, res.Compatible)
	assert.Empty(t, res.Reasons)
	assert.NoError(t, res.Err())
	assert.Equal(t, talkerProfile(), res.Effective)
}

func TestResolve_Deterministic(t *testing.T) {
	o := talkerProfile()
	r := talkerProfile()
	r.Durability = DurabilityPersistent
	r.History = KeepAll()

	first := Resolve(o, r)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(o, r))
	}
}

// 每条规则单独翻转为失败，结果必须不兼容且原因中包含该种类
func TestResolve_EachRuleFlipped(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o, r *Profile)
		kind   Kind
	}{
		{"reliability best_effort vs reliable", func(o, r *Profile) {
			o.Reliability = BestEffort()
		}, KindReliability},
		{"durability volatile vs transient_local", func(o, r *Profile) {
			o.Durability = DurabilityVolatile
		}, KindDurability},
		{"durability transient vs persistent", func(o, r *Profile) {
			o.Durability = DurabilityTransient
			r.Durability = DurabilityPersistent
		}, KindDurability},
		{"history shallower depth", func(o, r *Profile) {
			o.History = KeepLast(5)
		}, KindHistory},
		{"history keep_last vs keep_all", func(o, r *Profile) {
			r.History = KeepAll()
		}, KindHistory},
		{"deadline looser offer", func(o, r *Profile) {
			o.Deadline.Period = time.Second
			r.Deadline.Period = 500 * time.Millisecond
		}, KindDeadline},
		{"liveliness weaker kind", func(o, r *Profile) {
			r.Liveliness.Kind = LivelinessManualByTopic
		}, KindLiveliness},
		{"liveliness longer lease", func(o, r *Profile) {
			o.Liveliness.LeaseDuration = 2 * time.Second
			r.Liveliness.LeaseDuration = time.Second
		}, KindLiveliness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, r := talkerProfile(), talkerProfile()
			tt.mutate(&o, &r)

			res := Resolve(o, r)
			assert.False(t, res.Compatible)
			require.Len(t, res.Reasons, 1)
			assert.Equal(t, tt.kind, res.Reasons[0].Kind)
			assert.ErrorIs(t, res.Err(), ErrIncompatible)
		})
	}
}

func TestResolve_StrongerOfferStillCompatible(t *testing.T) {
	o := talkerProfile()
	o.History = KeepAll()
	o.Durability = DurabilityPersistent
	o.Deadline.Period = 10 * time.Millisecond
	o.Liveliness = Liveliness{Kind: LivelinessManualByParticipant, LeaseDuration: time.Second}

	r := Default()
	r.Reliability = BestEffort()

	res := Resolve(o, r)
	require.True(t, res.Compatible)
	assert.Equal(t, BestEffort(), res.Effective.Reliability)
	assert.Equal(t, DurabilityVolatile, res.Effective.Durability)
	assert.Equal(t, KeepLast(1), res.Effective.History)
	assert.Equal(t, Infinite, res.Effective.Deadline.Period)
	assert.Equal(t, Default().Liveliness, res.Effective.Liveliness)
}

func TestResolve_ReportsEveryFailingKind(t *testing.T) {
	o := Default()
	o.Reliability = BestEffort()

	r := talkerProfile()
	r.History = KeepAll()
	r.Deadline.Period = time.Second

	res := Resolve(o, r)
	assert.False(t, res.Compatible)
	assert.Equal(t, []string{"history", "reliability", "durability", "deadline"}, res.Kinds())
	assert.Len(t, multierr.Errors(res.Err()), 4)
}

// 读端请求 Reliable + TransientLocal，写端只提供 Volatile
func TestResolve_DurabilityScenario(t *testing.T) {
	o := talkerProfile()
	o.Durability = DurabilityVolatile

	res := Resolve(o, talkerProfile())
	assert.False(t, res.Compatible)
	require.Len(t, res.Reasons, 1)
	assert.Equal(t, KindDurability, res.Reasons[0].Kind)
	assert.Equal(t, "volatile", res.Reasons[0].Offered)
	assert.Equal(t, "transient_local", res.Reasons[0].Requested)
}

func TestResolve_EffectiveLifespanAndLimits(t *testing.T) {
	o := Default()
	o.Lifespan.Duration = time.Second
	o.History = KeepAll()
	o.ResourceLimits.MaxSamples = 50

	r := Default()
	r.Lifespan.Duration = 200 * time.Millisecond
	r.Reliability = Reliable(time.Second)

	res := Resolve(o, r)
	require.True(t, res.Compatible)
	assert.Equal(t, 200*time.Millisecond, res.Effective.Lifespan.Duration)
	assert.Equal(t, 50, res.Effective.ResourceLimits.MaxSamples)
	// 阻塞上限由写端决定
	assert.Equal(t, DefaultMaxBlockingTime, res.Effective.Reliability.MaxBlockingTime)
}
