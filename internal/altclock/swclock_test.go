package altclock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeMono struct{ ns atomic.Int64 }

func newFakeMono(start int64) *fakeMono       { f := &fakeMono{}; f.ns.Store(start); return f }
func (f *fakeMono) NowNs() int64              { return f.ns.Load() }
func (f *fakeMono) advance(d time.Duration)   { f.ns.Add(int64(d)) }

func TestNowNs_AdvancesAtBaseScale(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	mono.advance(time.Second)
	got := c.NowNs()
	assert.InDelta(t, int64(time.Second), got, 1)
}

func TestSetFreq_ChangesEffectiveRate(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	c.SetFreq(1000) // +1000 ppb = +1e-6 fractional rate
	mono.advance(time.Second)
	got := c.NowNs()
	oneSecNs := float64(time.Second)
	assert.InDelta(t, int64(oneSecNs*1.000001), got, 100)
}

func TestAdjust_SlewsWithoutDiscontinuity(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	before := c.NowNs()
	c.Adjust(200*int64(time.Millisecond), 200*int64(time.Millisecond))
	after := c.NowNs()
	assert.InDelta(t, before, after, float64(5*time.Microsecond), "slew must not step")

	mono.advance(200 * time.Millisecond)
	got := c.NowNs()
	// after the full slew window, the entire offset has been delivered.
	assert.InDelta(t, before+int64(400*time.Millisecond), got, float64(2*time.Millisecond))
}

func TestAdjust_ImmediateStepWhenWindowIsZero(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	before := c.NowNs()
	c.Adjust(500_000_000, 0)
	after := c.NowNs()
	assert.Equal(t, before+500_000_000, after)
}

func TestNowNs_NeverGoesBackward(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	prev := c.NowNs()
	for i := 0; i < 50; i++ {
		mono.advance(time.Millisecond)
		cur := c.NowNs()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestAlignNow_ClearsInFlightSlewAndSetsExactValue(t *testing.T) {
	mono := newFakeMono(0)
	c := New(WithRawMono(mono))

	c.Adjust(1_000_000_000, int64(time.Second))
	c.AlignNow(777)
	assert.Equal(t, int64(777), c.NowNs())

	mono.advance(time.Second)
	// no residual slew should apply after realignment.
	assert.Equal(t, int64(777)+int64(time.Second), c.NowNs())
}
