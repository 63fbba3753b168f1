package swclock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siwanetwork/swclock/internal/rawmono"
)

// fakeMono is a manually-advanced RawMono source for deterministic tests.
type fakeMono struct {
	ns atomic.Int64
}

func newFakeMono(start int64) *fakeMono {
	f := &fakeMono{}
	f.ns.Store(start)
	return f
}

func (f *fakeMono) NowNs() int64 { return f.ns.Load() }

func (f *fakeMono) advance(d time.Duration) { f.ns.Add(int64(d)) }

func newTestClock(t *testing.T, mono rawmono.Source) *Clock {
	t.Helper()
	c, err := New(WithRawMono(mono), WithPollPeriod(0))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// S1 - Immediate relative step.
func TestAdjust_SetOffsetStepsImmediately(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	before, err := c.GetTime(Realtime)
	require.NoError(t, err)

	_, err = c.Adjust(AdjustRequest{
		Modes:  FlagSetOffset | FlagMicro,
		Offset: 500_000,
	})
	require.NoError(t, err)

	after, err := c.GetTime(Realtime)
	require.NoError(t, err)

	delta := after - before
	assert.InDelta(t, 500_000_000, delta, 2_000, "step should land within +-2us")
}

// Invariant 4: frequency clamp.
func TestAdjust_FrequencyRequestIsClampedOnPIOutput(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.Adjust(AdjustRequest{
		Modes:  FlagOffset | FlagNano,
		Offset: 2_000_000_000, // 2s slew: Kp*err = 400ppm, beyond the 200ppm clamp
	})
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		mono.advance(10 * time.Millisecond)
		c.Poll()
	}

	c.mu.RLock()
	ppm := c.piFreqPpm
	c.mu.RUnlock()
	assert.LessOrEqual(t, ppm, c.maxPpm+1e-9)
	assert.GreaterOrEqual(t, ppm, -c.maxPpm-1e-9)
}

// Invariant 2: slew magnitude monotonicity.
func TestPoll_RemainingPhaseMagnitudeDecreasesMonotonically(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.Adjust(AdjustRequest{
		Modes:  FlagOffset | FlagNano,
		Offset: 5_000_000,
	})
	require.NoError(t, err)

	c.mu.RLock()
	prev := absInt64(c.remainingPhaseNs)
	c.mu.RUnlock()

	// At the 100ppm minimum slew each 10ms poll removes 1000ns, so the 5ms
	// slew reaches the 20us epsilon after about 4981 polls.
	for i := 0; i < 6000 && prev != 0; i++ {
		mono.advance(10 * time.Millisecond)
		c.Poll()

		c.mu.RLock()
		cur := absInt64(c.remainingPhaseNs)
		piFreq := c.piFreqPpm
		c.mu.RUnlock()

		if piFreq != 0 {
			assert.LessOrEqual(t, cur, prev)
		}
		prev = cur
	}
	assert.Equal(t, int64(0), prev, "slew should fully settle")
}

// Invariant 3: anti-windup.
func TestPoll_AntiWindupZeroesStateOnceWithinEpsilon(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.Adjust(AdjustRequest{
		Modes:  FlagOffset | FlagNano,
		Offset: 100_000, // small: inside the 20us epsilon after about 81 polls at 100ppm
	})
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		mono.advance(10 * time.Millisecond)
		c.Poll()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Equal(t, int64(0), c.remainingPhaseNs)
	assert.Equal(t, 0.0, c.piIntErrorS)
	assert.Equal(t, 0.0, c.piFreqPpm)
}

// Invariant 5: settime resets pending correction.
func TestSetTime_ResetsPendingCorrection(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.Adjust(AdjustRequest{
		Modes:  FlagOffset | FlagNano,
		Offset: 1_000_000,
	})
	require.NoError(t, err)

	require.NoError(t, c.SetTime(Realtime, 123456))

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Equal(t, int64(0), c.remainingPhaseNs)
	assert.Equal(t, 0.0, c.piIntErrorS)
	assert.Equal(t, 0.0, c.piFreqPpm)
	assert.Equal(t, int64(123456), c.baseRtNs)
}

// Invariant 1 (PI form): no backstep absent a negative-delta SETOFFSET.
func TestGetTime_MonotoneAcrossPolls(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	prev, err := c.GetTime(Realtime)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		mono.advance(5 * time.Millisecond)
		c.Poll()
		cur, err := c.GetTime(Realtime)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestAdjust_RejectsUnknownModes(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	resp, err := c.Adjust(AdjustRequest{Modes: 0x8000_0000})
	require.Error(t, err)
	assert.Equal(t, TimeBad, resp.ReturnCode)
}

func TestEnablePI_ResetsIntegratorOnReenable(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.Adjust(AdjustRequest{Modes: FlagOffset | FlagNano, Offset: 2_000_000})
	require.NoError(t, err)
	mono.advance(10 * time.Millisecond)
	c.Poll()

	c.EnablePI(false)
	c.EnablePI(true)

	c.mu.RLock()
	defer c.mu.RUnlock()
	assert.Equal(t, 0.0, c.piIntErrorS)
	assert.Equal(t, 0.0, c.piFreqPpm)
}

func TestGetTime_RawPassesThroughRawMono(t *testing.T) {
	mono := newFakeMono(42)
	c := newTestClock(t, mono)

	raw, err := c.GetTime(Raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), raw)
}

func TestGetTime_InvalidClockID(t *testing.T) {
	mono := newFakeMono(0)
	c := newTestClock(t, mono)

	_, err := c.GetTime(Which(99))
	assert.ErrorIs(t, err, ErrInvalidClock)
}
