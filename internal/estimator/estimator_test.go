package estimator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feed(t *testing.T, e Estimator, offsets []float64, dtS float64) {
	t.Helper()
	for _, o := range offsets {
		e.Update(o, dtS)
	}
}

func TestKF_ConvergesOnConstantOffset(t *testing.T) {
	kf := NewKF(1e-12, 1e-10)
	offsets := make([]float64, 200)
	for i := range offsets {
		offsets[i] = 50e-6
	}
	feed(t, kf, offsets, 1.0)

	assert.InDelta(t, 50e-6, kf.OffsetS(), 5e-6)
	assert.Equal(t, uint64(200), kf.UpdateCount())
	assert.True(t, kf.Initialized())
}

func TestKF_Reset(t *testing.T) {
	kf := NewKF(1e-12, 1e-10)
	feed(t, kf, []float64{100e-6, 100e-6, 100e-6}, 1.0)
	require.NotZero(t, kf.UpdateCount())

	kf.Reset()
	assert.Zero(t, kf.UpdateCount())
	assert.Zero(t, kf.OffsetS())
}

func TestKF_DriftHardClampResets(t *testing.T) {
	kf := NewKF(1e-9, 1e-10)
	// A large, persistent ramp should eventually hit the hard drift clamp
	// and reset x1 to zero rather than diverge.
	for i := 0; i < 500; i++ {
		kf.Update(float64(i)*1e-3, 1.0)
	}
	assert.LessOrEqual(t, absd(kf.DriftSPerS()), 200e-9+1e-12)
}

func TestAKF_GatesOutlier(t *testing.T) {
	akf := NewAKF(1e-12, 1e-10)
	// Warm up long enough for P to shrink from its diag(1000, 100) start;
	// with a large P the outlier sits inside the gate and is not scaled.
	warmup := make([]float64, 100)
	for i := range warmup {
		warmup[i] = 1e-6
	}
	feed(t, akf, warmup, 1.0)
	before := akf.OffsetS()

	akf.Update(5.0, 1.0) // wild outlier: gain-scaled down, not rejected outright

	moved := absd(akf.OffsetS() - before)
	assert.Greater(t, moved, 0.0)
	assert.Less(t, moved, 1.0)
	assert.Zero(t, akf.missStreak)
}

func TestAKF_UpdateMissedInflatesR(t *testing.T) {
	akf := NewAKF(1e-12, 1e-10)
	feed(t, akf, []float64{10e-6, 10e-6, 10e-6}, 1.0)
	r0 := akf.r

	akf.UpdateMissed(1.0)
	assert.Greater(t, akf.r, r0)
}

func TestEKF_LinearModelMatchesKF(t *testing.T) {
	ekf := NewEKF(1e-12, 1e-10)
	offsets := []float64{20e-6, 20e-6, 20e-6, 20e-6, 20e-6}
	feed(t, ekf, offsets, 1.0)

	assert.InDelta(t, 20e-6, ekf.OffsetS(), 10e-6)
}

func TestEKF_CustomModel(t *testing.T) {
	ekf := NewEKF(1e-12, 1e-10).WithModel(linearF, linearJacF, linearH, linearJacH)
	out := ekf.Update(1e-6, 1.0)
	assert.NotZero(t, out)
}

func TestAEKF_AdaptsRUnderMiss(t *testing.T) {
	aekf := NewAEKF(1e-12, 1e-10)
	// Warm up long enough for P to shrink from its diag(1000, 100) start,
	// so the outlier lands outside the gate.
	warmup := make([]float64, 50)
	for i := range warmup {
		warmup[i] = 5e-6
	}
	feed(t, aekf, warmup, 1.0)
	r0 := aekf.r

	aekf.Update(50.0, 1.0) // gate-triggering outlier
	assert.Greater(t, aekf.missStreak, 0)
	assert.Greater(t, aekf.r, r0)
}

func TestPI_DeadzoneSuppressesSmallOffsets(t *testing.T) {
	pi := NewPI()
	pi.Update(1e-6, 1.0) // well under the 20us deadzone
	assert.Zero(t, pi.DriftPpb())
}

func TestPI_StepLimiterBoundsOutputChange(t *testing.T) {
	pi := NewPI()
	pi.Update(1e-3, 1.0)
	first := pi.DriftPpb()
	pi.Update(1e-3, 1.0)
	second := pi.DriftPpb()
	assert.LessOrEqual(t, absd(second-first), pi.maxPpbStep+1e-9)
}

func TestPI_AbsoluteClamp(t *testing.T) {
	pi := NewPI()
	for i := 0; i < 50; i++ {
		pi.Update(1.0, 1.0)
	}
	assert.LessOrEqual(t, absd(pi.DriftPpb()), pi.maxPpbAbs+1e-9)
}

func TestPI_HoldoverDecaysTowardZero(t *testing.T) {
	pi := NewPI()
	for i := 0; i < 10; i++ {
		pi.Update(1e-3, 1.0)
	}
	before := absd(pi.DriftPpb())
	require.NotZero(t, before)

	for i := 0; i < 20; i++ {
		pi.UpdateHoldover()
	}
	assert.Less(t, absd(pi.DriftPpb()), before)
}

func TestMix_FiltersThenServos(t *testing.T) {
	mix := NewMix(1e-12, 1e-10)
	for i := 0; i < 100; i++ {
		mix.Update(30e-6, 1.0)
	}
	assert.InDelta(t, 30e-6, mix.OffsetS(), 5e-6)
	assert.NotZero(t, mix.UpdateCount())
}

func TestMix_DriftHintToggle(t *testing.T) {
	mix := NewMix(1e-12, 1e-10)
	mix.SetDriftHint(true)
	out := mix.Update(10e-6, 1.0)
	assert.NotNil(t, out)
}

func TestPIDServo_SignMatchesError(t *testing.T) {
	p := NewPIDServo(0, 0, 0)
	pos := p.Update(1e-3, 1.0)
	assert.Equal(t, 1e-3, pos)
	assert.Greater(t, p.DriftSPerS(), 0.0)

	p.Reset()
	p.Update(-1e-3, 1.0)
	assert.Less(t, p.DriftSPerS(), 0.0)
}

func TestLinRegServo_NoOutputBeforeWindowFilled(t *testing.T) {
	lr := NewLinRegServo()
	for i := 0; i < 3; i++ {
		lr.Update(1e-3, 1.0)
	}
	assert.Zero(t, lr.DriftSPerS())
}

func TestLinRegServo_TracksRamp(t *testing.T) {
	lr := NewLinRegServo()
	for i := 0; i < linRegWindow+10; i++ {
		lr.Update(float64(i)*10e-6, 1.0)
	}
	assert.Greater(t, lr.DriftSPerS(), 0.0)
}

// TestEstimators_ConvergeWithFrequencyBias is §8 property 8: a 40ms step
// plus a +30ppm frequency bias, dt=10ms, zero measurement noise, 450
// updates. Every mandatory estimator variant (KF/AKF/EKF/AEKF/MIX) must
// track the ramp closely enough that both the offset estimate and the
// internal drift state stay within the spec's bounds.
func TestEstimators_ConvergeWithFrequencyBias(t *testing.T) {
	const (
		stepS   = 40e-3
		biasPpm = 30.0
		dtS     = 10e-3
		updates = 450
	)
	biasSPerS := biasPpm * 1e-6

	cases := []struct {
		name string
		e    Estimator
	}{
		{"KF", NewKF(1e-12, 1e-10)},
		{"AKF", NewAKF(1e-12, 1e-10)},
		{"EKF", NewEKF(1e-12, 1e-10)},
		{"AEKF", NewAEKF(1e-12, 1e-10)},
		{"MIX", NewMix(1e-12, 1e-10)},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			var elapsed, trueOffset float64
			for i := 0; i < updates; i++ {
				elapsed += dtS
				trueOffset = stepS + biasSPerS*elapsed
				c.e.Update(trueOffset, dtS)
			}
			assert.Less(t, absd(c.e.OffsetS()-trueOffset), 1e-3, "%s offset error", c.name)
			assert.Less(t, absd(c.e.DriftPpb()), 200.0, "%s drift magnitude", c.name)
		})
	}
}

// TestAKF_RobustToNoiseAndOutliers is §8 property 9: AKF must keep
// tracking a constant true offset through 300us Gaussian measurement
// noise plus 9-12ms outliers injected every 9th sample, over 700 updates.
func TestAKF_RobustToNoiseAndOutliers(t *testing.T) {
	akf := NewAKF(1e-12, 1e-8)
	rng := rand.New(rand.NewSource(42))

	const (
		dtS        = 10e-3
		sigmaS     = 300e-6
		updates    = 700
		trueOffset = 0.0
	)

	for i := 0; i < updates; i++ {
		z := trueOffset + rng.NormFloat64()*sigmaS
		if i%9 == 0 {
			outlier := 9e-3 + rng.Float64()*3e-3 // 9-12ms
			if rng.Intn(2) == 0 {
				outlier = -outlier
			}
			z += outlier
		}
		akf.Update(z, dtS)
	}

	assert.Less(t, absd(akf.OffsetS()-trueOffset), 2e-3)
}
