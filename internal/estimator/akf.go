package estimator

import "math"

// AKF is the adaptive Kalman filter: a two-time-scale innovation tracker
// drives R adaptation, measurement dropouts are handled via a miss streak
// and dynamic gating, and the offset gain is asymmetrically clamped: a
// positive innovation caps K0 at 0.45, a negative one (clock running
// ahead) at 0.60.
type AKF struct {
	x0, x1 float64
	p      matrix2

	q0, q1, r float64
	rFloor    float64

	innovation  float64
	k0, k1      float64
	updateCount uint64
	initialized bool

	varFast, varSlow float64
	missStreak       int
	corrLag1         float64
	prevInnov        float64
	k1SaturCount     int

	qstepEwma float64
}

func NewAKF(q, r float64) *AKF {
	a := &AKF{}
	a.Init(q, r)
	return a
}

func (a *AKF) Init(q, r float64) {
	a.x0, a.x1 = 0, 0
	a.p = matrix2{{1000, 0}, {0, 100}}
	a.q0, a.q1 = q, 0.1*q
	a.r = r
	a.rFloor = maxd(0.05*r, 1e-12)
	a.innovation = 0
	a.k0, a.k1 = 0, 0
	a.updateCount = 0
	a.initialized = true
	a.varFast, a.varSlow = r, r
	a.missStreak = 0
	a.corrLag1 = 0
	a.prevInnov = 0
	a.k1SaturCount = 0
	a.qstepEwma = 0
}

func (a *AKF) Reset() {
	q0, q1, r := a.q0, a.q1, a.r
	a.Init(q0, r)
	a.q1 = q1
}

// Update runs one predict/update cycle. Every call to Update counts as a
// received measurement (gated as described in step); callers that know a
// measurement was lost call UpdateMissed instead.
func (a *AKF) Update(zS, dtS float64) float64 {
	return a.step(zS, dtS, false)
}

// UpdateMissed advances the filter's time base without a measurement,
// inflating R to reflect the missed observation.
func (a *AKF) UpdateMissed(dtS float64) float64 {
	return a.step(0, dtS, true)
}

func (a *AKF) step(zS, dtS float64, missed bool) float64 {
	if dtS <= 0 {
		dtS = 1.0
	}

	x0Pred := a.x0 + a.x1*dtS
	x1Pred := a.x1

	f := matrix2{{1, dtS}, {0, 1}}
	ft := matrix2{{1, 0}, {dtS, 1}}
	q := matrix2{{a.q0, 0}, {0, a.q1}}
	pPred := ma2(mm2(mm2(f, a.p), ft), q)

	if missed {
		a.missStreak++
		a.r *= 1.3
		a.x0, a.x1 = x0Pred, x1Pred
		a.p = pPred
		return a.x0
	}

	step := absd(zS - (a.x0))
	a.qstepEwma = 0.98*a.qstepEwma + 0.02*mind(step, 20e-3)

	y := zS - x0Pred
	a.corrLag1 = 0.9*a.corrLag1 + 0.1*sign(y*a.prevInnov)
	a.prevInnov = y
	a.innovation = y

	gate := 3.5
	if a.missStreak > 0 {
		gate += 1.0 // be more tolerant after gaps
	} else if a.corrLag1 < 0.03 {
		gate = 3.0 // tighten when very white
	}
	sPred := pPred[0][0] + maxd(a.r, a.rFloor)

	// Dynamic gating scales the gain down rather than rejecting the
	// measurement outright: an implausible innovation still nudges the
	// filter, just less than a plausible one would.
	gscale := 1.0
	sigma := math.Sqrt(absd(sPred))
	if sigma > 0 {
		nsig := absd(y) / sigma
		if nsig > gate {
			gscale = clampd(gate/nsig, 0.2, 1.0)
		}
	}
	a.missStreak = 0

	a.varFast = 0.7*a.varFast + 0.3*y*y
	a.varSlow = 0.95*a.varSlow + 0.05*y*y
	a.rFloor = clampd(maxd(a.qstepEwma*a.qstepEwma/12, 0.05*a.r), 1e-12, 30*a.r)
	a.r = clampd(0.7*a.varSlow+0.3*a.varFast, a.rFloor, 30*a.r)

	s := pPred[0][0] + a.r
	k0 := (pPred[0][0] / s) * gscale
	k1 := (pPred[1][0] / s) * gscale

	if y >= 0 {
		k0 = clampd(k0, 0, 0.45)
	} else {
		k0 = clampd(k0, 0, 0.60)
	}
	k1 = clampd(k1, 0, 0.25)
	if k1 >= 0.25 {
		a.k1SaturCount++
	} else {
		a.k1SaturCount = 0
	}
	a.k0, a.k1 = k0, k1

	// Offset-first update: apply K0 to offset, recompute the residual
	// against the corrected offset, then apply K1 to that residual.
	a.x0 = x0Pred + k0*y
	residual := zS - a.x0
	a.x1 = x1Pred + k1*residual

	ikh := matrix2{{1 - k0, 0}, {-k1, 1}}
	a.p = mm2(ikh, pPred)

	a.updateCount++

	if a.updateCount > 20 {
		switch {
		case a.corrLag1 > 0.3:
			a.q1 *= 1.03
		case a.k1SaturCount > 5:
			a.q1 *= 0.97
		}
		a.q1 = clampd(a.q1, 1e-14, 1e-6)
	}

	if missed || a.updateCount > 80 {
		a.x1 *= 0.998
	}

	const softPpb, hardPpb = 80e-9, 300e-9
	if absd(a.x1) > hardPpb {
		a.x1 = 0
	} else if absd(a.x1) > softPpb {
		if a.x1 > 0 {
			a.x1 = softPpb
		} else {
			a.x1 = -softPpb
		}
	}

	return a.x0
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func (a *AKF) OffsetS() float64    { return a.x0 }
func (a *AKF) DriftSPerS() float64 { return a.x1 }
func (a *AKF) DriftPpb() float64   { return a.x1 * 1e9 }
func (a *AKF) Innovation() float64 { return a.innovation }
func (a *AKF) GainOffset() float64 { return a.k0 }
func (a *AKF) GainDrift() float64  { return a.k1 }
func (a *AKF) UpdateCount() uint64 { return a.updateCount }
func (a *AKF) Initialized() bool   { return a.initialized }
