package estimator

import "math"

// AEKF combines EKF's pluggable process/measurement model with AKF's full
// R/Q self-adaptation. Its miss inflation and gating constants sit between
// the two: a milder ×1.15 R inflation per miss and gate thresholds of
// 4.0 (missed)/3.5 (nominal).
type AEKF struct {
	x State
	p matrix2

	f    ProcessFunc
	h    MeasurementFunc
	jacF JacobianF
	jacH JacobianH

	q0, q1, r, rFloor float64

	innovation  float64
	k0, k1      float64
	updateCount uint64
	initialized bool

	varFast, varSlow float64
	missStreak       int
	corrLag1         float64
	prevInnov        float64
	k1SaturCount     int
	qstepEwma        float64
}

func NewAEKF(q, r float64) *AEKF {
	a := &AEKF{f: linearF, jacF: linearJacF, h: linearH, jacH: linearJacH}
	a.Init(q, r)
	return a
}

func (a *AEKF) WithModel(f ProcessFunc, jacF JacobianF, h MeasurementFunc, jacH JacobianH) *AEKF {
	a.f, a.jacF, a.h, a.jacH = f, jacF, h, jacH
	return a
}

func (a *AEKF) Init(q, r float64) {
	a.x = State{0, 0}
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

func (a *AEKF) Reset() {
	q0, q1, r := a.q0, a.q1, a.r
	a.Init(q0, r)
	a.q1 = q1
}

func (a *AEKF) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		dtS = 1.0
	}

	xPred := a.f(a.x, dtS)
	fJac := a.jacF(a.x, dtS)
	ft := matrix2{{fJac[0][0], fJac[1][0]}, {fJac[0][1], fJac[1][1]}}
	q := matrix2{{a.q0, 0}, {0, a.q1}}
	pPred := ma2(mm2(mm2(fJac, a.p), ft), q)

	hJac := a.jacH(xPred)
	zPred := a.h(xPred)
	y := zS - zPred

	step := absd(zS - a.x[0])
	a.qstepEwma = 0.98*a.qstepEwma + 0.02*mind(step, 20e-3)

	a.corrLag1 = 0.9*a.corrLag1 + 0.1*sign(y*a.prevInnov)
	a.prevInnov = y
	a.innovation = y

	gate := 3.5
	if a.missStreak > 0 {
		gate = 4.0
	}
	sPred := hJac[0][0]*pPred[0][0]*hJac[0][0] + maxd(a.r, a.rFloor)
	if absd(y) > gate*math.Sqrt(sPred) {
		a.x, a.p = xPred, pPred
		a.missStreak++
		a.r *= 1.15
		return a.x[0]
	}
	a.missStreak = 0

	a.varFast = 0.7*a.varFast + 0.3*y*y
	a.varSlow = 0.95*a.varSlow + 0.05*y*y
	a.rFloor = clampd(maxd(a.qstepEwma*a.qstepEwma/12, 0.05*a.r), 1e-12, 30*a.r)
	a.r = clampd(0.7*a.varSlow+0.3*a.varFast, a.rFloor, 30*a.r)

	s := hJac[0][0]*pPred[0][0]*hJac[0][0] + a.r
	k0 := pPred[0][0] * hJac[0][0] / s
	k1 := pPred[1][0] * hJac[0][0] / s

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

	a.x[0] = xPred[0] + k0*y
	residual := zS - a.h(a.x)
	a.x[1] = xPred[1] + k1*residual

	ikh := matrix2{{1 - k0*hJac[0][0], 0}, {-k1 * hJac[0][0], 1}}
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
	if a.updateCount > 80 {
		a.x[1] *= 0.998
	}

	const softPpb, hardPpb = 80e-9, 300e-9
	if absd(a.x[1]) > hardPpb {
		a.x[1] = 0
	} else if absd(a.x[1]) > softPpb {
		if a.x[1] > 0 {
			a.x[1] = softPpb
		} else {
			a.x[1] = -softPpb
		}
	}

	return a.x[0]
}

func (a *AEKF) OffsetS() float64    { return a.x[0] }
func (a *AEKF) DriftSPerS() float64 { return a.x[1] }
func (a *AEKF) DriftPpb() float64   { return a.x[1] * 1e9 }
func (a *AEKF) Innovation() float64 { return a.innovation }
func (a *AEKF) GainOffset() float64 { return a.k0 }
func (a *AEKF) GainDrift() float64  { return a.k1 }
func (a *AEKF) UpdateCount() uint64 { return a.updateCount }
func (a *AEKF) Initialized() bool   { return a.initialized }
