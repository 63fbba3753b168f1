package estimator

import "math"

// State is the two-state (offset, drift) vector EKF models operate on.
type State [2]float64

// ProcessFunc predicts the next state given the current state and dt.
type ProcessFunc func(x State, dtS float64) State

// MeasurementFunc maps a state to the predicted measurement.
type MeasurementFunc func(x State) float64

// JacobianF returns the 2x2 Jacobian of ProcessFunc at x.
type JacobianF func(x State, dtS float64) matrix2

// JacobianH returns the 1x2 Jacobian of MeasurementFunc at x, as a matrix2
// with only row 0 populated (row 1 unused, kept for shape symmetry).
type JacobianH func(x State) matrix2

func linearF(x State, dtS float64) State {
	return State{x[0] + x[1]*dtS, x[1]}
}

func linearJacF(x State, dtS float64) matrix2 {
	return matrix2{{1, dtS}, {0, 1}}
}

func linearH(x State) float64 { return x[0] }

func linearJacH(x State) matrix2 {
	return matrix2{{1, 0}, {0, 0}}
}

// EKF is the extended Kalman filter: same gain shaping and gating as AKF's
// skeleton, but the process/measurement model is pluggable via function
// pointers and their Jacobians, and R is not self-adapting. Update resets
// the miss streak and nothing in this type increments it, so the ×1.3
// miss inflation of R and the widened 4.5 gate do not engage.
type EKF struct {
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

	missStreak int
	corrLag1   float64
	prevInnov  float64
}

// NewEKF constructs an EKF with the default linear model. Use
// WithModel to install a nonlinear process/measurement pair.
func NewEKF(q, r float64) *EKF {
	e := &EKF{f: linearF, jacF: linearJacF, h: linearH, jacH: linearJacH}
	e.Init(q, r)
	return e
}

// WithModel installs a nonlinear process/measurement model and its
// Jacobians, replacing the default linear one.
func (e *EKF) WithModel(f ProcessFunc, jacF JacobianF, h MeasurementFunc, jacH JacobianH) *EKF {
	e.f, e.jacF, e.h, e.jacH = f, jacF, h, jacH
	return e
}

func (e *EKF) Init(q, r float64) {
	e.x = State{0, 0}
	e.p = matrix2{{1000, 0}, {0, 100}}
	e.q0, e.q1 = q, 0.1*q
	e.r = r
	e.rFloor = maxd(0.05*r, 1e-12)
	e.innovation = 0
	e.k0, e.k1 = 0, 0
	e.updateCount = 0
	e.initialized = true
	e.missStreak = 0
	e.corrLag1 = 0
	e.prevInnov = 0
}

func (e *EKF) Reset() {
	q, r := e.q0, e.r
	e.Init(q, r)
}

func (e *EKF) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		dtS = 1.0
	}

	xPred := e.f(e.x, dtS)
	fJac := e.jacF(e.x, dtS)
	ft := matrix2{{fJac[0][0], fJac[1][0]}, {fJac[0][1], fJac[1][1]}}
	q := matrix2{{e.q0, 0}, {0, e.q1}}
	pPred := ma2(mm2(mm2(fJac, e.p), ft), q)

	hJac := e.jacH(xPred)
	zPred := e.h(xPred)
	y := zS - zPred
	e.corrLag1 = 0.9*e.corrLag1 + 0.1*sign(y*e.prevInnov)
	e.prevInnov = y
	e.innovation = y

	rEff := maxd(e.r, e.rFloor)
	if e.missStreak > 0 {
		rEff *= 1.3
	}

	gate := 3.5
	if e.missStreak > 0 {
		gate = 4.5
	}
	sPred := hJac[0][0]*pPred[0][0]*hJac[0][0] + rEff

	gscale := 1.0
	sigma := math.Sqrt(absd(sPred))
	if sigma > 0 {
		nsig := absd(y) / sigma
		if nsig > gate {
			gscale = clampd(gate/nsig, 0.2, 1.0)
		}
	}
	e.missStreak = 0

	s := sPred
	k0 := (pPred[0][0] * hJac[0][0] / s) * gscale
	k1 := (pPred[1][0] * hJac[0][0] / s) * gscale

	if y >= 0 {
		k0 = clampd(k0, 0, 0.45)
	} else {
		k0 = clampd(k0, 0, 0.60)
	}
	k1 = clampd(k1, 0, 0.25)
	e.k0, e.k1 = k0, k1

	e.x[0] = xPred[0] + k0*y
	residual := zS - e.h(e.x)
	e.x[1] = xPred[1] + k1*residual

	ikh := matrix2{{1 - k0*hJac[0][0], 0}, {-k1 * hJac[0][0], 1}}
	e.p = mm2(ikh, pPred)

	e.updateCount++
	if e.updateCount > 80 {
		e.x[1] *= 0.998
	}

	const softPpb, hardPpb = 80e-9, 300e-9
	if absd(e.x[1]) > hardPpb {
		e.x[1] = 0
	} else if absd(e.x[1]) > softPpb {
		if e.x[1] > 0 {
			e.x[1] = softPpb
		} else {
			e.x[1] = -softPpb
		}
	}

	return e.x[0]
}

func (e *EKF) OffsetS() float64    { return e.x[0] }
func (e *EKF) DriftSPerS() float64 { return e.x[1] }
func (e *EKF) DriftPpb() float64   { return e.x[1] * 1e9 }
func (e *EKF) Innovation() float64 { return e.innovation }
func (e *EKF) GainOffset() float64 { return e.k0 }
func (e *EKF) GainDrift() float64  { return e.k1 }
func (e *EKF) UpdateCount() uint64 { return e.updateCount }
func (e *EKF) Initialized() bool   { return e.initialized }
