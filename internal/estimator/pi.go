package estimator

// PI is the PTPd-style proportional-integral servo: not an estimator in
// the Kalman sense, it drives an output drift (ppb) from a measured
// offset through a deadzone, a lock-in scale-down, a step limiter, a
// back-calculation anti-windup bleed, an absolute clamp, and holdover
// decay when offset measurements stop arriving.
type PI struct {
	kp, ki float64

	deadzoneS   float64
	maxPpbStep  float64
	maxPpbAbs   float64
	syncRefS    float64
	lockTauS    float64
	lockScale   float64
	intClampS   float64
	holdDecay   float64

	intErrorS   float64
	driftPpb    float64
	prevDriftPpb float64
	lockedSecs  float64

	innovation  float64
	updateCount uint64
	initialized bool
}

// NewPI constructs a PI servo with the PTPd-reference constants: Kp=0.1/s,
// Ki=0.001/s^2, a 20us deadzone, a 50ppb/step limit, and a 200ppb absolute
// clamp.
func NewPI() *PI {
	p := &PI{
		kp:         0.1,
		ki:         0.001,
		deadzoneS:  20.0e-6,
		maxPpbStep: 50.0,
		maxPpbAbs:  200.0,
		syncRefS:   1.0,
		lockTauS:   15.0,
		lockScale:  0.6,
		intClampS:  0.25,
		holdDecay:  0.998,
	}
	p.Init(0, 0)
	return p
}

// Init is a no-op over q/r for PI (it has no process/measurement noise
// model) kept to satisfy the Estimator interface; it resets servo state.
func (p *PI) Init(q, r float64) {
	p.intErrorS = 0
	p.driftPpb = 0
	p.prevDriftPpb = 0
	p.lockedSecs = 0
	p.innovation = 0
	p.updateCount = 0
	p.initialized = true
}

func (p *PI) Reset() { p.Init(0, 0) }

func (p *PI) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		dtS = p.syncRefS
	}
	p.innovation = zS

	errS := zS
	if absd(errS) < p.deadzoneS {
		errS = 0
	} else if errS > 0 {
		errS -= p.deadzoneS
	} else {
		errS += p.deadzoneS
	}

	// Lock-in: once the servo has held small error for lockTauS, scale
	// down the gain to reduce residual jitter.
	if absd(zS) < p.deadzoneS*2 {
		p.lockedSecs += dtS
	} else {
		p.lockedSecs = 0
	}
	// Sync-interval scaling: gains are tuned for SYNC_REF_S-spaced updates,
	// so scale them by dt/syncRefS before applying.
	scale := dtS / p.syncRefS
	kpEff := p.kp * scale
	kiEff := p.ki * scale
	if p.lockedSecs > p.lockTauS {
		kpEff *= p.lockScale
		kiEff *= p.lockScale
	}

	p.intErrorS += errS * dtS
	p.intErrorS = clampd(p.intErrorS, -p.intClampS, p.intClampS)

	u := kpEff*errS + kiEff*p.intErrorS
	driftPpb := u * 1e9

	// Step limiter.
	step := driftPpb - p.prevDriftPpb
	if step > p.maxPpbStep {
		driftPpb = p.prevDriftPpb + p.maxPpbStep
	} else if step < -p.maxPpbStep {
		driftPpb = p.prevDriftPpb - p.maxPpbStep
	}

	// Absolute clamp, with back-calculation anti-windup: when the clamp
	// bites, bleed the integral term back instead of leaving it saturated.
	clamped := clampd(driftPpb, -p.maxPpbAbs, p.maxPpbAbs)
	if clamped != driftPpb && kiEff > 0 {
		excess := (driftPpb - clamped) / 1e9
		bleed := excess / maxd(kiEff, 1e-12)
		p.intErrorS -= 0.2 * bleed
		p.intErrorS = clampd(p.intErrorS, -p.intClampS, p.intClampS)
	}
	driftPpb = clamped

	p.driftPpb = driftPpb
	p.prevDriftPpb = driftPpb
	p.updateCount++

	return zS
}

// UpdateHoldover advances the servo with no offset measurement: drift
// decays geometrically toward zero rather than holding its last value
// indefinitely.
func (p *PI) UpdateHoldover() float64 {
	p.driftPpb *= p.holdDecay
	p.prevDriftPpb = p.driftPpb
	return p.driftPpb
}

func (p *PI) OffsetS() float64     { return p.innovation }
func (p *PI) DriftSPerS() float64  { return p.driftPpb * 1e-9 }
func (p *PI) DriftPpb() float64    { return p.driftPpb }
func (p *PI) Innovation() float64  { return p.innovation }
func (p *PI) GainOffset() float64  { return p.kp }
func (p *PI) GainDrift() float64   { return p.ki }
func (p *PI) UpdateCount() uint64  { return p.updateCount }
func (p *PI) Initialized() bool    { return p.initialized }
