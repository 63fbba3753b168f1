package estimator

// PIDServo and LinRegServo adapt the classic PID and windowed
// linear-regression drift estimators into the Estimator contract: extra
// variants offered alongside the six two-state filters, not substitutes
// for them.

// PIDServo is a standard PID servo operating on the offset directly,
// producing a fractional frequency correction (1e-6 == 1ppm).
type PIDServo struct {
	kp, ki, kd float64

	integral    float64
	lastErrorS  float64
	maxIntegral float64
	maxAdj      float64

	offsetS     float64
	driftSPerS  float64
	updateCount uint64
	initialized bool
}

// NewPIDServo constructs a PIDServo with the given gains; kp=ki=kd=0
// selects the defaults (0.1, 0.01, 0.001).
func NewPIDServo(kp, ki, kd float64) *PIDServo {
	if kp == 0 && ki == 0 && kd == 0 {
		kp, ki, kd = 0.1, 0.01, 0.001
	}
	p := &PIDServo{kp: kp, ki: ki, kd: kd, maxIntegral: 1.0, maxAdj: 100e-6}
	p.Init(0, 0)
	return p
}

func (p *PIDServo) Init(q, r float64) {
	p.integral = 0
	p.lastErrorS = 0
	p.offsetS = 0
	p.driftSPerS = 0
	p.updateCount = 0
	p.initialized = true
}

func (p *PIDServo) Reset() { p.Init(0, 0) }

func (p *PIDServo) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		return p.offsetS
	}
	p.offsetS = zS
	p.integral = clampd(p.integral+zS*dtS, -p.maxIntegral, p.maxIntegral)
	derivative := (zS - p.lastErrorS) / dtS
	p.lastErrorS = zS

	out := p.kp*zS + p.ki*p.integral + p.kd*derivative
	out = clampd(out, -p.maxAdj, p.maxAdj)
	p.driftSPerS = out
	p.updateCount++
	return p.offsetS
}

func (p *PIDServo) OffsetS() float64     { return p.offsetS }
func (p *PIDServo) DriftSPerS() float64  { return p.driftSPerS }
func (p *PIDServo) DriftPpb() float64    { return p.driftSPerS * 1e9 }
func (p *PIDServo) Innovation() float64  { return p.offsetS }
func (p *PIDServo) GainOffset() float64  { return p.kp }
func (p *PIDServo) GainDrift() float64   { return p.ki }
func (p *PIDServo) UpdateCount() uint64  { return p.updateCount }
func (p *PIDServo) Initialized() bool    { return p.initialized }
