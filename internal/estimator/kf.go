package estimator

// KF is the plain two-state Kalman filter: offset and drift, linear
// transition, slow innovation-ratio R/Q adaptation, and an early-update
// gain boost so the filter converges faster from a cold start.
type KF struct {
	x0, x1 float64 // offset_s, drift_s_per_s
	p      matrix2

	q0, q1, r float64

	innovation   float64
	k0, k1       float64
	updateCount  uint64
	initialized  bool

	avgInnovVar float64
	prevDrift   float64
}

// NewKF constructs a KF with Q00=q, Q11=0.1*q, R=r.
func NewKF(q, r float64) *KF {
	k := &KF{}
	k.Init(q, r)
	return k
}

func (k *KF) Init(q, r float64) {
	k.x0, k.x1 = 0, 0
	k.p = matrix2{{1000, 0}, {0, 100}}
	k.q0, k.q1 = q, 0.1*q
	k.r = r
	k.innovation = 0
	k.k0, k.k1 = 0, 0
	k.updateCount = 0
	k.initialized = true
	k.avgInnovVar = r
	k.prevDrift = 0
}

func (k *KF) Reset() {
	q0, q1, r := k.q0, k.q1, k.r
	k.Init(q0, r)
	k.q1 = q1
}

// Update runs one predict/update cycle. zS is the measured offset in
// seconds, dtS the elapsed time since the previous update.
func (k *KF) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		dtS = 1.0
	}

	// Predict: x1 constant, x0 += x1*dt.
	x0Pred := k.x0 + k.x1*dtS
	x1Pred := k.x1

	f := matrix2{{1, dtS}, {0, 1}}
	ft := matrix2{{1, 0}, {dtS, 1}}
	q := matrix2{{k.q0, 0}, {0, k.q1}}
	pPred := ma2(mm2(mm2(f, k.p), ft), q)

	y := zS - x0Pred
	k.innovation = y
	s := pPred[0][0] + k.r

	k0 := pPred[0][0] / s
	k1 := pPred[1][0] / s

	// Early-update gain boost: the filter is under-confident in its first
	// ~30 updates because P hasn't shrunk from its large initial values yet.
	if k.updateCount < 30 {
		boost := 1.1 - 0.003*float64(k.updateCount)
		k0 *= boost
		k1 *= boost * 0.9
	}

	// Magnitude shaping: large innovations should be trusted more (the
	// filter is probably behind a real step), tiny ones less (likely noise).
	absY := absd(y)
	switch {
	case absY > 200e-6:
		k0 *= 1.05
	case absY < 5e-6:
		k0 *= 0.95
		k1 *= 0.98
	}

	k0 = clampd(k0, 0, 0.6)
	k1 = clampd(k1, 0, 0.2)
	k.k0, k.k1 = k0, k1

	k.x0 = x0Pred + k0*y
	k.x1 = x1Pred + k1*y

	// P = (I - K*H) * Ppred, with H = [1 0] so K*H = [[k0,0],[k1,0]].
	ikh := matrix2{{1 - k0, 0}, {-k1, 1}}
	k.p = mm2(ikh, pPred)

	k.updateCount++

	if k.updateCount > 50 {
		k.x1 *= 0.995
	}

	const softPpb, hardPpb = 50e-9, 200e-9
	driftPpb := k.x1
	if absd(driftPpb) > hardPpb {
		k.x1 = 0
		k.p[1][1] = 10
	} else if absd(driftPpb) > softPpb {
		if driftPpb > 0 {
			k.x1 = softPpb
		} else {
			k.x1 = -softPpb
		}
	}

	k.adaptNoise(y, s)

	return k.x0
}

// adaptNoise implements the slow ratio-based R/Q schedule: compare the
// observed innovation variance against the predicted one and nudge r and
// q1 when they drift persistently out of line.
func (k *KF) adaptNoise(y, sPred float64) {
	const beta = 0.98
	k.avgInnovVar = beta*k.avgInnovVar + (1-beta)*y*y

	ratio := k.avgInnovVar / maxd(sPred, 1e-18)
	switch {
	case ratio > 2.5:
		k.r *= 1.05
	case ratio > 1.5:
		k.r *= 1.02
	case ratio < 0.4:
		k.r *= 0.98
	}
	k.r = maxd(k.r, 1e-18)

	if k.updateCount > 30 {
		d := absd(k.x1 - k.prevDrift)
		k.prevDrift = k.x1
		switch {
		case d > 5e-9:
			k.q1 *= 1.02
		case d < 1e-10:
			k.q1 *= 0.99
		}
	}
}

func (k *KF) OffsetS() float64     { return k.x0 }
func (k *KF) DriftSPerS() float64  { return k.x1 }
func (k *KF) DriftPpb() float64    { return k.x1 * 1e9 }
func (k *KF) Innovation() float64  { return k.innovation }
func (k *KF) GainOffset() float64  { return k.k0 }
func (k *KF) GainDrift() float64   { return k.k1 }
func (k *KF) UpdateCount() uint64  { return k.updateCount }
func (k *KF) Initialized() bool    { return k.initialized }
