package estimator

// linRegWindow matches the teacher's sample window for the windowed
// regression servo.
const linRegWindow = 64

// LinRegServo fits a line through the last linRegWindow (time, offset)
// samples and reports the slope as a frequency correction. It reports zero
// drift until the window has been filled once.
type LinRegServo struct {
	xs, ys  [linRegWindow]float64
	n, idx  int
	filled  bool
	timeSec float64

	offsetS     float64
	driftSPerS  float64
	updateCount uint64
	initialized bool
}

func NewLinRegServo() *LinRegServo {
	l := &LinRegServo{}
	l.Init(0, 0)
	return l
}

func (l *LinRegServo) Init(q, r float64) {
	l.n, l.idx = 0, 0
	l.filled = false
	l.timeSec = 0
	l.offsetS = 0
	l.driftSPerS = 0
	l.updateCount = 0
	l.initialized = true
}

func (l *LinRegServo) Reset() { l.Init(0, 0) }

func (l *LinRegServo) Update(zS, dtS float64) float64 {
	if dtS <= 0 {
		dtS = 1.0
	}
	l.offsetS = zS
	l.xs[l.idx] = l.timeSec
	l.ys[l.idx] = zS
	l.timeSec += dtS
	l.idx++
	if l.idx >= linRegWindow {
		l.idx = 0
		l.filled = true
	}
	if l.n < linRegWindow {
		l.n++
	}
	l.updateCount++

	if !l.filled || l.n < 4 {
		l.driftSPerS = 0
		return l.offsetS
	}

	n := float64(l.n)
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < l.n; i++ {
		sumX += l.xs[i]
		sumY += l.ys[i]
		sumXY += l.xs[i] * l.ys[i]
		sumX2 += l.xs[i] * l.xs[i]
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		l.driftSPerS = 0
		return l.offsetS
	}
	slope := (n*sumXY - sumX*sumY) / denom // offset-seconds per second
	l.driftSPerS = clampd(slope, -100e-6, 100e-6)
	return l.offsetS
}

func (l *LinRegServo) OffsetS() float64    { return l.offsetS }
func (l *LinRegServo) DriftSPerS() float64 { return l.driftSPerS }
func (l *LinRegServo) DriftPpb() float64   { return l.driftSPerS * 1e9 }
func (l *LinRegServo) Innovation() float64 { return l.offsetS }
func (l *LinRegServo) GainOffset() float64 { return 0 }
func (l *LinRegServo) GainDrift() float64  { return 0 }
func (l *LinRegServo) UpdateCount() uint64 { return l.updateCount }
func (l *LinRegServo) Initialized() bool   { return l.initialized }
