package estimator

// Mix owns an AKF for offset estimation and a PI for drift control: each
// measurement is filtered by the AKF first, then the AKF's filtered
// offset drives the PI servo. An optional drift hint (disabled by
// default) lets the AKF's own drift estimate nudge the PI's output,
// useful when the AKF has converged well ahead of the PI settling.
type Mix struct {
	akf *AKF
	pi  *PI

	useDriftHint bool

	updateCount uint64
	initialized bool
}

func NewMix(q, r float64) *Mix {
	m := &Mix{akf: NewAKF(q, r), pi: NewPI()}
	m.initialized = true
	return m
}

func (m *Mix) Init(q, r float64) {
	m.akf.Init(q, r)
	m.pi.Init(0, 0)
	m.updateCount = 0
	m.initialized = true
}

func (m *Mix) Reset() {
	m.akf.Reset()
	m.pi.Reset()
	m.updateCount = 0
}

// SetDriftHint enables or disables subtracting the AKF's drift estimate
// from the PI's measured offset before the PI step.
func (m *Mix) SetDriftHint(enabled bool) { m.useDriftHint = enabled }

func (m *Mix) Update(zS, dtS float64) float64 {
	filtered := m.akf.Update(zS, dtS)

	piInput := filtered
	if m.useDriftHint {
		piInput -= m.akf.DriftSPerS() * dtS
	}
	m.pi.Update(piInput, dtS)

	m.updateCount++
	return filtered
}

func (m *Mix) OffsetS() float64    { return m.akf.OffsetS() }
func (m *Mix) DriftSPerS() float64 { return m.pi.DriftSPerS() }
func (m *Mix) DriftPpb() float64   { return m.pi.DriftPpb() }
func (m *Mix) Innovation() float64 { return m.akf.Innovation() }
func (m *Mix) GainOffset() float64 { return m.akf.GainOffset() }
func (m *Mix) GainDrift() float64  { return m.akf.GainDrift() }
func (m *Mix) UpdateCount() uint64 { return m.updateCount }
func (m *Mix) Initialized() bool   { return m.initialized }
