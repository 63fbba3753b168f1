// Package monitor implements the real-time TE monitoring infrastructure:
// a circular buffer of time-error samples, sliding-window MTIE/TDEV
// computation, and threshold-based alerting.
package monitor

import (
	"math"
	"sort"
	"sync"
	"time"
)

// BufferSize is the circular buffer capacity: 1 hour of samples at 10Hz.
const BufferSize = 36000

// ComputeInterval is how often the background goroutine recomputes
// metrics.
const ComputeInterval = 10 * time.Second

// minSamplesForMetrics is the minimum buffer occupancy before a compute
// pass produces a snapshot.
const minSamplesForMetrics = 100

// Sample is one time-error observation.
type Sample struct {
	TimestampNs int64
	TeNs        int64
}

// Snapshot is a computed metrics report over the current buffer window.
type Snapshot struct {
	TimestampNs     int64
	SampleCount     int
	WindowDurationS float64

	MeanTeNs float64
	StdTeNs  float64
	MaxTeNs  float64
	MinTeNs  float64
	P95TeNs  float64
	P99TeNs  float64

	Mtie1sNs  float64
	Mtie10sNs float64
	Mtie30sNs float64
	Mtie60sNs float64

	Tdev01sNs float64
	Tdev1sNs  float64
	Tdev10sNs float64
}

// AlertCallback receives a threshold breach: the metric name, its
// observed value, and the configured threshold.
type AlertCallback func(metric string, value, threshold float64)

// ThresholdConfig mirrors the ITU-T G.8260 Class C defaults used when
// Enabled.
type ThresholdConfig struct {
	Enabled          bool
	Mtie1sNs         float64
	Mtie10sNs        float64
	Tdev1sNs         float64
	MaxTeNs          float64
	AlertCallback    AlertCallback
}

// DefaultThresholds returns the ITU-T G.8260 Class C defaults, disabled.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		Enabled:   false,
		Mtie1sNs:  100_000,
		Mtie10sNs: 200_000,
		Tdev1sNs:  40_000,
		MaxTeNs:   300_000,
	}
}

// Monitor holds a circular TE buffer, the latest computed snapshot, and
// the optional background compute goroutine.
type Monitor struct {
	mu           sync.Mutex
	samples      []Sample
	head         int
	count        int
	sampleRateHz float64

	latest           Snapshot
	lastComputeTimeNs int64
	computeCount     uint64

	thresholds ThresholdConfig

	stop chan struct{}
	done chan struct{}
	now  func() int64
}

// New creates a Monitor expecting samples at sampleRateHz, with default
// (disabled) thresholds.
func New(sampleRateHz float64) *Monitor {
	return &Monitor{
		samples:      make([]Sample, BufferSize),
		sampleRateHz: sampleRateHz,
		thresholds:   DefaultThresholds(),
		now:          func() int64 { return time.Now().UnixNano() },
	}
}

// AddSample appends a TE observation to the circular buffer (matches the
// MonitorSink contract consumed by the clock's PollWorker).
func (m *Monitor) AddSample(timestampNs int64, teNs int64) {
	m.mu.Lock()
	m.samples[m.head] = Sample{TimestampNs: timestampNs, TeNs: teNs}
	m.head = (m.head + 1) % len(m.samples)
	if m.count < len(m.samples) {
		m.count++
	}
	m.mu.Unlock()
}

// SetThresholds installs a new threshold configuration.
func (m *Monitor) SetThresholds(cfg ThresholdConfig) {
	m.mu.Lock()
	m.thresholds = cfg
	m.mu.Unlock()
}

// recentSamplesLocked copies up to max samples in reverse chronological order
// (newest first). Caller must hold mu.
func (m *Monitor) recentSamplesLocked(max int) []Sample {
	n := m.count
	if max < n {
		n = max
	}
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		idx := (m.head + len(m.samples) - 1 - i) % len(m.samples)
		out[i] = m.samples[idx]
	}
	return out
}

// ComputeNow forces an immediate metrics computation, bypassing the
// cached-snapshot freshness check used by Metrics.
func (m *Monitor) ComputeNow() (Snapshot, bool) {
	m.mu.Lock()
	samples := m.recentSamplesLocked(len(m.samples))
	rateHz := m.sampleRateHz
	m.mu.Unlock()

	snap, ok := computeSnapshot(samples, rateHz, m.now())
	if !ok {
		return Snapshot{}, false
	}

	m.mu.Lock()
	m.latest = snap
	m.lastComputeTimeNs = snap.TimestampNs
	m.computeCount++
	cfg := m.thresholds
	m.mu.Unlock()

	checkThresholds(cfg, snap)
	return snap, true
}

// Metrics returns the latest snapshot if computed within the last
// second, otherwise forces a fresh computation.
func (m *Monitor) Metrics() (Snapshot, bool) {
	m.mu.Lock()
	last := m.lastComputeTimeNs
	latest := m.latest
	m.mu.Unlock()

	if last > 0 && m.now()-last < int64(time.Second) {
		return latest, true
	}
	return m.ComputeNow()
}

// Start launches the background compute goroutine, recomputing metrics
// every ComputeInterval until Stop is called.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done
	m.mu.Unlock()

	go m.computeLoop(stop, done)
}

func (m *Monitor) computeLoop(stop <-chan struct{}, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(ComputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.ComputeNow()
		}
	}
}

// Stop halts the background compute goroutine, if running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	done := m.done
	m.stop = nil
	m.done = nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func computeSnapshot(samples []Sample, sampleRateHz float64, nowNs int64) (Snapshot, bool) {
	count := len(samples)
	if count < minSamplesForMetrics {
		return Snapshot{}, false
	}

	var snap Snapshot
	snap.TimestampNs = nowNs
	snap.SampleCount = count
	snap.WindowDurationS = float64(samples[0].TimestampNs-samples[count-1].TimestampNs) / 1e9

	computeTeStatistics(samples, &snap)

	sampleDtS := 1.0 / sampleRateHz
	snap.Mtie1sNs = computeMtieTau(samples, sampleDtS, 1.0)
	snap.Mtie10sNs = computeMtieTau(samples, sampleDtS, 10.0)
	snap.Mtie30sNs = computeMtieTau(samples, sampleDtS, 30.0)
	snap.Mtie60sNs = computeMtieTau(samples, sampleDtS, 60.0)

	snap.Tdev01sNs = computeTdevTau(samples, sampleDtS, 0.1)
	snap.Tdev1sNs = computeTdevTau(samples, sampleDtS, 1.0)
	snap.Tdev10sNs = computeTdevTau(samples, sampleDtS, 10.0)

	return snap, true
}

func computeTeStatistics(samples []Sample, snap *Snapshot) {
	count := len(samples)
	sum, minVal, maxVal := 0.0, float64(samples[0].TeNs), float64(samples[0].TeNs)
	for _, s := range samples {
		te := float64(s.TeNs)
		sum += te
		if te < minVal {
			minVal = te
		}
		if te > maxVal {
			maxVal = te
		}
	}
	mean := sum / float64(count)

	varSum := 0.0
	for _, s := range samples {
		diff := float64(s.TeNs) - mean
		varSum += diff * diff
	}
	std := math.Sqrt(varSum / float64(count))

	sorted := make([]float64, count)
	for i, s := range samples {
		sorted[i] = float64(s.TeNs)
	}
	sort.Float64s(sorted)

	p95Idx := int(0.95 * float64(count))
	p99Idx := int(0.99 * float64(count))
	if p95Idx >= count {
		p95Idx = count - 1
	}
	if p99Idx >= count {
		p99Idx = count - 1
	}

	snap.MeanTeNs = mean
	snap.StdTeNs = std
	snap.MaxTeNs = maxVal
	snap.MinTeNs = minVal
	snap.P95TeNs = sorted[p95Idx]
	snap.P99TeNs = sorted[p99Idx]
}

func computeMtieTau(samples []Sample, sampleDtS, tauS float64) float64 {
	count := len(samples)
	tauSamples := int(tauS / sampleDtS)
	if tauSamples >= count || tauSamples == 0 {
		return 0
	}

	maxDiff := 0.0
	for i := 0; i <= count-tauSamples-1; i++ {
		diff := math.Abs(float64(samples[i+tauSamples].TeNs) - float64(samples[i].TeNs))
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	return maxDiff
}

func computeTdevTau(samples []Sample, sampleDtS, tauS float64) float64 {
	count := len(samples)
	tauSamples := int(tauS / sampleDtS)
	if tauSamples*3 >= count || tauSamples == 0 {
		return 0
	}

	sumSq := 0.0
	nEstimates := 0
	for i := 0; i <= count-2*tauSamples-1; i++ {
		te0 := float64(samples[i].TeNs)
		te1 := float64(samples[i+tauSamples].TeNs)
		te2 := float64(samples[i+2*tauSamples].TeNs)
		second := te2 - 2*te1 + te0
		sumSq += second * second
		nEstimates++
	}
	if nEstimates == 0 {
		return 0
	}
	return math.Sqrt(sumSq / (6.0 * float64(nEstimates)))
}

func checkThresholds(cfg ThresholdConfig, snap Snapshot) {
	if !cfg.Enabled || cfg.AlertCallback == nil {
		return
	}
	if snap.Mtie1sNs > cfg.Mtie1sNs {
		cfg.AlertCallback("MTIE(1s)", snap.Mtie1sNs, cfg.Mtie1sNs)
	}
	if snap.Mtie10sNs > cfg.Mtie10sNs {
		cfg.AlertCallback("MTIE(10s)", snap.Mtie10sNs, cfg.Mtie10sNs)
	}
	if snap.Tdev1sNs > cfg.Tdev1sNs {
		cfg.AlertCallback("TDEV(1s)", snap.Tdev1sNs, cfg.Tdev1sNs)
	}
	if math.Abs(snap.MaxTeNs) > cfg.MaxTeNs {
		cfg.AlertCallback("Max TE", snap.MaxTeNs, cfg.MaxTeNs)
	}
}
