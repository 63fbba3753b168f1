// Package swclock implements the PI-disciplined software clock core
// (SwClockCore, §4.1), its PI servo (PIController, §4.2), its periodic
// driver (PollWorker, §4.3), and the Linux-adjtimex-shaped entry point
// (AdjustInterface, §4.4).
package swclock

import (
	"fmt"
	"sync"
	"time"

	"github.com/siwanetwork/swclock/internal/rawmono"
)

// Default tunables, §6's configuration-keys table.
const (
	DefaultPollPeriod  = 10 * time.Millisecond
	DefaultKp          = 200.0 // ppm/s
	DefaultKi          = 8.0   // ppm/s^2
	DefaultMaxPpm       = 200.0
	DefaultMinSlewPpm   = 100.0
	DefaultPhaseEpsNs   = int64(20_000)
	watchdogPollLimit   = 20
)

// Clock is the public handle for a disciplined clock instance (SwClockCore).
// It owns an optional PollWorker, which Close stops, and holds optional
// EventSink, MonitorSink, and StructuredSink handles that the caller
// creates and closes.
type Clock struct {
	mono rawmono.Source

	mu sync.RWMutex

	// Rebased base pair, §3 "Clock state".
	refRawNs         int64
	baseRtNs         int64
	baseMonoNs       int64
	freqScaledPpm    int64 // ppm * 2^16
	piFreqPpm        float64
	piIntErrorS      float64
	remainingPhaseNs int64
	piServoEnabled   bool
	cachedFactor     float64

	// Watchdog.
	lastRemainingPhaseNs int64
	stuckPollCount       int
	lastPollTime         time.Time

	// slewCompletedThisPoll is set by updatePILocked when anti-windup
	// zeroing fires on a poll that started with a nonzero remaining phase,
	// so the PollWorker can emit PhaseSlewDone outside the write lock.
	slewCompletedThisPoll bool

	// Error tracking.
	maxObservedPhaseErrorS   float64
	accumulatedErrorVariance float64
	errorSamplesCount        uint64

	// Informational readback fields.
	status       int32
	maxErrorUs   int64
	estErrorUs   int64
	constant     int64
	tick         int64
	tai          int32

	// PI tunables, overridable via Options.
	kp                float64
	ki                float64
	maxPpm            float64
	minSlewPpm        float64
	phaseEpsNs        int64
	pollPeriod        time.Duration
	precisionConstant int64

	// Optional subsystem handles, attached at creation or later.
	events     EventSink
	monitor    MonitorSink
	structured StructuredSink

	worker *pollWorker
}

// Option configures a Clock at creation time.
type Option func(*Clock)

// WithRawMono overrides the RawMono source (default: the platform reader).
func WithRawMono(src rawmono.Source) Option {
	return func(c *Clock) { c.mono = src }
}

// WithPIGains overrides Kp/Ki (defaults DefaultKp/DefaultKi).
func WithPIGains(kp, ki float64) Option {
	return func(c *Clock) { c.kp, c.ki = kp, ki }
}

// WithPollPeriod overrides the PollWorker period (default DefaultPollPeriod).
// A zero period disables the PollWorker; callers must invoke Poll manually.
func WithPollPeriod(d time.Duration) Option {
	return func(c *Clock) { c.pollPeriod = d }
}

// WithEventSink attaches an EventSink at creation.
func WithEventSink(s EventSink) Option {
	return func(c *Clock) { c.events = s }
}

// WithMonitorSink attaches a MonitorSink at creation.
func WithMonitorSink(s MonitorSink) Option {
	return func(c *Clock) { c.monitor = s }
}

// WithStructuredSink attaches a StructuredSink at creation.
func WithStructuredSink(s StructuredSink) Option {
	return func(c *Clock) { c.structured = s }
}

// New creates a Clock in the initial state required by §3's Lifecycles
// clause: bases aligned to the current wall/monotonic readings, PI enabled,
// no slew pending. Its PollWorker starts immediately unless a zero period
// was requested via WithPollPeriod.
func New(opts ...Option) (*Clock, error) {
	c := &Clock{
		mono:        rawmono.Default(),
		kp:          DefaultKp,
		ki:          DefaultKi,
		maxPpm:      DefaultMaxPpm,
		minSlewPpm:  DefaultMinSlewPpm,
		phaseEpsNs:  DefaultPhaseEpsNs,
		piServoEnabled: true,
		constant:    0,
		tick:        0,
		precisionConstant: 1,
	}
	c.pollPeriod = DefaultPollPeriod

	for _, opt := range opts {
		opt(c)
	}

	now := time.Now()
	rawNow := c.mono.NowNs()
	c.refRawNs = rawNow
	c.baseRtNs = now.UnixNano()
	c.baseMonoNs = rawNow
	c.cachedFactor = 1.0
	c.lastPollTime = now

	if c.pollPeriod > 0 {
		c.worker = newPollWorker(c, c.pollPeriod)
		c.worker.start()
	}

	return c, nil
}

// Close stops the PollWorker (joined synchronously) and releases the
// instance. Per §3/§5, teardown order is: poll worker, then any attached
// event logger/monitor/structured logger (owned externally by the caller in
// this module's decomposition — see DESIGN.md), then storage.
func (c *Clock) Close() error {
	if c.worker != nil {
		c.worker.stop()
	}
	return nil
}

// GetTime returns the disciplined reading for which, or the RawMono
// passthrough for Raw. It is the lock-free read path of §4.1: a read lock
// snapshot of (base, ref, cached factor), released before the RawMono read.
func (c *Clock) GetTime(which Which) (int64, error) {
	if which == Raw {
		return c.mono.NowNs(), nil
	}
	if which != Realtime && which != Monotonic {
		return 0, fmt.Errorf("gettime which=%d: %w", which, ErrInvalidClock)
	}

	c.mu.RLock()
	refRaw := c.refRawNs
	factor := c.cachedFactor
	var base int64
	if which == Realtime {
		base = c.baseRtNs
	} else {
		base = c.baseMonoNs
	}
	c.mu.RUnlock()

	rawNow := c.mono.NowNs()
	deltaRaw := rawNow - refRaw
	if deltaRaw < 0 {
		deltaRaw = 0
	}
	return base + roundInt64(float64(deltaRaw)*factor), nil
}

// SetTime accepts Realtime only; it rebases, replaces base_rt_ns, and
// clears any pending correction (remaining phase + PI state), per §4.1.
func (c *Clock) SetTime(which Which, ns int64) error {
	if which != Realtime {
		return fmt.Errorf("settime which=%d: %w", which, ErrInvalidClock)
	}
	c.mu.Lock()
	c.rebaseLocked()
	c.baseRtNs = ns
	c.remainingPhaseNs = 0
	c.piIntErrorS = 0
	c.piFreqPpm = 0
	c.mu.Unlock()

	if c.events != nil {
		c.events.LogClockReset()
	}
	return nil
}

// EnablePI toggles the PI servo. Re-enabling zeroes the integrator and
// output so no stale correction resumes.
func (c *Clock) EnablePI(enabled bool) {
	c.mu.Lock()
	was := c.piServoEnabled
	c.piServoEnabled = enabled
	if enabled && !was {
		c.piIntErrorS = 0
		c.piFreqPpm = 0
	}
	c.mu.Unlock()

	if c.events == nil {
		return
	}
	if enabled {
		c.events.LogPIEnable()
	} else {
		c.events.LogPIDisable()
	}
}

// Poll exposes a manual invocation of the rebase+PI step normally driven by
// the PollWorker (§4.1's poll operation).
func (c *Clock) Poll() {
	c.pollOnce()
}

// rebaseLocked implements §4.1's rebase algorithm. Caller must hold the
// write lock.
func (c *Clock) rebaseLocked() {
	rawNow := c.mono.NowNs()
	deltaRaw := rawNow - c.refRawNs
	if deltaRaw < 0 {
		deltaRaw = 0
	}

	baseFactor := 1.0 + (float64(c.freqScaledPpm)/65536.0)*1e-6
	totalFactor := baseFactor + c.piFreqPpm*1e-6

	advance := roundInt64(float64(deltaRaw) * totalFactor)
	c.baseRtNs += advance
	c.baseMonoNs += advance

	// Portion of the advance attributable to PI alone; magnitude-monotone
	// reduction of remaining_phase_ns per §9's open-question resolution:
	// the decrement never exceeds the current magnitude, regardless of any
	// sign mismatch between pi_freq_ppm and remaining_phase_ns.
	appliedAbs := float64(deltaRaw) * c.piFreqPpm * 1e-6
	if appliedAbs < 0 {
		appliedAbs = -appliedAbs
	}
	applied := roundInt64(appliedAbs)
	if c.remainingPhaseNs > 0 {
		c.remainingPhaseNs -= applied
		if c.remainingPhaseNs < 0 {
			c.remainingPhaseNs = 0
		}
	} else if c.remainingPhaseNs < 0 {
		c.remainingPhaseNs += applied
		if c.remainingPhaseNs > 0 {
			c.remainingPhaseNs = 0
		}
	}

	c.refRawNs = rawNow
	c.cachedFactor = totalFactor
}

func roundInt64(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return int64(f - 0.5)
}
