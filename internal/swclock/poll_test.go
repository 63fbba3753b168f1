package swclock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyEventSink struct {
	mu             sync.Mutex
	piSteps        int
	thresholdCross int
	resets         int
}

func (s *spyEventSink) LogAdjtimeCall(modes uint32, offsetNs, freqScaledPpm int64)                    {}
func (s *spyEventSink) LogAdjtimeReturn(modes uint32, offsetNs, freqScaledPpm int64, returnCode int32) {}
func (s *spyEventSink) LogPIEnable()  {}
func (s *spyEventSink) LogPIDisable() {}
func (s *spyEventSink) LogPIStep(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool) {
	s.mu.Lock()
	s.piSteps++
	s.mu.Unlock()
}
func (s *spyEventSink) LogPhaseSlewStart(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32) {
}
func (s *spyEventSink) LogPhaseSlewDone(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32) {
}
func (s *spyEventSink) LogFrequencyClamp(requestedPpm, clampedPpm, maxPpm float64) {}
func (s *spyEventSink) LogThresholdCross(phaseErrorNs, thresholdNs int64, crossingType uint32) {
	s.mu.Lock()
	s.thresholdCross++
	s.mu.Unlock()
}
func (s *spyEventSink) LogClockReset() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func (s *spyEventSink) steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.piSteps
}

type spyMonitor struct {
	mu      sync.Mutex
	samples int
}

func (m *spyMonitor) AddSample(timestampNs, teNs int64) {
	m.mu.Lock()
	m.samples++
	m.mu.Unlock()
}

func (m *spyMonitor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.samples
}

func TestPollWorker_DrivesEventAndMonitorSinks(t *testing.T) {
	mono := newFakeMono(0)
	events := &spyEventSink{}
	mon := &spyMonitor{}

	c, err := New(WithRawMono(mono), WithPollPeriod(5*time.Millisecond), WithEventSink(events), WithMonitorSink(mon))
	require.NoError(t, err)
	defer c.Close()

	require.Eventually(t, func() bool {
		mono.advance(5 * time.Millisecond)
		return events.steps() > 3 && mon.count() > 3
	}, time.Second, 2*time.Millisecond)
}

func TestWatchdog_FiresAfterStuckPolls(t *testing.T) {
	mono := newFakeMono(0)
	events := &spyEventSink{}
	c := newTestClock(t, mono)
	c.events = events

	// A frequency bias with no slew leaves remaining_phase_ns pinned at 0;
	// stuck detection requires a nonzero, unmoving remainder, so inject one
	// directly to exercise the watchdog deterministically.
	c.mu.Lock()
	c.remainingPhaseNs = 5000
	c.piServoEnabled = false
	c.mu.Unlock()

	for i := 0; i <= watchdogPollLimit+1; i++ {
		mono.advance(10 * time.Millisecond)
		c.Poll()
	}

	assert.True(t, c.stuck())
}
