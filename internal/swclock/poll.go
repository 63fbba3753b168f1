package swclock

import (
	"sync/atomic"
	"time"
)

// pollWorker is the dedicated cooperative task of §4.3: a fixed-period
// (default 10 ms) loop that rebases the clock, steps the PI controller,
// and feeds the event/monitor/structured-log sinks. Cancellation is
// cooperative via an atomic stop flag; Close joins the worker before
// continuing teardown.
type pollWorker struct {
	clock    *Clock
	period   time.Duration
	stopFlag atomic.Bool
	done     chan struct{}
}

func newPollWorker(c *Clock, period time.Duration) *pollWorker {
	return &pollWorker{clock: c, period: period, done: make(chan struct{})}
}

func (w *pollWorker) start() {
	go w.run()
}

func (w *pollWorker) stop0() { w.stopFlag.Store(true) }

func (w *pollWorker) stop() {
	w.stop0()
	<-w.done
}

func (w *pollWorker) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	for {
		<-ticker.C
		if w.stopFlag.Load() {
			return
		}
		w.clock.pollOnce()
	}
}

// pollOnce performs one PollWorker iteration (§4.3's numbered loop, steps
// 3-4): writer section under the exclusive lock, then a reader-section
// snapshot pushed to the monitor/structured-log sinks outside the lock.
func (c *Clock) pollOnce() {
	now := time.Now()

	c.mu.Lock()
	dtS := now.Sub(c.lastPollTime).Seconds()
	if dtS <= 0 {
		dtS = c.pollPeriod.Seconds()
	}
	c.lastPollTime = now

	c.rebaseLocked()
	if c.piServoEnabled {
		c.updatePILocked(dtS)
	}
	c.watchdogLocked()

	piFreqPpm := c.piFreqPpm
	piIntErrorS := c.piIntErrorS
	remainingPhaseNs := c.remainingPhaseNs
	servoEnabled := c.piServoEnabled
	disciplinedRt := c.baseRtNs
	stuck := c.stuck()
	slewDone := c.slewCompletedThisPoll
	c.mu.Unlock()

	if c.events != nil {
		c.events.LogPIStep(piFreqPpm, piIntErrorS, remainingPhaseNs, servoEnabled)
		if slewDone {
			c.events.LogPhaseSlewDone(0, remainingPhaseNs, piFreqPpm, 0)
		}
		if stuck {
			c.events.LogThresholdCross(remainingPhaseNs, c.phaseEpsNs, 1)
		}
	}
	if c.structured != nil {
		c.structured.EmitServoStateUpdate(piFreqPpm, piIntErrorS, remainingPhaseNs, servoEnabled, c.mono.NowNs())
	}
	if c.monitor != nil {
		teNs := now.UnixNano() - disciplinedRt
		c.monitor.AddSample(now.UnixNano(), teNs)
	}
}
