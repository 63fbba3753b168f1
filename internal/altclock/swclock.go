// Package altclock implements the lighter scale+slew realization of the
// disciplined-clock contract (§4.5): a free-running clock whose output rate
// is controlled by a base frequency scale plus a bounded, time-limited
// slew window. It is the device-under-test form preferred by the
// estimator family, which needs a clean, controllable model of clock
// drift rather than a PI-controlled one.
package altclock

import (
	"sync"

	"github.com/siwanetwork/swclock/internal/rawmono"
)

// SwClock maps RawMono to an output timeline via base_scale and slew_scale.
type SwClock struct {
	mono rawmono.Source

	mu sync.Mutex

	refRawNs int64
	baseOutNs int64

	baseScale float64
	slewScale float64

	slewRemainingNs int64
	slewWindowNs    int64
	slewWindowLeftNs int64

	lastReturnedNs int64
	backstepGuardNs int64
}

// New creates a SwClock with base_scale = 1, no slew in flight, aligned to
// the current RawMono reading.
func New(opts ...Option) *SwClock {
	s := &SwClock{mono: rawmono.Default(), baseScale: 1.0}
	for _, opt := range opts {
		opt(s)
	}
	s.refRawNs = s.mono.NowNs()
	return s
}

// Option configures a SwClock at creation.
type Option func(*SwClock)

// WithRawMono overrides the RawMono source.
func WithRawMono(src rawmono.Source) Option {
	return func(s *SwClock) { s.mono = src }
}

// rebaseLocked folds elapsed RawMono time into base_out_ns at the current
// rate (base_scale + slew_scale while a window is open), advances the slew
// window, and updates slew_scale accordingly. Caller must hold mu.
func (s *SwClock) rebaseLocked() {
	rawNow := s.mono.NowNs()
	deltaRaw := rawNow - s.refRawNs
	if deltaRaw < 0 {
		deltaRaw = 0
	}

	if s.slewWindowLeftNs > 0 {
		consumed := deltaRaw
		if consumed > s.slewWindowLeftNs {
			consumed = s.slewWindowLeftNs
		}
		rest := deltaRaw - consumed

		rate := s.baseScale + s.slewScale
		s.baseOutNs += roundInt64(float64(consumed)*rate + float64(rest)*s.baseScale)
		s.slewRemainingNs -= roundInt64(float64(consumed) * s.slewScale)

		s.slewWindowLeftNs -= consumed
		if s.slewWindowLeftNs <= 0 {
			// Window closed: fold any residual correction into the base
			// and return scales to {base, 0}.
			s.baseOutNs += s.slewRemainingNs
			s.slewWindowLeftNs = 0
			s.slewRemainingNs = 0
			s.slewScale = 0
		} else {
			s.slewScale = s.computeSlewScale()
		}
	} else {
		s.baseOutNs += roundInt64(float64(deltaRaw) * s.baseScale)
	}

	s.refRawNs = rawNow
}

// computeSlewScale derives slew_scale = remaining / window_left as a
// fractional rate (ns correction per ns of RawMono), matching §4.5's
// invariant.
func (s *SwClock) computeSlewScale() float64 {
	if s.slewWindowLeftNs <= 0 {
		return 0
	}
	return float64(s.slewRemainingNs) / float64(s.slewWindowLeftNs)
}

// NowNs returns the current output time. It is monotone non-decreasing: a
// backstep guard clamps any computed value to the last returned value.
func (s *SwClock) NowNs() int64 {
	s.mu.Lock()
	s.rebaseLocked()
	out := s.baseOutNs
	if out < s.lastReturnedNs {
		out = s.lastReturnedNs
	}
	s.lastReturnedNs = out
	s.mu.Unlock()
	return out
}

// SetFreq rebases at the current time, then sets base_scale = 1 + ppb*1e-9.
func (s *SwClock) SetFreq(ppb float64) {
	s.mu.Lock()
	s.rebaseLocked()
	s.baseScale = 1.0 + ppb*1e-9
	s.mu.Unlock()
}

// Adjust rebases, then installs a signed offset to be delivered evenly over
// windowNs of elapsed RawMono time. A new call replaces any slew in flight.
func (s *SwClock) Adjust(offsetNs, windowNs int64) {
	s.mu.Lock()
	s.rebaseLocked()
	if windowNs <= 0 {
		s.baseOutNs += offsetNs
	} else {
		s.slewRemainingNs = offsetNs
		s.slewWindowNs = windowNs
		s.slewWindowLeftNs = windowNs
		s.slewScale = s.computeSlewScale()
	}
	s.mu.Unlock()
}

// SetBackstepGuard is retained for interface symmetry with the source
// system; this realization enforces the guard unconditionally via
// lastReturnedNs, so the argument only records the caller's intent.
func (s *SwClock) SetBackstepGuard(ns int64) {
	s.mu.Lock()
	s.backstepGuardNs = ns
	s.mu.Unlock()
}

// AlignNow aligns the clock so NowNs() equals targetNs at the instant of
// the call, clearing any in-flight slew.
func (s *SwClock) AlignNow(targetNs int64) {
	s.mu.Lock()
	s.rebaseLocked()
	s.baseOutNs = targetNs
	s.slewRemainingNs = 0
	s.slewWindowLeftNs = 0
	s.slewScale = 0
	if targetNs > s.lastReturnedNs {
		s.lastReturnedNs = targetNs
	}
	s.mu.Unlock()
}

func roundInt64(f float64) int64 {
	if f >= 0 {
		return int64(f + 0.5)
	}
	return int64(f - 0.5)
}
