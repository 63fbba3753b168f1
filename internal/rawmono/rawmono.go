// Package rawmono provides the undisciplined, strictly increasing
// nanosecond hardware time source (RawMono) that SwClockCore and SwClock
// rebase against.
package rawmono

// Source is an undisciplined, strictly increasing nanosecond clock.
type Source interface {
	// NowNs returns the current raw monotonic reading in nanoseconds.
	// It must never decrease between calls on the same process.
	NowNs() int64
}

// Default returns the platform's preferred Source.
func Default() Source {
	return defaultSource()
}
