package swclock

// EventSink receives typed, low-overhead diagnostic events from the clock
// and its PollWorker. A concrete implementation (internal/eventlog) encodes
// these into the binary event-log wire format of §6; the core only depends
// on this interface so it never owns the log file or ring buffer directly.
type EventSink interface {
	LogAdjtimeCall(modes uint32, offsetNs, freqScaledPpm int64)
	LogAdjtimeReturn(modes uint32, offsetNs, freqScaledPpm int64, returnCode int32)
	LogPIEnable()
	LogPIDisable()
	LogPIStep(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool)
	LogPhaseSlewStart(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32)
	LogPhaseSlewDone(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32)
	LogFrequencyClamp(requestedPpm, clampedPpm, maxPpm float64)
	LogThresholdCross(phaseErrorNs, thresholdNs int64, crossingType uint32)
	LogClockReset()
}

// MonitorSink receives TE samples pushed by the PollWorker's reader section.
type MonitorSink interface {
	AddSample(timestampNs int64, teNs int64)
}

// StructuredSink receives the optional JSON-LD-shaped diagnostic stream of
// §6; the core emits into it but does not own its serialization or
// rotation policy.
type StructuredSink interface {
	EmitServoStateUpdate(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool, monoNs int64)
}
