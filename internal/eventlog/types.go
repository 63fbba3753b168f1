package eventlog

import (
	"encoding/binary"
	"math"
)

// EventType identifies the kind of record stored in the event log, chosen
// to be self-documenting in a hex dump.
type EventType uint16

const (
	EventAdjtimeCall     EventType = 0x01
	EventAdjtimeReturn   EventType = 0x02
	EventPIEnable        EventType = 0x10
	EventPIDisable       EventType = 0x11
	EventPIStep          EventType = 0x12
	EventPhaseSlewStart  EventType = 0x20
	EventPhaseSlewDone   EventType = 0x21
	EventFrequencyClamp  EventType = 0x30
	EventThresholdCross  EventType = 0x40
	EventClockReset      EventType = 0x50
	EventLogStart        EventType = 0xF0
	EventLogStop         EventType = 0xF1
	EventLogMarker       EventType = 0xFF
)

// Name returns the human-readable name of an event type; it never returns
// empty.
func (t EventType) Name() string {
	switch t {
	case EventAdjtimeCall:
		return "ADJTIME_CALL"
	case EventAdjtimeReturn:
		return "ADJTIME_RETURN"
	case EventPIEnable:
		return "PI_ENABLE"
	case EventPIDisable:
		return "PI_DISABLE"
	case EventPIStep:
		return "PI_STEP"
	case EventPhaseSlewStart:
		return "PHASE_SLEW_START"
	case EventPhaseSlewDone:
		return "PHASE_SLEW_DONE"
	case EventFrequencyClamp:
		return "FREQUENCY_CLAMP"
	case EventThresholdCross:
		return "THRESHOLD_CROSS"
	case EventClockReset:
		return "CLOCK_RESET"
	case EventLogStart:
		return "LOG_START"
	case EventLogStop:
		return "LOG_STOP"
	case EventLogMarker:
		return "LOG_MARKER"
	default:
		return "UNKNOWN"
	}
}

// recordHeaderSize is the fixed 24-byte record header: sequence_num(8) +
// timestamp_ns(8) + event_type(2) + payload_size(2) + reserved(4).
const recordHeaderSize = 24

type recordHeader struct {
	SequenceNum uint64
	TimestampNs uint64
	EventType   EventType
	PayloadSize uint16
	Reserved    uint32
}

func (h recordHeader) marshal() []byte {
	b := make([]byte, recordHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.SequenceNum)
	binary.LittleEndian.PutUint64(b[8:16], h.TimestampNs)
	binary.LittleEndian.PutUint16(b[16:18], uint16(h.EventType))
	binary.LittleEndian.PutUint16(b[18:20], h.PayloadSize)
	binary.LittleEndian.PutUint32(b[20:24], h.Reserved)
	return b
}

func unmarshalRecordHeader(b []byte) recordHeader {
	return recordHeader{
		SequenceNum: binary.LittleEndian.Uint64(b[0:8]),
		TimestampNs: binary.LittleEndian.Uint64(b[8:16]),
		EventType:   EventType(binary.LittleEndian.Uint16(b[16:18])),
		PayloadSize: binary.LittleEndian.Uint16(b[18:20]),
		Reserved:    binary.LittleEndian.Uint32(b[20:24]),
	}
}

// logMagic identifies the binary format ("SWEV" in ASCII).
const logMagic uint32 = 0x53574556

const (
	versionMajor uint16 = 1
	versionMinor uint16 = 0
)

// fileHeaderSize is the fixed 64-byte file header: magic(4) + major(2) +
// minor(2) + start_time_ns(8) + version string(16) + reserved(32).
const fileHeaderSize = 4 + 2 + 2 + 8 + 16 + 32

type fileHeader struct {
	StartTimeNs   int64
	VersionString string
}

func (h fileHeader) marshal() []byte {
	b := make([]byte, fileHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], logMagic)
	binary.LittleEndian.PutUint16(b[4:6], versionMajor)
	binary.LittleEndian.PutUint16(b[6:8], versionMinor)
	binary.LittleEndian.PutUint64(b[8:16], uint64(h.StartTimeNs))
	copy(b[16:32], h.VersionString)
	return b
}

func adjtimePayload(modes uint32, offsetNs, freqScaledPpm int64, returnCode int32) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint32(b[0:4], modes)
	binary.LittleEndian.PutUint64(b[4:12], uint64(offsetNs))
	binary.LittleEndian.PutUint64(b[12:20], uint64(freqScaledPpm))
	binary.LittleEndian.PutUint32(b[20:24], uint32(returnCode))
	return b
}

func piStepPayload(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(piFreqPpm))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(piIntErrorS))
	binary.LittleEndian.PutUint64(b[16:24], uint64(remainingPhaseNs))
	var enabled uint32
	if servoEnabled {
		enabled = 1
	}
	binary.LittleEndian.PutUint32(b[24:28], enabled)
	return b
}

func phaseSlewPayload(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b[0:8], uint64(targetPhaseNs))
	binary.LittleEndian.PutUint64(b[8:16], uint64(currentPhaseNs))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(slewRateNsPerS))
	binary.LittleEndian.PutUint32(b[24:28], durationMs)
	return b
}

func frequencyClampPayload(requestedPpm, clampedPpm, maxPpm float64) []byte {
	b := make([]byte, 28)
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(requestedPpm))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(clampedPpm))
	binary.LittleEndian.PutUint64(b[16:24], math.Float64bits(maxPpm))
	return b
}

func thresholdPayload(phaseErrorNs, thresholdNs int64, crossingType uint32) []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint64(b[0:8], uint64(phaseErrorNs))
	binary.LittleEndian.PutUint64(b[8:16], uint64(thresholdNs))
	binary.LittleEndian.PutUint32(b[16:20], crossingType)
	return b
}

func markerPayload(markerID uint32, description string) []byte {
	b := make([]byte, 64)
	binary.LittleEndian.PutUint32(b[0:4], markerID)
	copy(b[4:64], description)
	return b
}
