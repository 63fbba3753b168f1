// Package eventlog implements the binary event log of the swclock audit
// trail: a lock-free SPSC ring buffer decouples the servo's hot path from
// disk I/O, and a drain goroutine serializes ring-buffer records into the
// on-disk format.
package eventlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/siwanetwork/swclock/internal/ringbuf"
)

// version is embedded in the file header's version string field.
const version = "swclock-1.0"

// Logger is an EventSink backed by a ring buffer and a drain goroutine
// that writes records to an io.Writer (typically a file). Producer calls
// (the Log* methods) never block on I/O.
type Logger struct {
	rb  *ringbuf.RingBuffer
	out io.Writer
	log zerolog.Logger

	seq atomic.Uint64
	now func() int64

	overrunLimiter *rate.Limiter

	stop atomic.Bool
	done chan struct{}

	writeMu sync.Mutex
}

// Option configures a Logger at creation.
type Option func(*Logger)

// WithRingBufferSize overrides the ring buffer capacity (default
// ringbuf.DefaultSize).
func WithRingBufferSize(size int) Option {
	return func(l *Logger) { l.rb = ringbuf.New(size) }
}

// WithClock overrides the monotonic-ns timestamp source used for record
// timestamps; tests supply a deterministic one.
func WithClock(now func() int64) Option {
	return func(l *Logger) { l.now = now }
}

// WithLogger attaches a structured logger for drain-side diagnostics
// (overrun warnings, I/O errors).
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Logger) { l.log = logger }
}

// Open creates a Logger writing into out, emits the file header
// immediately, and starts the background drain loop.
func Open(out io.Writer, opts ...Option) (*Logger, error) {
	l := &Logger{
		rb:             ringbuf.New(ringbuf.DefaultSize),
		out:            out,
		log:            zerolog.Nop(),
		now:            func() int64 { return time.Now().UnixNano() },
		overrunLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	hdr := fileHeader{StartTimeNs: l.now(), VersionString: version}
	if _, err := l.out.Write(hdr.marshal()); err != nil {
		return nil, fmt.Errorf("eventlog: write file header: %w", err)
	}

	go l.drainLoop()
	return l, nil
}

// OpenFile is a convenience wrapper creating and opening a Logger against
// a path on disk.
func OpenFile(path string, opts ...Option) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	l, err := Open(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Close stops the drain loop after flushing any buffered records and
// closes the underlying writer if it implements io.Closer.
func (l *Logger) Close() error {
	l.push(EventLogStop, nil)
	l.stop.Store(true)
	<-l.done

	if c, ok := l.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Logger) drainLoop() {
	defer close(l.done)
	buf := make([]byte, 4096)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		drained := l.drainOnce(buf)
		if l.stop.Load() && !drained {
			return
		}
		if !drained {
			<-ticker.C
		}
	}
}

// drainOnce pops and writes every currently available record, returning
// whether at least one record was drained.
func (l *Logger) drainOnce(buf []byte) bool {
	any := false
	for {
		n, ok := l.rb.Pop(buf)
		if !ok {
			return any
		}
		any = true
		l.writeMu.Lock()
		if _, err := l.out.Write(buf[:n]); err != nil {
			l.log.Error().Err(err).Msg("eventlog: write record failed")
		}
		l.writeMu.Unlock()
	}
}

func (l *Logger) push(t EventType, payload []byte) {
	hdr := recordHeader{
		SequenceNum: l.seq.Add(1) - 1,
		TimestampNs: uint64(l.now()),
		EventType:   t,
		PayloadSize: uint16(len(payload)),
	}
	record := append(hdr.marshal(), payload...)
	if !l.rb.Push(record) {
		if l.overrunLimiter.Allow() {
			_, _, overruns := l.rb.Stats()
			l.log.Warn().Uint64("overrun_count", overruns).Msg("eventlog: ring buffer overrun, event dropped")
		}
	}
}

func (l *Logger) LogAdjtimeCall(modes uint32, offsetNs, freqScaledPpm int64) {
	l.push(EventAdjtimeCall, adjtimePayload(modes, offsetNs, freqScaledPpm, 0))
}

func (l *Logger) LogAdjtimeReturn(modes uint32, offsetNs, freqScaledPpm int64, returnCode int32) {
	l.push(EventAdjtimeReturn, adjtimePayload(modes, offsetNs, freqScaledPpm, returnCode))
}

func (l *Logger) LogPIEnable()  { l.push(EventPIEnable, nil) }
func (l *Logger) LogPIDisable() { l.push(EventPIDisable, nil) }

func (l *Logger) LogPIStep(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool) {
	l.push(EventPIStep, piStepPayload(piFreqPpm, piIntErrorS, remainingPhaseNs, servoEnabled))
}

func (l *Logger) LogPhaseSlewStart(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32) {
	l.push(EventPhaseSlewStart, phaseSlewPayload(targetPhaseNs, currentPhaseNs, slewRateNsPerS, durationMs))
}

func (l *Logger) LogPhaseSlewDone(targetPhaseNs, currentPhaseNs int64, slewRateNsPerS float64, durationMs uint32) {
	l.push(EventPhaseSlewDone, phaseSlewPayload(targetPhaseNs, currentPhaseNs, slewRateNsPerS, durationMs))
}

func (l *Logger) LogFrequencyClamp(requestedPpm, clampedPpm, maxPpm float64) {
	l.push(EventFrequencyClamp, frequencyClampPayload(requestedPpm, clampedPpm, maxPpm))
}

func (l *Logger) LogThresholdCross(phaseErrorNs, thresholdNs int64, crossingType uint32) {
	l.push(EventThresholdCross, thresholdPayload(phaseErrorNs, thresholdNs, crossingType))
}

func (l *Logger) LogClockReset() { l.push(EventClockReset, nil) }

// LogMarker emits a user-defined marker record, truncating description to
// 60 bytes as the wire format requires.
func (l *Logger) LogMarker(markerID uint32, description string) {
	if len(description) > 60 {
		description = description[:60]
	}
	l.push(EventLogMarker, markerPayload(markerID, description))
}
