// Package structuredlog implements the JSON-LD-shaped diagnostic stream
// (SwClock Interchange Format, schema-versioned) that accompanies the
// binary event log: one JSON object per line, each tagged with an
// "@type" naming the record kind, suitable for log-aggregation pipelines
// that the binary format isn't.
package structuredlog

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SIFVersion is the SwClock Interchange Format's schema version.
const SIFVersion = "1.0.0"

// Rotation configures size/age-based log rotation. No rotation library
// appears anywhere in the retrieved example pack, so this is a small
// hand-rolled implementation gated behind Enabled.
type Rotation struct {
	Enabled    bool
	MaxSizeMB  int64
	MaxAge     time.Duration
	MaxFiles   int
	Compress   bool
}

// Sink is a JSON-LD structured log writer backed by zerolog, with
// optional size/age rotation of the underlying file.
type Sink struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	written  int64
	openedAt time.Time
	rotation Rotation

	log   zerolog.Logger
	count uint64
}

// Open creates a Sink writing JSON-LD lines to path.
func Open(path string, rotation Rotation) (*Sink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("structuredlog: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("structuredlog: stat %s: %w", path, err)
	}

	s := &Sink{
		path:     path,
		file:     f,
		written:  info.Size(),
		openedAt: time.Now(),
		rotation: rotation,
	}
	s.log = zerolog.New(s.file)
	return s, nil
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *Sink) emit(typ string, build func(e *zerolog.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rotateIfNeededLocked()

	e := s.log.Log().
		Str("@context", "https://siwanetwork.example/sif/"+SIFVersion).
		Str("@type", typ).
		Str("sif_version", SIFVersion)
	build(e)

	before := s.written
	e.Msg("")
	if info, err := s.file.Stat(); err == nil {
		s.written = info.Size()
	} else {
		s.written = before
	}
	s.count++
}

func (s *Sink) rotateIfNeededLocked() {
	if !s.rotation.Enabled {
		return
	}
	sizeExceeded := s.rotation.MaxSizeMB > 0 && s.written >= s.rotation.MaxSizeMB*1024*1024
	ageExceeded := s.rotation.MaxAge > 0 && time.Since(s.openedAt) >= s.rotation.MaxAge
	if !sizeExceeded && !ageExceeded {
		return
	}
	s.rotateLocked()
}

func (s *Sink) rotateLocked() {
	s.file.Close()

	rotatedPath := fmt.Sprintf("%s.%d", s.path, time.Now().UnixNano())
	if err := os.Rename(s.path, rotatedPath); err == nil && s.rotation.Compress {
		compressFile(rotatedPath)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err == nil {
		s.file = f
		s.log = zerolog.New(s.file)
	}
	s.written = 0
	s.openedAt = time.Now()
}

func compressFile(path string) {
	src, err := os.Open(path)
	if err != nil {
		return
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer dst.Close()

	gw := gzip.NewWriter(dst)
	defer gw.Close()
	io.Copy(gw, src)
	os.Remove(path)
}

// Count returns the number of records written.
func (s *Sink) Count() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// EmitServoStateUpdate satisfies swclock.StructuredSink: one record per
// PollWorker iteration.
func (s *Sink) EmitServoStateUpdate(piFreqPpm, piIntErrorS float64, remainingPhaseNs int64, servoEnabled bool, monoNs int64) {
	s.emit("ServoStateUpdate", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Float64("pi_freq_ppm", piFreqPpm).
			Float64("pi_int_error_s", piIntErrorS).
			Int64("phase_error_ns", remainingPhaseNs).
			Bool("servo_enabled", servoEnabled)
	})
}

// EmitAdjustment records a phase step, frequency adjustment, or slew.
func (s *Sink) EmitAdjustment(monoNs int64, adjustmentType string, value float64, beforeOffsetNs, afterOffsetNs int64) {
	s.emit("TimeAdjustment", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Str("adjustment_type", adjustmentType).
			Float64("value", value).
			Int64("before_offset_ns", beforeOffsetNs).
			Int64("after_offset_ns", afterOffsetNs)
	})
}

// EmitPIUpdate records one PI controller step's full internal state.
func (s *Sink) EmitPIUpdate(monoNs int64, kp, ki, errorS, outputPpm, integralState float64) {
	s.emit("PIUpdate", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Float64("kp", kp).
			Float64("ki", ki).
			Float64("error_s", errorS).
			Float64("output_ppm", outputPpm).
			Float64("integral_state", integralState)
	})
}

// EmitThresholdAlert records a monitor threshold breach.
func (s *Sink) EmitThresholdAlert(monoNs int64, metricName string, valueNs, thresholdNs float64, severity, standard string) {
	s.emit("ThresholdAlert", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Str("metric_name", metricName).
			Float64("value_ns", valueNs).
			Float64("threshold_ns", thresholdNs).
			Str("severity", severity).
			Str("standard", standard)
	})
}

// EmitMetricsSnapshot records a full TE/MTIE/TDEV snapshot.
func (s *Sink) EmitMetricsSnapshot(monoNs int64, sampleCount uint32, windowDurationS, meanTeNs, stdTeNs, minTeNs, maxTeNs, p95TeNs, p99TeNs,
	mtie1s, mtie10s, mtie30s, mtie60s, tdev01s, tdev1s, tdev10s float64, ituG8260Pass bool) {
	s.emit("MetricsSnapshot", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Uint32("sample_count", sampleCount).
			Float64("window_duration_s", windowDurationS).
			Float64("mean_te_ns", meanTeNs).
			Float64("std_te_ns", stdTeNs).
			Float64("min_te_ns", minTeNs).
			Float64("max_te_ns", maxTeNs).
			Float64("p95_te_ns", p95TeNs).
			Float64("p99_te_ns", p99TeNs).
			Float64("mtie_1s_ns", mtie1s).
			Float64("mtie_10s_ns", mtie10s).
			Float64("mtie_30s_ns", mtie30s).
			Float64("mtie_60s_ns", mtie60s).
			Float64("tdev_0_1s_ns", tdev01s).
			Float64("tdev_1s_ns", tdev1s).
			Float64("tdev_10s_ns", tdev10s).
			Bool("itu_g8260_pass", ituG8260Pass)
	})
}

// EmitSystemEvent records a freeform system event.
func (s *Sink) EmitSystemEvent(monoNs int64, eventType, detailsJSON string) {
	if detailsJSON == "" {
		detailsJSON = "{}"
	}
	s.emit("SystemEvent", func(e *zerolog.Event) {
		e.Int64("timestamp_mono_ns", monoNs).
			Str("event_type", eventType).
			RawJSON("details", []byte(detailsJSON))
	})
}
