package eventlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_WritesFileHeader(t *testing.T) {
	var buf bytes.Buffer
	l, err := Open(&buf, WithClock(func() int64 { return 42 }))
	require.NoError(t, err)
	defer l.Close()

	require.GreaterOrEqual(t, buf.Len(), fileHeaderSize)
	magic := buf.Bytes()[0:4]
	assert.Equal(t, byte(0x56), magic[0]) // little-endian low byte of "SWEV"
}

func TestLogger_RecordsDrainToWriter(t *testing.T) {
	var buf bytes.Buffer
	l, err := Open(&buf, WithClock(func() int64 { return 1000 }))
	require.NoError(t, err)

	l.LogPIEnable()
	l.LogFrequencyClamp(250, 200, 200)
	l.LogClockReset()

	require.Eventually(t, func() bool {
		written, read, _ := l.rb.Stats()
		return written == read && written >= 3
	}, time.Second, time.Millisecond)

	require.NoError(t, l.Close())
	assert.Greater(t, buf.Len(), fileHeaderSize)
}

func TestLogger_SequenceNumbersIncrease(t *testing.T) {
	var buf bytes.Buffer
	l, err := Open(&buf, WithClock(func() int64 { return 0 }))
	require.NoError(t, err)
	defer l.Close()

	l.LogPIEnable()
	l.LogPIDisable()

	assert.Equal(t, uint64(2), l.seq.Load())
}

func TestEventType_Name(t *testing.T) {
	assert.Equal(t, "PI_STEP", EventPIStep.Name())
	assert.Equal(t, "UNKNOWN", EventType(0x99).Name())
}

func TestLogMarker_TruncatesLongDescription(t *testing.T) {
	var buf bytes.Buffer
	l, err := Open(&buf, WithClock(func() int64 { return 0 }))
	require.NoError(t, err)
	defer l.Close()

	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	assert.NotPanics(t, func() { l.LogMarker(1, string(long)) })
}
