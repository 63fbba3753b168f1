package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPop_RoundTrip(t *testing.T) {
	rb := New(1024)
	payload := []byte("hello event")

	ok := rb.Push(payload)
	require.True(t, ok)

	dst := make([]byte, 64)
	n, ok := rb.Pop(dst)
	require.True(t, ok)
	assert.Equal(t, payload, dst[:n])
	assert.True(t, rb.IsEmpty())
}

func TestPop_EmptyReturnsFalse(t *testing.T) {
	rb := New(1024)
	dst := make([]byte, 64)
	_, ok := rb.Pop(dst)
	assert.False(t, ok)
}

func TestPush_OverrunSetsFlag(t *testing.T) {
	rb := New(64)
	payload := make([]byte, 20)

	var lastOK bool
	for i := 0; i < 10; i++ {
		lastOK = rb.Push(payload)
	}
	assert.False(t, lastOK)

	_, _, overrun := rb.Stats()
	assert.Greater(t, overrun, uint64(0))
	assert.True(t, rb.ClearOverrun())
	assert.False(t, rb.ClearOverrun())
}

func TestPush_RejectsOversizedPayload(t *testing.T) {
	rb := New(64)
	ok := rb.Push(make([]byte, 40))
	assert.False(t, ok)
}

func TestWrapAround(t *testing.T) {
	rb := New(64)
	small := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	for i := 0; i < 3; i++ {
		require.True(t, rb.Push(small))
		dst := make([]byte, 64)
		n, ok := rb.Pop(dst)
		require.True(t, ok)
		assert.Equal(t, small, dst[:n])
	}

	// Drive write_pos/read_pos well past the buffer size so a push wraps.
	for i := 0; i < 20; i++ {
		rb.Push(small)
		dst := make([]byte, 64)
		rb.Pop(dst)
	}
	written, read, _ := rb.Stats()
	assert.Equal(t, written, read)
}

func TestPop_DestinationTooSmall(t *testing.T) {
	rb := New(1024)
	require.True(t, rb.Push([]byte("0123456789")))

	dst := make([]byte, 4)
	_, ok := rb.Pop(dst)
	assert.False(t, ok)
}
