//go:build !linux

package rawmono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFallbackMonotonic_NeverDecreases(t *testing.T) {
	s := &fallbackMonotonic{epoch: time.Now()}

	prev := s.NowNs()
	for i := 0; i < 1000; i++ {
		cur := s.NowNs()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
}

func TestDefault_ReturnsNonNilSource(t *testing.T) {
	assert.NotNil(t, Default())
}
