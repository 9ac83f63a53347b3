package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthLatencyRingBufferIsBounded(t *testing.T) {
	h := newHealth("test")
	for i := 0; i < maxLatencySamples+20; i++ {
		h.recordMessage("account")
		time.Sleep(time.Millisecond)
	}
	assert.LessOrEqual(t, len(h.LatencySamples()), maxLatencySamples)
}

func TestHealthStatusTransitions(t *testing.T) {
	h := newHealth("test")
	assert.Equal(t, StatusConnecting, h.Status())
	h.setStatus(StatusHealthy)
	assert.Equal(t, StatusHealthy, h.Status())
	h.setStatus(StatusFailed)
	assert.Equal(t, StatusFailed, h.Status())
}
