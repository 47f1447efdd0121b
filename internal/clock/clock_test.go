package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	assert.Equal(t, start, c.Now())

	c.Advance(3 * time.Second)
	assert.Equal(t, 3*time.Second, c.Since(start))

	c.Set(start.Add(time.Minute))
	assert.Equal(t, time.Minute, c.Since(start))
}

func TestRealClockMovesForward(t *testing.T) {
	var c Clock = RealClock{}
	before := c.Now()
	assert.GreaterOrEqual(t, c.Since(before), time.Duration(0))
}
