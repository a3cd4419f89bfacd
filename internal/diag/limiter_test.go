package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimiterNilIsPermissive(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow("x", 0))
	assert.True(t, l.Allow("x", 1000))
}

func TestLimiterNoRatesIsPermissive(t *testing.T) {
	l := NewLimiter(nil)
	assert.True(t, l.Allow("x", 0))
	assert.True(t, l.Allow("x", 1))
}

func TestLimiterDropsInvalidRates(t *testing.T) {
	l := NewLimiter(map[uint32]int{0: 5, 10: 0, 20: 3})
	assert.Len(t, l.rates, 1)
	_, ok := l.rates[20]
	assert.True(t, ok)
}

func TestLimiterEnforcesWindowLimit(t *testing.T) {
	l := NewLimiter(map[uint32]int{10: 2})
	assert.True(t, l.Allow("cat", 1))
	assert.True(t, l.Allow("cat", 2))
	assert.False(t, l.Allow("cat", 3))
}

func TestLimiterForgetsEventsOutsideWindow(t *testing.T) {
	l := NewLimiter(map[uint32]int{10: 1})
	assert.True(t, l.Allow("cat", 1))
	assert.False(t, l.Allow("cat", 5))
	assert.True(t, l.Allow("cat", 12)) // tick 1 has aged out of the 10-tick window
}

func TestLimiterCategoriesAreIndependent(t *testing.T) {
	l := NewLimiter(map[uint32]int{10: 1})
	assert.True(t, l.Allow("a", 1))
	assert.True(t, l.Allow("b", 1))
	assert.False(t, l.Allow("a", 2))
}

func TestLimiterMultipleWindowsAllMustPass(t *testing.T) {
	l := NewLimiter(map[uint32]int{5: 5, 100: 2})
	assert.True(t, l.Allow("cat", 1))
	assert.True(t, l.Allow("cat", 2))
	// the 100-tick window's limit of 2 is now exhausted, even though the
	// 5-tick window would still allow more.
	assert.False(t, l.Allow("cat", 3))
}
