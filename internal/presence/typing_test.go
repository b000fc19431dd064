package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTypistThrottlesPerPeer(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	typist := NewTypistWithClock(time.Second, clock.now)

	assert.True(t, typist.ShouldSend(2))
	assert.False(t, typist.ShouldSend(2))

	// A different peer has its own window.
	assert.True(t, typist.ShouldSend(3))

	clock.advance(999 * time.Millisecond)
	assert.False(t, typist.ShouldSend(2))

	clock.advance(time.Millisecond)
	assert.True(t, typist.ShouldSend(2))
}

func TestTypingStateExpires(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	state := NewTypingStateWithClock(2*time.Second, clock.now)

	assert.False(t, state.Typing(1))

	state.Signal(1)
	assert.True(t, state.Typing(1))

	clock.advance(1900 * time.Millisecond)
	assert.True(t, state.Typing(1))

	clock.advance(100 * time.Millisecond)
	assert.False(t, state.Typing(1))
}

func TestTypingStateSignalResetsExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	state := NewTypingStateWithClock(2*time.Second, clock.now)

	state.Signal(1)
	clock.advance(1500 * time.Millisecond)
	state.Signal(1)

	clock.advance(1500 * time.Millisecond)
	assert.True(t, state.Typing(1))

	clock.advance(600 * time.Millisecond)
	assert.False(t, state.Typing(1))
}
