package presence

import (
	"sync"
	"time"
)

const (
	// ThrottleWindow is the minimum gap between typing signals per peer.
	ThrottleWindow = time.Second
	// TypingTTL is how long a received signal keeps the flag raised.
	TypingTTL = 2 * time.Second
)

// Clock is injectable for tests.
type Clock func() time.Time

// Typist throttles outgoing typing signals: at most one per rolling
// window per peer. Nothing is ever sent to say typing stopped; expiry
// on the receiving side handles that.
type Typist struct {
	mu     sync.Mutex
	last   map[int]time.Time
	window time.Duration
	now    Clock
}

// NewTypist builds a Typist with the default window.
func NewTypist() *Typist {
	return NewTypistWithClock(ThrottleWindow, time.Now)
}

// NewTypistWithClock allows tests to control time.
func NewTypistWithClock(window time.Duration, now Clock) *Typist {
	return &Typist{last: make(map[int]time.Time), window: window, now: now}
}

// ShouldSend reports whether a signal to the peer may go out now, and
// if so consumes the window.
func (t *Typist) ShouldSend(peerID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.last[peerID]; ok && now.Sub(last) < t.window {
		return false
	}
	t.last[peerID] = now
	return true
}

// TypingState is the receiver-side flag per peer. Every signal resets
// the expiry timer; absence of a follow-up within the TTL means the
// peer stopped typing.
type TypingState struct {
	mu      sync.Mutex
	expires map[int]time.Time
	ttl     time.Duration
	now     Clock
}

// NewTypingState builds a TypingState with the default TTL.
func NewTypingState() *TypingState {
	return NewTypingStateWithClock(TypingTTL, time.Now)
}

// NewTypingStateWithClock allows tests to control time.
func NewTypingStateWithClock(ttl time.Duration, now Clock) *TypingState {
	return &TypingState{expires: make(map[int]time.Time), ttl: ttl, now: now}
}

// Signal records a typing signal from the peer.
func (s *TypingState) Signal(peerID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expires[peerID] = s.now().Add(s.ttl)
}

// Typing reports whether the peer is currently typing.
func (s *TypingState) Typing(peerID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.expires[peerID]
	if !ok {
		return false
	}
	if !s.now().Before(deadline) {
		delete(s.expires, peerID)
		return false
	}
	return true
}
