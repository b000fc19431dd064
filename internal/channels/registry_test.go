package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSub struct {
	id     string
	userID int

	mu       sync.Mutex
	received []Envelope
	failSend bool
	closed   bool
}

func (f *fakeSub) ID() string  { return f.id }
func (f *fakeSub) UserID() int { return f.userID }

func (f *fakeSub) Send(env Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend {
		return errors.New("write failed")
	}
	f.received = append(f.received, env)
	return nil
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSub) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.received))
	for _, env := range f.received {
		out = append(out, env.Event)
	}
	return out
}

func (f *fakeSub) lastEnvelope() (Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return Envelope{}, false
	}
	return f.received[len(f.received)-1], true
}

func allowAll() Authorizer {
	return AuthorizerFunc(func(ctx context.Context, userID int, channel string) (bool, error) {
		return true, nil
	})
}

func TestSubscribeUnauthorized(t *testing.T) {
	r := NewRegistry(AuthorizerFunc(func(ctx context.Context, userID int, channel string) (bool, error) {
		return false, nil
	}))

	err := r.Subscribe(context.Background(), "chat.1", &fakeSub{id: "a", userID: 2}, Member{})
	assert.ErrorIs(t, err, ErrUnauthorizedChannel)
}

func TestPresenceSnapshotAndJoining(t *testing.T) {
	r := NewRegistry(allowAll())

	alice := &fakeSub{id: "a", userID: 1}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", alice, Member{ID: 1, Name: "alice"}))

	env, ok := alice.lastEnvelope()
	require.True(t, ok)
	assert.Equal(t, "here", env.Event)
	assert.Len(t, env.Payload.([]Member), 1)

	bob := &fakeSub{id: "b", userID: 2}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", bob, Member{ID: 2, Name: "bob"}))

	env, ok = bob.lastEnvelope()
	require.True(t, ok)
	assert.Equal(t, "here", env.Event)
	assert.Len(t, env.Payload.([]Member), 2)

	assert.Contains(t, alice.events(), "joining")
}

func TestPresenceSecondConnectionNoDuplicateJoining(t *testing.T) {
	r := NewRegistry(allowAll())

	alice := &fakeSub{id: "a", userID: 1}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", alice, Member{ID: 1, Name: "alice"}))

	bobPhone := &fakeSub{id: "b1", userID: 2}
	bobLaptop := &fakeSub{id: "b2", userID: 2}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", bobPhone, Member{ID: 2, Name: "bob"}))
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", bobLaptop, Member{ID: 2, Name: "bob"}))

	joinings := 0
	for _, e := range alice.events() {
		if e == "joining" {
			joinings++
		}
	}
	assert.Equal(t, 1, joinings)
	assert.Len(t, r.Members("presence.chat"), 2)
}

func TestPresenceLeavingOnLastConnectionOnly(t *testing.T) {
	r := NewRegistry(allowAll())

	alice := &fakeSub{id: "a", userID: 1}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", alice, Member{ID: 1, Name: "alice"}))

	bobPhone := &fakeSub{id: "b1", userID: 2}
	bobLaptop := &fakeSub{id: "b2", userID: 2}
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", bobPhone, Member{ID: 2, Name: "bob"}))
	require.NoError(t, r.Subscribe(context.Background(), "presence.chat", bobLaptop, Member{ID: 2, Name: "bob"}))

	r.Unsubscribe("presence.chat", bobPhone)
	assert.NotContains(t, alice.events(), "leaving")
	assert.True(t, r.Online("presence.chat", 2))

	r.Unsubscribe("presence.chat", bobLaptop)
	assert.Contains(t, alice.events(), "leaving")
	assert.False(t, r.Online("presence.chat", 2))
}

func TestPublishExcludesUser(t *testing.T) {
	r := NewRegistry(allowAll())

	owner := &fakeSub{id: "a", userID: 1}
	ownerPhone := &fakeSub{id: "b", userID: 1}
	require.NoError(t, r.Subscribe(context.Background(), "chat.1", owner, Member{}))
	require.NoError(t, r.Subscribe(context.Background(), "chat.1", ownerPhone, Member{}))

	r.Publish("chat.1", "MessageRead", nil, 1)
	assert.Empty(t, owner.events())
	assert.Empty(t, ownerPhone.events())

	r.Publish("chat.1", "MessageSent", nil, 0)
	assert.Equal(t, []string{"MessageSent"}, owner.events())
	assert.Equal(t, []string{"MessageSent"}, ownerPhone.events())
}

func TestWhisperPrivateOnlyAndExcludesSender(t *testing.T) {
	r := NewRegistry(allowAll())

	receiver := &fakeSub{id: "a", userID: 2}
	require.NoError(t, r.Subscribe(context.Background(), "chat.2", receiver, Member{}))

	sender := &fakeSub{id: "b", userID: 1}
	require.NoError(t, r.Whisper("chat.2", "typing", nil, sender))
	assert.Equal(t, []string{"typing"}, receiver.events())

	err := r.Whisper("presence.chat", "typing", nil, sender)
	assert.ErrorIs(t, err, ErrUnauthorizedChannel)
}

func TestWhisperRejectedOnGroupChannels(t *testing.T) {
	r := NewRegistry(allowAll())

	memberSub := &fakeSub{id: "a", userID: 2}
	require.NoError(t, r.Subscribe(context.Background(), "group.3", memberSub, Member{}))

	outsider := &fakeSub{id: "b", userID: 9}
	err := r.Whisper("group.3", "typing", nil, outsider)
	assert.ErrorIs(t, err, ErrUnauthorizedChannel)
	assert.Empty(t, memberSub.events())
}

func TestFailingSubscriberDropped(t *testing.T) {
	r := NewRegistry(allowAll())

	healthy := &fakeSub{id: "a", userID: 1}
	broken := &fakeSub{id: "b", userID: 2, failSend: true}
	require.NoError(t, r.Subscribe(context.Background(), "group.1", healthy, Member{}))
	require.NoError(t, r.Subscribe(context.Background(), "group.1", broken, Member{}))

	r.Publish("group.1", "GroupMessageSent", nil, 0)
	assert.True(t, broken.closed)
	assert.Equal(t, []string{"GroupMessageSent"}, healthy.events())

	// The broken subscriber is gone; subsequent publishes reach only the
	// healthy one.
	r.Publish("group.1", "GroupMessageSent", nil, 0)
	assert.Len(t, healthy.events(), 2)
	assert.Empty(t, broken.received)
}
