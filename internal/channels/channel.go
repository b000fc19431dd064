package channels

import (
	"context"
	"strings"
)

// Kind classifies a channel by its name prefix.
type Kind string

const (
	// KindPrivate channels require a per-name authorization predicate.
	KindPrivate Kind = "private"
	// KindPresence channels additionally track and broadcast membership.
	KindPresence Kind = "presence"
	// KindBroadcast channels are open fan-out with no tracking.
	KindBroadcast Kind = "broadcast"
)

// KindOf derives the kind from the channel name.
func KindOf(name string) Kind {
	switch {
	case strings.HasPrefix(name, "presence."):
		return KindPresence
	case strings.HasPrefix(name, "chat."), strings.HasPrefix(name, "group."):
		return KindPrivate
	default:
		return KindBroadcast
	}
}

// Whisperable reports whether client-originated signals may relay on
// the channel. Only the per-user direct channels accept whispers; group
// and presence traffic is always server-originated.
func Whisperable(name string) bool {
	return strings.HasPrefix(name, "chat.")
}

// Envelope is the single wire shape for everything delivered to subscribers.
type Envelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Member is the membership payload exposed on presence channels.
type Member struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Subscriber is one attached client connection. Implemented by the
// websocket transport and by test fakes.
type Subscriber interface {
	ID() string
	UserID() int
	Send(Envelope) error
	Close()
}

// Authorizer decides whether a user may join a channel.
type Authorizer interface {
	Authorize(ctx context.Context, userID int, channel string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, userID int, channel string) (bool, error)

func (f AuthorizerFunc) Authorize(ctx context.Context, userID int, channel string) (bool, error) {
	return f(ctx, userID, channel)
}
