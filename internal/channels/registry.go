package channels

import (
	"context"
	"errors"
	"log"
	"sync"

	"messaging-service/internal/observability"
)

var (
	ErrUnauthorizedChannel = errors.New("not authorized for channel")
	ErrNotSubscribed       = errors.New("not subscribed to channel")
)

// Registry holds every active channel and its subscribers. It is the
// process-wide connection state; entries live exactly as long as the
// connections that created them.
type Registry struct {
	mu       sync.RWMutex
	subs     map[string]map[string]Subscriber
	presence map[string]map[int]*presenceEntry
	auth     Authorizer
}

// presenceEntry tracks one user's member payload and their open
// connections on a presence channel. The user is "present" while at
// least one connection remains.
type presenceEntry struct {
	member Member
	conns  map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(auth Authorizer) *Registry {
	return &Registry{
		subs:     make(map[string]map[string]Subscriber),
		presence: make(map[string]map[int]*presenceEntry),
		auth:     auth,
	}
}

// Subscribe authorizes and attaches a subscriber to a channel. On
// presence channels the new subscriber first receives the authoritative
// "here" snapshot, then the others are told the user is joining.
func (r *Registry) Subscribe(ctx context.Context, channel string, sub Subscriber, member Member) error {
	if r.auth != nil {
		ok, err := r.auth.Authorize(ctx, sub.UserID(), channel)
		if err != nil {
			return err
		}
		if !ok {
			return ErrUnauthorizedChannel
		}
	}

	kind := KindOf(channel)

	r.mu.Lock()
	if _, ok := r.subs[channel]; !ok {
		r.subs[channel] = make(map[string]Subscriber)
	}
	r.subs[channel][sub.ID()] = sub

	var snapshot []Member
	firstConn := false
	if kind == KindPresence {
		if _, ok := r.presence[channel]; !ok {
			r.presence[channel] = make(map[int]*presenceEntry)
		}
		entry, ok := r.presence[channel][sub.UserID()]
		if !ok {
			entry = &presenceEntry{member: member, conns: make(map[string]struct{})}
			r.presence[channel][sub.UserID()] = entry
			firstConn = true
		}
		entry.conns[sub.ID()] = struct{}{}

		snapshot = make([]Member, 0, len(r.presence[channel]))
		for _, e := range r.presence[channel] {
			snapshot = append(snapshot, e.member)
		}
	}
	r.mu.Unlock()

	if kind == KindPresence {
		// Snapshot overrides anything the client guessed so far.
		r.deliver(sub, channel, Envelope{Channel: channel, Event: "here", Payload: snapshot})
		if firstConn {
			r.publish(channel, Envelope{Channel: channel, Event: "joining", Payload: member}, 0, sub.ID())
		}
	}
	return nil
}

// Unsubscribe detaches a subscriber from a channel. On presence
// channels the "leaving" signal fires only when the user's last
// connection goes away.
func (r *Registry) Unsubscribe(channel string, sub Subscriber) {
	r.mu.Lock()
	if conns, ok := r.subs[channel]; ok {
		delete(conns, sub.ID())
		if len(conns) == 0 {
			delete(r.subs, channel)
		}
	}

	var departed *Member
	if entries, ok := r.presence[channel]; ok {
		if entry, ok := entries[sub.UserID()]; ok {
			delete(entry.conns, sub.ID())
			if len(entry.conns) == 0 {
				member := entry.member
				departed = &member
				delete(entries, sub.UserID())
			}
		}
		if len(entries) == 0 {
			delete(r.presence, channel)
		}
	}
	r.mu.Unlock()

	if departed != nil {
		r.publish(channel, Envelope{Channel: channel, Event: "leaving", Payload: *departed}, 0, sub.ID())
	}
}

// UnsubscribeAll detaches a subscriber from every channel. Called on
// connection close; disconnection is the only cleanup trigger.
func (r *Registry) UnsubscribeAll(sub Subscriber) {
	r.mu.RLock()
	names := make([]string, 0, len(r.subs))
	for name, conns := range r.subs {
		if _, ok := conns[sub.ID()]; ok {
			names = append(names, name)
		}
	}
	r.mu.RUnlock()

	for _, name := range names {
		r.Unsubscribe(name, sub)
	}
}

// Publish fans an event out to every subscriber of the channel, except
// connections belonging to excludeUserID (0 excludes nobody). Delivery
// is fire-and-forget; the producer never blocks on acknowledgment.
func (r *Registry) Publish(channel, event string, payload any, excludeUserID int) {
	r.publish(channel, Envelope{Channel: channel, Event: event, Payload: payload}, excludeUserID, "")
}

// Whisper relays a client-originated signal to the channel's
// subscribers without any server-side business logic or persistence.
// Only whisperable channels accept it, so a sender cannot push signals
// onto group channels they do not belong to. The sender's own
// connections never receive the echo.
func (r *Registry) Whisper(channel, event string, payload any, from Subscriber) error {
	if !Whisperable(channel) {
		return ErrUnauthorizedChannel
	}
	r.publish(channel, Envelope{Channel: channel, Event: event, Payload: payload}, from.UserID(), "")
	return nil
}

// Members returns the current membership snapshot of a presence channel.
func (r *Registry) Members(channel string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.presence[channel]
	members := make([]Member, 0, len(entries))
	for _, e := range entries {
		members = append(members, e.member)
	}
	return members
}

// Online reports whether the user currently has a connection on the
// presence channel.
func (r *Registry) Online(channel string, userID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries, ok := r.presence[channel]
	if !ok {
		return false
	}
	_, ok = entries[userID]
	return ok
}

func (r *Registry) publish(channel string, env Envelope, excludeUserID int, excludeSubID string) {
	r.mu.RLock()
	conns := make([]Subscriber, 0, len(r.subs[channel]))
	for _, sub := range r.subs[channel] {
		if excludeUserID != 0 && sub.UserID() == excludeUserID {
			continue
		}
		if excludeSubID != "" && sub.ID() == excludeSubID {
			continue
		}
		conns = append(conns, sub)
	}
	r.mu.RUnlock()

	for _, sub := range conns {
		r.deliver(sub, channel, env)
	}
}

func (r *Registry) deliver(sub Subscriber, channel string, env Envelope) {
	if err := sub.Send(env); err != nil {
		log.Printf("channel write error on %s: %v", channel, err)
		sub.Close()
		r.UnsubscribeAll(sub)
		observability.IncWSEvent(string(KindOf(channel)), "ws_error")
	}
}
