package events

import (
	"context"
	"fmt"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// Routing keys for the mirrored event stream on the platform exchange.
const (
	chatRoutingKey  = "chat.events"
	groupRoutingKey = "group.events"
)

// Broadcaster fans an event out to channel subscribers. Implemented by
// channels.Registry; tests install a recorder.
type Broadcaster interface {
	Publish(channel, event string, payload any, excludeUserID int)
}

// Emitter is the outbox side of every state change: callers persist
// first, then emit. Emission is best-effort and never rolls back the
// persisted change.
type Emitter struct {
	bus Broadcaster
}

// NewEmitter builds an Emitter over the given broadcaster.
func NewEmitter(bus Broadcaster) *Emitter {
	return &Emitter{bus: bus}
}

func chatChannel(userID int) string   { return fmt.Sprintf("chat.%d", userID) }
func groupChannel(groupID int) string { return fmt.Sprintf("group.%d", groupID) }

// MessageSent notifies the receiver's private channel of a new message.
func (e *Emitter) MessageSent(ctx context.Context, msg models.DirectMessage) {
	e.emit(ctx, chatChannel(msg.ReceiverID), MessageSent, chatRoutingKey, DirectMessagePayload{Message: msg}, 0)
}

// MessageDelivered notifies the sender's channel; the marking actor's
// own connections are excluded.
func (e *Emitter) MessageDelivered(ctx context.Context, msg models.DirectMessage, actorID int) {
	e.emit(ctx, chatChannel(msg.SenderID), MessageDelivered, chatRoutingKey, DirectMessagePayload{Message: msg}, actorID)
}

// MessageRead notifies the sender's channel; no self-notification for
// the reading actor.
func (e *Emitter) MessageRead(ctx context.Context, msg models.DirectMessage, actorID int) {
	e.emit(ctx, chatChannel(msg.SenderID), MessageRead, chatRoutingKey, DirectMessagePayload{Message: msg}, actorID)
}

// GroupMessageSent fans a posted message out to the group, excluding the
// author who already holds a local optimistic copy.
func (e *Emitter) GroupMessageSent(ctx context.Context, groupID int, view GroupMessageView) {
	e.emit(ctx, groupChannel(groupID), GroupMessageSent, groupRoutingKey, GroupMessagePayload{Message: view}, view.User.ID)
}

// GroupMessageDeleted tells remaining members to drop the message.
func (e *Emitter) GroupMessageDeleted(ctx context.Context, groupID, messageID, actorID int) {
	e.emit(ctx, groupChannel(groupID), GroupMessageDeleted, groupRoutingKey, DeletionPayload{GroupID: groupID, MessageID: messageID}, actorID)
}

// UserJoinedGroup announces a new member on the group channel.
func (e *Emitter) UserJoinedGroup(ctx context.Context, groupID int, user models.UserRef) {
	e.emit(ctx, groupChannel(groupID), UserJoinedGroup, groupRoutingKey, MembershipPayload{User: channelsMember{ID: user.ID, Name: user.Name}, GroupID: groupID}, 0)
}

// UserLeftGroup announces a departure on the group channel.
func (e *Emitter) UserLeftGroup(ctx context.Context, groupID int, user models.UserRef) {
	e.emit(ctx, groupChannel(groupID), UserLeftGroup, groupRoutingKey, MembershipPayload{User: channelsMember{ID: user.ID, Name: user.Name}, GroupID: groupID}, 0)
}

func (e *Emitter) emit(ctx context.Context, channel, event, routingKey string, payload any, excludeUserID int) {
	e.bus.Publish(channel, event, payload, excludeUserID)
	observability.IncBroadcast(event)

	_ = observability.PublishEvent(ctx, routingKey, observability.EventEnvelope{
		EventType: "broadcast",
		EventName: event,
		Payload:   payload,
	}, nil)
}
