// Package delivery implements the direct-message state machine:
// sent -> delivered -> read. Transitions are monotonic and batched;
// each persisted transition emits exactly one broadcast event.
package delivery

import (
	"context"
	"errors"
	"strings"

	"messaging-service/internal/events"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

var (
	ErrAnonymousSender  = errors.New("sender must be authenticated")
	ErrEmptyBody        = errors.New("message body must not be empty")
	ErrReceiverNotFound = errors.New("receiver does not exist")
)

// Service drives message persistence and the resulting notifications.
// Persist first, then emit: a failed broadcast never rolls back the
// committed status change.
type Service struct {
	messages repositories.MessageRepository
	users    repositories.UserRepository
	emitter  *events.Emitter
}

// NewService builds a delivery Service.
func NewService(messages repositories.MessageRepository, users repositories.UserRepository, emitter *events.Emitter) *Service {
	return &Service{messages: messages, users: users, emitter: emitter}
}

// Send validates, persists a message in state sent and notifies the
// receiver's private channel. Validation happens before any side effect.
func (s *Service) Send(ctx context.Context, senderID, receiverID int, body string) (models.DirectMessage, error) {
	if senderID == 0 {
		return models.DirectMessage{}, ErrAnonymousSender
	}
	if strings.TrimSpace(body) == "" {
		return models.DirectMessage{}, ErrEmptyBody
	}
	exists, err := s.users.Exists(ctx, receiverID)
	if err != nil {
		return models.DirectMessage{}, err
	}
	if !exists {
		return models.DirectMessage{}, ErrReceiverNotFound
	}

	msg, err := s.messages.Create(ctx, senderID, receiverID, body)
	if err != nil {
		return models.DirectMessage{}, err
	}

	s.emitter.MessageSent(ctx, msg)
	return msg, nil
}

// MarkDelivered stamps every undelivered message from sender to the
// acting receiver and emits one MessageDelivered per transitioned row
// on the sender's channel. Already-delivered rows fall outside the
// selection predicate, so repeated calls are no-ops.
func (s *Service) MarkDelivered(ctx context.Context, actorID, senderID int) ([]models.DirectMessage, error) {
	msgs, err := s.messages.MarkDelivered(ctx, actorID, senderID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		s.emitter.MessageDelivered(ctx, msg, actorID)
	}
	return msgs, nil
}

// MarkRead flips every unread message from sender to the acting
// receiver, backfilling delivered_at where a read arrives without a
// prior explicit delivery, and emits one MessageRead per row. The
// actor's own connections are excluded from the notification.
func (s *Service) MarkRead(ctx context.Context, actorID, senderID int) ([]models.DirectMessage, error) {
	msgs, err := s.messages.MarkRead(ctx, actorID, senderID)
	if err != nil {
		return nil, err
	}
	for _, msg := range msgs {
		s.emitter.MessageRead(ctx, msg, actorID)
	}
	return msgs, nil
}

// Conversation marks the other side's pending messages delivered, then
// loads the 1:1 thread. Stamping first means rows transitioned by this
// very call come back with delivered_at populated.
func (s *Service) Conversation(ctx context.Context, actorID, otherID int) ([]models.DirectMessage, error) {
	if _, err := s.MarkDelivered(ctx, actorID, otherID); err != nil {
		return nil, err
	}
	return s.messages.ListConversation(ctx, actorID, otherID)
}

// PendingCount reports how many messages still await delivery to the
// user, across all senders.
func (s *Service) PendingCount(ctx context.Context, userID int) (int, error) {
	return s.messages.CountUndelivered(ctx, userID)
}
