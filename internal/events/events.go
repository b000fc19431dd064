package events

import (
	"time"

	"messaging-service/internal/models"
)

// Event names as delivered to subscribers.
const (
	MessageSent         = "MessageSent"
	MessageDelivered    = "MessageDelivered"
	MessageRead         = "MessageRead"
	GroupMessageSent    = "GroupMessageSent"
	GroupMessageDeleted = "GroupMessageDeleted"
	UserJoinedGroup     = "UserJoinedGroup"
	UserLeftGroup       = "UserLeftGroup"
)

// DirectMessagePayload wraps a direct message for the sender's or
// receiver's private channel.
type DirectMessagePayload struct {
	Message models.DirectMessage `json:"message"`
}

// ReplyRef is the condensed shape of a quoted message.
type ReplyRef struct {
	ID   int    `json:"id"`
	Body string `json:"body"`
	User struct {
		Name string `json:"name"`
	} `json:"user"`
}

// GroupMessageView is a group message hydrated with its author and,
// when present, the quoted reply target.
type GroupMessageView struct {
	ID        int            `json:"id"`
	Body      string         `json:"body"`
	Type      string         `json:"type"`
	ReplyTo   *int           `json:"reply_to"`
	CreatedAt time.Time      `json:"created_at"`
	User      models.UserRef `json:"user"`
	ReplyRef  *ReplyRef      `json:"replyTo,omitempty"`
}

// GroupMessagePayload wraps a hydrated group message.
type GroupMessagePayload struct {
	Message GroupMessageView `json:"message"`
}

// MembershipPayload announces a user joining or leaving a group.
type MembershipPayload struct {
	User    channelsMember `json:"user"`
	GroupID int            `json:"group_id"`
}

type channelsMember struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DeletionPayload announces a group message removal.
type DeletionPayload struct {
	GroupID   int `json:"group_id"`
	MessageID int `json:"message_id"`
}

// TypingPayload is the ephemeral typing whisper shape. Never persisted.
type TypingPayload struct {
	SenderID   int `json:"sender_id"`
	ReceiverID int `json:"receiver_id"`
}
