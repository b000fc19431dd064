// Package reconcile implements the client-side view of a conversation:
// optimistic placeholders inserted before server confirmation, later
// reconciled against canonical messages and status events. Everything
// here is pure and tolerant of out-of-order, duplicate events.
package reconcile

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"messaging-service/internal/models"
)

// Status of a message as displayed.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// statusRank orders upgrade precedence for display: failed wins
// outright, otherwise the furthest state wins regardless of arrival
// order.
var statusRank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
	StatusFailed:    4,
}

// ClientMessage is one entry in the locally-ordered message list. ID is
// a string because placeholders carry synthetic ids until confirmed.
type ClientMessage struct {
	ID          string
	SenderID    int
	ReceiverID  int
	Body        string
	Status      Status
	DeliveredAt *time.Time
	IsRead      bool
	CreatedAt   time.Time
}

// NewPending builds an optimistic placeholder with a synthetic id.
func NewPending(senderID, receiverID int, body string, now time.Time) ClientMessage {
	return ClientMessage{
		ID:         "temp_" + uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Status:     StatusSending,
		CreatedAt:  now,
	}
}

func serverID(msg models.DirectMessage) string {
	return strconv.Itoa(msg.ID)
}

func fromServer(msg models.DirectMessage, status Status) ClientMessage {
	return ClientMessage{
		ID:          serverID(msg),
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Body:        msg.Body,
		Status:      status,
		DeliveredAt: msg.DeliveredAt,
		IsRead:      msg.IsRead,
		CreatedAt:   msg.CreatedAt,
	}
}

// ConfirmSent replaces the best-matching placeholder with the confirmed
// message: exact id match first, then the first placeholder with the
// same body and sender still in sending state. Exactly one entry is
// replaced; if none matches, the confirmed message is appended so it is
// never lost. The second return reports whether a placeholder matched.
func ConfirmSent(list []ClientMessage, confirmed models.DirectMessage) ([]ClientMessage, bool) {
	id := serverID(confirmed)
	idx := -1
	for i, m := range list {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		for i, m := range list {
			if m.Status == StatusSending && m.Body == confirmed.Body && m.SenderID == confirmed.SenderID {
				idx = i
				break
			}
		}
	}

	out := append([]ClientMessage(nil), list...)
	if idx == -1 {
		return append(out, fromServer(confirmed, StatusSent)), false
	}
	out[idx] = fromServer(confirmed, StatusSent)
	return out, true
}

// MarkFailed flips a placeholder to its terminal failed state. There is
// no automatic retry; the user must resend explicitly.
func MarkFailed(list []ClientMessage, tempID string) ([]ClientMessage, bool) {
	out := append([]ClientMessage(nil), list...)
	for i, m := range out {
		if m.ID == tempID {
			out[i].Status = StatusFailed
			return out, true
		}
	}
	return out, false
}

// ApplyStatusEvent upgrades the target message in place from a
// delivered/read event. Events for unknown ids report false so the
// caller can log and drop them; a failed placeholder and already-ahead
// states are never regressed.
func ApplyStatusEvent(list []ClientMessage, msg models.DirectMessage, event Status) ([]ClientMessage, bool) {
	id := serverID(msg)
	out := append([]ClientMessage(nil), list...)
	for i, m := range out {
		if m.ID != id {
			continue
		}
		if m.Status == StatusFailed {
			return out, true
		}
		if statusRank[event] > statusRank[m.Status] {
			out[i].Status = event
		}
		if msg.DeliveredAt != nil {
			out[i].DeliveredAt = msg.DeliveredAt
		}
		if msg.IsRead {
			out[i].IsRead = true
		}
		return out, true
	}
	return out, false
}

// Reconcile merges the server-confirmed history into the local list.
// Each confirmed message replaces at most one placeholder and is never
// duplicated; local entries unknown to the server (still sending or
// failed) are kept.
func Reconcile(local []ClientMessage, confirmed []models.DirectMessage) []ClientMessage {
	out := append([]ClientMessage(nil), local...)
	for _, msg := range confirmed {
		if contains(out, serverID(msg)) {
			out, _ = ApplyStatusEvent(out, msg, serverStatus(msg))
			continue
		}
		out, _ = ConfirmSent(out, msg)
		out, _ = ApplyStatusEvent(out, msg, serverStatus(msg))
	}
	return out
}

// DisplayStatus picks the icon status, highest precedence first.
func DisplayStatus(m ClientMessage) Status {
	switch {
	case m.Status == StatusFailed:
		return StatusFailed
	case m.IsRead:
		return StatusRead
	case m.DeliveredAt != nil:
		return StatusDelivered
	case m.Status == StatusSending:
		return StatusSending
	default:
		return StatusSent
	}
}

func serverStatus(msg models.DirectMessage) Status {
	switch {
	case msg.IsRead:
		return StatusRead
	case msg.DeliveredAt != nil:
		return StatusDelivered
	default:
		return StatusSent
	}
}

func contains(list []ClientMessage, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}
