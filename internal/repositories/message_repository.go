package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const directMessageColumns = `id, sender_id, receiver_id, body, delivered_at, is_read, created_at`

// MessageRepository defines interactions for direct messages. The two
// Mark operations select their batch and flip state in one statement,
// so re-invoking them is a no-op for rows already past the transition.
type MessageRepository interface {
	Create(ctx context.Context, senderID, receiverID int, body string) (models.DirectMessage, error)
	ListConversation(ctx context.Context, userID, otherID int) ([]models.DirectMessage, error)
	Get(ctx context.Context, messageID int) (models.DirectMessage, error)
	MarkDelivered(ctx context.Context, receiverID, senderID int) ([]models.DirectMessage, error)
	MarkRead(ctx context.Context, receiverID, senderID int) ([]models.DirectMessage, error)
	CountUndelivered(ctx context.Context, receiverID int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a direct message in the initial sent state.
func (r *MessageRepo) Create(ctx context.Context, senderID, receiverID int, body string) (models.DirectMessage, error) {
	var msg models.DirectMessage
	err := r.db.GetContext(ctx, &msg,
		`INSERT INTO messages (sender_id, receiver_id, body) VALUES ($1, $2, $3) RETURNING `+directMessageColumns,
		senderID, receiverID, body)
	return msg, err
}

// ListConversation returns both directions of a 1:1 thread in creation order.
func (r *MessageRepo) ListConversation(ctx context.Context, userID, otherID int) ([]models.DirectMessage, error) {
	var msgs []models.DirectMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+directMessageColumns+` FROM messages
         WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
         ORDER BY created_at ASC, id ASC`,
		userID, otherID)
	return msgs, err
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.DirectMessage, error) {
	var msg models.DirectMessage
	err := r.db.GetContext(ctx, &msg, `SELECT `+directMessageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DirectMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// MarkDelivered stamps delivered_at on every undelivered message from
// sender to receiver and returns the rows that actually transitioned.
func (r *MessageRepo) MarkDelivered(ctx context.Context, receiverID, senderID int) ([]models.DirectMessage, error) {
	var msgs []models.DirectMessage
	err := r.db.SelectContext(ctx, &msgs,
		`UPDATE messages SET delivered_at = NOW()
         WHERE receiver_id=$1 AND sender_id=$2 AND delivered_at IS NULL
         RETURNING `+directMessageColumns,
		receiverID, senderID)
	return msgs, err
}

// MarkRead flips is_read on every unread message from sender to
// receiver, backfilling delivered_at so read always implies delivered,
// and returns the transitioned rows.
func (r *MessageRepo) MarkRead(ctx context.Context, receiverID, senderID int) ([]models.DirectMessage, error) {
	var msgs []models.DirectMessage
	err := r.db.SelectContext(ctx, &msgs,
		`UPDATE messages SET is_read = TRUE, delivered_at = COALESCE(delivered_at, NOW())
         WHERE receiver_id=$1 AND sender_id=$2 AND is_read = FALSE
         RETURNING `+directMessageColumns,
		receiverID, senderID)
	return msgs, err
}

// CountUndelivered reports how many messages await the receiver.
func (r *MessageRepo) CountUndelivered(ctx context.Context, receiverID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND delivered_at IS NULL`, receiverID)
	return count, err
}
