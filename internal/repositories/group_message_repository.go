package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const groupMessageColumns = `id, group_id, user_id, body, type, attachments, reply_to, created_at`

// GroupMessageRepository defines interactions for group messages.
type GroupMessageRepository interface {
	Create(ctx context.Context, msg models.GroupMessage) (models.GroupMessage, error)
	List(ctx context.Context, groupID, limit int) ([]models.GroupMessage, error)
	Get(ctx context.Context, messageID int) (models.GroupMessage, error)
	Delete(ctx context.Context, messageID int) error
}

// GroupMessageRepo is a sqlx-backed implementation.
type GroupMessageRepo struct {
	db *sqlx.DB
}

// NewGroupMessageRepo constructs a GroupMessageRepo.
func NewGroupMessageRepo(db *sqlx.DB) *GroupMessageRepo {
	return &GroupMessageRepo{db: db}
}

// Create persists a group message. Reply validation (same group) is
// done by the caller before this point.
func (r *GroupMessageRepo) Create(ctx context.Context, msg models.GroupMessage) (models.GroupMessage, error) {
	msgType := msg.Type
	if msgType == "" {
		msgType = "text"
	}
	var created models.GroupMessage
	err := r.db.GetContext(ctx, &created,
		`INSERT INTO group_messages (group_id, user_id, body, type, attachments, reply_to)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+groupMessageColumns,
		msg.GroupID, msg.UserID, msg.Body, msgType, msg.Attachments, msg.ReplyTo)
	return created, err
}

// List returns the most recent messages in creation order.
func (r *GroupMessageRepo) List(ctx context.Context, groupID, limit int) ([]models.GroupMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var msgs []models.GroupMessage
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+groupMessageColumns+` FROM (
             SELECT `+groupMessageColumns+` FROM group_messages
             WHERE group_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2
         ) page ORDER BY created_at ASC, id ASC`,
		groupID, limit)
	return msgs, err
}

// Get fetches a single message.
func (r *GroupMessageRepo) Get(ctx context.Context, messageID int) (models.GroupMessage, error) {
	var msg models.GroupMessage
	err := r.db.GetContext(ctx, &msg, `SELECT `+groupMessageColumns+` FROM group_messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.GroupMessage{}, ErrMessageNotFound
	}
	return msg, err
}

// Delete removes the message. Replies pointing at it keep their rows;
// the reply_to foreign key is declared ON DELETE SET NULL, so
// dependents are detached rather than cascaded.
func (r *GroupMessageRepo) Delete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
