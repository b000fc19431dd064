package models

import "time"

// DirectMessage is a 1:1 message. Its delivery state is monotonic:
// sent (delivered_at null, is_read false) -> delivered -> read.
// is_read = true always implies delivered_at is set.
type DirectMessage struct {
	ID          int        `db:"id" json:"id"`
	SenderID    int        `db:"sender_id" json:"sender_id"`
	ReceiverID  int        `db:"receiver_id" json:"receiver_id"`
	Body        string     `db:"body" json:"body"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
