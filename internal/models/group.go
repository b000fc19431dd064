package models

import (
	"encoding/json"
	"time"
)

// Role of a group member. Ordered: member < moderator < admin.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

var roleRank = map[Role]int{
	RoleMember:    0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// AtLeast reports whether the role grants at least the given role's rank.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Group is a chat group. The creator is always a member with role admin
// and cannot be removed except by deleting the group.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Image       *string   `db:"image" json:"image,omitempty"`
	CreatedBy   int       `db:"created_by" json:"created_by"`
	IsPrivate   bool      `db:"is_private" json:"is_private"`
	MaxMembers  int       `db:"max_members" json:"max_members"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupMember is the group/user join row. Exactly one row per pair.
type GroupMember struct {
	GroupID  int       `db:"group_id" json:"group_id"`
	UserID   int       `db:"user_id" json:"user_id"`
	Role     Role      `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// GroupMessage is a message posted to a group. ReplyTo, when set, must
// reference a message in the same group; deleting the target nulls it.
type GroupMessage struct {
	ID          int             `db:"id" json:"id"`
	GroupID     int             `db:"group_id" json:"group_id"`
	UserID      int             `db:"user_id" json:"user_id"`
	Body        string          `db:"body" json:"body"`
	Type        string          `db:"type" json:"type"`
	Attachments json.RawMessage `db:"attachments" json:"attachments,omitempty"`
	ReplyTo     *int            `db:"reply_to" json:"reply_to"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
