package models

import "time"

// User is a registered account. Authentication itself is handled by the
// token middleware; this table only backs display data for payloads.
type User struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Avatar    *string   `db:"avatar" json:"avatar,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UserRef is the compact user shape embedded in broadcast payloads.
type UserRef struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// Ref converts a full user row into the broadcast shape.
func (u User) Ref() UserRef {
	return UserRef{ID: u.ID, Name: u.Name, Avatar: u.Avatar}
}
