package models

import "time"

// UnreadCount is the number of messages a user has not seen in a room.
type UnreadCount struct {
	UserID    string    `gorm:"primaryKey;size:191" json:"user_id"`
	Room      string    `gorm:"primaryKey;size:191" json:"room"`
	Unread    int       `gorm:"column:unread;not null;default:0" json:"unread"`
	UpdatedAt time.Time `json:"updated_at"`
}
