package models

import "time"

// GroupMember links a user identity to a group room id.
type GroupMember struct {
	GroupID   string    `gorm:"primaryKey;size:191" json:"group_id"`
	UserID    string    `gorm:"primaryKey;size:191" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
