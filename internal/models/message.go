package models

import "time"

/** --------------------ENTITIES-------------------- */
// Message is a chat message as stored. Rows are written once and never
// updated.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Sender     string    `gorm:"not null;size:191;index" json:"sender"`
	Room       string    `gorm:"not null;size:191;index:idx_messages_room_inserted,priority:1" json:"room"`
	Text       string    `gorm:"not null;type:text" json:"text"`
	InsertedAt time.Time `gorm:"not null;index:idx_messages_room_inserted,priority:2" json:"inserted_at"`
}

/** -------------------- DTOs -------------------- */
// MessageResponse is the HTTP history shape.
type MessageResponse struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Room       string    `json:"room"`
	Text       string    `json:"text"`
	InsertedAt time.Time `json:"inserted_at"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		Username:   m.Sender,
		Room:       m.Room,
		Text:       m.Text,
		InsertedAt: m.InsertedAt,
	}
}
