package postgres

import (
	"context"

	"chat-relay/internal/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db}
}

func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// ListByRoom returns the newest limit messages of room, oldest first.
func (r *MessageRepository) ListByRoom(ctx context.Context, room string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("inserted_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	return &msg, err
}
