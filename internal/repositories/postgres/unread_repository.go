package postgres

import (
	"context"
	"time"

	"chat-relay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UnreadRepository struct {
	db *gorm.DB
}

func NewUnreadRepository(db *gorm.DB) *UnreadRepository {
	return &UnreadRepository{db}
}

// Increment bumps the unread counter of room for every user in userIDs,
// creating missing rows.
func (r *UnreadRepository) Increment(ctx context.Context, room string, userIDs []string) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, userID := range userIDs {
			row := models.UnreadCount{UserID: userID, Room: room, Unread: 1, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}, {Name: "room"}},
				DoUpdates: clause.Assignments(map[string]any{
					"unread":     gorm.Expr("unread_counts.unread + ?", 1),
					"updated_at": now,
				}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset zeroes the counter of room for userID.
func (r *UnreadRepository) Reset(ctx context.Context, userID, room string) error {
	return r.db.WithContext(ctx).
		Model(&models.UnreadCount{}).
		Where("user_id = ? AND room = ?", userID, room).
		Updates(map[string]any{"unread": 0, "updated_at": time.Now().UTC()}).Error
}

// ListForUser returns every non-zero counter of userID.
func (r *UnreadRepository) ListForUser(ctx context.Context, userID string) ([]models.UnreadCount, error) {
	var counts []models.UnreadCount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND unread > 0", userID).
		Order("room").
		Find(&counts).Error
	return counts, err
}
