package postgres

import (
	"context"

	"chat-relay/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GroupRepository struct {
	db *gorm.DB
}

func NewGroupRepository(db *gorm.DB) *GroupRepository {
	return &GroupRepository{db}
}

// ListMembers returns the user ids of every member of groupID.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	var members []string
	err := r.db.WithContext(ctx).
		Model(&models.GroupMember{}).
		Where("group_id = ?", groupID).
		Order("user_id").
		Pluck("user_id", &members).Error
	return members, err
}

// AddMember is a no-op when the membership already exists.
func (r *GroupRepository) AddMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.GroupMember{GroupID: groupID, UserID: userID}).Error
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	return r.db.WithContext(ctx).
		Delete(&models.GroupMember{}, "group_id = ? AND user_id = ?", groupID, userID).Error
}
