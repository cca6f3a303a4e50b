package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/social-feed/internal/model"
)

type SaveRepository interface {
	// Save 幂等收藏，返回是否真正插入
	Save(ctx context.Context, postID, userID string) (bool, error)
	Unsave(ctx context.Context, postID, userID string) (bool, error)
	ListSavedBy(ctx context.Context, userID string, offset, limit int) ([]*model.PostSave, error)
	DeleteByPost(ctx context.Context, postID string) error
}

type saveRepository struct{ db *gorm.DB }

func NewSaveRepository(db *gorm.DB) SaveRepository { return &saveRepository{db: db} }

func (r *saveRepository) Save(ctx context.Context, postID, userID string) (bool, error) {
	s := &model.PostSave{ID: uuid.New().String(), PostID: postID, UserID: userID}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *saveRepository) Unsave(ctx context.Context, postID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&model.PostSave{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *saveRepository) ListSavedBy(ctx context.Context, userID string, offset, limit int) ([]*model.PostSave, error) {
	var res []*model.PostSave
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *saveRepository) DeleteByPost(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.PostSave{}).Error
}
