package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// ExistAll 校验一批用户同时存在（且未注销）
	ExistAll(ctx context.Context, ids ...string) (bool, error)
	// Deactivate 软删除，返回是否真正生效
	Deactivate(ctx context.Context, id string) (bool, error)
	// ListIDs 给对账批处理用的稳定遍历
	ListIDs(ctx context.Context, offset, limit int) ([]string, error)
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) ExistAll(ctx context.Context, ids ...string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id IN ? AND deactivated_at IS NULL", ids).
		Count(&cnt).Error
	if err != nil {
		return false, err
	}
	return cnt == int64(len(ids)), nil
}

func (r *userRepository) Deactivate(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND deactivated_at IS NULL", id).
		Update("deactivated_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepository) ListIDs(ctx context.Context, offset, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Order("id").
		Offset(offset).Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
