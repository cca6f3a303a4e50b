package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
)

// PostRepository 帖子仓储；feed 的按键分页在 internal/feed 实现
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id string) (*model.Post, error)
	// Delete 返回是否真正删除（并发重复删除只有一个生效）
	Delete(ctx context.Context, id string) (bool, error)
	// CountByAuthor 权威基数，供 posts_count 对账
	CountByAuthor(ctx context.Context, authorID string) (int64, error)
	// HideByAuthor 作者注销时隐藏其全部帖子（orphan-and-hide 策略）
	HideByAuthor(ctx context.Context, authorID string) error
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Post{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *postRepository) CountByAuthor(ctx context.Context, authorID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Post{}).Where("author_id = ?", authorID).Count(&cnt).Error
	return cnt, err
}

func (r *postRepository) HideByAuthor(ctx context.Context, authorID string) error {
	return r.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("author_id = ?", authorID).
		Update("hidden", true).Error
}
