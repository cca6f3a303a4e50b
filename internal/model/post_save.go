package model

import "time"

// PostSave 收藏关系（多对多，不挂计数器）
type PostSave struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	PostID string `gorm:"type:varchar(36);index:idx_save_post;index:idx_save_pair,unique;not null"`
	UserID string `gorm:"type:varchar(36);not null;index:idx_save_pair,unique"`
	// 复合唯一键，保证 save/unsave 幂等
	// idx_save_pair = (post_id, user_id)
	CreatedAt time.Time
}

func (PostSave) TableName() string { return "post_saves" }
