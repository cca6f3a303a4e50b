package model

import "time"

// Post 内容主体；(created_at, id) 是 feed 分页的自然键
type Post struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	AuthorID string `gorm:"type:varchar(36);index:idx_post_author;not null"`
	Content  string `gorm:"type:text"`
	// 作者注销后 orphan-and-hide：帖子保留但对 feed/search 不可见
	Hidden    bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"index:idx_post_feed"`
	UpdatedAt time.Time
}

func (Post) TableName() string { return "posts" }
