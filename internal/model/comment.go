package model

import "time"

// Comment 评论，属于唯一一个 Post；评论数 count-on-read，不进冗余计数器
type Comment struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PostID    string `gorm:"type:varchar(36);index:idx_comment_post;not null"`
	AuthorID  string `gorm:"type:varchar(36);not null"`
	Body      string `gorm:"type:text;not null"`
	CreatedAt time.Time
}

func (Comment) TableName() string { return "comments" }
