package model

import "time"

// User 用户主体，三个冗余计数器由 StatsSynchronizer 维护：
// posts_count/followers_count/following_count 在操作完成后等于对应集合基数
type User struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	Username string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email    string `gorm:"type:varchar(128);uniqueIndex;not null"`
	Password string `gorm:"type:varchar(128);not null"`
	Bio      string `gorm:"type:text"`
	ImageURL string `gorm:"type:text"`
	Age      int

	PostsCount     int64 `gorm:"not null;default:0"`
	FollowersCount int64 `gorm:"not null;default:0"`
	FollowingCount int64 `gorm:"not null;default:0"`

	// 软删除：正常流程不物理删除用户，避免悬空引用
	DeactivatedAt *time.Time `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
