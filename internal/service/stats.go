package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/pkg/feederr"
	"github.com/d60-Lab/social-feed/pkg/logger"
)

// CounterField 冗余计数器字段名（users 表列名）
type CounterField string

const (
	FieldPostsCount     CounterField = "posts_count"
	FieldFollowersCount CounterField = "followers_count"
	FieldFollowingCount CounterField = "following_count"
)

func (f CounterField) valid() bool {
	switch f {
	case FieldPostsCount, FieldFollowersCount, FieldFollowingCount:
		return true
	}
	return false
}

// Delta Ledger 每次边变更发出的带符号增量事件
type Delta struct {
	UserID string
	Field  CounterField
	Delta  int64
}

// StatsSynchronizer 把增量事件翻译成原子字段更新，绝不做整行读改写，
// 并发写者之间不会丢更新。增量把计数器推到负数时 clamp 到 0 并记
// ConsistencyWarning（说明上游出现了乱序，比如重复投递的 unfollow）。
type StatsSynchronizer struct {
	clamped atomic.Int64
}

func NewStatsSynchronizer() *StatsSynchronizer { return &StatsSynchronizer{} }

// Apply 在给定句柄（通常是 Ledger 事务）上应用一条增量
func (s *StatsSynchronizer) Apply(ctx context.Context, tx *gorm.DB, d Delta) error {
	if !d.Field.valid() {
		return feederr.Invalid("unknown counter field %q", d.Field)
	}
	col := string(d.Field)

	// 带守护条件的原子自增：结果为负时一行都不更新
	res := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", d.UserID).
		Where(fmt.Sprintf("%s + ? >= 0", col), d.Delta).
		UpdateColumn(col, gorm.Expr(fmt.Sprintf("%s + ?", col), d.Delta))
	if res.Error != nil {
		return feederr.FromDB("apply counter delta", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 正增量的守护条件恒真，未命中只可能是用户不存在
	if d.Delta >= 0 {
		return feederr.NotFound("user %s", d.UserID)
	}

	// 负增量未命中：要么用户不存在，要么会把计数器打到负数，clamp 到 0
	clamp := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", d.UserID).
		UpdateColumn(col, 0)
	if clamp.Error != nil {
		return feederr.FromDB("clamp counter", clamp.Error)
	}
	if clamp.RowsAffected == 0 {
		return feederr.NotFound("user %s", d.UserID)
	}

	s.clamped.Add(1)
	logger.Warn("consistency warning: counter clamped to zero",
		zap.String("user", d.UserID),
		zap.String("field", col),
		zap.Int64("delta", d.Delta))
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.CaptureMessage(fmt.Sprintf("counter clamp: user=%s field=%s delta=%d", d.UserID, col, d.Delta))
	}
	return nil
}

// ClampCount 发生过的 clamp 次数（诊断用）
func (s *StatsSynchronizer) ClampCount() int64 { return s.clamped.Load() }
