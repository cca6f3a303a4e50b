package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/social-feed/internal/cache"
	"github.com/d60-Lab/social-feed/internal/model"
	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/pkg/feederr"
)

// Ledger 关系链与帖子的唯一写入口。每个变更操作是一个事务单元：
// 条件化的边/文档变更 + 派生计数器增量要么同时生效要么都不生效，
// 不存在“边已写入而计数器悬空”的中间态。
type Ledger struct {
	db         *gorm.DB
	stats      *StatsSynchronizer
	replicator *FanReplicator
	feedCache  *cache.FeedCache
	opTimeout  time.Duration
}

// NewLedger 构造写服务；replicator 与 feedCache 可为 nil（测试/降级）
func NewLedger(db *gorm.DB, stats *StatsSynchronizer, replicator *FanReplicator, feedCache *cache.FeedCache, opTimeout time.Duration) *Ledger {
	return &Ledger{db: db, stats: stats, replicator: replicator, feedCache: feedCache, opTimeout: opTimeout}
}

func (l *Ledger) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.opTimeout > 0 {
		return context.WithTimeout(ctx, l.opTimeout)
	}
	return ctx, func() {}
}

// wrap 保留已分类错误，其余翻译成核心分类（超时 -> Timeout）
func wrap(op string, err error) error {
	if err == nil || feederr.KindOf(err) != feederr.KindUnknown {
		return err
	}
	return feederr.FromDB(op, err)
}

// Follow 建立关注边并同步两端计数器；自关注拒绝，重复关注幂等。
// 边插入本身是条件原子的（insert-if-absent），并发 N 次 Follow
// 只有一次真正生效，计数器也只 +1。
func (l *Ledger) Follow(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return feederr.Invalid("cannot follow self")
	}
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewUserRepository(tx).ExistAll(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if !ok {
			return feederr.NotFound("user not found or deactivated")
		}
		applied, err := repository.NewFollowRepository(tx).Create(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if !applied {
			// 已关注，幂等返回，不重复计数
			return nil
		}
		if err := l.stats.Apply(ctx, tx, Delta{UserID: fromUserID, Field: FieldFollowingCount, Delta: 1}); err != nil {
			return err
		}
		return l.stats.Apply(ctx, tx, Delta{UserID: toUserID, Field: FieldFollowersCount, Delta: 1})
	})
	if err != nil {
		return wrap("follow", err)
	}
	if l.replicator != nil {
		l.replicator.EnqueueAdd(toUserID, fromUserID)
	}
	return nil
}

// Unfollow 删除关注边；未关注时幂等返回。unfollow 后再 follow
// 恢复到与首次 follow 完全一致的状态，反复切换不产生计数漂移。
func (l *Ledger) Unfollow(ctx context.Context, fromUserID, toUserID string) error {
	if fromUserID == toUserID {
		return feederr.Invalid("cannot unfollow self")
	}
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := repository.NewFollowRepository(tx).Delete(ctx, fromUserID, toUserID)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}
		if err := l.stats.Apply(ctx, tx, Delta{UserID: fromUserID, Field: FieldFollowingCount, Delta: -1}); err != nil {
			return err
		}
		return l.stats.Apply(ctx, tx, Delta{UserID: toUserID, Field: FieldFollowersCount, Delta: -1})
	})
	if err != nil {
		return wrap("unfollow", err)
	}
	if l.replicator != nil {
		l.replicator.EnqueueRemove(toUserID, fromUserID)
	}
	return nil
}

// CreatePost 事务内落地 Post + Outbox 事件并递增作者 posts_count
func (l *Ledger) CreatePost(ctx context.Context, authorID, content string) (string, error) {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	postID := uuid.New().String()
	now := time.Now()
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewUserRepository(tx).ExistAll(ctx, authorID)
		if err != nil {
			return err
		}
		if !ok {
			return feederr.NotFound("author not found or deactivated")
		}
		post := &model.Post{ID: postID, AuthorID: authorID, Content: content, CreatedAt: now, UpdatedAt: now}
		if err := repository.NewPostRepository(tx).Create(ctx, post); err != nil {
			return err
		}
		out := &model.Outbox{ID: uuid.New().String(), PostID: postID, AuthorID: authorID, CreatedAt: now, Status: "pending"}
		if err := tx.Create(out).Error; err != nil {
			return err
		}
		return l.stats.Apply(ctx, tx, Delta{UserID: authorID, Field: FieldPostsCount, Delta: 1})
	})
	if err != nil {
		return "", wrap("create post", err)
	}
	if l.feedCache != nil {
		l.feedCache.Invalidate(ctx)
	}
	return postID, nil
}

// DeletePost 删除帖子并级联评论/收藏，作者 posts_count -1。
// 帖子不存在 -> NotFound；请求者不是作者 -> Forbidden。
func (l *Ledger) DeletePost(ctx context.Context, postID, requesterID string) error {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		postRepo := repository.NewPostRepository(tx)
		post, err := postRepo.GetByID(ctx, postID)
		if err != nil {
			return feederr.FromDB("load post", err)
		}
		if post.AuthorID != requesterID {
			return feederr.Forbidden("post %s does not belong to %s", postID, requesterID)
		}
		applied, err := postRepo.Delete(ctx, postID)
		if err != nil {
			return err
		}
		if !applied {
			// 并发删除只有一个赢家扣减计数
			return feederr.NotFound("post %s", postID)
		}
		if err := repository.NewCommentRepository(tx).DeleteByPost(ctx, postID); err != nil {
			return err
		}
		if err := repository.NewSaveRepository(tx).DeleteByPost(ctx, postID); err != nil {
			return err
		}
		return l.stats.Apply(ctx, tx, Delta{UserID: post.AuthorID, Field: FieldPostsCount, Delta: -1})
	})
	if err != nil {
		return wrap("delete post", err)
	}
	if l.feedCache != nil {
		l.feedCache.Invalidate(ctx)
	}
	return nil
}

// SavePost 收藏（幂等，不影响任何计数器）
func (l *Ledger) SavePost(ctx context.Context, postID, userID string) error {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repository.NewPostRepository(tx).GetByID(ctx, postID); err != nil {
			return feederr.FromDB("load post", err)
		}
		_, err := repository.NewSaveRepository(tx).Save(ctx, postID, userID)
		return err
	})
	return wrap("save post", err)
}

// UnsavePost 取消收藏（幂等）
func (l *Ledger) UnsavePost(ctx context.Context, postID, userID string) error {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	_, err := repository.NewSaveRepository(l.db).Unsave(ctx, postID, userID)
	return wrap("unsave post", err)
}

// ListSaved 某用户收藏的帖子 ID 列表
func (l *Ledger) ListSaved(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	saves, err := repository.NewSaveRepository(l.db).ListSavedBy(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, wrap("list saved", err)
	}
	ids := make([]string, len(saves))
	for i, s := range saves {
		ids[i] = s.PostID
	}
	return ids, nil
}

// CreateComment 评论；帖子不存在 -> NotFound
func (l *Ledger) CreateComment(ctx context.Context, postID, authorID, body string) (*model.Comment, error) {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	comment := &model.Comment{ID: uuid.New().String(), PostID: postID, AuthorID: authorID, Body: body, CreatedAt: time.Now()}
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repository.NewPostRepository(tx).GetByID(ctx, postID); err != nil {
			return feederr.FromDB("load post", err)
		}
		return repository.NewCommentRepository(tx).Create(ctx, comment)
	})
	if err != nil {
		return nil, wrap("create comment", err)
	}
	return comment, nil
}

// ListComments 按发布顺序列出评论，评论数读时统计
func (l *Ledger) ListComments(ctx context.Context, postID string, page, pageSize int) ([]*model.Comment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	repo := repository.NewCommentRepository(l.db)
	total, err := repo.CountByPost(ctx, postID)
	if err != nil {
		return nil, 0, wrap("count comments", err)
	}
	items, err := repo.ListByPost(ctx, postID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, wrap("list comments", err)
	}
	return items, total, nil
}

// Deactivate 用户软删除：冻结账号并按 orphan-and-hide 策略隐藏其帖子
func (l *Ledger) Deactivate(ctx context.Context, userID string) error {
	ctx, cancel := l.opCtx(ctx)
	defer cancel()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := repository.NewUserRepository(tx).Deactivate(ctx, userID)
		if err != nil {
			return err
		}
		if !applied {
			// 已注销则幂等；不存在才报错
			if _, err := repository.NewUserRepository(tx).GetByID(ctx, userID); err != nil {
				return feederr.FromDB("load user", err)
			}
			return nil
		}
		return repository.NewPostRepository(tx).HideByAuthor(ctx, userID)
	})
	if err != nil {
		return wrap("deactivate user", err)
	}
	if l.feedCache != nil {
		l.feedCache.Invalidate(ctx)
	}
	return nil
}
